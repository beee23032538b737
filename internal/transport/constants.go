package transport

// The gate exposes one vendor service with five characteristics. All six
// UUIDs share the vendor base and differ only in the leading 32 bits.
const (
	// GateServiceUUID is the primary gate service UUID
	GateServiceUUID = "F3640000-8D1C-4E2A-9B6F-D5C3A0E4F821"

	// CommandCharUUID is the characteristic for listing/download/ack frames (write)
	CommandCharUUID = "F3640001-8D1C-4E2A-9B6F-D5C3A0E4F821"

	// DataCharUUID is the characteristic for directory entries and file chunks (notify)
	DataCharUUID = "F3640002-8D1C-4E2A-9B6F-D5C3A0E4F821"

	// PositionCharUUID is the positioning data characteristic (bound but unused)
	PositionCharUUID = "F3640003-8D1C-4E2A-9B6F-D5C3A0E4F821"

	// TimerCtrlCharUUID is the characteristic for timer start/cancel (write, acked)
	TimerCtrlCharUUID = "F3640004-8D1C-4E2A-9B6F-D5C3A0E4F821"

	// TimerResultCharUUID is the characteristic for timer results (notify)
	TimerResultCharUUID = "F3640005-8D1C-4E2A-9B6F-D5C3A0E4F821"
)

// RequiredCharUUIDs lists every characteristic the controller binds on
// connection.
var RequiredCharUUIDs = []string{
	CommandCharUUID,
	DataCharUUID,
	PositionCharUUID,
	TimerCtrlCharUUID,
	TimerResultCharUUID,
}
