package cli

import (
	"time"

	"github.com/tracklab/gatelink/internal/commands"
	"github.com/tracklab/gatelink/internal/config"
	"github.com/tracklab/gatelink/internal/tui"
)

// CLI is the root command structure for gatelink.
type CLI struct {
	Verbose bool `short:"v" help:"Enable verbose debug output"`

	// Default command - TUI
	Tui TuiCmd `cmd:"" default:"withargs" help:"Launch interactive TUI (default)"`

	Scan  ScanCmd  `cmd:"" help:"Scan for timing gates"`
	Ls    LsCmd    `cmd:"" help:"List files on a gate"`
	Get   GetCmd   `cmd:"" help:"Download a file from a gate"`
	Timer TimerCmd `cmd:"" help:"Timer operations"`
	Bond  BondCmd  `cmd:"" help:"Bonded gate management"`
}

// --- TUI Command ---

type TuiCmd struct{}

func (c *TuiCmd) Run(globals *CLI) error {
	config.Verbose = globals.Verbose
	return tui.Run()
}

// --- Scan Command ---

type ScanCmd struct {
	Timeout time.Duration `default:"10s" help:"How long to scan"`
}

func (c *ScanCmd) Run(globals *CLI) error {
	config.Verbose = globals.Verbose
	return commands.Scan(c.Timeout)
}

// --- File Commands ---

type LsCmd struct {
	Path   string `arg:"" optional:"" help:"Remote directory (default root)"`
	Device string `short:"d" help:"Gate identifier (default first found)"`
}

func (c *LsCmd) Run(globals *CLI) error {
	config.Verbose = globals.Verbose
	session, err := commands.Open(c.Device)
	if err != nil {
		return err
	}
	defer session.Close()
	return commands.List(session, c.Path)
}

type GetCmd struct {
	Remote string `arg:"" help:"Remote file path"`
	Local  string `arg:"" optional:"" help:"Local output path (default remote name)"`
	Device string `short:"d" help:"Gate identifier (default first found)"`
}

func (c *GetCmd) Run(globals *CLI) error {
	config.Verbose = globals.Verbose
	session, err := commands.Open(c.Device)
	if err != nil {
		return err
	}
	defer session.Close()
	return commands.Get(session, c.Remote, c.Local)
}

// --- Timer Commands ---

type TimerCmd struct {
	Start  TimerStartCmd  `cmd:"" help:"Arm the gate's timer"`
	Cancel TimerCancelCmd `cmd:"" help:"Disarm the gate's timer"`
	Wait   TimerWaitCmd   `cmd:"" help:"Arm the timer and wait for a crossing"`
}

type TimerStartCmd struct {
	Device string `short:"d" help:"Gate identifier (default first found)"`
}

func (c *TimerStartCmd) Run(globals *CLI) error {
	config.Verbose = globals.Verbose
	session, err := commands.Open(c.Device)
	if err != nil {
		return err
	}
	defer session.Close()
	return commands.TimerStart(session)
}

type TimerCancelCmd struct {
	Device string `short:"d" help:"Gate identifier (default first found)"`
}

func (c *TimerCancelCmd) Run(globals *CLI) error {
	config.Verbose = globals.Verbose
	session, err := commands.Open(c.Device)
	if err != nil {
		return err
	}
	defer session.Close()
	return commands.TimerCancel(session)
}

type TimerWaitCmd struct {
	Timeout time.Duration `help:"Give up after this long (0 waits forever)"`
	Device  string        `short:"d" help:"Gate identifier (default first found)"`
}

func (c *TimerWaitCmd) Run(globals *CLI) error {
	config.Verbose = globals.Verbose
	session, err := commands.Open(c.Device)
	if err != nil {
		return err
	}
	defer session.Close()
	return commands.TimerWait(session, c.Timeout)
}

// --- Bond Commands ---

type BondCmd struct {
	List   BondListCmd   `cmd:"" help:"List bonded gates"`
	Remove BondRemoveCmd `cmd:"" help:"Forget a bonded gate"`
}

type BondListCmd struct{}

func (c *BondListCmd) Run(globals *CLI) error {
	config.Verbose = globals.Verbose
	return commands.BondList()
}

type BondRemoveCmd struct {
	ID string `arg:"" help:"Gate identifier to forget"`
}

func (c *BondRemoveCmd) Run(globals *CLI) error {
	config.Verbose = globals.Verbose
	return commands.BondRemove(c.ID)
}
