package commands

import (
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"github.com/tracklab/gatelink/internal/device"
	"github.com/tracklab/gatelink/internal/util"
)

const downloadTimeout = 5 * time.Minute

// List prints the contents of a remote directory. path is slash
// separated relative to the gate's root; empty means root.
func List(s *Session, path string) error {
	if err := navigate(s, path); err != nil {
		return err
	}

	entries := s.Controller.Entries()
	if len(entries) == 0 {
		fmt.Println("(empty)")
		return nil
	}

	for _, e := range entries {
		kind := "-"
		if e.IsDir() {
			kind = "d"
		}
		fmt.Printf("%s %10s  %s  %s\n",
			kind, util.FormatSize(e.Size),
			e.Modified.Format("2006-01-02 15:04"), e.Name)
	}
	return nil
}

// Get downloads a remote file and writes it locally. local defaults to
// the remote leaf name in the current directory.
func Get(s *Session, remote, local string) error {
	dir, leaf := splitRemote(remote)
	if err := navigate(s, dir); err != nil {
		return err
	}

	if local == "" {
		local = leaf
	}

	fmt.Printf("Downloading %s...\n", leaf)
	results := make(chan device.TransferResult, 1)
	if err := s.Controller.Download(leaf, func(r device.TransferResult) {
		results <- r
	}); err != nil {
		return fmt.Errorf("download: %w", err)
	}

	deadline := time.After(downloadTimeout)
	for {
		select {
		case e := <-s.Events():
			if p, ok := e.Data.(device.TransferProgress); ok && p.Expected > 0 {
				fmt.Printf("\r  %d / %d bytes (%.0f%%)", p.Received, p.Expected, p.Fraction*100)
			}
		case r := <-results:
			fmt.Println()
			if r.Outcome != device.TransferSuccess {
				return fmt.Errorf("download failed: %w", r.Err)
			}
			if err := os.WriteFile(local, r.Data, 0644); err != nil {
				return fmt.Errorf("failed to write file: %w", err)
			}
			fmt.Printf("Saved %s (%s)\n", local, util.FormatSize(uint32(len(r.Data))))
			return nil
		case <-deadline:
			s.Controller.CancelDownload()
			return fmt.Errorf("download timed out after %v", downloadTimeout)
		}
	}
}

// navigate walks the controller's remote working directory to dir,
// waiting for each intermediate listing to settle.
func navigate(s *Session, dir string) error {
	s.WaitListing()
	for _, seg := range strings.Split(dir, "/") {
		if seg == "" {
			continue
		}
		if err := s.Controller.ChangeDirectory(seg); err != nil {
			return fmt.Errorf("cd %s: %w", seg, err)
		}
		s.WaitListing()
	}
	return nil
}

// splitRemote splits a remote path into its directory part and leaf
// name. Remote paths are always slash separated.
func splitRemote(remote string) (dir, leaf string) {
	remote = strings.Trim(remote, "/")
	dir, leaf = path.Split(remote)
	return strings.Trim(dir, "/"), leaf
}
