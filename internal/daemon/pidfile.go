// Package daemon manages the watchdog's process-id marker file, used
// to refuse a second live watchdog on the same project.
package daemon

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
)

// WritePIDFile records the current process id at path.
func WritePIDFile(path string) error {
	data := []byte(fmt.Sprintf("%d\n", os.Getpid()))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write pid file %s: %w", path, err)
	}
	return nil
}

// ReadPIDFile returns the pid recorded at path. A missing file yields
// zero with no error.
func ReadPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read pid file %s: %w", path, err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parse pid file %s: %w", path, err)
	}
	return pid, nil
}

// RemovePIDFile deletes the marker. An already-removed file is fine.
func RemovePIDFile(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove pid file %s: %w", path, err)
	}
	return nil
}

// LivePID returns the pid recorded at path if that process is still
// alive. A stale marker left by a dead process is cleaned up and
// reported as zero.
func LivePID(path string) (int, error) {
	pid, err := ReadPIDFile(path)
	if err != nil {
		return 0, err
	}
	if pid == 0 {
		return 0, nil
	}
	if !IsProcessRunning(pid) {
		_ = os.Remove(path)
		return 0, nil
	}
	return pid, nil
}

// IsProcessRunning probes a pid with signal 0, which tests existence
// without delivering anything. EPERM still means the process exists.
func IsProcessRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = process.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	return errors.Is(err, syscall.EPERM)
}
