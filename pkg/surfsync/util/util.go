package util

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/gofrs/flock"
	"github.com/mitchellh/go-ps"
)

// EnsureDirExists creates the given directory path if it doesn't already exist
func EnsureDirExists(path string) error {
	if err := os.MkdirAll(path, 0755); err != nil {
		return fmt.Errorf("ensure directory exists (%s): %w", path, err)
	}

	return nil
}

// FileExists checks if a file exists and is not a directory before we try using it to prevent further errors
func FileExists(filename string) bool {
	info, err := os.Stat(filename)
	if os.IsNotExist(err) {
		return false
	}

	return err == nil && !info.IsDir()
}

// SetupCloseHandler creates a 'listener' on a new goroutine which will notify the
// program if it receives an interrupt from the OS
func SetupCloseHandler() chan os.Signal {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	return c
}

// ErrAlreadyRunning is returned by AcquireInstanceLock when another process holds the lock
var ErrAlreadyRunning = errors.New("another instance is already running")

// AcquireInstanceLock takes an exclusive lock on path and records our pid in
// it. When the lock is held elsewhere the error names the holding process.
func AcquireInstanceLock(path string) (*flock.Flock, error) {
	lock := flock.New(path)

	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire instance lock: %w", err)
	}

	if !ok {
		if holder := lockHolder(path); holder != "" {
			return nil, fmt.Errorf("%w (%s)", ErrAlreadyRunning, holder)
		}
		return nil, ErrAlreadyRunning
	}

	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0644); err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("write instance lock: %w", err)
	}

	return lock, nil
}

// lockHolder describes the process whose pid is stored in the lock file
func lockHolder(path string) string {
	content, err := os.ReadFile(path)
	if err != nil {
		return ""
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(content)))
	if err != nil {
		return ""
	}

	process, err := ps.FindProcess(pid)
	if err != nil || process == nil {
		return fmt.Sprintf("pid %d", pid)
	}

	return fmt.Sprintf("%s, pid %d", process.Executable(), pid)
}
