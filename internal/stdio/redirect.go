// Package stdio provides scoped redirection of the process-wide error
// stream. A startup phase can be muted by capturing everything written to
// file descriptor 2 into a temporary file; the original descriptor is
// restored on every exit path and the captured output is replayed only when
// the wrapped phase failed.
package stdio

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// Capture holds a redirected stderr. The zero value is not usable; obtain
// one from CaptureStderr and always call Restore.
type Capture struct {
	orig     int
	file     *os.File
	restored bool
}

// CaptureStderr duplicates the current stderr descriptor and redirects
// descriptor 2 into a fresh temporary file.
func CaptureStderr() (*Capture, error) {
	f, err := os.CreateTemp("", "launcher-stderr-*.log")
	if err != nil {
		return nil, fmt.Errorf("creating capture file: %w", err)
	}
	orig, err := unix.Dup(int(os.Stderr.Fd()))
	if err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, fmt.Errorf("duplicating stderr: %w", err)
	}
	if err := unix.Dup2(int(f.Fd()), int(os.Stderr.Fd())); err != nil {
		unix.Close(orig)
		f.Close()
		os.Remove(f.Name())
		return nil, fmt.Errorf("redirecting stderr: %w", err)
	}
	return &Capture{orig: orig, file: f}, nil
}

// Path returns the location of the capture file. Only valid before Restore.
func (c *Capture) Path() string {
	return c.file.Name()
}

// Restore reinstates the original stderr descriptor. When replay is true the
// captured bytes are written to the restored stream. Calling Restore more
// than once is a no-op.
func (c *Capture) Restore(replay bool) error {
	if c.restored {
		return nil
	}
	c.restored = true
	defer func() {
		c.file.Close()
		os.Remove(c.file.Name())
	}()
	if err := unix.Dup2(c.orig, int(os.Stderr.Fd())); err != nil {
		return fmt.Errorf("restoring stderr: %w", err)
	}
	unix.Close(c.orig)
	if replay {
		if _, err := c.file.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("rewinding capture file: %w", err)
		}
		if _, err := io.Copy(os.Stderr, c.file); err != nil {
			return fmt.Errorf("replaying captured stderr: %w", err)
		}
	}
	return nil
}
