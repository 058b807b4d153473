package stdio

import (
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// interceptStderr points descriptor 2 at a temp file for the duration of the
// test so the suite can observe what a replay writes there.
func interceptStderr(t *testing.T) *os.File {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "stderr-sink")
	require.NoError(t, err)

	orig, err := unix.Dup(int(os.Stderr.Fd()))
	require.NoError(t, err)
	require.NoError(t, unix.Dup2(int(f.Fd()), int(os.Stderr.Fd())))
	t.Cleanup(func() {
		unix.Dup2(orig, int(os.Stderr.Fd()))
		unix.Close(orig)
		f.Close()
	})
	return f
}

func TestCaptureSwallowsOutputOnSuccess(t *testing.T) {
	sink := interceptStderr(t)

	c, err := CaptureStderr()
	require.NoError(t, err)
	capturePath := c.Path()

	fmt.Fprint(os.Stderr, "muted output")

	captured, err := os.ReadFile(capturePath)
	require.NoError(t, err)
	require.Equal(t, "muted output", string(captured))

	require.NoError(t, c.Restore(false))

	// no replay: the sink stays empty and the capture file is gone
	content, err := os.ReadFile(sink.Name())
	require.NoError(t, err)
	require.Empty(t, content)
	_, err = os.Stat(capturePath)
	require.True(t, os.IsNotExist(err))
}

func TestCaptureReplaysOutputOnFailure(t *testing.T) {
	sink := interceptStderr(t)

	c, err := CaptureStderr()
	require.NoError(t, err)

	fmt.Fprint(os.Stderr, "failure details")
	require.NoError(t, c.Restore(true))

	content, err := os.ReadFile(sink.Name())
	require.NoError(t, err)
	require.Equal(t, "failure details", string(content))
}

func TestRestoreIsIdempotent(t *testing.T) {
	interceptStderr(t)

	c, err := CaptureStderr()
	require.NoError(t, err)
	require.NoError(t, c.Restore(false))
	require.NoError(t, c.Restore(true))
}
