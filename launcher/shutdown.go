package launcher

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ledgersim/launcher/control"
	"github.com/ledgersim/launcher/supervise"
)

// DefaultGracePeriod bounds how long shutdown waits for the child to exit
// after being interrupted, before killing it.
const DefaultGracePeriod = 5 * time.Second

// ShutdownSignal identifies which termination trigger ended the run. It only
// unifies the race between the triggers and carries nothing else.
type ShutdownSignal int

const (
	SignalInterrupt ShutdownSignal = iota
	SignalTerminate
)

func (s ShutdownSignal) String() string {
	if s == SignalTerminate {
		return "terminate"
	}
	return "interrupt"
}

// awaitShutdown blocks until an interrupt or terminate request arrives,
// whichever is first; the loser of the race is abandoned. Context
// cancellation counts as an interrupt request. The signal registration
// stays installed so that further signals during teardown are swallowed
// instead of killing the launcher mid-shutdown; the caller releases it
// with the returned func once teardown is complete.
func awaitShutdown(ctx context.Context, log *zap.SugaredLogger) (ShutdownSignal, func()) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	release := func() { signal.Stop(sigCh) }

	select {
	case <-ctx.Done():
		log.Debug("context done, treating as interrupt request")
		return SignalInterrupt, release
	case s := <-sigCh:
		log.Debugw("received termination signal", "signal", s.String())
		if s == syscall.SIGTERM {
			return SignalTerminate, release
		}
		return SignalInterrupt, release
	}
}

// ShutdownCoordinator tears down the logical instance and the child process
// after a termination request, in order: stop the instance over the control
// channel, interrupt the child if it is still in the process table, then
// race its exit against the grace period and kill it when the race times
// out. Once started, the sequence runs to completion.
type ShutdownCoordinator struct {
	Log         *zap.SugaredLogger
	Control     *control.Client
	InstanceID  int
	Child       *supervise.Child
	GracePeriod time.Duration
}

// Execute runs the ordered shutdown. Failures in individual steps are
// best-effort: a dead control channel must not strand the child, and a
// failed kill is not escalated since the launcher is exiting regardless.
func (s *ShutdownCoordinator) Execute(ctx context.Context) {
	grace := s.GracePeriod
	if grace == 0 {
		grace = DefaultGracePeriod
	}

	if s.Control != nil {
		if err := s.Control.DeleteInstance(ctx, s.InstanceID); err != nil {
			s.Log.Warnw("stopping instance failed, proceeding with process teardown", "error", err)
		}
	}

	if err := s.Child.Interrupt(); err != nil {
		s.Log.Warnw("interrupting server process failed", "error", err)
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-s.Child.Exited():
		s.Log.Debugw("server process exited", "code", s.Child.Result().Code)
	case <-timer.C:
		s.Log.Warnw("server process did not exit within grace period, killing", "grace", grace)
		if err := s.Child.Kill(); err != nil {
			s.Log.Debugw("killing server process failed", "error", err)
		}
	}
}
