package launcher

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ledgersim/launcher/internal/controltest"
	"github.com/ledgersim/launcher/status"
)

// fakeServer writes a shell script standing in for the real server binary.
// The script extracts --port-file from its arguments, records its own PID,
// announces adminPort, and then behaves per the trap line.
func fakeServer(t *testing.T, adminPort uint16, trapLine, pidFile string) string {
	t.Helper()
	script := fmt.Sprintf(`#!/bin/sh
%s
PF=""
prev=""
for a in "$@"; do
  if [ "$prev" = "--port-file" ]; then PF="$a"; fi
  prev="$a"
done
echo $$ > %q
echo %d > "$PF"
while :; do sleep 0.1; done
`, trapLine, pidFile, adminPort)
	path := filepath.Join(t.TempDir(), "ledgersim")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func readPID(t *testing.T, pidFile string) int {
	t.Helper()
	var pid int
	require.Eventually(t, func() bool {
		b, err := os.ReadFile(pidFile)
		if err != nil {
			return false
		}
		_, err = fmt.Sscanf(string(b), "%d", &pid)
		return err == nil
	}, 10*time.Second, 20*time.Millisecond)
	return pid
}

func processGone(pid int) func() bool {
	return func() bool {
		return syscall.Kill(pid, syscall.Signal(0)) != nil
	}
}

func TestRunGracefulLifecycle(t *testing.T) {
	fake := controltest.New()
	defer fake.Close()

	pidFile := filepath.Join(t.TempDir(), "pid")
	statusDir := t.TempDir()
	cfg := &Config{
		ServerPath:       fakeServer(t, fake.Port(), `trap 'exit 0' INT`, pidFile),
		StatusDir:        statusDir,
		Subnets:          []SubnetKind{SubnetApplication, SubnetApplication, SubnetBitcoin},
		II:               true,
		InterfaceVersion: "1.1.0",
		Verbose:          true,
	}
	l := New(zap.NewNop().Sugar(), cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var group errgroup.Group
	group.Go(func() error { return l.Run(ctx) })

	statusPath := filepath.Join(statusDir, status.FileName)
	require.Eventually(t, func() bool {
		_, err := os.Stat(statusPath)
		return err == nil
	}, 15*time.Second, 50*time.Millisecond)

	contents, err := os.ReadFile(statusPath)
	require.NoError(t, err)
	var rec status.Record
	require.NoError(t, json.Unmarshal(contents, &rec))
	assert.Equal(t, status.SchemaVersion, rec.V)
	assert.Equal(t, fake.InstanceID, rec.InstanceID)
	assert.Equal(t, fake.Port(), rec.ConfigPort)
	assert.Equal(t, fake.GatewayPort, rec.GatewayPort)
	assert.Equal(t, "rrkah-fqaaa-aaaaa-aaaaq-cai", rec.DefaultEffectiveCanisterID)
	decoded, err := hex.DecodeString(rec.RootKey)
	require.NoError(t, err)
	assert.Equal(t, fake.RootKey, decoded)

	reqs := fake.CreateRequests()
	require.Len(t, reqs, 1)
	assert.Equal(t, 2, reqs[0].Subnets.Application)
	assert.True(t, reqs[0].Subnets.Bitcoin)
	assert.True(t, reqs[0].Subnets.NNS)
	assert.True(t, reqs[0].Subnets.II)
	assert.True(t, reqs[0].Features.II)

	pid := readPID(t, pidFile)

	cancel()
	require.NoError(t, group.Wait())
	assert.Equal(t, []int{fake.InstanceID}, fake.Deleted())
	assert.Eventually(t, processGone(pid), 5*time.Second, 50*time.Millisecond)
}

func TestRunKillsStubbornChildAtGraceTimeout(t *testing.T) {
	fake := controltest.New()
	defer fake.Close()

	pidFile := filepath.Join(t.TempDir(), "pid")
	cfg := &Config{
		ServerPath: fakeServer(t, fake.Port(), `trap '' INT`, pidFile),
		Verbose:    true,
	}
	l := New(zap.NewNop().Sugar(), cfg)
	l.GracePeriod = 500 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var group errgroup.Group
	group.Go(func() error { return l.Run(ctx) })

	require.Eventually(t, func() bool {
		return len(fake.AutoProgressConfigs()) > 0
	}, 15*time.Second, 50*time.Millisecond)
	pid := readPID(t, pidFile)

	start := time.Now()
	cancel()
	require.NoError(t, group.Wait())
	require.Less(t, time.Since(start), 5*time.Second)
	assert.Eventually(t, processGone(pid), 5*time.Second, 50*time.Millisecond)
}

func TestRunSpawnFailure(t *testing.T) {
	cfg := &Config{ServerPath: filepath.Join(t.TempDir(), "missing"), Verbose: true}
	err := New(zap.NewNop().Sugar(), cfg).Run(context.Background())
	require.ErrorIs(t, err, ErrSpawn)
}

func TestRunDiscoveryFailureCleansUpChild(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "pid")
	// announces garbage instead of a port
	script := fmt.Sprintf(`#!/bin/sh
PF=""
prev=""
for a in "$@"; do
  if [ "$prev" = "--port-file" ]; then PF="$a"; fi
  prev="$a"
done
echo $$ > %q
echo not-a-port > "$PF"
while :; do sleep 0.1; done
`, pidFile)
	path := filepath.Join(t.TempDir(), "ledgersim")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))

	cfg := &Config{ServerPath: path, Verbose: true}
	l := New(zap.NewNop().Sugar(), cfg)
	l.GracePeriod = 500 * time.Millisecond

	err := l.Run(context.Background())
	require.ErrorIs(t, err, ErrDiscovery)

	pid := readPID(t, pidFile)
	assert.Eventually(t, processGone(pid), 5*time.Second, 50*time.Millisecond)
}

func TestValidate(t *testing.T) {
	require.NoError(t, (&Config{}).Validate())
	require.ErrorIs(t, (&Config{Bind: "nope"}).Validate(), ErrConfiguration)
	require.ErrorIs(t, (&Config{BitcoindAddrs: []string{"no-port"}}).Validate(), ErrConfiguration)
	require.NoError(t, (&Config{BitcoindAddrs: []string{"127.0.0.1:18444"}}).Validate())
	require.ErrorIs(t, (&Config{StatusDir: "/tmp"}).Validate(), ErrConfiguration)
	require.NoError(t, (&Config{StatusDir: "/tmp", InterfaceVersion: "1.1.0"}).Validate())
}

func TestBuildCreateRequestDefaults(t *testing.T) {
	req := buildCreateRequest(&Config{})
	assert.Equal(t, 1, req.Subnets.Application)
	assert.True(t, req.Subnets.NNS)
	assert.True(t, req.Features.CyclesMinting)
	assert.True(t, req.Features.ICPToken)
	assert.True(t, req.Features.CyclesToken)
	assert.False(t, req.Subnets.II)
	require.NotNil(t, req.Gateway)
	assert.Equal(t, []string{"localhost"}, req.Gateway.Domains)
}

func TestBuildCreateRequestNNSSuite(t *testing.T) {
	req := buildCreateRequest(&Config{NNS: true, Subnets: []SubnetKind{SubnetSystem}})
	assert.Equal(t, 0, req.Subnets.Application)
	assert.Equal(t, 1, req.Subnets.System)
	assert.True(t, req.Subnets.II)
	assert.True(t, req.Subnets.SNS)
	assert.True(t, req.Features.NNSGovernance)
	assert.True(t, req.Features.NNSUI)
	assert.True(t, req.Features.SNS)
	assert.True(t, req.Features.II)
}
