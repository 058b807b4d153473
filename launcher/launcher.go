// Package launcher starts the ledger server process, discovers its admin
// port, configures the logical network instance over the control channel,
// publishes connection facts, and supervises the process until a termination
// request arrives.
package launcher

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ledgersim/launcher/control"
	"github.com/ledgersim/launcher/internal/files"
	"github.com/ledgersim/launcher/internal/principal"
	"github.com/ledgersim/launcher/internal/stdio"
	"github.com/ledgersim/launcher/portfile"
	"github.com/ledgersim/launcher/status"
	"github.com/ledgersim/launcher/supervise"
)

// Launcher runs one launch-supervise-shutdown cycle.
type Launcher struct {
	// GracePeriod bounds the wait for the child to exit during shutdown;
	// zero means DefaultGracePeriod.
	GracePeriod time.Duration

	log *zap.SugaredLogger
	cfg *Config
}

// New builds a launcher for the given resolved configuration.
func New(log *zap.SugaredLogger, cfg *Config) *Launcher {
	return &Launcher{
		log: log.Named("launcher"),
		cfg: cfg,
	}
}

// Run executes the full lifecycle: spawn, discover, configure, publish,
// supervise, shut down. It returns nil after a graceful shutdown. Context
// cancellation is treated as an interrupt request.
func (l *Launcher) Run(ctx context.Context) error {
	if err := l.cfg.Validate(); err != nil {
		return err
	}
	log := l.log.With("run_id", uuid.NewString())

	serverPath, err := files.ResolveServerBinary(l.cfg.ServerPath, ServerBinaryName)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	// The discovery directory is owned exclusively by this run; nothing else
	// may touch the port file inside it.
	discoveryDir, err := os.MkdirTemp("", "ledgersim-discovery-*")
	if err != nil {
		return fmt.Errorf("%w: creating discovery directory: %v", ErrDiscovery, err)
	}
	defer os.RemoveAll(discoveryDir)

	// watch before spawning so the first write cannot be missed
	watcher, err := portfile.New(log, discoveryDir, PortFileName)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDiscovery, err)
	}
	defer watcher.Close()

	child, err := supervise.Start(log, supervise.Spec{
		BinaryPath: serverPath,
		PortFile:   filepath.Join(discoveryDir, PortFileName),
		ConfigPort: l.cfg.ConfigPort,
		BindAddr:   l.cfg.Bind,
		StdoutFile: l.cfg.StdoutFile,
		StderrFile: l.cfg.StderrFile,
		Verbose:    l.cfg.Verbose,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSpawn, err)
	}

	configPort, err := watcher.Port(ctx)
	if err != nil {
		// never leave the spawned child unmanaged on a failed startup
		l.cleanupChild(log, child)
		return fmt.Errorf("%w: %v", ErrDiscovery, err)
	}
	watcher.Close()
	log.Infow("discovered admin port", "port", configPort)

	client := control.NewClient(log, configPort)
	inst, err := l.configure(ctx, log, client, configPort)
	if err != nil {
		l.cleanupChild(log, child)
		return err
	}
	log.Infow("network is running", "instance_id", inst.ID, "config_port", configPort, "gateway_port", inst.GatewayPort)

	sig, releaseSignals := awaitShutdown(ctx, log)
	log.Infow("shutting down", "trigger", sig.String())

	coord := &ShutdownCoordinator{
		Log:         log,
		Control:     client,
		InstanceID:  inst.ID,
		Child:       child,
		GracePeriod: l.GracePeriod,
	}
	coord.Execute(context.Background())
	releaseSignals()
	return nil
}

// configure performs the single configuration round-trip against the control
// channel and, when requested, publishes the status artifact. In non-verbose
// runs the launcher's own error stream is muted for the duration and
// replayed only on failure.
func (l *Launcher) configure(ctx context.Context, log *zap.SugaredLogger, client *control.Client, configPort uint16) (inst *control.Instance, err error) {
	if !l.cfg.Verbose && l.cfg.StderrFile == "" {
		if capture, capErr := stdio.CaptureStderr(); capErr == nil {
			defer func() { capture.Restore(err != nil) }()
		} else {
			log.Debugw("could not capture stderr for quiet startup", "error", capErr)
		}
	}

	inst, err = client.CreateInstance(ctx, buildCreateRequest(l.cfg))
	if err != nil {
		return nil, fmt.Errorf("%w: creating instance: %v", ErrControl, err)
	}
	if err = client.SetAutoProgress(ctx, inst.ID, l.cfg.ArtificialDelayMS); err != nil {
		return nil, fmt.Errorf("%w: configuring auto progress: %v", ErrControl, err)
	}

	if l.cfg.StatusDir != "" {
		var rootKey []byte
		rootKey, err = client.RootKey(ctx, inst.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: fetching root key: %v", ErrControl, err)
		}
		gatewayPort := inst.GatewayPort
		if gatewayPort == 0 {
			gatewayPort = l.cfg.GatewayPort
		}
		if gatewayPort == 0 {
			err = fmt.Errorf("%w: no gateway port known for the status file", ErrControl)
			return nil, err
		}
		rec := &status.Record{
			V:                          status.SchemaVersion,
			InstanceID:                 inst.ID,
			ConfigPort:                 configPort,
			GatewayPort:                gatewayPort,
			RootKey:                    hex.EncodeToString(rootKey),
			DefaultEffectiveCanisterID: principal.Encode(inst.Topology.DefaultEffectiveTargetID),
		}
		log.Infof("writing status to %s", filepath.Join(l.cfg.StatusDir, status.FileName))
		if err = status.Write(l.cfg.StatusDir, rec); err != nil {
			return nil, err
		}
	}
	return inst, nil
}

// cleanupChild tears down an already-spawned child after a startup failure.
func (l *Launcher) cleanupChild(log *zap.SugaredLogger, child *supervise.Child) {
	coord := &ShutdownCoordinator{
		Log:         log,
		Child:       child,
		GracePeriod: l.GracePeriod,
	}
	coord.Execute(context.Background())
}

// buildCreateRequest maps the launch configuration onto the control API's
// instance configuration.
func buildCreateRequest(cfg *Config) *control.CreateInstanceRequest {
	req := &control.CreateInstanceRequest{
		StateDir:       cfg.StateDir,
		BitcoindAddrs:  cfg.BitcoindAddrs,
		DogecoindAddrs: cfg.DogecoindAddrs,
		Gateway: &control.GatewayConfig{
			IPAddr:  cfg.Bind,
			Port:    cfg.GatewayPort,
			Domains: []string{"localhost"},
		},
	}
	if len(cfg.Subnets) == 0 {
		req.Subnets.Application = 1
	}
	for _, kind := range cfg.Subnets {
		switch kind {
		case SubnetApplication:
			req.Subnets.Application++
		case SubnetSystem:
			req.Subnets.System++
		case SubnetVerifiedApplication:
			req.Subnets.VerifiedApplication++
		case SubnetBitcoin:
			req.Subnets.Bitcoin = true
		case SubnetFiduciary:
			req.Subnets.Fiduciary = true
		case SubnetNNS:
			req.Subnets.NNS = true
		case SubnetSNS:
			req.Subnets.SNS = true
		}
	}
	// the root subnet is always present
	req.Subnets.NNS = true
	req.Features.CyclesMinting = true
	req.Features.ICPToken = true
	req.Features.CyclesToken = true
	if cfg.NNS || cfg.II {
		req.Subnets.II = true
		req.Features.II = true
	}
	if cfg.NNS {
		req.Subnets.SNS = true
		req.Features.NNSGovernance = true
		req.Features.NNSUI = true
		req.Features.SNS = true
	}
	return req
}
