package launcher

import (
	"fmt"
	"net"
)

// ServerBinaryName is the server binary expected next to the launcher when
// no explicit path is given.
const ServerBinaryName = "ledgersim"

// PortFileName is the file the server writes its admin port to, inside the
// launcher-owned discovery directory.
const PortFileName = "ledgersim.port"

// SubnetKind selects the flavor of a subnet to include in the topology.
type SubnetKind string

const (
	SubnetApplication         SubnetKind = "application"
	SubnetSystem              SubnetKind = "system"
	SubnetVerifiedApplication SubnetKind = "verified-application"
	SubnetBitcoin             SubnetKind = "bitcoin"
	SubnetFiduciary           SubnetKind = "fiduciary"
	SubnetNNS                 SubnetKind = "nns"
	SubnetSNS                 SubnetKind = "sns"
)

// SubnetKinds lists the accepted --subnet values.
var SubnetKinds = []SubnetKind{
	SubnetApplication,
	SubnetSystem,
	SubnetVerifiedApplication,
	SubnetBitcoin,
	SubnetFiduciary,
	SubnetNNS,
	SubnetSNS,
}

// ParseSubnetKind validates a subnet selector.
func ParseSubnetKind(s string) (SubnetKind, error) {
	for _, k := range SubnetKinds {
		if s == string(k) {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown subnet kind %q (must be one of %v)", s, SubnetKinds)
}

// Config is the resolved launch configuration. It is built once from the
// invocation and never mutated afterward.
type Config struct {
	GatewayPort       uint16
	ConfigPort        uint16
	Bind              string
	StateDir          string
	ArtificialDelayMS *uint64
	Subnets           []SubnetKind
	BitcoindAddrs     []string
	DogecoindAddrs    []string
	II                bool
	NNS               bool
	ServerPath        string
	StdoutFile        string
	StderrFile        string
	StatusDir         string
	Verbose           bool
	InterfaceVersion  string
}

// Validate checks the cross-field rules that flag parsing cannot express.
func (c *Config) Validate() error {
	if c.Bind != "" && net.ParseIP(c.Bind) == nil {
		return fmt.Errorf("%w: invalid bind address %q", ErrConfiguration, c.Bind)
	}
	for _, addr := range append(append([]string{}, c.BitcoindAddrs...), c.DogecoindAddrs...) {
		if _, _, err := net.SplitHostPort(addr); err != nil {
			return fmt.Errorf("%w: invalid node address %q: %v", ErrConfiguration, addr, err)
		}
	}
	if c.StatusDir != "" && c.InterfaceVersion == "" {
		return fmt.Errorf("%w: a status directory requires a declared interface version", ErrConfiguration)
	}
	return nil
}
