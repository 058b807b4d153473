package control

// Request and response shapes for the server's control API. Only the fields
// the launcher needs are modeled here.

// GatewayConfig asks the server to run an HTTP gateway for the instance.
type GatewayConfig struct {
	IPAddr  string   `json:"ip_addr,omitempty"`
	Port    uint16   `json:"port,omitempty"`
	Domains []string `json:"domains,omitempty"`
}

// SubnetConfig selects which subnets the instance is built with. Counted
// kinds may appear more than once; the rest are on/off.
type SubnetConfig struct {
	Application         int  `json:"application"`
	System              int  `json:"system"`
	VerifiedApplication int  `json:"verified_application"`
	Bitcoin             bool `json:"bitcoin"`
	Fiduciary           bool `json:"fiduciary"`
	NNS                 bool `json:"nns"`
	SNS                 bool `json:"sns"`
	II                  bool `json:"ii"`
}

// Features are the bundled application suites installed into the instance.
type Features struct {
	CyclesMinting bool `json:"cycles_minting"`
	ICPToken      bool `json:"icp_token"`
	CyclesToken   bool `json:"cycles_token"`
	II            bool `json:"ii"`
	NNSGovernance bool `json:"nns_governance"`
	NNSUI         bool `json:"nns_ui"`
	SNS           bool `json:"sns"`
}

// CreateInstanceRequest configures a new logical instance.
type CreateInstanceRequest struct {
	Subnets        SubnetConfig   `json:"subnets"`
	Features       Features       `json:"features"`
	StateDir       string         `json:"state_dir,omitempty"`
	BitcoindAddrs  []string       `json:"bitcoind_addrs,omitempty"`
	DogecoindAddrs []string       `json:"dogecoind_addrs,omitempty"`
	Gateway        *GatewayConfig `json:"http_gateway,omitempty"`
}

// Topology describes the built instance. The default effective target is the
// execution target new work lands on when the caller does not pick one.
type Topology struct {
	DefaultEffectiveTargetID []byte `json:"default_effective_canister_id"`
}

// Instance is the server's view of a created instance.
type Instance struct {
	ID          int      `json:"instance_id"`
	GatewayPort uint16   `json:"gateway_port"`
	Topology    Topology `json:"topology"`
}

// AutoProgressConfig switches the instance to self-driving execution rounds.
type AutoProgressConfig struct {
	ArtificialDelayMS *uint64 `json:"artificial_delay_ms"`
}

type rootKeyResponse struct {
	RootKey []byte `json:"root_key"`
}
