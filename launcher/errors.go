package launcher

import "errors"

// Classification of fatal startup failures. All of them terminate the
// launcher with a non-zero status; none are retried.
var (
	ErrConfiguration = errors.New("configuration error")
	ErrSpawn         = errors.New("spawn error")
	ErrDiscovery     = errors.New("discovery error")
	ErrControl       = errors.New("control channel error")
	ErrVersion       = errors.New("unsupported interface version")
)
