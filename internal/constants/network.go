package constants

import "time"

// Dispatcher transport pool tuning (component G), reused from the
// teacher's connection-pool constants rather than hand-rolled literals.
const (
	BaseMaxIdleConns                    = 4096
	HighThroughputMaxIdleConnsPerHost   = 512
	DefaultKeepAlive                    = 30 * time.Second
	DefaultDialTimeout                  = 10 * time.Second
	DefaultTLSHandshakeTimeout          = 10 * time.Second
	DefaultExpectContinueTimeout        = 2 * time.Second
	HighThroughputResponseHeaderTimeout = 30 * time.Second
)
