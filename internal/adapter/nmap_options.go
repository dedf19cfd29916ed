package adapter

import (
	"time"

	"go.uber.org/zap"
)

// NmapOption is a functional option for configuring NmapAdapter
type NmapOption func(*NmapAdapter)

// WithInterval sets the polling interval for periodic scans
func WithInterval(d time.Duration) NmapOption {
	return func(n *NmapAdapter) {
		n.interval = d
	}
}

// WithTimeout sets the timeout for one full traceroute pass
func WithTimeout(d time.Duration) NmapOption {
	return func(n *NmapAdapter) {
		n.timeout = d
	}
}

// WithLinkWeight sets the weight given to every discovered link
func WithLinkWeight(w float64) NmapOption {
	return func(n *NmapAdapter) {
		if w > 0 {
			n.linkWeight = w
		}
	}
}

// WithSkipHostDiscovery sets whether to skip ping and treat all hosts as online (-Pn)
// Useful for networks that block ICMP
func WithSkipHostDiscovery(skip bool) NmapOption {
	return func(n *NmapAdapter) {
		n.skipHostDiscovery = skip
	}
}

// WithTargets sets or replaces the target list
func WithTargets(targets []string) NmapOption {
	return func(n *NmapAdapter) {
		n.targets = targets
	}
}

// WithBinaryPath runs a specific nmap binary instead of the one in PATH
func WithBinaryPath(path string) NmapOption {
	return func(n *NmapAdapter) {
		n.binaryPath = path
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) NmapOption {
	return func(n *NmapAdapter) {
		if logger != nil {
			n.logger = logger
		}
	}
}
