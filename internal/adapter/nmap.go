package adapter

import (
	"cmp"
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"net/netip"
	"slices"
	"strings"
	"sync"
	"time"

	nmap "github.com/Ullaakut/nmap/v3"
	"go.uber.org/zap"

	"rplview/internal/domain"
)

// NmapAdapter discovers routing paths with nmap's traceroute. Each hop chain
// toward a live host becomes a series of child→parent links, the hop farther
// from the scanner being the child.
type NmapAdapter struct {
	targets           []string
	interval          time.Duration
	timeout           time.Duration
	linkWeight        float64
	skipHostDiscovery bool
	binaryPath        string
	logger            *zap.Logger
	publisher         EventPublisher
	mu                sync.Mutex
	running           bool
	lastScanTime      time.Time
}

// NewNmapAdapter creates a new nmap traceroute source
// targets: list of CIDR ranges or individual IPs to trace
// opts: optional configuration options
func NewNmapAdapter(targets []string, opts ...NmapOption) *NmapAdapter {
	adapter := &NmapAdapter{
		targets:    targets,
		interval:   5 * time.Minute,
		timeout:    10 * time.Minute,
		linkWeight: 1000,
		logger:     zap.NewNop(),
	}

	// Apply options
	for _, opt := range opts {
		opt(adapter)
	}

	return adapter
}

// SetEventPublisher sets the event publisher for progress updates
func (n *NmapAdapter) SetEventPublisher(pub EventPublisher) {
	n.publisher = pub
}

// publishProgress emits a discovery progress event
func (n *NmapAdapter) publishProgress(eventType string, payload interface{}) {
	if n.publisher != nil {
		n.publisher.PublishDiscoveryEvent(eventType, payload)
	}
}

// Name returns the source identifier
func (n *NmapAdapter) Name() string {
	return "nmap"
}

// Type returns the source type
func (n *NmapAdapter) Type() SourceType {
	return SourceTypePolling
}

// Interval returns the configured polling interval
func (n *NmapAdapter) Interval() time.Duration {
	return n.interval
}

// Start validates targets and checks that nmap can run
func (n *NmapAdapter) Start(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	targets, err := expandTargets(n.targets)
	if err != nil {
		return err
	}
	n.targets = targets

	// Check if nmap is available
	if !n.isNmapAvailable(ctx) {
		return fmt.Errorf("nmap binary not found in PATH")
	}

	n.running = true
	n.logger.Info("nmap source started",
		zap.Strings("targets", n.targets),
		zap.Float64("link_weight", n.linkWeight))
	return nil
}

// Stop shuts down the source
func (n *NmapAdapter) Stop() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.running = false
	n.logger.Info("nmap source stopped")
	return nil
}

// LastScan returns when the last scan began
func (n *NmapAdapter) LastScan() time.Time {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.lastScanTime
}

// Sync traces every target and returns the discovered routing tree
func (n *NmapAdapter) Sync(ctx context.Context) (*domain.Fragment, error) {
	n.mu.Lock()
	if !n.running {
		n.mu.Unlock()
		return nil, fmt.Errorf("source not running")
	}
	n.lastScanTime = time.Now()
	targets := n.targets
	n.mu.Unlock()

	if len(targets) == 0 {
		n.logger.Debug("nmap: no targets configured")
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	n.logger.Info("nmap: starting traceroute", zap.Strings("targets", targets))
	n.publishProgress("discovery-started", map[string]interface{}{
		"total":   len(targets),
		"message": fmt.Sprintf("Starting traceroute of %d targets", len(targets)),
		"phase":   "nmap_traceroute",
	})

	fragment := domain.NewFragment()

	var failed int
	for _, target := range targets {
		if err := n.scanTarget(ctx, target, fragment); err != nil {
			n.logger.Warn("nmap: error tracing target", zap.String("target", target), zap.Error(err))
			failed++
			continue
		}
	}

	// A scan that produced nothing at all must not withdraw the last good view
	if failed == len(targets) {
		return nil, fmt.Errorf("all %d targets failed", failed)
	}

	n.publishProgress("discovery-complete", map[string]interface{}{
		"total":      len(targets),
		"discovered": len(fragment.Nodes),
		"links":      len(fragment.Links),
		"message":    fmt.Sprintf("Traceroute complete: %d nodes, %d links", len(fragment.Nodes), len(fragment.Links)),
	})

	n.logger.Info("nmap: traceroute complete",
		zap.Int("nodes", len(fragment.Nodes)),
		zap.Int("links", len(fragment.Links)))
	return fragment, nil
}

// isNmapAvailable checks if nmap binary exists
func (n *NmapAdapter) isNmapAvailable(ctx context.Context) bool {
	opts := []nmap.Option{
		nmap.WithTargets("localhost"),
		nmap.WithListScan(),
	}
	if n.binaryPath != "" {
		opts = append(opts, nmap.WithBinaryPath(n.binaryPath))
	}

	scanner, err := nmap.NewScanner(ctx, opts...)
	if err != nil {
		return false
	}

	// Try to run a simple list scan
	_, _, err = scanner.Run()
	return err == nil
}

// scanTarget traces a single target
func (n *NmapAdapter) scanTarget(ctx context.Context, target string, fragment *domain.Fragment) error {
	// Build nmap options: host discovery only, plus the route to each host
	opts := []nmap.Option{
		nmap.WithTargets(target),
		nmap.WithPingScan(),
		nmap.WithTraceRoute(),
	}

	// Skip host discovery for networks that drop probes
	if n.skipHostDiscovery {
		opts = append(opts, nmap.WithSkipHostDiscovery())
	}

	if n.binaryPath != "" {
		opts = append(opts, nmap.WithBinaryPath(n.binaryPath))
	}

	// Create scanner
	scanner, err := nmap.NewScanner(ctx, opts...)
	if err != nil {
		return fmt.Errorf("failed to create scanner: %w", err)
	}

	// Run scan
	n.logger.Debug("nmap: tracing target", zap.String("target", target))
	result, warnings, err := scanner.Run()
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	if warnings != nil && len(*warnings) > 0 {
		n.logger.Debug("nmap: warnings", zap.String("target", target), zap.Strings("warnings", *warnings))
	}

	// Process results
	return n.processResults(result, fragment)
}

// processResults converts traceroute hops to nodes and child→parent links
func (n *NmapAdapter) processResults(result *nmap.Run, fragment *domain.Fragment) error {
	if result == nil {
		return fmt.Errorf("nil scan result")
	}

	for _, host := range result.Hosts {
		// Skip if host is down
		if host.Status.State != "up" {
			continue
		}

		ip := primaryIP(host)
		if ip == "" {
			continue
		}

		path := tracePath(host, ip)
		added := n.addPath(path, fragment)

		// Emit progress for this host
		n.publishProgress("discovery-progress", map[string]interface{}{
			"ip":      ip,
			"hops":    len(path),
			"message": fmt.Sprintf("Traced %s: %d hops", ip, len(path)),
			"phase":   "nmap_traceroute",
		})

		n.logger.Debug("nmap: traced host", zap.String("ip", ip), zap.Int("hops", len(path)), zap.Int("nodes", added))
	}

	return nil
}

// addPath adds every resolvable hop as a node and links consecutive hops.
// An unresolvable hop breaks the chain; no link is guessed across it.
func (n *NmapAdapter) addPath(path []string, fragment *domain.Fragment) int {
	var (
		parent    domain.Address
		hasParent bool
		added     int
	)

	for _, hopIP := range path {
		addr, err := addressFromIP(hopIP)
		if err != nil {
			hasParent = false
			continue
		}

		fragment.AddNode(addr)
		added++
		if hasParent && parent != addr {
			fragment.AddLink(addr, parent, n.linkWeight)
		}
		parent, hasParent = addr, true
	}

	return added
}

// primaryIP returns the host's IPv4 address, else its first IP address
func primaryIP(host nmap.Host) string {
	var fallback string
	for _, addr := range host.Addresses {
		switch addr.AddrType {
		case "ipv4":
			return addr.Addr
		case "ipv6":
			if fallback == "" {
				fallback = addr.Addr
			}
		}
	}
	return fallback
}

// tracePath orders the traceroute hops by TTL and appends the host itself
// when the trace stopped short of it
func tracePath(host nmap.Host, ip string) []string {
	hops := slices.Clone(host.Trace.Hops)
	slices.SortFunc(hops, func(a, b nmap.Hop) int {
		return cmp.Compare(a.TTL, b.TTL)
	})

	path := make([]string, 0, len(hops)+1)
	for _, hop := range hops {
		path = append(path, hop.IPAddr)
	}
	if len(path) == 0 || path[len(path)-1] != ip {
		path = append(path, ip)
	}
	return path
}

// addressFromIP maps an IP address onto a node address: IPv4 uses all 32
// bits, IPv6 uses the interface identifier (the low 64 bits)
func addressFromIP(ip string) (domain.Address, error) {
	parsed, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return 0, fmt.Errorf("invalid IP %q: %w", ip, err)
	}
	parsed = parsed.Unmap()

	if parsed.Is4() {
		b := parsed.As4()
		return domain.Address(binary.BigEndian.Uint32(b[:])), nil
	}
	b := parsed.As16()
	return domain.Address(binary.BigEndian.Uint64(b[8:])), nil
}

// expandTargets validates CIDR notation targets and normalizes them
func expandTargets(targets []string) ([]string, error) {
	var expanded []string
	for _, target := range targets {
		// Check if it's CIDR notation
		if strings.Contains(target, "/") {
			_, ipNet, err := net.ParseCIDR(target)
			if err != nil {
				return nil, fmt.Errorf("invalid CIDR %s: %w", target, err)
			}
			// For nmap, we keep CIDR notation - it handles expansion
			expanded = append(expanded, ipNet.String())
		} else {
			// Single IP or hostname
			expanded = append(expanded, target)
		}
	}
	return expanded, nil
}
