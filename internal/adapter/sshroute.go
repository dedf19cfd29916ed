package adapter

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"

	"rplview/internal/domain"
)

// DefaultRoutesCommand prints the source-routing links of a Contiki-NG border router
const DefaultRoutesCommand = "routes"

// SSHRouteConfig holds configuration for the border router source
type SSHRouteConfig struct {
	// Host and Port of the machine running the border router
	Host string
	Port int
	// User to log in as, with a private key file or a password
	User       string
	KeyFile    string
	Passphrase string
	Password   string
	// KnownHostsFile verifies the host key; empty accepts any key
	KnownHostsFile string
	// Command prints the routing links; defaults to DefaultRoutesCommand
	Command string
	// Interval between polls
	Interval time.Duration
	// Timeout bounds connecting and running the command
	Timeout time.Duration
	// LinkWeight is assigned to every reported link
	LinkWeight float64
}

// SSHRouteAdapter reads the routing tree from a non-storing mode RPL root.
// The root knows every node's parent, so one command yields the whole tree.
type SSHRouteAdapter struct {
	config    SSHRouteConfig
	logger    *zap.Logger
	publisher EventPublisher

	mu           sync.Mutex
	clientConfig *ssh.ClientConfig
	running      bool
}

// NewSSHRouteAdapter creates a border router source
func NewSSHRouteAdapter(config SSHRouteConfig, logger *zap.Logger) *SSHRouteAdapter {
	if config.Port == 0 {
		config.Port = 22
	}
	if config.Command == "" {
		config.Command = DefaultRoutesCommand
	}
	if config.Interval == 0 {
		config.Interval = time.Minute
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.LinkWeight <= 0 {
		config.LinkWeight = 1000
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &SSHRouteAdapter{config: config, logger: logger}
}

// SetEventPublisher sets the event publisher for progress updates
func (s *SSHRouteAdapter) SetEventPublisher(pub EventPublisher) {
	s.publisher = pub
}

// Name returns the source identifier
func (s *SSHRouteAdapter) Name() string {
	return "border-router"
}

// Type returns the source type
func (s *SSHRouteAdapter) Type() SourceType {
	return SourceTypePolling
}

// Interval returns the polling interval
func (s *SSHRouteAdapter) Interval() time.Duration {
	return s.config.Interval
}

// Start loads credentials. The router itself is not contacted until Sync.
func (s *SSHRouteAdapter) Start(ctx context.Context) error {
	clientConfig, err := buildClientConfig(s.config)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.clientConfig = clientConfig
	s.running = true

	s.logger.Info("border router source started",
		zap.String("host", s.config.Host),
		zap.String("command", s.config.Command))
	return nil
}

// Stop shuts down the source
func (s *SSHRouteAdapter) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	return nil
}

// Sync runs the routes command and converts its output to a fragment
func (s *SSHRouteAdapter) Sync(ctx context.Context) (*domain.Fragment, error) {
	s.mu.Lock()
	clientConfig, running := s.clientConfig, s.running
	s.mu.Unlock()

	if !running {
		return nil, fmt.Errorf("source not running")
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	addr := net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))
	client, err := dialSSH(ctx, addr, clientConfig)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	output, err := runCommand(ctx, client, s.config.Command)
	if err != nil {
		return nil, err
	}

	fragment, skipped := parseRoutes(output, s.config.LinkWeight)
	if skipped > 0 {
		s.logger.Debug("skipped unparseable route lines", zap.Int("lines", skipped))
	}
	if fragment.IsEmpty() {
		// An empty table means the command did not do what we expect, not
		// that the network vanished
		return nil, fmt.Errorf("no routes in output of %q", s.config.Command)
	}

	if s.publisher != nil {
		s.publisher.PublishDiscoveryEvent("discovery-complete", map[string]interface{}{
			"source":     s.Name(),
			"discovered": len(fragment.Nodes),
			"links":      len(fragment.Links),
		})
	}

	s.logger.Info("border router routes read",
		zap.Int("nodes", len(fragment.Nodes)),
		zap.Int("links", len(fragment.Links)))
	return fragment, nil
}
