package adapter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// buildClientConfig creates an SSH client config from key or password settings
func buildClientConfig(config SSHRouteConfig) (*ssh.ClientConfig, error) {
	if config.Host == "" {
		return nil, fmt.Errorf("border router host not set")
	}
	if config.User == "" {
		return nil, fmt.Errorf("border router user not set")
	}

	var auth []ssh.AuthMethod
	if config.KeyFile != "" {
		signer, err := loadSigner(config.KeyFile, config.Passphrase)
		if err != nil {
			return nil, err
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if config.Password != "" {
		auth = append(auth, ssh.Password(config.Password))
	}
	if len(auth) == 0 {
		return nil, fmt.Errorf("border router needs a key file or a password")
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if config.KnownHostsFile != "" {
		cb, err := knownhosts.New(config.KnownHostsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load known hosts: %w", err)
		}
		hostKeyCallback = cb
	}

	return &ssh.ClientConfig{
		User:            config.User,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
		Timeout:         config.Timeout,
	}, nil
}

// loadSigner reads a private key, decrypting it when a passphrase is given
func loadSigner(path, passphrase string) (ssh.Signer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key: %w", err)
	}

	var signer ssh.Signer
	if passphrase != "" {
		signer, err = ssh.ParsePrivateKeyWithPassphrase(data, []byte(passphrase))
	} else {
		signer, err = ssh.ParsePrivateKey(data)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return signer, nil
}

// dialSSH establishes an SSH connection honoring ctx for the TCP dial
func dialSSH(ctx context.Context, addr string, config *ssh.ClientConfig) (*ssh.Client, error) {
	dialer := &net.Dialer{Timeout: config.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial: %w", err)
	}

	// Abort the handshake if ctx ends first
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to establish SSH connection: %w", err)
	}

	return ssh.NewClient(sshConn, chans, reqs), nil
}

// runCommand executes a command over SSH and returns its standard output.
// A non-zero exit status still returns the output.
func runCommand(ctx context.Context, client *ssh.Client, cmd string) (string, error) {
	session, err := client.NewSession()
	if err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}
	defer session.Close()

	var stdout bytes.Buffer
	session.Stdout = &stdout

	done := make(chan error, 1)
	go func() {
		done <- session.Run(cmd)
	}()

	select {
	case err := <-done:
		var exitErr *ssh.ExitError
		if err != nil && !errors.As(err, &exitErr) {
			return "", fmt.Errorf("command failed: %w", err)
		}
		return stdout.String(), nil
	case <-ctx.Done():
		session.Signal(ssh.SIGKILL)
		return "", fmt.Errorf("command %q: %w", cmd, ctx.Err())
	}
}
