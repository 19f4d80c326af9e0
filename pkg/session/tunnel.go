package session

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// TunnelConfig describes an SSH bastion used to reach a management port that
// is not exposed directly.
type TunnelConfig struct {
	// Host is the bastion hostname or IP address
	Host string `yaml:"host" json:"host" validate:"required"`

	// Port is the SSH port (default: 22)
	Port int `yaml:"port" json:"port" validate:"gte=1,lte=65535"`

	// User is the SSH username
	User string `yaml:"user" json:"user" validate:"required"`

	// Password for password-based authentication
	Password string `yaml:"password" json:"password"`

	// PrivateKeyPath is the path to the private key file
	PrivateKeyPath string `yaml:"private-key" json:"private-key"`

	// PrivateKeyPassphrase is the passphrase for encrypted private keys
	PrivateKeyPassphrase string `yaml:"private-key-passphrase" json:"private-key-passphrase"`

	// KnownHostsPath is the path to the known_hosts file
	KnownHostsPath string `yaml:"known-hosts" json:"known-hosts"`

	// StrictHostKeyChecking rejects bastions missing from known_hosts
	StrictHostKeyChecking bool `yaml:"strict-host-key-checking" json:"strict-host-key-checking"`
}

// DefaultTunnelConfig returns a TunnelConfig with default port and known_hosts.
func DefaultTunnelConfig(host, user string) *TunnelConfig {
	return &TunnelConfig{
		Host:                  host,
		Port:                  22,
		User:                  user,
		KnownHostsPath:        filepath.Join(os.Getenv("HOME"), ".ssh", "known_hosts"),
		StrictHostKeyChecking: true,
	}
}

// Validate checks if the tunnel configuration is valid.
func (c *TunnelConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.User == "" {
		return fmt.Errorf("user is required")
	}
	if c.Password == "" && c.PrivateKeyPath == "" {
		return fmt.Errorf("password or private key is required")
	}
	if c.PrivateKeyPath != "" {
		if _, err := os.Stat(c.PrivateKeyPath); os.IsNotExist(err) {
			return fmt.Errorf("private key file not found: %s", c.PrivateKeyPath)
		}
	}
	return nil
}

// Address returns the formatted SSH address (host:port).
func (c *TunnelConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// BuildSSHClientConfig creates an ssh.ClientConfig for the bastion.
func (c *TunnelConfig) BuildSSHClientConfig(timeout time.Duration) (*ssh.ClientConfig, error) {
	var authMethods []ssh.AuthMethod

	if c.PrivateKeyPath != "" {
		keyBytes, err := os.ReadFile(c.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read private key: %w", err)
		}

		var signer ssh.Signer
		if c.PrivateKeyPassphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(keyBytes, []byte(c.PrivateKeyPassphrase))
		} else {
			signer, err = ssh.ParsePrivateKey(keyBytes)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
		authMethods = append(authMethods, ssh.PublicKeys(signer))
	}

	if c.Password != "" {
		authMethods = append(authMethods, ssh.Password(c.Password))
		authMethods = append(authMethods, ssh.KeyboardInteractive(
			func(user, instruction string, questions []string, echos []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = c.Password
				}
				return answers, nil
			},
		))
	}

	var hostKeyCallback ssh.HostKeyCallback
	if c.KnownHostsPath != "" && c.StrictHostKeyChecking {
		var err error
		hostKeyCallback, err = knownhosts.New(c.KnownHostsPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load known_hosts: %w", err)
		}
	} else {
		hostKeyCallback = ssh.InsecureIgnoreHostKey() //nolint:gosec // operator opt-out
	}

	return &ssh.ClientConfig{
		User:            c.User,
		Auth:            authMethods,
		HostKeyCallback: hostKeyCallback,
		Timeout:         timeout,
	}, nil
}

// dialTunnel connects to the bastion and returns an SSH client whose
// DialContext reaches hosts behind it.
func dialTunnel(ctx context.Context, c *TunnelConfig, timeout time.Duration) (*ssh.Client, error) {
	clientConfig, err := c.BuildSSHClientConfig(timeout)
	if err != nil {
		return nil, &TransportError{Op: "tunnel-config", Err: err}
	}

	dialer := &net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.Address())
	if err != nil {
		return nil, &TransportError{Op: "tunnel-connect", Err: err, IsTemporary: true}
	}

	ncc, chans, reqs, err := ssh.NewClientConn(conn, c.Address(), clientConfig)
	if err != nil {
		_ = conn.Close()
		return nil, &TransportError{Op: "tunnel-handshake", Err: err, IsAuthError: true}
	}

	log.Debug().Str("bastion", c.Address()).Msg("SSH tunnel established")
	return ssh.NewClient(ncc, chans, reqs), nil
}
