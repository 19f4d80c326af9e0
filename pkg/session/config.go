package session

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	// DefaultPort is the HTTP management port of WildFly/JBoss EAP.
	DefaultPort = 9990

	// DefaultConnectTimeout bounds TCP connect and TLS handshake.
	DefaultConnectTimeout = 5000 * time.Millisecond

	// DefaultPath is the HTTP management API endpoint.
	DefaultPath = "/management"
)

// Option keys interpreted by the HTTP session. Any other option is sent as a
// request header.
const (
	OptionScheme = "scheme"
	OptionPath   = "path"

	optionHeaderPrefix = "X-Management-Option-"
)

// ConnectionConfig describes how to reach one management endpoint.
type ConnectionConfig struct {
	// Host is the management endpoint hostname or IP address
	Host string `yaml:"host" json:"host" validate:"required,hostname_rfc1123|ip"`

	// Port is the management port (default: 9990)
	Port int `yaml:"port" json:"port" validate:"gte=1,lte=65535"`

	// ConnectTimeout bounds connection establishment (default: 5s)
	ConnectTimeout time.Duration `yaml:"connect-timeout" json:"connect-timeout" validate:"gt=0"`

	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`

	// Realm overrides the realm offered by the server
	Realm string `yaml:"realm" json:"realm"`

	// Options are protocol-level options; see OptionScheme and OptionPath
	Options map[string]string `yaml:"options" json:"options"`

	// TLS builds the transport security context from files
	TLS *TLSConfig `yaml:"tls" json:"tls" validate:"omitempty"`

	// TLSContext is used as-is when set and takes precedence over TLS
	TLSContext *tls.Config `yaml:"-" json:"-" validate:"-"`

	// Tunnel routes the connection through an SSH bastion
	Tunnel *TunnelConfig `yaml:"tunnel" json:"tunnel" validate:"omitempty"`
}

// TLSConfig holds file-based TLS settings.
type TLSConfig struct {
	CAFile             string `yaml:"ca-file" json:"ca-file" validate:"omitempty,file"`
	CertFile           string `yaml:"cert-file" json:"cert-file" validate:"omitempty,file"`
	KeyFile            string `yaml:"key-file" json:"key-file" validate:"omitempty,file"`
	ServerName         string `yaml:"server-name" json:"server-name"`
	InsecureSkipVerify bool   `yaml:"insecure-skip-verify" json:"insecure-skip-verify"`
}

var validate = validator.New()

// DefaultConnectionConfig returns a ConnectionConfig with default port and timeout.
func DefaultConnectionConfig(host string) *ConnectionConfig {
	return &ConnectionConfig{
		Host:           host,
		Port:           DefaultPort,
		ConnectTimeout: DefaultConnectTimeout,
		Options:        make(map[string]string),
	}
}

// Validate checks if the configuration is valid.
func (c *ConnectionConfig) Validate() error {
	if c == nil {
		return fmt.Errorf("connection config is required")
	}
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid connection config: %w", err)
	}
	if scheme := c.Scheme(); scheme != "http" && scheme != "https" {
		return fmt.Errorf("invalid connection config: unsupported scheme %q", scheme)
	}
	if c.TLS != nil && (c.TLS.CertFile == "") != (c.TLS.KeyFile == "") {
		return fmt.Errorf("invalid connection config: tls cert-file and key-file must be set together")
	}
	if c.Tunnel != nil {
		if err := c.Tunnel.Validate(); err != nil {
			return fmt.Errorf("invalid tunnel config: %w", err)
		}
	}
	return nil
}

// Address returns the formatted management address (host:port).
func (c *ConnectionConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Scheme returns the URL scheme, defaulting to https when TLS is configured.
func (c *ConnectionConfig) Scheme() string {
	if s := strings.ToLower(strings.TrimSpace(c.Options[OptionScheme])); s != "" {
		return s
	}
	if c.TLS != nil || c.TLSContext != nil {
		return "https"
	}
	return "http"
}

// URL returns the management endpoint URL.
func (c *ConnectionConfig) URL() string {
	path := c.Options[OptionPath]
	if path == "" {
		path = DefaultPath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.Scheme() + "://" + c.Address() + path
}

// Headers returns the options that are sent as request headers.
func (c *ConnectionConfig) Headers() map[string]string {
	headers := make(map[string]string)
	for k, v := range c.Options {
		if k == OptionScheme || k == OptionPath {
			continue
		}
		headers[optionHeaderPrefix+k] = v
	}
	return headers
}

// BuildTLSConfig returns the transport security context, or nil when none is configured.
func (c *ConnectionConfig) BuildTLSConfig() (*tls.Config, error) {
	if c.TLSContext != nil {
		return c.TLSContext.Clone(), nil
	}
	if c.TLS == nil {
		return nil, nil
	}

	cfg := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		ServerName:         c.TLS.ServerName,
		InsecureSkipVerify: c.TLS.InsecureSkipVerify, //nolint:gosec // operator opt-in
	}
	if cfg.ServerName == "" {
		cfg.ServerName = c.Host
	}

	if c.TLS.CAFile != "" {
		pem, err := os.ReadFile(c.TLS.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", c.TLS.CAFile)
		}
		cfg.RootCAs = pool
	}

	if c.TLS.CertFile != "" {
		cert, err := tls.LoadX509KeyPair(c.TLS.CertFile, c.TLS.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}

	return cfg, nil
}
