package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"

	"github.com/icholy/digest"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"

	"github.com/techblue/jboss-controller-operation-executor/pkg/auth"
	"github.com/techblue/jboss-controller-operation-executor/pkg/management"
)

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 32 << 20

// errRealmMismatch means the server challenged with a realm other than the
// configured one. Digest credentials are bound to the server's realm.
var errRealmMismatch = errors.New("server realm does not match the configured realm")

// Resolver looks up host addresses. *net.Resolver satisfies it.
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// HTTPOpener opens sessions against the WildFly HTTP management API.
type HTTPOpener struct {
	// Resolver is used for host resolution; net.DefaultResolver when nil
	Resolver Resolver

	// Logger receives debug output for each exchange
	Logger zerolog.Logger
}

// NewHTTPOpener creates an opener using the default resolver.
func NewHTTPOpener(logger zerolog.Logger) *HTTPOpener {
	return &HTTPOpener{
		Resolver: net.DefaultResolver,
		Logger:   logger.With().Str("component", "session").Logger(),
	}
}

// Open resolves the endpoint and returns a session bound to a dedicated HTTP
// client. No request is sent until Execute is called.
func (o *HTTPOpener) Open(ctx context.Context, cfg *ConnectionConfig) (Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	resolver := o.Resolver
	if resolver == nil {
		resolver = net.DefaultResolver
	}

	tlsConfig, err := cfg.BuildTLSConfig()
	if err != nil {
		return nil, &TransportError{Op: "tls", Err: err}
	}

	dialer := &net.Dialer{Timeout: cfg.ConnectTimeout}
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         dialer.DialContext,
		TLSClientConfig:     tlsConfig,
		TLSHandshakeTimeout: cfg.ConnectTimeout,
		DisableKeepAlives:   true,
		MaxIdleConns:        1,
	}

	var tunnel *ssh.Client
	if cfg.Tunnel != nil {
		// The management host is resolved by the bastion.
		if err := resolveHost(ctx, resolver, cfg.Tunnel.Host, cfg.Tunnel.Port); err != nil {
			return nil, err
		}
		tunnel, err = dialTunnel(ctx, cfg.Tunnel, cfg.ConnectTimeout)
		if err != nil {
			return nil, err
		}
		transport.Proxy = nil
		transport.DialContext = tunnel.DialContext
	} else if err := resolveHost(ctx, resolver, cfg.Host, cfg.Port); err != nil {
		return nil, err
	}

	o.Logger.Debug().
		Str("url", cfg.URL()).
		Bool("tunnel", tunnel != nil).
		Msg("management session opened")

	return &httpSession{
		cfg:       cfg,
		endpoint:  cfg.URL(),
		headers:   cfg.Headers(),
		transport: transport,
		client:    &http.Client{Transport: digestTransport(transport, auth.NewHandler(cfg.Username, cfg.Password, cfg.Realm))},
		tunnel:    tunnel,
		logger:    o.Logger,
	}, nil
}

// digestTransport answers Digest challenges with the handler's credentials.
// Without a user name requests go out unauthenticated.
func digestTransport(base http.RoundTripper, handler *auth.Handler) http.RoundTripper {
	if !handler.HasCredentials() {
		return base
	}
	return &digest.Transport{
		Transport: base,
		Digest: func(_ *http.Request, chal *digest.Challenge, opt digest.Options) (*digest.Credentials, error) {
			realm, username, password, err := handler.Credentials(chal.Realm)
			if err != nil {
				return nil, err
			}
			if realm != chal.Realm {
				return nil, fmt.Errorf("%w: server offered %q, configured %q", errRealmMismatch, chal.Realm, realm)
			}
			opt.Username = username
			opt.Password = password
			return digest.Digest(chal, opt)
		},
	}
}

func resolveHost(ctx context.Context, resolver Resolver, host string, port int) error {
	if net.ParseIP(host) != nil {
		return nil
	}
	addrs, err := resolver.LookupHost(ctx, host)
	if err == nil && len(addrs) == 0 {
		err = fmt.Errorf("no addresses found")
	}
	if err != nil {
		return &HostResolutionError{Host: host, Port: port, Err: err}
	}
	return nil
}

// httpSession executes requests over one HTTP client.
type httpSession struct {
	cfg       *ConnectionConfig
	endpoint  string
	headers   map[string]string
	transport *http.Transport
	client    *http.Client
	tunnel    *ssh.Client
	logger    zerolog.Logger

	mu     sync.Mutex
	closed bool
}

// Execute sends a request and returns the endpoint's response.
func (s *httpSession) Execute(ctx context.Context, req *management.Request) (*management.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, &TransportError{Op: "execute", Err: fmt.Errorf("session is closed")}
	}

	var body bytes.Buffer
	if err := management.NewEncoder(&body).Encode(req); err != nil {
		return nil, &TransportError{Op: "encode", Err: err}
	}

	resp, err := s.post(ctx, body.Bytes())
	if err != nil {
		return nil, err
	}
	defer drain(resp)

	return s.decode(resp)
}

// post sends the body. The client transport handles the digest exchange.
func (s *httpSession) post(ctx context.Context, body []byte) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &TransportError{Op: "execute", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	for k, v := range s.headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		var callbackErr *auth.UnsupportedCallbackError
		if errors.Is(err, errRealmMismatch) || errors.As(err, &callbackErr) {
			return nil, &TransportError{Op: "authenticate", Err: err, StatusCode: http.StatusUnauthorized, IsAuthError: true}
		}
		var netErr net.Error
		temporary := errors.As(err, &netErr) && netErr.Timeout()
		return nil, &TransportError{Op: "execute", Err: err, IsTemporary: temporary}
	}

	s.logger.Debug().
		Str("url", s.endpoint).
		Int("status", resp.StatusCode).
		Msg("management request sent")
	return resp, nil
}

// decode maps an HTTP response to a management response. The API answers a
// failed outcome with 500 and a JSON body, so any status carrying a parseable
// body is accepted.
func (s *httpSession) decode(resp *http.Response) (*management.Response, error) {
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &TransportError{Op: "read", Err: err, StatusCode: resp.StatusCode, IsTemporary: true}
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, &TransportError{
			Op:          "authenticate",
			Err:         fmt.Errorf("access denied for user %q", s.cfg.Username),
			StatusCode:  resp.StatusCode,
			IsAuthError: true,
		}
	case http.StatusOK, http.StatusInternalServerError:
	default:
		return nil, &TransportError{
			Op:          "execute",
			Err:         fmt.Errorf("unexpected response: %s", truncate(string(data), 256)),
			StatusCode:  resp.StatusCode,
			IsTemporary: resp.StatusCode == http.StatusServiceUnavailable,
		}
	}

	mresp, err := management.ParseResponse(data)
	if err != nil {
		return nil, &TransportError{Op: "decode", Err: err, StatusCode: resp.StatusCode}
	}
	return mresp, nil
}

// Close releases the HTTP transport and the tunnel, if any.
func (s *httpSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.transport.CloseIdleConnections()

	if s.tunnel != nil {
		if err := s.tunnel.Close(); err != nil {
			return &TransportError{Op: "close", Err: err}
		}
	}
	return nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
	_ = resp.Body.Close()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
