// Package session opens connections to a WildFly/JBoss management endpoint
// and executes single management requests over them.
package session

import (
	"context"
	"fmt"

	"github.com/techblue/jboss-controller-operation-executor/pkg/management"
)

// Session is one connection to a management endpoint. A session executes
// requests until it is closed.
type Session interface {
	// Execute sends a request and returns the endpoint's response.
	Execute(ctx context.Context, req *management.Request) (*management.Response, error)

	// Close releases the connection. Close errors are informational.
	Close() error
}

// Opener opens sessions.
type Opener interface {
	Open(ctx context.Context, cfg *ConnectionConfig) (Session, error)
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(ctx context.Context, cfg *ConnectionConfig) (Session, error)

// Open calls f(ctx, cfg).
func (f OpenerFunc) Open(ctx context.Context, cfg *ConnectionConfig) (Session, error) {
	return f(ctx, cfg)
}

// HostResolutionError reports that the endpoint host could not be resolved.
type HostResolutionError struct {
	Host string
	Port int
	Err  error
}

func (e *HostResolutionError) Error() string {
	return fmt.Sprintf("Unable to connect to host: %s at port %d: %v", e.Host, e.Port, e.Err)
}

func (e *HostResolutionError) Unwrap() error {
	return e.Err
}

// TransportError represents a failure to exchange a request with the endpoint.
type TransportError struct {
	// Op is the step that failed (e.g., "connect", "execute", "decode")
	Op string

	// Err is the underlying error
	Err error

	// StatusCode is the HTTP status, when one was received
	StatusCode int

	// IsTemporary indicates if the error is temporary and can be retried
	IsTemporary bool

	// IsAuthError indicates if the error is related to authentication
	IsAuthError bool
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: HTTP %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) Temporary() bool {
	return e.IsTemporary
}
