// Package executor manages JDBC datasources on a WildFly/JBoss management
// endpoint. Each operation builds a management request per target profile,
// runs it over a fresh session and interprets the response.
//
// Fan-out across profiles is sequential and stops at the first failure. The
// returned *Error names the failing profile and lists the profiles that had
// already been changed; those changes are not undone.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/techblue/jboss-controller-operation-executor/pkg/management"
	"github.com/techblue/jboss-controller-operation-executor/pkg/session"
	"github.com/techblue/jboss-controller-operation-executor/pkg/stores"
	"github.com/techblue/jboss-controller-operation-executor/pkg/telemetry"
)

// Executor runs datasource lifecycle operations. It holds no per-call state
// and may be shared.
type Executor struct {
	opener  session.Opener
	logger  zerolog.Logger
	metrics *telemetry.Metrics
	tracer  *telemetry.Tracer
	journal stores.Journal
}

// Config holds executor dependencies. Only Opener is required.
type Config struct {
	// Opener opens one session per round trip.
	Opener session.Opener

	Logger  zerolog.Logger
	Metrics *telemetry.Metrics
	Tracer  *telemetry.Tracer

	// Journal, when set, receives a record of every round trip.
	Journal stores.Journal
}

// New creates an executor.
func New(cfg Config) (*Executor, error) {
	if cfg.Opener == nil {
		return nil, fmt.Errorf("session opener is required")
	}

	tracer := cfg.Tracer
	if tracer == nil {
		tracer = telemetry.NewNopTracer()
	}

	return &Executor{
		opener:  cfg.Opener,
		logger:  cfg.Logger.With().Str("component", "executor").Logger(),
		metrics: cfg.Metrics,
		tracer:  tracer,
		journal: cfg.Journal,
	}, nil
}

// call describes the executor operation a round trip belongs to.
type call struct {
	command    string
	activity   string
	datasource string
}

// describe returns the activity text used in error messages.
func (c call) describe(profile string) string {
	if profile == "" {
		return c.activity
	}
	return fmt.Sprintf("%s on profile '%s'", c.activity, profile)
}

// observe wraps a public operation with a span and operation metrics.
func (e *Executor) observe(ctx context.Context, command string, cfg *session.ConnectionConfig, profiles []string, fn func(ctx context.Context) error) error {
	host := ""
	if cfg != nil {
		host = cfg.Host
	}

	ctx, span := e.tracer.StartOperationSpan(ctx, command, host, profiles)
	timer := telemetry.NewTimer()

	err := fn(ctx)

	status := "success"
	if err != nil {
		status = "failure"
		span.SetAttributes(telemetry.AttrErrorKind.String(string(KindOf(err))))
	}
	e.metrics.RecordOperation(command, status, timer.Duration())
	telemetry.EndSpan(span, err)

	return err
}

// checkTarget rejects a missing or invalid connection config before any
// session is opened.
func checkTarget(cfg *session.ConnectionConfig, command string) error {
	if cfg == nil {
		return newError(KindInvalidArgument, "connection config is required", nil).WithOperation(command)
	}
	if err := cfg.Validate(); err != nil {
		return newError(KindInvalidArgument, "invalid connection config", err).WithOperation(command)
	}
	return nil
}

// roundTrip opens a session, executes req, closes the session and interprets
// the response. The returned response is always successful when err is nil.
func (e *Executor) roundTrip(ctx context.Context, cfg *session.ConnectionConfig, c call, profile string, req *management.Request) (*management.Response, error) {
	ctx, span := e.tracer.StartRoundTripSpan(ctx, string(req.Operation), req.Address.String())
	span.SetAttributes(
		telemetry.AttrProfile.String(profile),
		telemetry.AttrDatasource.String(c.datasource),
	)
	start := time.Now()

	resp, err := e.exchange(ctx, cfg, c, profile, req)
	if err == nil {
		err = e.interpret(c, profile, resp)
	}
	duration := time.Since(start)

	outcome := outcomeOf(resp)
	e.metrics.RecordRoundTrip(string(req.Operation), outcome, duration)
	if resp != nil && resp.RolledBack != nil && *resp.RolledBack {
		e.metrics.RecordRollback(string(req.Operation))
	}
	if err != nil {
		e.metrics.RecordError(string(KindOf(err)))
	}
	span.SetAttributes(telemetry.AttrOutcome.String(outcome))
	if resp != nil && resp.RolledBack != nil {
		span.SetAttributes(telemetry.AttrRolledBack.Bool(*resp.RolledBack))
	}
	telemetry.EndSpan(span, err)

	e.record(ctx, cfg, c, profile, req, resp, err, duration)

	e.logger.Debug().
		Ctx(ctx).
		Str("operation", string(req.Operation)).
		Str("address", req.Address.String()).
		Str("outcome", outcome).
		Dur("duration", duration).
		Msg("Management round trip")

	if err != nil {
		return nil, err
	}
	return resp, nil
}

// exchange performs the session part of a round trip. The session is closed
// on every path; close failures are logged and never returned.
func (e *Executor) exchange(ctx context.Context, cfg *session.ConnectionConfig, c call, profile string, req *management.Request) (*management.Response, error) {
	sess, err := e.opener.Open(ctx, cfg)
	if err != nil {
		return nil, connectError(c, profile, err)
	}
	e.metrics.RecordSessionOpened()

	defer func() {
		if cerr := sess.Close(); cerr != nil {
			e.metrics.RecordCloseError()
			e.logger.Warn().
				Ctx(ctx).
				Err(cerr).
				Str("host", cfg.Host).
				Int("port", cfg.Port).
				Str("datasource", c.datasource).
				Msgf("Failed to close management connection while %s", c.describe(profile))
		}
	}()

	resp, err := sess.Execute(ctx, req)
	if err != nil {
		return nil, newError(KindTransport,
			fmt.Sprintf("Management request failed while %s", c.describe(profile)), err).
			WithOperation(c.command).
			WithDatasource(c.datasource).
			WithProfile(profile)
	}
	if resp == nil {
		resp = &management.Response{}
	}
	return resp, nil
}

func connectError(c call, profile string, err error) *Error {
	var hostErr *session.HostResolutionError
	kind := KindTransport
	if errors.As(err, &hostErr) {
		kind = KindHostResolution
	}
	return newError(kind,
		fmt.Sprintf("Tried establishing connection with the management controller while %s", c.describe(profile)), err).
		WithOperation(c.command).
		WithDatasource(c.datasource).
		WithProfile(profile)
}

func outcomeOf(resp *management.Response) string {
	switch {
	case resp == nil:
		return stores.OutcomeError
	case !resp.Defined:
		return stores.OutcomeUndefined
	case resp.Outcome == "":
		return stores.OutcomeUndefined
	default:
		return resp.Outcome
	}
}

// record writes the round trip to the journal. Journal failures are logged.
func (e *Executor) record(ctx context.Context, cfg *session.ConnectionConfig, c call, profile string, req *management.Request, resp *management.Response, err error, duration time.Duration) {
	if e.journal == nil {
		return
	}

	rec := &stores.OperationRecord{
		Operation:  string(req.Operation),
		Address:    req.Address.String(),
		Profile:    profile,
		Datasource: c.datasource,
		Target:     cfg.Address(),
		Outcome:    outcomeOf(resp),
		ErrorKind:  string(KindOf(err)),
		DurationMs: duration.Milliseconds(),
	}
	if resp != nil {
		rec.RolledBack = resp.RolledBack
		if resp.FailureDescription != "" {
			desc := resp.FailureDescription
			rec.FailureDescription = &desc
		}
	}

	if jerr := e.journal.RecordOperation(ctx, rec); jerr != nil {
		e.logger.Warn().Ctx(ctx).Err(jerr).Str("operation", rec.Operation).Msg("Failed to journal management round trip")
	}
}
