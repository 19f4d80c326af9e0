package executor

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"

	"github.com/techblue/jboss-controller-operation-executor/pkg/management"
	"github.com/techblue/jboss-controller-operation-executor/pkg/session"
	"github.com/techblue/jboss-controller-operation-executor/pkg/stores"
)

// fakeController is an in-memory management endpoint. Each profile holds a
// set of datasources and their enabled state. Requests against an unknown
// profile get an undefined response.
type fakeController struct {
	mu       sync.Mutex
	profiles map[string]map[string]bool

	opens    int
	closes   int
	requests []*management.Request

	// closeErr is returned by every session Close.
	closeErr error
	// openErr is returned by Open instead of a session.
	openErr error
}

func newFakeController(profiles ...string) *fakeController {
	c := &fakeController{profiles: map[string]map[string]bool{"": {}}}
	for _, p := range profiles {
		c.profiles[p] = map[string]bool{}
	}
	return c
}

func (c *fakeController) Open(_ context.Context, _ *session.ConnectionConfig) (session.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.openErr != nil {
		return nil, c.openErr
	}
	c.opens++
	return &fakeSession{controller: c}, nil
}

func (c *fakeController) seed(profile, name string, enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.profiles[profile][name] = enabled
}

func (c *fakeController) openCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opens
}

func (c *fakeController) handle(req *management.Request) *management.Response {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, req)

	profile, _ := req.Address.Get(AddressProfile)
	datasources, ok := c.profiles[profile]
	if !ok {
		return &management.Response{}
	}
	name, _ := req.Address.Get(AddressDatasource)
	enabled, exists := datasources[name]

	switch req.Operation {
	case management.OperationAdd:
		if exists {
			return failed("WFLYCTL0212: Duplicate resource [(\"data-source\" => \"" + name + "\")]")
		}
		datasources[name] = false
		return succeeded(nil)
	case management.OperationRemove:
		if !exists {
			return failed("WFLYCTL0216: Management resource not found")
		}
		delete(datasources, name)
		return succeeded(nil)
	case management.OperationEnable, management.OperationDisable:
		want := req.Operation == management.OperationEnable
		if !exists {
			return failed("WFLYCTL0216: Management resource not found")
		}
		if enabled == want {
			return failed("IJ000000: datasource is already in the requested state")
		}
		datasources[name] = want
		return succeeded(nil)
	case management.OperationReadAttribute:
		if !exists {
			return failed("WFLYCTL0216: Management resource not found")
		}
		return succeeded(enabled)
	case management.OperationReadResource:
		if len(datasources) == 0 {
			return succeeded(map[string]interface{}{AddressDatasource: nil})
		}
		children := make(map[string]interface{}, len(datasources))
		for n := range datasources {
			children[n] = nil
		}
		return succeeded(map[string]interface{}{AddressDatasource: children})
	}
	return failed("unsupported operation")
}

func (c *fakeController) names(profile string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0)
	for n := range c.profiles[profile] {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

type fakeSession struct {
	controller *fakeController
}

func (s *fakeSession) Execute(_ context.Context, req *management.Request) (*management.Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return s.controller.handle(req), nil
}

func (s *fakeSession) Close() error {
	s.controller.mu.Lock()
	defer s.controller.mu.Unlock()
	s.controller.closes++
	return s.controller.closeErr
}

func succeeded(result interface{}) *management.Response {
	raw, _ := json.Marshal(result)
	return &management.Response{
		Defined: true,
		Outcome: management.OutcomeSuccess,
		Result:  raw,
	}
}

func failed(description string) *management.Response {
	rolledBack := true
	return &management.Response{
		Defined:            true,
		Outcome:            management.OutcomeFailed,
		FailureDescription: description,
		RolledBack:         &rolledBack,
	}
}

// scriptedOpener replays a fixed list of responses, one per session.
type scriptedOpener struct {
	responses []*management.Response
	execErr   error
	closeErr  error

	opens  int
	closes int
}

func (o *scriptedOpener) Open(_ context.Context, _ *session.ConnectionConfig) (session.Session, error) {
	o.opens++
	return &scriptedSession{opener: o}, nil
}

type scriptedSession struct {
	opener *scriptedOpener
}

func (s *scriptedSession) Execute(_ context.Context, _ *management.Request) (*management.Response, error) {
	if s.opener.execErr != nil {
		return nil, s.opener.execErr
	}
	if len(s.opener.responses) == 0 {
		return nil, errors.New("no scripted response left")
	}
	resp := s.opener.responses[0]
	s.opener.responses = s.opener.responses[1:]
	return resp, nil
}

func (s *scriptedSession) Close() error {
	s.opener.closes++
	return s.opener.closeErr
}

// memoryJournal collects journal records.
type memoryJournal struct {
	records []*stores.OperationRecord
}

func (j *memoryJournal) RecordOperation(_ context.Context, rec *stores.OperationRecord) error {
	j.records = append(j.records, rec)
	return nil
}
