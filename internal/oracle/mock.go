package oracle

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockCall records one Grade invocation made against the mock.
type MockCall struct {
	Directive   string
	Prior       []Turn
	UserMessage string
}

// Mock is a deterministic Client for tests. It returns canned results in
// FIFO order and records every call.
type Mock struct {
	mu      sync.Mutex
	results []MockResult
	Calls   []MockCall
}

// MockResult is one canned Grade outcome.
type MockResult struct {
	Verdict *Verdict
	Raw     string
	Err     error
}

func NewMock(results ...MockResult) *Mock {
	return &Mock{results: results}
}

func (m *Mock) Grade(_ context.Context, directive string, prior []Turn, userMessage string) (*GradeResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, MockCall{Directive: directive, Prior: prior, UserMessage: userMessage})

	if len(m.results) == 0 {
		return nil, fmt.Errorf("%w: mock queue empty", ErrUnavailable)
	}
	r := m.results[0]
	m.results = m.results[1:]

	if r.Err != nil {
		return nil, r.Err
	}
	raw := r.Raw
	if raw == "" && r.Verdict != nil {
		raw = r.Verdict.Reply
	}
	return &GradeResult{
		Verdict:    r.Verdict,
		Raw:        raw,
		ParserUsed: ParserStrict,
		Model:      "mock",
		Latency:    time.Millisecond,
	}, nil
}

func (m *Mock) Add(r MockResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, r)
}

func (m *Mock) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}
