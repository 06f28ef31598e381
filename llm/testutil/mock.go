// Package testutil provides fixtures for testing code that consumes
// the llm package.
package testutil

import (
	"context"
	"sync"

	"github.com/c360studio/bpmnforge/llm"
)

// Step is one scripted response from a MockGenerator.
type Step struct {
	// Content is the generated text returned for this call.
	Content string

	// Err is returned instead of a response when set.
	Err error
}

// MockGenerator is a thread-safe scripted llm.Generator. Each call to
// Generate consumes the next Step; calls past the script replay the
// last step, so a single-step mock behaves like a constant generator.
type MockGenerator struct {
	mu       sync.Mutex
	Steps    []Step
	calls    int
	requests []llm.Request
}

// Generate implements llm.Generator.
func (m *MockGenerator) Generate(ctx context.Context, req llm.Request) (*llm.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, req)
	idx := m.calls
	m.calls++
	if idx >= len(m.Steps) {
		idx = len(m.Steps) - 1
	}
	if idx < 0 {
		return &llm.Response{Content: "", Model: "mock"}, nil
	}

	step := m.Steps[idx]
	if step.Err != nil {
		return nil, step.Err
	}
	return &llm.Response{Content: step.Content, Model: "mock"}, nil
}

// Calls returns the number of Generate calls made.
func (m *MockGenerator) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Requests returns a copy of every request seen so far.
func (m *MockGenerator) Requests() []llm.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]llm.Request, len(m.requests))
	copy(out, m.requests)
	return out
}
