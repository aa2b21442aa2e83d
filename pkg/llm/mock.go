package llm

import (
	"context"
)

// MockOracle is a configurable mock for testing oracle-backed services.
// Set the function field to control behavior in tests.
type MockOracle struct {
	// GenerateResponseFunc is called when GenerateResponse is invoked.
	// If nil, returns an empty result and nil error.
	GenerateResponseFunc func(ctx context.Context, prompt string, systemMessage string, temperature float32) (*GenerateResponseResult, error)

	// ModelName is returned by Model. Defaults to "mock-model".
	ModelName string

	// ProviderName is returned by Provider. Defaults to "mock".
	ProviderName string

	// Call tracking for verification
	GenerateResponseCalls int
	LastPrompt            string
	LastSystemMessage     string
}

// NewMockOracle creates a new mock with sensible defaults.
func NewMockOracle() *MockOracle {
	return &MockOracle{
		ModelName:    "mock-model",
		ProviderName: "mock",
	}
}

// RepliesWith returns a mock whose GenerateResponse always yields content.
// Convenient for planner and summarizer tests that only care about the text.
func RepliesWith(content string) *MockOracle {
	m := NewMockOracle()
	m.GenerateResponseFunc = func(ctx context.Context, prompt, systemMessage string, temperature float32) (*GenerateResponseResult, error) {
		return &GenerateResponseResult{Content: content}, nil
	}
	return m
}

// FailsWith returns a mock whose GenerateResponse always returns err.
func FailsWith(err error) *MockOracle {
	m := NewMockOracle()
	m.GenerateResponseFunc = func(ctx context.Context, prompt, systemMessage string, temperature float32) (*GenerateResponseResult, error) {
		return nil, err
	}
	return m
}

// GenerateResponse implements Oracle.
func (m *MockOracle) GenerateResponse(ctx context.Context, prompt string, systemMessage string, temperature float32) (*GenerateResponseResult, error) {
	m.GenerateResponseCalls++
	m.LastPrompt = prompt
	m.LastSystemMessage = systemMessage
	if m.GenerateResponseFunc != nil {
		return m.GenerateResponseFunc(ctx, prompt, systemMessage, temperature)
	}
	return &GenerateResponseResult{}, nil
}

// Model implements Oracle.
func (m *MockOracle) Model() string {
	if m.ModelName == "" {
		return "mock-model"
	}
	return m.ModelName
}

// Provider implements Oracle.
func (m *MockOracle) Provider() string {
	if m.ProviderName == "" {
		return "mock"
	}
	return m.ProviderName
}

// Reset clears call tracking.
func (m *MockOracle) Reset() {
	m.GenerateResponseCalls = 0
	m.LastPrompt = ""
	m.LastSystemMessage = ""
}

// Ensure MockOracle implements Oracle at compile time.
var _ Oracle = (*MockOracle)(nil)
