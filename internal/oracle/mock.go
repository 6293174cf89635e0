package oracle

import (
	"context"
	"strings"
	"sync"

	"github.com/ledgerhound/ledgerhound/internal/model"
	"github.com/ledgerhound/ledgerhound/internal/service"
)

// MockOracle is a scripted service.Oracle for tests. Responses are matched
// by substring of the description; unmatched descriptions fall back to
// not_categorized.
type MockOracle struct {
	err       error
	responses map[string]service.OracleResponse
	calls     []string
	mu        sync.Mutex
}

// NewMockOracle creates an empty mock.
func NewMockOracle() *MockOracle {
	return &MockOracle{responses: make(map[string]service.OracleResponse)}
}

// Respond scripts a response for descriptions containing match.
func (m *MockOracle) Respond(match string, category model.Category, confidence float64) *MockOracle {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[strings.ToLower(match)] = service.OracleResponse{
		Category:   category,
		Confidence: confidence,
		Rationale:  "mock",
	}
	return m
}

// Fail makes every call return err.
func (m *MockOracle) Fail(err error) *MockOracle {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// Classify implements service.Oracle.
func (m *MockOracle) Classify(ctx context.Context, description string, _ float64, _ string) (service.OracleResponse, error) {
	if err := ctx.Err(); err != nil {
		return service.OracleResponse{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, description)
	if m.err != nil {
		return service.OracleResponse{}, m.err
	}

	lower := strings.ToLower(description)
	for match, resp := range m.responses {
		if strings.Contains(lower, match) {
			return resp, nil
		}
	}
	return service.OracleResponse{
		Category:   model.CategoryNotCategorized,
		Confidence: 0.2,
		Rationale:  "mock fallback",
	}, nil
}

// Calls returns the descriptions classified so far.
func (m *MockOracle) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// CallCount returns how many classifications were requested.
func (m *MockOracle) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}
