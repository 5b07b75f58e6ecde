package analyzer

import (
	"context"

	"github.com/crosscheckhq/veritas/internal/domain"
)

// MockClient is a configurable claim analyzer for testing.
// Set the response fields to control what each method returns.
type MockClient struct {
	DecomposeResponse []domain.DecomposedUnit
	DecomposeError    error
	CompareResponse   *domain.ComparisonVerdict
	CompareError      error

	// Call tracking for assertions
	DecomposeCalls []string
	CompareCalls   []struct{ A, B string }
}

func NewMockClient() *MockClient {
	return &MockClient{
		DecomposeResponse: []domain.DecomposedUnit{},
		CompareResponse: &domain.ComparisonVerdict{
			Relationship:     domain.RelationshipAgrees,
			AgreementScore:   0.8,
			ConfidenceImpact: 0.05,
			Explanation:      "Mock agreement",
		},
	}
}

func (c *MockClient) Decompose(ctx context.Context, sourceText string, sourceCredibility float64) ([]domain.DecomposedUnit, error) {
	c.DecomposeCalls = append(c.DecomposeCalls, sourceText)
	if c.DecomposeError != nil {
		return nil, c.DecomposeError
	}
	return c.DecomposeResponse, nil
}

func (c *MockClient) Compare(ctx context.Context, a, b *domain.InformationUnit) (*domain.ComparisonVerdict, error) {
	c.CompareCalls = append(c.CompareCalls, struct{ A, B string }{a.Statement, b.Statement})
	if c.CompareError != nil {
		return nil, c.CompareError
	}
	return c.CompareResponse, nil
}

// Reset clears all recorded calls and resets responses to defaults.
func (c *MockClient) Reset() {
	c.DecomposeResponse = []domain.DecomposedUnit{}
	c.DecomposeError = nil
	c.CompareResponse = &domain.ComparisonVerdict{
		Relationship:     domain.RelationshipAgrees,
		AgreementScore:   0.8,
		ConfidenceImpact: 0.05,
		Explanation:      "Mock agreement",
	}
	c.CompareError = nil
	c.DecomposeCalls = nil
	c.CompareCalls = nil
}
