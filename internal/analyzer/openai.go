package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/crosscheckhq/veritas/internal/domain"
)

const (
	openAIChatURL = "https://api.openai.com/v1/chat/completions"
	chatModel     = "gpt-4o-mini"
)

type OpenAIClient struct {
	apiKey     string
	httpClient *http.Client
}

func NewOpenAIClient(apiKey string) *OpenAIClient {
	return &OpenAIClient{
		apiKey:     apiKey,
		httpClient: &http.Client{},
	}
}

// chat types for OpenAI API
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float32       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *OpenAIClient) complete(ctx context.Context, messages []chatMessage, temp float32) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:       chatModel,
		Messages:    messages,
		Temperature: temp,
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, openAIChatURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read chat response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("chat API returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var result chatResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("unmarshal chat response: %w", err)
	}

	if result.Error != nil {
		return "", fmt.Errorf("chat API error: %s", result.Error.Message)
	}

	if len(result.Choices) == 0 {
		return "", fmt.Errorf("chat API returned no choices")
	}

	return strings.TrimSpace(result.Choices[0].Message.Content), nil
}

func (c *OpenAIClient) Decompose(ctx context.Context, sourceText string, sourceCredibility float64) ([]domain.DecomposedUnit, error) {
	messages := []chatMessage{
		{Role: "user", Content: fmt.Sprintf(decomposePrompt, sourceCredibility, sourceText)},
	}

	result, err := c.complete(ctx, messages, 0.2)
	if err != nil {
		return nil, fmt.Errorf("decompose: %w", err)
	}

	units, err := parseDecomposition(result)
	if err != nil {
		return nil, err
	}
	return units, nil
}

func (c *OpenAIClient) Compare(ctx context.Context, a, b *domain.InformationUnit) (*domain.ComparisonVerdict, error) {
	messages := []chatMessage{
		{Role: "user", Content: fmt.Sprintf(comparePrompt, a.Statement, b.Statement)},
	}

	result, err := c.complete(ctx, messages, 0)
	if err != nil {
		return nil, fmt.Errorf("compare: %w", err)
	}

	return parseVerdict(result)
}

// stripFences removes markdown code fences the model sometimes adds
// despite instructions.
func stripFences(s string) string {
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func parseDecomposition(raw string) ([]domain.DecomposedUnit, error) {
	raw = stripFences(raw)

	var units []domain.DecomposedUnit
	if err := json.Unmarshal([]byte(raw), &units); err != nil {
		return nil, fmt.Errorf("parse decomposition result: %w (raw: %s)", err, raw)
	}
	return units, nil
}

func parseVerdict(raw string) (*domain.ComparisonVerdict, error) {
	raw = stripFences(raw)

	var verdict domain.ComparisonVerdict
	if err := json.Unmarshal([]byte(raw), &verdict); err != nil {
		return nil, fmt.Errorf("parse comparison result: %w (raw: %s)", err, raw)
	}

	if !domain.ValidRelationship(string(verdict.Relationship)) {
		return nil, fmt.Errorf("comparison returned invalid relationship %q", verdict.Relationship)
	}
	if verdict.ContradictionType != nil && !domain.ValidContradictionType(string(*verdict.ContradictionType)) {
		verdict.ContradictionType = nil
	}
	if verdict.ConfidenceImpact < -1 {
		verdict.ConfidenceImpact = -1
	}
	if verdict.ConfidenceImpact > 1 {
		verdict.ConfidenceImpact = 1
	}
	return &verdict, nil
}
