package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"PaperDigest/internal/ports"
)

const apiVersion = "2023-06-01"

// Client talks to the Anthropic Messages API. The scoring pipeline uses it
// for both the triage and the summarization call shapes.
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

var _ ports.ModelClient = (*Client)(nil)

// New creates a reusable HTTP client for the given endpoint.
func New(endpoint, apiKey string) *Client {
	return &Client{
		endpoint: strings.TrimSuffix(endpoint, "/"),
		apiKey:   apiKey,
		http:     &http.Client{Timeout: 60 * time.Second},
	}
}

type messageRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	Messages  []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messageResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Complete sends a single user-role prompt with a bounded output and returns
// the generated text plus the token counts used for cost accounting.
func (c *Client) Complete(ctx context.Context, model string, maxTokens int, prompt string) (string, ports.ModelUsage, error) {
	if c.apiKey == "" {
		return "", ports.ModelUsage{}, fmt.Errorf("anthropic client misconfigured: missing api key")
	}

	body, err := json.Marshal(messageRequest{
		Model:     model,
		MaxTokens: maxTokens,
		Messages:  []message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", ports.ModelUsage{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return "", ports.ModelUsage{}, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", apiVersion)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", ports.ModelUsage{}, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", ports.ModelUsage{}, fmt.Errorf("anthropic error %s: %s", resp.Status, strings.TrimSpace(string(detail)))
	}

	var decoded messageResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", ports.ModelUsage{}, fmt.Errorf("decode response: %w", err)
	}

	if len(decoded.Content) == 0 {
		return "", ports.ModelUsage{}, fmt.Errorf("empty response content")
	}

	usage := ports.ModelUsage{
		InputTokens:  decoded.Usage.InputTokens,
		OutputTokens: decoded.Usage.OutputTokens,
	}
	return decoded.Content[0].Text, usage, nil
}
