// Package llm wraps the external generative-AI service behind a small client
// interface. Every adapter in the pipeline funnels through Structured, which
// is the single call-parse path shared by grouping, synthesis, media analysis
// and insights.
package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"nextsignal/config"
)

// Request describes one generation call. Image is optional; when set the
// request goes to the vision model with the bytes inlined as base64.
type Request struct {
	Prompt    string
	Image     []byte
	ImageMIME string
}

// Client is the generative text service boundary. Generate returns the raw
// model text; callers extract and validate any JSON themselves (or use
// Structured, which does both).
type Client interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// HTTPClient talks to an OpenAI-compatible chat completions endpoint.
type HTTPClient struct {
	cfg    config.LLMConfig
	client *http.Client
}

// NewClient builds an HTTPClient with a bounded per-call timeout. A nil
// httpClient gets a default one; timeout expiry surfaces as a plain error so
// callers treat it like any other service failure.
func NewClient(cfg config.LLMConfig, httpClient *http.Client) *HTTPClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: time.Duration(cfg.TimeoutSec) * time.Second}
	}
	return &HTTPClient{cfg: cfg, client: httpClient}
}

type chatMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

// Generate issues a single chat completion and returns the message text.
func (c *HTTPClient) Generate(ctx context.Context, req Request) (string, error) {
	if !c.cfg.Enabled {
		return "", errors.New("llm disabled")
	}
	model := c.cfg.Model
	var content interface{} = req.Prompt
	if len(req.Image) > 0 {
		model = c.cfg.VisionModel
		mime := req.ImageMIME
		if mime == "" {
			mime = "image/jpeg"
		}
		dataURL := fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(req.Image))
		content = []contentPart{
			{Type: "text", Text: req.Prompt},
			{Type: "image_url", ImageURL: &imageURL{URL: dataURL}},
		}
	}

	payload := map[string]interface{}{
		"model":       model,
		"temperature": 0.2,
		"messages":    []chatMessage{{Role: "user", Content: content}},
	}
	buf, _ := json.Marshal(payload)

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/v1/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(buf))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if strings.TrimSpace(c.cfg.APIKey) != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("llm status %d: %s", resp.StatusCode, string(body))
	}
	var wrapper struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&wrapper); err != nil {
		return "", err
	}
	if len(wrapper.Choices) == 0 {
		return "", errors.New("empty llm response")
	}
	return strings.TrimSpace(wrapper.Choices[0].Message.Content), nil
}

// Structured issues the request and unmarshals the first JSON value found in
// the reply into out. Extra prose around the JSON is tolerated; a reply with
// no JSON at all is an error. This is the shared structured-call utility:
// each adapter pairs it with its own deterministic fallback.
func Structured(ctx context.Context, c Client, req Request, out interface{}) error {
	text, err := c.Generate(ctx, req)
	if err != nil {
		return err
	}
	return DecodeJSON(text, out)
}

// DecodeJSON extracts the first JSON value from text and unmarshals it.
func DecodeJSON(text string, out interface{}) error {
	raw := ExtractJSONValue(text)
	if raw == "" {
		return errors.New("no json value found in response")
	}
	return json.Unmarshal([]byte(raw), out)
}
