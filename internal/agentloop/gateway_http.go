package agentloop

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/tesslate/studio-orchestrator/internal/orcherr"
)

// HTTPGatewayConfig configures an HTTPGateway against an OpenAI-compatible
// chat-completions endpoint (the lowest common denominator across hosted
// and self-hosted model backends; no vendor SDK is wired in since none
// appears anywhere in the example corpus — see DESIGN.md).
type HTTPGatewayConfig struct {
	BaseURL    string
	APIKey     string
	CostPerCall float64 // flat per-call cost charged against Budget.MaxCost
	Client     *http.Client
}

// HTTPGateway streams chat completions over Server-Sent Events from an
// OpenAI-compatible endpoint.
type HTTPGateway struct {
	baseURL string
	apiKey  string
	cost    float64
	client  *http.Client
}

// NewHTTPGateway builds a Gateway backed by a real HTTP model endpoint.
func NewHTTPGateway(cfg HTTPGatewayConfig) *HTTPGateway {
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Minute}
	}
	cost := cfg.CostPerCall
	if cost <= 0 {
		cost = 1
	}
	return &HTTPGateway{baseURL: strings.TrimSuffix(cfg.BaseURL, "/"), apiKey: cfg.APIKey, cost: cost, client: client}
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type wireRequest struct {
	Model    string        `json:"model"`
	Messages []wireMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type wireStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// Chat streams one completion, invoking onChunk as content arrives and
// returning the fully accumulated response once the stream ends.
func (g *HTTPGateway) Chat(ctx context.Context, req ChatRequest, onChunk func(Chunk)) (*ChatResponse, error) {
	wireMsgs := make([]wireMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		wireMsgs = append(wireMsgs, wireMessage{Role: m.Role, Content: m.Content})
	}
	body, err := json.Marshal(wireRequest{Model: req.Model, Messages: wireMsgs, Stream: true})
	if err != nil {
		return nil, orcherr.InternalError("encoding gateway request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, orcherr.InternalError("building gateway request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, orcherr.TransientError(orcherr.CodeAPIThrottled, "gateway request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, orcherr.TransientError(orcherr.CodeAPIThrottled, fmt.Sprintf("gateway returned status %d", resp.StatusCode), nil)
	}

	var content strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" || payload == "[DONE]" {
			continue
		}

		var chunk wireStreamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			continue
		}
		for _, choice := range chunk.Choices {
			if choice.Delta.Content == "" {
				continue
			}
			content.WriteString(choice.Delta.Content)
			onChunk(Chunk{Content: choice.Delta.Content})
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, orcherr.TransientError(orcherr.CodeAPIThrottled, "gateway stream interrupted", err)
	}

	return &ChatResponse{Content: content.String(), Cost: g.cost}, nil
}
