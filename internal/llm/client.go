// Package llm generates answers from retrieval results through an
// OpenAI-compatible chat completions endpoint.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Aman-CERP/noterag/internal/config"
	nrerrors "github.com/Aman-CERP/noterag/internal/errors"
)

// DefaultRequestTimeout bounds a single chat completion call.
const DefaultRequestTimeout = 120 * time.Second

// Prompt size limits, in runes.
const (
	maxLocalPassages   = 5
	maxWebPassages     = 3
	localPassageRunes  = 500
	webPassageRunes    = 400
	fallbackSnipRunes  = 100
)

const systemPrompt = "你是一个智能笔记助手，负责根据用户的笔记内容和网络资源回答用户的问题。" +
	"请基于提供的检索结果生成准确、有用的答案。"

// Passage is one retrieval result fed into the prompt.
type Passage struct {
	Title   string
	Content string
}

// Client calls the chat completions endpoint.
type Client struct {
	client    *http.Client
	transport *http.Transport
	cfg       config.LLMConfig
	apiKey    string
	logger    *slog.Logger

	mu     sync.RWMutex
	closed bool
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// NewClient creates a chat client for the configured endpoint.
func NewClient(cfg config.LLMConfig, apiKey string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	transport := &http.Transport{
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}

	return &Client{
		client:    &http.Client{Transport: transport},
		transport: transport,
		cfg:       cfg,
		apiKey:    apiKey,
		logger:    logger,
	}
}

// GenerateAnswer builds a prompt from the retrieval results and asks
// the model for an answer.
func (c *Client) GenerateAnswer(ctx context.Context, query string, local, web []Passage) (string, error) {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return "", fmt.Errorf("llm client is closed")
	}
	c.mu.RUnlock()

	prompt := BuildPrompt(query, local, web)

	reqCtx, cancel := context.WithTimeout(ctx, DefaultRequestTimeout)
	defer cancel()

	body, err := json.Marshal(chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost,
		c.cfg.APIBase+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	c.logger.Info("llm_request_started",
		slog.String("model", c.cfg.Model),
		slog.Int("prompt_chars", len([]rune(prompt))))

	resp, err := c.client.Do(req)
	if err != nil {
		return "", nrerrors.Wrap(nrerrors.ErrCodeChatFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", nrerrors.New(nrerrors.ErrCodeChatFailed,
			fmt.Sprintf("chat endpoint returned %d: %s", resp.StatusCode, payload), nil)
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", nrerrors.New(nrerrors.ErrCodeChatFailed, "chat response has no choices", nil)
	}

	choice := parsed.Choices[0]
	if choice.FinishReason == "length" {
		c.logger.Warn("llm_answer_truncated", slog.Int("max_tokens", c.cfg.MaxTokens))
	}
	c.logger.Info("llm_request_completed",
		slog.String("finish_reason", choice.FinishReason),
		slog.Int("total_tokens", parsed.Usage.TotalTokens))

	return choice.Message.Content, nil
}

// Close drops idle connections.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.transport.CloseIdleConnections()
	return nil
}

// BuildPrompt lays out the user question, the top local passages, the
// top web passages, and the answering instructions.
func BuildPrompt(query string, local, web []Passage) string {
	var b strings.Builder
	fmt.Fprintf(&b, "用户问题：%s\n", query)

	if len(local) > 0 {
		b.WriteString("\n## 本地笔记相关内容：\n")
		for i, p := range capPassages(local, maxLocalPassages) {
			fmt.Fprintf(&b, "\n%d. 【%s】", i+1, p.Title)
			fmt.Fprintf(&b, "%s...\n", truncateRunes(p.Content, localPassageRunes))
		}
	}

	if len(web) > 0 {
		b.WriteString("\n## 网络资源相关内容：\n")
		for i, p := range capPassages(web, maxWebPassages) {
			fmt.Fprintf(&b, "\n%d. 【%s】", i+1, p.Title)
			fmt.Fprintf(&b, "%s...\n", truncateRunes(p.Content, webPassageRunes))
		}
	}

	b.WriteString(`
## 回答要求：
1. 请基于上述检索结果回答用户的问题
2. 如果本地笔记有相关内容，优先使用本地笔记
3. 如果需要补充信息，可以参考网络资源
4. 回答要清晰、准确、有条理
5. 如果检索结果无法回答问题，请坦诚说明
`)

	return b.String()
}

// FallbackAnswer formats the raw retrieval results when the model is
// unavailable, so the user still gets something useful.
func FallbackAnswer(query string, local, web []Passage) string {
	var parts []string
	parts = append(parts, fmt.Sprintf("关于「%s」，我找到了以下相关内容：\n", query))

	if len(local) > 0 {
		parts = append(parts, "\n📚 本地笔记：")
		for i, p := range capPassages(local, maxLocalPassages) {
			parts = append(parts, fmt.Sprintf("\n%d. %s", i+1, p.Title))
			parts = append(parts, fmt.Sprintf("   %s...", truncateRunes(p.Content, fallbackSnipRunes)))
		}
	}

	if len(web) > 0 {
		parts = append(parts, "\n\n🌐 网络资源：")
		for i, p := range capPassages(web, maxWebPassages) {
			parts = append(parts, fmt.Sprintf("\n%d. %s", i+1, p.Title))
			parts = append(parts, fmt.Sprintf("   %s...", truncateRunes(p.Content, fallbackSnipRunes)))
		}
	}

	return strings.Join(parts, "\n")
}

func capPassages(passages []Passage, max int) []Passage {
	if len(passages) > max {
		return passages[:max]
	}
	return passages
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
