package services

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"ai_tips_engine/config"
	"ai_tips_engine/logger"
)

// TextGenerator 外部文本生成服务的最小接口
type TextGenerator interface {
	// Complete 单次补全，返回完整文本
	Complete(ctx context.Context, system, user string) (string, error)
	// StreamComplete 流式补全，按到达顺序把文本片段交给onChunk
	// onChunk返回错误时中断上游调用
	StreamComplete(ctx context.Context, system, user string, onChunk func(chunk string) error) error
}

// ProviderError 外部服务返回的HTTP错误
type ProviderError struct {
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider http %d: %s", e.StatusCode, e.Body)
}

// IsRateLimitError 判断是否为限流/配额错误，这类错误不重试
func IsRateLimitError(err error) bool {
	var perr *ProviderError
	if errors.As(err, &perr) {
		if perr.StatusCode == http.StatusTooManyRequests {
			return true
		}
		body := strings.ToLower(perr.Body)
		return strings.Contains(body, "quota") || strings.Contains(body, "rate limit")
	}
	return false
}

// OpenAIClient OpenAI兼容接口的HTTP客户端，同时承担嵌入和生成
type OpenAIClient struct {
	apiKey        string
	baseURL       string
	model         string
	embedModel    string
	maxTokens     int
	temperature   float64
	timeout       time.Duration
	streamTimeout time.Duration
	httpClient    *http.Client
}

// NewOpenAIClient 根据配置创建客户端
func NewOpenAIClient(cfg *config.Config) *OpenAIClient {
	return &OpenAIClient{
		apiKey:        cfg.OpenAI.APIKey,
		baseURL:       strings.TrimRight(cfg.OpenAI.BaseURL, "/"),
		model:         cfg.OpenAI.Model,
		embedModel:    cfg.OpenAI.EmbedModel,
		maxTokens:     cfg.OpenAI.MaxTokens,
		temperature:   cfg.OpenAI.Temperature,
		timeout:       time.Duration(cfg.OpenAI.TimeoutSec) * time.Second,
		streamTimeout: time.Duration(cfg.OpenAI.StreamTimeout) * time.Second,
		// 超时统一用context控制，流式调用的时长远超单次补全
		httpClient: &http.Client{},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

type chatStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

type embeddingsRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingsResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// newRequest 构建带鉴权头的JSON请求
func (c *OpenAIClient) newRequest(ctx context.Context, path string, payload interface{}) (*http.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	return req, nil
}

// Embed 计算一批文本的嵌入向量
func (c *OpenAIClient) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return nil, errors.New("嵌入输入为空")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.newRequest(ctx, "/v1/embeddings", embeddingsRequest{
		Model: c.embedModel,
		Input: inputs,
	})
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &ProviderError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var er embeddingsResponse
	if err := json.Unmarshal(body, &er); err != nil {
		return nil, fmt.Errorf("解析嵌入响应失败: %w", err)
	}

	vectors := make([][]float32, len(inputs))
	for _, d := range er.Data {
		if d.Index >= 0 && d.Index < len(vectors) {
			vectors[d.Index] = d.Embedding
		}
	}
	for i, v := range vectors {
		if v == nil {
			return nil, fmt.Errorf("嵌入响应缺少第%d条结果", i)
		}
	}

	logger.Debug("嵌入请求完成", "count", len(inputs), "duration_ms", time.Since(start).Milliseconds())
	return vectors, nil
}

// Complete 单次补全调用
func (c *OpenAIClient) Complete(ctx context.Context, system, user string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.newRequest(ctx, "/v1/chat/completions", chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	})
	if err != nil {
		return "", err
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	logger.Debug("生成请求完成",
		"status_code", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds())

	if resp.StatusCode != http.StatusOK {
		return "", &ProviderError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var cr chatResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		return "", fmt.Errorf("解析生成响应失败: %w", err)
	}
	if len(cr.Choices) == 0 {
		return "", errors.New("生成响应中没有内容")
	}

	return cr.Choices[0].Message.Content, nil
}

// StreamComplete 流式补全，逐个SSE事件解析文本增量
// 每处理一行都检查context，取消时立即关闭上游连接并停止下发
func (c *OpenAIClient) StreamComplete(ctx context.Context, system, user string, onChunk func(chunk string) error) error {
	ctx, cancel := context.WithTimeout(ctx, c.streamTimeout)
	defer cancel()

	req, err := c.newRequest(ctx, "/v1/chat/completions", chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		Stream:      true,
	})
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return &ProviderError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			break
		}

		var chunk chatStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue // 坏事件直接丢弃，不中断整个流
		}
		if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
			continue
		}

		if err := onChunk(chunk.Choices[0].Delta.Content); err != nil {
			return err
		}
	}

	return scanner.Err()
}
