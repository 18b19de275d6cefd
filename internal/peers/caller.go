package peers

import (
	"bytes"
	"context"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	xerrors "AgentMesh/internal/errors"
	"AgentMesh/pkg/logger"
)

const (
	defaultTimeout    = 30 * time.Second
	defaultMaxRetries = 3
	defaultRetryDelay = time.Second
)

// Config 描述连接一个协作服务所需的公共参数。
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

// Caller 封装对协作服务的 JSON 调用，对可恢复的失败做有限次数的线性退避重试。
type Caller struct {
	baseURL    string
	httpClient *http.Client
	maxRetries int
	retryDelay time.Duration
	logger     *slog.Logger
}

// NewCaller 根据配置创建 Caller。
func NewCaller(cfg Config) (*Caller, error) {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "协作服务地址不能为空")
	}
	baseURL = strings.TrimRight(baseURL, "/")

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = defaultRetryDelay
	}

	return &Caller{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		maxRetries: maxRetries,
		retryDelay: retryDelay,
		logger:     logger.Named("peers"),
	}, nil
}

// Post 向协作服务发起一次 JSON 调用，把响应解码到 out（可为 nil）。
// 网络错误与 5xx 状态被视为可重试，重试间隔按尝试次数线性增长。
func (c *Caller) Post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "序列化请求失败")
	}

	endpoint := c.baseURL + path
	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		lastErr = c.once(ctx, http.MethodPost, endpoint, body, out)
		if lastErr == nil {
			return nil
		}
		if !xerrors.RetryableError(lastErr) || attempt == c.maxRetries {
			return lastErr
		}
		wait := time.Duration(attempt) * c.retryDelay
		c.logger.Warn("协作服务调用失败，准备重试",
			slog.String("endpoint", endpoint),
			slog.Int("attempt", attempt),
			slog.Int("max_retries", c.maxRetries),
			slog.Duration("wait", wait),
			slog.Any("error", lastErr),
		)
		select {
		case <-ctx.Done():
			return xerrors.Wrap(xerrors.CodeTimeout, ctx.Err(), "等待重试时上下文已取消")
		case <-time.After(wait):
		}
	}
	return lastErr
}

// Get 向协作服务发起一次 GET 调用，重试策略与 Post 相同。
func (c *Caller) Get(ctx context.Context, path string, out any) error {
	endpoint := c.baseURL + path
	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		lastErr = c.once(ctx, http.MethodGet, endpoint, nil, out)
		if lastErr == nil {
			return nil
		}
		if !xerrors.RetryableError(lastErr) || attempt == c.maxRetries {
			return lastErr
		}
		wait := time.Duration(attempt) * c.retryDelay
		c.logger.Warn("协作服务调用失败，准备重试",
			slog.String("endpoint", endpoint),
			slog.Int("attempt", attempt),
			slog.Any("error", lastErr),
		)
		select {
		case <-ctx.Done():
			return xerrors.Wrap(xerrors.CodeTimeout, ctx.Err(), "等待重试时上下文已取消")
		case <-time.After(wait):
		}
	}
	return lastErr
}

func (c *Caller) once(ctx context.Context, method, endpoint string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "构建请求失败")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if stdErrors.Is(err, context.DeadlineExceeded) {
			return xerrors.Wrap(xerrors.CodeTimeout, err, "协作服务调用超时")
		}
		return xerrors.Wrap(xerrors.CodePeerUnavailable, err, "协作服务不可达")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return xerrors.New(xerrors.CodePeerUnavailable,
			fmt.Sprintf("协作服务返回状态 %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))))
	}
	if resp.StatusCode >= http.StatusBadRequest {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return xerrors.New(xerrors.CodeInvalidArgument,
			fmt.Sprintf("协作服务拒绝请求 %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return xerrors.Wrap(xerrors.CodePeerUnavailable, err, "解析协作服务响应失败")
	}
	return nil
}
