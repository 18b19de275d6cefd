package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	xerrors "AgentMesh/internal/errors"
)

const defaultWebhookTimeout = 10 * time.Second

// HTTPWebhookSender 通过 HTTP POST 将告警负载推送至外部 Webhook。
type HTTPWebhookSender struct {
	endpoint string
	client   *http.Client
}

// NewHTTPWebhookSender 创建一个指向指定端点的发送器。
func NewHTTPWebhookSender(endpoint string) (*HTTPWebhookSender, error) {
	if endpoint == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "Webhook 端点不能为空")
	}
	return &HTTPWebhookSender{
		endpoint: endpoint,
		client:   &http.Client{Timeout: defaultWebhookTimeout},
	}, nil
}

// Send 将负载序列化为 JSON 并发送。
func (s *HTTPWebhookSender) Send(ctx context.Context, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "告警负载序列化失败")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return xerrors.Wrap(xerrors.CodeUnknown, err, "构造 Webhook 请求失败")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return xerrors.Wrap(xerrors.CodePeerUnavailable, err, "Webhook 请求失败")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return xerrors.New(xerrors.CodePeerUnavailable,
			fmt.Sprintf("Webhook 返回非预期状态码 %d: %s", resp.StatusCode, string(snippet)))
	}
	return nil
}
