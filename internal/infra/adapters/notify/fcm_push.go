// File: internal/infra/adapters/notify/fcm_push.go
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"esim-reseller/internal/config"
	"esim-reseller/internal/domain/ports/adapter"
)

var _ adapter.PushSender = (*FCMPushSender)(nil)

// FCMPushSender sends pushes through the messaging relay, which fans one user
// id out to that user's registered device tokens.
type FCMPushSender struct {
	baseURL   string
	serverKey string
	client    *http.Client
}

func NewFCMPushSender(cfg config.PushConfig) *FCMPushSender {
	return &FCMPushSender{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		serverKey: cfg.ServerKey,
		client:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *FCMPushSender) SendToUser(ctx context.Context, userID, title, body string) error {
	payload := map[string]interface{}{
		"to": "/users/" + userID,
		"notification": map[string]string{
			"title": title,
			"body":  body,
		},
	}
	b, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/fcm/send", bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "key="+s.serverKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("push send: http %d", resp.StatusCode)
	}
	return nil
}
