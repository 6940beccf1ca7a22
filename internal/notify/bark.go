package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const barkGroup = "ytuploader"

// BarkNotifier pushes messages to a Bark device key URL.
type BarkNotifier struct {
	endpoint string
	client   *http.Client
}

// NewBarkNotifier creates a notifier for a URL like https://api.day.app/<key>.
func NewBarkNotifier(baseURL string) (*BarkNotifier, error) {
	endpoint := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if endpoint == "" {
		return nil, fmt.Errorf("bark url is empty")
	}
	u, err := url.Parse(endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("bark url %q is not absolute", baseURL)
	}
	return &BarkNotifier{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// barkReply is the JSON envelope Bark answers with. Older servers reply
// with an empty body.
type barkReply struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Send posts title and body as a form so long messages survive escaping.
func (b *BarkNotifier) Send(ctx context.Context, title, body string) error {
	payload := url.Values{"title": {title}, "body": {body}, "group": {barkGroup}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint, strings.NewReader(payload.Encode()))
	if err != nil {
		return fmt.Errorf("bark request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("bark push: %w", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))

	var reply barkReply
	_ = json.Unmarshal(raw, &reply)
	if resp.StatusCode >= 400 {
		msg := reply.Message
		if msg == "" {
			msg = strings.TrimSpace(string(raw))
		}
		return fmt.Errorf("bark push: status %d: %s", resp.StatusCode, msg)
	}
	if reply.Code != 0 && reply.Code != http.StatusOK {
		return fmt.Errorf("bark push rejected: code %d: %s", reply.Code, reply.Message)
	}
	return nil
}
