package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"call-inbox/internal/phone"
)

const DefaultOneSignalURL = "https://onesignal.com/api/v1/notifications"

type OneSignalConfig struct {
	AppID   string
	APIKey  string
	APIURL  string
	OpenURL string
}

// OneSignal broadcasts to every subscribed device of the app.
type OneSignal struct {
	cfg    OneSignalConfig
	client *http.Client
	format func(string) string
}

func NewOneSignal(cfg OneSignalConfig, client *http.Client) *OneSignal {
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultOneSignalURL
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &OneSignal{cfg: cfg, client: client, format: phone.Format}
}

type oneSignalRequest struct {
	AppID            string            `json:"app_id"`
	Headings         map[string]string `json:"headings"`
	Contents         map[string]string `json:"contents"`
	IncludedSegments []string          `json:"included_segments"`
	URL              string            `json:"url,omitempty"`
	Priority         int               `json:"priority"`
}

// Message builds the title and body shown on devices.
func Message(n Notification, format func(string) string) (title, body string) {
	num := format(n.Phone)
	if n.Status == "missed" {
		return "New Missed Call", "Call from " + num
	}
	ext := n.Extension
	if ext == "" {
		ext = "unknown"
	}
	return "Call Updated", fmt.Sprintf("Call from %s was %s by %s", num, n.Status, ext)
}

func (o *OneSignal) SendCallStatusNotification(ctx context.Context, n Notification) error {
	title, body := Message(n, o.format)
	priority := 5
	if n.Status == "missed" {
		priority = 10
	}
	payload, err := json.Marshal(oneSignalRequest{
		AppID:            o.cfg.AppID,
		Headings:         map[string]string{"en": title},
		Contents:         map[string]string{"en": body},
		IncludedSegments: []string{"All"},
		URL:              o.cfg.OpenURL,
		Priority:         priority,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.cfg.APIURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Basic "+o.cfg.APIKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return fmt.Errorf("onesignal request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("onesignal returned %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
