package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/greenhouse/internal/config"
)

var ErrDisabled = errors.New("notifications not configured")

// Notifier posts messages to an ntfy topic.
type Notifier struct {
	client *http.Client
	url    string
	topic  string
}

// New returns a notifier for cfg. Without a topic every Send returns
// ErrDisabled.
func New(cfg config.Ntfy) *Notifier {
	if cfg.Topic == "" {
		log.Warn().Msg("Ntfy topic not configured - notifications disabled")
		return &Notifier{}
	}

	n := &Notifier{
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		url:   strings.TrimRight(cfg.URL, "/"),
		topic: cfg.Topic,
	}

	log.Info().
		Str("url", n.url).
		Str("topic", n.topic).
		Msg("Ntfy notifications initialized")
	return n
}

func (n *Notifier) Enabled() bool {
	return n != nil && n.client != nil
}

// Send publishes a notification. Higher priority values are louder.
func (n *Notifier) Send(ctx context.Context, title, message string, priority int) error {
	if !n.Enabled() {
		return ErrDisabled
	}

	payload := map[string]interface{}{
		"topic":    n.topic,
		"title":    title,
		"message":  message,
		"priority": priority,
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ntfy returned non-success status: %d", resp.StatusCode)
	}

	log.Debug().
		Str("title", title).
		Int("status", resp.StatusCode).
		Msg("Notification sent successfully")

	return nil
}
