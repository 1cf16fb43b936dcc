// Package notify pushes download failure notifications to a Gotify server.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jmagar/cloudie-cli/internal/model"
)

// PriorityFailure is the Gotify priority used for failed downloads.
const PriorityFailure = 7

// Notifier delivers a titled message.
type Notifier interface {
	Notify(ctx context.Context, title, message string) error
}

// Gotify posts to <server>/message with an application token.
type Gotify struct {
	serverURL string
	token     string
	priority  int
	client    *http.Client
}

// NewGotify returns a Gotify notifier, or nil when either setting is empty
// so callers can treat notifications as switched off.
func NewGotify(serverURL, token string, client *http.Client) *Gotify {
	if strings.TrimSpace(serverURL) == "" || strings.TrimSpace(token) == "" {
		return nil
	}
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &Gotify{
		serverURL: strings.TrimRight(serverURL, "/"),
		token:     token,
		priority:  PriorityFailure,
		client:    client,
	}
}

// FromConfig builds the notifier from gotifyUrl/gotifyToken.
func FromConfig(cfg *model.Config) *Gotify {
	return NewGotify(cfg.GotifyURL, cfg.GotifyToken, nil)
}

// Notify implements Notifier.
func (g *Gotify) Notify(ctx context.Context, title, message string) error {
	body, err := json.Marshal(map[string]any{
		"title":    title,
		"message":  message,
		"priority": g.priority,
	})
	if err != nil {
		return fmt.Errorf("gotify: marshal failed: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.serverURL+"/message", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("gotify: create request failed: %w", err)
	}
	req.Header.Set("X-Gotify-Token", g.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("gotify: send failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("gotify: server returned %d", resp.StatusCode)
	}
	return nil
}

// TaskFailed formats the notification for a failed download task.
func TaskFailed(task *model.DownloadTask) (title, message string) {
	title = "cloudie: download failed"
	name := task.Title
	if task.Artist != "" {
		name = task.Artist + " - " + task.Title
	}
	message = fmt.Sprintf("%s (task %d): %s", name, task.ID, task.Error)
	return title, message
}
