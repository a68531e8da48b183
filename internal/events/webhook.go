package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/felicity-fest/backend/internal/models"
)

// Notifier announces a freshly published event on the organizer's channel.
type Notifier interface {
	NotifyPublished(ctx context.Context, webhookURL string, ev *models.Event) error
}

// DiscordNotifier posts a Discord-style embed to the organizer's webhook.
// Failures never roll back the publish; callers only log them.
type DiscordNotifier struct {
	client *http.Client
}

// NewDiscordNotifier creates a notifier with a short timeout so a slow
// webhook cannot hold up request handling.
func NewDiscordNotifier() *DiscordNotifier {
	return &DiscordNotifier{client: &http.Client{Timeout: 5 * time.Second}}
}

type discordEmbed struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Fields      []discordField `json:"fields"`
	Color       int            `json:"color"`
}

type discordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

// NotifyPublished posts the event announcement.
func (n *DiscordNotifier) NotifyPublished(ctx context.Context, webhookURL string, ev *models.Event) error {
	payload := map[string]any{
		"embeds": []discordEmbed{{
			Title:       "New Event: " + ev.Name,
			Description: ev.Description,
			Fields: []discordField{
				{Name: "Type", Value: string(ev.EventType), Inline: true},
				{Name: "Starts", Value: ev.StartDate.Format("2 Jan 2006"), Inline: true},
				{Name: "Registration Deadline", Value: ev.RegistrationDeadline.Format("2 Jan 2006"), Inline: true},
			},
			Color: 0x5865F2,
		}},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook status %d", resp.StatusCode)
	}
	return nil
}
