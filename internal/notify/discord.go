package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/template"
	"time"

	"github.com/rs/zerolog"

	"github.com/adamancini/vsupdater/internal/config"
)

// Embed colors.
const (
	ColorSuccess = 0x2ECC71
	ColorError   = 0xE74C3C
)

type webhookPayload struct {
	Username string  `json:"username,omitempty"`
	Embeds   []embed `json:"embeds"`
}

type embed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       int    `json:"color"`
	URL         string `json:"url,omitempty"`
	Timestamp   string `json:"timestamp"`
}

type message struct {
	title *template.Template
	body  *template.Template
	color int
}

// DiscordNotifier posts embeds to a Discord webhook.
type DiscordNotifier struct {
	cfg     config.Discord
	client  *http.Client
	logger  zerolog.Logger
	host    string
	now     func() time.Time
	success message
	failure message
}

// New returns a DiscordNotifier when Discord is enabled and Nop otherwise.
func New(cfg config.Discord, logger zerolog.Logger) (Sink, error) {
	if !cfg.Enabled || cfg.WebhookURL == "" {
		return Nop{}, nil
	}
	return NewDiscordNotifier(cfg, logger)
}

// NewDiscordNotifier parses the configured templates and creates a notifier.
func NewDiscordNotifier(cfg config.Discord, logger zerolog.Logger) (*DiscordNotifier, error) {
	n := &DiscordNotifier{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout(),
		},
		logger: logger,
		host:   hostname(),
		now:    time.Now,
	}

	var err error
	if n.success, err = parseMessage("success", cfg.SuccessTitle, cfg.SuccessTemplate, ColorSuccess); err != nil {
		return nil, err
	}
	if n.failure, err = parseMessage("error", cfg.ErrorTitle, cfg.ErrorTemplate, ColorError); err != nil {
		return nil, err
	}

	return n, nil
}

func parseMessage(name, title, body string, color int) (message, error) {
	t, err := template.New(name + "_title").Parse(title)
	if err != nil {
		return message{}, fmt.Errorf("invalid discord %s title: %w", name, err)
	}
	b, err := template.New(name + "_template").Parse(body)
	if err != nil {
		return message{}, fmt.Errorf("invalid discord %s template: %w", name, err)
	}
	return message{title: t, body: b, color: color}, nil
}

// NotifySuccess posts a success embed to the main webhook.
func (n *DiscordNotifier) NotifySuccess(ctx context.Context, ev Event) error {
	return n.send(ctx, n.cfg.WebhookURL, n.success, ev)
}

// NotifyError posts an error embed to the error webhook. The error text is
// truncated to MaxErrorRunes.
func (n *DiscordNotifier) NotifyError(ctx context.Context, ev Event) error {
	ev.Error = Truncate(ev.Error, MaxErrorRunes)
	return n.send(ctx, n.cfg.ErrorURL(), n.failure, ev)
}

func (n *DiscordNotifier) send(ctx context.Context, url string, msg message, ev Event) error {
	if ev.Host == "" {
		ev.Host = n.host
	}

	title, err := render(msg.title, ev)
	if err != nil {
		return err
	}
	description, err := render(msg.body, ev)
	if err != nil {
		return err
	}

	payload := webhookPayload{
		Username: n.cfg.Username,
		Embeds: []embed{{
			Title:       title,
			Description: description,
			Color:       msg.color,
			URL:         ev.URL,
			Timestamp:   n.now().UTC().Format(time.RFC3339),
		}},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	n.logger.Debug().Int("status", resp.StatusCode).Str("title", title).Msg("Discord notification sent")
	return nil
}

func render(t *template.Template, ev Event) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, ev); err != nil {
		return "", fmt.Errorf("failed to render %s: %w", t.Name(), err)
	}
	return buf.String(), nil
}
