package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adamancini/vsupdater/internal/config"
)

func testDiscordConfig(url string) config.Discord {
	return config.Discord{
		Enabled:         true,
		WebhookURL:      url,
		Username:        "vsupdater",
		TimeoutSeconds:  5,
		SuccessTitle:    "Updated to {{.Version}}",
		SuccessTemplate: "{{.Host}}: {{.PreviousVersion}} -> {{.Version}}",
		ErrorTitle:      "Update failed",
		ErrorTemplate:   "{{.Error}}",
	}
}

type capture struct {
	payloads []webhookPayload
	paths    []string
}

func newWebhookServer(t *testing.T, status int, c *capture) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var p webhookPayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&p))
		c.payloads = append(c.payloads, p)
		c.paths = append(c.paths, r.URL.Path)
		w.WriteHeader(status)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestDiscordNotifier_Success(t *testing.T) {
	var c capture
	server := newWebhookServer(t, http.StatusNoContent, &c)

	n, err := NewDiscordNotifier(testDiscordConfig(server.URL), zerolog.Nop())
	require.NoError(t, err)
	n.now = func() time.Time { return time.Date(2024, 5, 17, 4, 30, 0, 0, time.UTC) }

	err = n.NotifySuccess(context.Background(), Event{
		Version:         "1.19.3",
		PreviousVersion: "1.19.2",
		URL:             "https://cdn.example.com/vs_server_1.19.3.tar.gz",
		Host:            "gamebox",
	})
	require.NoError(t, err)

	require.Len(t, c.payloads, 1)
	p := c.payloads[0]
	assert.Equal(t, "vsupdater", p.Username)
	require.Len(t, p.Embeds, 1)
	assert.Equal(t, "Updated to 1.19.3", p.Embeds[0].Title)
	assert.Equal(t, "gamebox: 1.19.2 -> 1.19.3", p.Embeds[0].Description)
	assert.Equal(t, ColorSuccess, p.Embeds[0].Color)
	assert.Equal(t, "https://cdn.example.com/vs_server_1.19.3.tar.gz", p.Embeds[0].URL)
	assert.Equal(t, "2024-05-17T04:30:00Z", p.Embeds[0].Timestamp)
}

func TestDiscordNotifier_ErrorTruncatesAndUsesErrorWebhook(t *testing.T) {
	var c capture
	server := newWebhookServer(t, http.StatusNoContent, &c)

	cfg := testDiscordConfig(server.URL + "/main")
	cfg.ErrorWebhookURL = server.URL + "/errors"
	n, err := NewDiscordNotifier(cfg, zerolog.Nop())
	require.NoError(t, err)

	err = n.NotifyError(context.Background(), Event{Error: strings.Repeat("é", 1500)})
	require.NoError(t, err)

	require.Len(t, c.payloads, 1)
	assert.Equal(t, "/errors", c.paths[0])
	desc := c.payloads[0].Embeds[0].Description
	assert.Equal(t, MaxErrorRunes+3, utf8.RuneCountInString(desc))
	assert.True(t, strings.HasSuffix(desc, "..."))
	assert.Equal(t, ColorError, c.payloads[0].Embeds[0].Color)
}

func TestDiscordNotifier_Non2xx(t *testing.T) {
	var c capture
	server := newWebhookServer(t, http.StatusTooManyRequests, &c)

	n, err := NewDiscordNotifier(testDiscordConfig(server.URL), zerolog.Nop())
	require.NoError(t, err)

	err = n.NotifySuccess(context.Background(), Event{Version: "1.19.3"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestNew_DisabledReturnsNop(t *testing.T) {
	cfg := testDiscordConfig("https://discord.example.com/hook")
	cfg.Enabled = false

	sink, err := New(cfg, zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, Nop{}, sink)
	assert.NoError(t, sink.NotifyError(context.Background(), Event{}))
}

func TestNewDiscordNotifier_BadTemplate(t *testing.T) {
	cfg := testDiscordConfig("https://discord.example.com/hook")
	cfg.SuccessTemplate = "{{.Version"

	_, err := NewDiscordNotifier(cfg, zerolog.Nop())
	require.Error(t, err)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "abc...", Truncate("abcdef", 3))
	assert.Equal(t, "ääa...", Truncate("ääab", 3))
}
