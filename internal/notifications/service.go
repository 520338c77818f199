package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"gavel/internal/config"
)

const userAgent = "gavel/0.1"

// Service defines the notification surface exposed to capture components.
// Implementations are fire-and-forget: callers log delivery failures and move
// on, never letting them affect recording or transcription.
type Service interface {
	NotifySessionStarted(ctx context.Context, sessionID, endpoint string) error
	NotifySessionEnded(ctx context.Context, sessionID, reason string, duration time.Duration) error
	NotifyTrigger(ctx context.Context, sessionID, phrase, offset, excerpt string) error
	NotifyError(ctx context.Context, err error, context string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		events:   cfg.Notifications,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	events   config.Notifications
}

func (n *ntfyService) NotifySessionStarted(ctx context.Context, sessionID, endpoint string) error {
	if !n.events.SessionStart {
		return nil
	}
	data := payload{
		title:   "Gavel - Session Started",
		message: fmt.Sprintf("Recording session %s\nStream: %s", strings.TrimSpace(sessionID), strings.TrimSpace(endpoint)),
		tags:    []string{"gavel", "session", "started"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifySessionEnded(ctx context.Context, sessionID, reason string, duration time.Duration) error {
	if !n.events.SessionEnd {
		return nil
	}
	duration = duration.Round(time.Second)
	if duration < 0 {
		duration = 0
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "completed"
	}
	data := payload{
		title:   "Gavel - Session Ended",
		message: fmt.Sprintf("Session %s %s after %s", strings.TrimSpace(sessionID), reason, duration),
		tags:    []string{"gavel", "session", "ended"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyTrigger(ctx context.Context, sessionID, phrase, offset, excerpt string) error {
	if !n.events.Triggers {
		return nil
	}
	message := fmt.Sprintf("%q at %s in session %s", strings.TrimSpace(phrase), strings.TrimSpace(offset), strings.TrimSpace(sessionID))
	if excerpt = strings.TrimSpace(excerpt); excerpt != "" {
		message = fmt.Sprintf("%s\n…%s…", message, excerpt)
	}
	data := payload{
		title:    "Gavel - Trigger Phrase",
		message:  message,
		tags:     []string{"gavel", "trigger", "match"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	if !n.events.Errors {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" with ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}

	data := payload{
		title:    "Gavel - Error",
		message:  builder.String(),
		tags:     []string{"gavel", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Gavel - Test",
		message:  "Notification system test",
		tags:     []string{"gavel", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifySessionStarted(context.Context, string, string) error { return nil }
func (noopService) NotifySessionEnded(context.Context, string, string, time.Duration) error {
	return nil
}
func (noopService) NotifyTrigger(context.Context, string, string, string, string) error { return nil }
func (noopService) NotifyError(context.Context, error, string) error                    { return nil }
func (noopService) TestNotification(context.Context) error                              { return nil }
