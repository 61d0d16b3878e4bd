package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"genqueue/internal/config"
)

const userAgent = "genqueue/1.0"

// Service defines the notification surface used by the queue.
type Service interface {
	NotifyJobDone(ctx context.Context, variant, jobID, resultURL string) error
	NotifyJobFailed(ctx context.Context, variant, jobID, reason string) error
	NotifyQueueDrained(ctx context.Context, variant string, done, failed int, duration time.Duration) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := &http.Client{Timeout: timeout}
	return &ntfyService{
		endpoint: topic,
		client:   client,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
	click    string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) NotifyJobDone(ctx context.Context, variant, jobID, resultURL string) error {
	data := payload{
		title:   fmt.Sprintf("genqueue - %s ready", variantLabel(variant)),
		message: fmt.Sprintf("✅ Job %s finished\n%s", strings.TrimSpace(jobID), strings.TrimSpace(resultURL)),
		tags:    []string{"genqueue", variantTag(variant), "done"},
		click:   strings.TrimSpace(resultURL),
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyJobFailed(ctx context.Context, variant, jobID, reason string) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "Generation failed"
	}
	data := payload{
		title:    fmt.Sprintf("genqueue - %s failed", variantLabel(variant)),
		message:  fmt.Sprintf("❌ Job %s failed: %s", strings.TrimSpace(jobID), reason),
		tags:     []string{"genqueue", variantTag(variant), "failed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyQueueDrained(ctx context.Context, variant string, done, failed int, duration time.Duration) error {
	var builder strings.Builder
	fmt.Fprintf(&builder, "🎉 %s queue finished: %d done", variantLabel(variant), done)
	if failed > 0 {
		fmt.Fprintf(&builder, ", %d failed", failed)
	}
	if duration > 0 {
		fmt.Fprintf(&builder, " in %s", duration.Round(time.Second))
	}
	data := payload{
		title:   "genqueue - Queue Drained",
		message: builder.String(),
		tags:    []string{"genqueue", variantTag(variant), "queue"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "genqueue - Test",
		message:  "🧪 Notification system test",
		tags:     []string{"genqueue", "test"},
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
	if data.click != "" {
		req.Header.Set("Click", data.click)
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

func variantLabel(variant string) string {
	switch strings.ToLower(strings.TrimSpace(variant)) {
	case "video":
		return "Video"
	case "image", "":
		return "Image"
	default:
		return strings.TrimSpace(variant)
	}
}

func variantTag(variant string) string {
	variant = strings.ToLower(strings.TrimSpace(variant))
	if variant == "" {
		return "image"
	}
	return variant
}

type noopService struct{}

func (noopService) NotifyJobDone(context.Context, string, string, string) error   { return nil }
func (noopService) NotifyJobFailed(context.Context, string, string, string) error { return nil }
func (noopService) NotifyQueueDrained(context.Context, string, int, int, time.Duration) error {
	return nil
}
func (noopService) TestNotification(context.Context) error { return nil }
