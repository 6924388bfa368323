package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"soundloom/internal/config"
	"soundloom/internal/library"
)

const userAgent = "Soundloom/0.1.0"

// Event identifies a notification-worthy milestone.
type Event string

const (
	EventQueueStarted     Event = "queue_started"
	EventQueueCompleted   Event = "queue_completed"
	EventRunCompleted     Event = "run_completed"
	EventReviewRequired   Event = "review_required"
	EventGenerationFailed Event = "generation_failed"
	EventError            Event = "error"
	EventTest             Event = "test"
)

// Payload carries event-specific values keyed by well-known names.
type Payload map[string]any

// Service defines the notification surface exposed to workflow components.
// GenerationFailed exists alongside Publish so the webhook processor can
// treat the service as a fire-and-forget failure sink.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
	GenerationFailed(ctx context.Context, jobType library.JobType, jobID int64, detail string)
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
		endpoint:   topic,
		client:     &http.Client{Timeout: timeout},
		runs:       cfg.Notifications.Runs,
		generation: cfg.Notifications.Generation,
		errors:     cfg.Notifications.Errors,
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint   string
	client     *http.Client
	runs       bool
	generation bool
	errors     bool
}

// Publish formats and sends the event. Events whose category is muted in the
// configuration return nil without sending.
func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	if !n.enabled(event) {
		return nil
	}
	data, ok := formatEvent(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, data)
}

// GenerationFailed pushes a high-priority alert for a failed generation job.
// Send failures are swallowed; a lost alert must never affect job handling.
func (n *ntfyService) GenerationFailed(ctx context.Context, jobType library.JobType, jobID int64, detail string) {
	_ = n.Publish(ctx, EventGenerationFailed, Payload{
		"jobType": jobType,
		"jobID":   jobID,
		"detail":  detail,
	})
}

func (n *ntfyService) enabled(event Event) bool {
	switch event {
	case EventQueueStarted, EventQueueCompleted, EventRunCompleted, EventReviewRequired:
		return n.runs
	case EventGenerationFailed:
		return n.generation
	case EventError:
		return n.errors
	case EventTest:
		return true
	default:
		return false
	}
}

func formatEvent(event Event, payload Payload) (message, bool) {
	switch event {
	case EventQueueStarted:
		return message{
			title: "Soundloom - Queue Started",
			body:  fmt.Sprintf("Started processing queue with %d runs", intValue(payload, "count")),
			tags:  []string{"soundloom", "queue", "started"},
		}, true

	case EventQueueCompleted:
		processed := intValue(payload, "processed")
		failed := intValue(payload, "failed")
		duration := durationValue(payload, "duration").Round(time.Second)
		if duration < 0 {
			duration = 0
		}
		durationText := duration.String()
		if duration == 0 {
			durationText = "0s"
		}
		if failed == 0 {
			return message{
				title: "Soundloom - Queue Complete",
				body:  fmt.Sprintf("Queue processing complete: %d runs processed in %s", processed, durationText),
				tags:  []string{"soundloom", "queue", "completed"},
			}, true
		}
		return message{
			title: "Soundloom - Queue Complete (with errors)",
			body:  fmt.Sprintf("Queue processing complete: %d succeeded, %d failed in %s", processed, failed, durationText),
			tags:  []string{"soundloom", "queue", "completed"},
		}, true

	case EventRunCompleted:
		title := strings.TrimSpace(stringValue(payload, "title"))
		body := fmt.Sprintf("🔊 Ready to listen: %s", title)
		if finalFile := strings.TrimSpace(stringValue(payload, "finalFile")); finalFile != "" {
			body = fmt.Sprintf("%s\nFile: %s", body, finalFile)
		}
		return message{
			title:    "Soundloom - Mix Complete",
			body:     body,
			tags:     []string{"soundloom", "mix", "completed"},
			priority: "high",
		}, true

	case EventReviewRequired:
		title := strings.TrimSpace(stringValue(payload, "title"))
		body := fmt.Sprintf("Needs review: %s", title)
		if reason := strings.TrimSpace(stringValue(payload, "reason")); reason != "" {
			body = fmt.Sprintf("%s\n%s", body, reason)
		}
		return message{
			title: "Soundloom - Needs Review",
			body:  body,
			tags:  []string{"soundloom", "review", "attention"},
		}, true

	case EventGenerationFailed:
		detail := strings.TrimSpace(stringValue(payload, "detail"))
		if detail == "" {
			detail = "no detail provided"
		}
		return message{
			title:    "Soundloom - Generation Failed",
			body:     fmt.Sprintf("❌ %s job #%d failed: %s", stringValue(payload, "jobType"), intValue(payload, "jobID"), detail),
			tags:     []string{"soundloom", "generation", "failed"},
			priority: "high",
		}, true

	case EventError:
		var builder strings.Builder
		builder.WriteString("❌ Error")
		if contextLabel := strings.TrimSpace(stringValue(payload, "context")); contextLabel != "" {
			builder.WriteString(" with ")
			builder.WriteString(contextLabel)
		}
		builder.WriteString(": ")
		if errText := strings.TrimSpace(stringValue(payload, "error")); errText != "" {
			builder.WriteString(errText)
		} else {
			builder.WriteString("unknown")
		}
		return message{
			title:    "Soundloom - Error",
			body:     builder.String(),
			tags:     []string{"soundloom", "error", "alert"},
			priority: "high",
		}, true

	case EventTest:
		return message{
			title:    "Soundloom - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"soundloom", "test"},
			priority: "low",
		}, true
	}
	return message{}, false
}

func (n *ntfyService) send(ctx context.Context, data message) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.body))
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

func stringValue(payload Payload, key string) string {
	if payload == nil {
		return ""
	}
	switch v := payload[key].(type) {
	case string:
		return v
	case error:
		return v.Error()
	case fmt.Stringer:
		return v.String()
	case library.JobType:
		return string(v)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

func intValue(payload Payload, key string) int {
	if payload == nil {
		return 0
	}
	switch v := payload[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	default:
		return 0
	}
}

func durationValue(payload Payload, key string) time.Duration {
	if payload == nil {
		return 0
	}
	if v, ok := payload[key].(time.Duration); ok {
		return v
	}
	return 0
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }

func (noopService) GenerationFailed(context.Context, library.JobType, int64, string) {}
