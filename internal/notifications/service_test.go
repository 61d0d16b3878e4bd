package notifications_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"genqueue/internal/config"
	"genqueue/internal/notifications"
)

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.NotifyJobDone(context.Background(), "image", "42", "https://x/42.png"); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	tests := []struct {
		name           string
		send           func(notifications.Service) error
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
		expectClick    string
	}{
		{
			name: "job done",
			send: func(s notifications.Service) error {
				return s.NotifyJobDone(context.Background(), "image", "42", "https://x/42.png")
			},
			expectTitle:   "genqueue - Image ready",
			expectMessage: "✅ Job 42 finished\nhttps://x/42.png",
			expectTags:    "genqueue,image,done",
			expectClick:   "https://x/42.png",
		},
		{
			name: "job failed",
			send: func(s notifications.Service) error {
				return s.NotifyJobFailed(context.Background(), "video", "7", "")
			},
			expectTitle:    "genqueue - Video failed",
			expectMessage:  "❌ Job 7 failed: Generation failed",
			expectTags:     "genqueue,video,failed",
			expectPriority: "high",
		},
		{
			name: "queue drained",
			send: func(s notifications.Service) error {
				return s.NotifyQueueDrained(context.Background(), "image", 3, 1, 95*time.Second)
			},
			expectTitle:   "genqueue - Queue Drained",
			expectMessage: "🎉 Image queue finished: 3 done, 1 failed in 1m35s",
			expectTags:    "genqueue,image,queue",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var captured struct {
				title    string
				tags     string
				priority string
				click    string
				body     string
			}

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Errorf("unexpected method: %s", r.Method)
				}
				captured.title = r.Header.Get("Title")
				captured.tags = r.Header.Get("Tags")
				captured.priority = r.Header.Get("Priority")
				captured.click = r.Header.Get("Click")
				body, err := io.ReadAll(r.Body)
				if err != nil {
					t.Errorf("read body: %v", err)
				}
				captured.body = string(body)
				_ = r.Body.Close()
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			cfg := config.Default()
			cfg.Notifications.NtfyTopic = server.URL
			cfg.Notifications.RequestTimeoutSeconds = 5

			if err := tc.send(notifications.NewService(&cfg)); err != nil {
				t.Fatalf("notification returned error: %v", err)
			}

			if captured.title != tc.expectTitle {
				t.Fatalf("expected title %q, got %q", tc.expectTitle, captured.title)
			}
			if captured.body != tc.expectMessage {
				t.Fatalf("expected message %q, got %q", tc.expectMessage, captured.body)
			}
			if captured.tags != tc.expectTags {
				t.Fatalf("expected tags %q, got %q", tc.expectTags, captured.tags)
			}
			if captured.priority != tc.expectPriority {
				t.Fatalf("expected priority %q, got %q", tc.expectPriority, captured.priority)
			}
			if captured.click != tc.expectClick {
				t.Fatalf("expected click %q, got %q", tc.expectClick, captured.click)
			}
		})
	}
}

func TestNtfyServiceReportsServerErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "topic disabled", http.StatusForbidden)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL

	err := notifications.NewService(&cfg).TestNotification(context.Background())
	if err == nil {
		t.Fatal("expected error for 403 response")
	}
}
