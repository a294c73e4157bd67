package jobqueue

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"coordplane/internal/logger"
	"coordplane/pkg/api"
)

// rateLimitMarkers are the log substrings that flip the rate_limited flag
// in notifications, so downstream automation can back off instead of
// hammering a throttled upstream.
var rateLimitMarkers = []string{"429", "too many requests", "rate limit"}

// Notifier posts job transition webhooks. All failures are best-effort:
// a dead webhook must never change queue behavior.
type Notifier struct {
	url    string
	client *http.Client
	log    *slog.Logger
}

// NewNotifier returns a notifier for url; an empty url disables it.
func NewNotifier(url string, log *slog.Logger) *Notifier {
	if log == nil {
		log = logger.New()
	}
	return &Notifier{
		url:    url,
		client: &http.Client{Timeout: 5 * time.Second},
		log:    log,
	}
}

// Notify posts the transition. status is the notification label, which for
// the fail-then-requeue transition is retrying even though the stored
// status is pending.
func (n *Notifier) Notify(job Job, status Status, elapsed time.Duration, logPath string) {
	if n.url == "" {
		return
	}

	body := api.JobNotification{
		Channel:     job.Channel,
		Video:       job.Video,
		Status:      string(status),
		Attempts:    job.Attempts,
		ElapsedSec:  elapsed.Seconds(),
		RateLimited: logMentionsRateLimit(logPath),
	}
	payload, err := json.Marshal(body)
	if err != nil {
		logger.Soft(n.log, "marshal webhook payload", err, "job_id", job.ID)
		return
	}

	resp, err := n.client.Post(n.url, "application/json", bytes.NewReader(payload))
	if err != nil {
		logger.Soft(n.log, "post webhook", err, "job_id", job.ID)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		logger.Soft(n.log, "post webhook", fmt.Errorf("webhook returned %d", resp.StatusCode), "job_id", job.ID)
	}
}

// logMentionsRateLimit is a heuristic scan of the job log for throttling
// markers such as HTTP 429.
func logMentionsRateLimit(logPath string) bool {
	if logPath == "" {
		return false
	}
	data, err := os.ReadFile(logPath)
	if err != nil {
		return false
	}
	haystack := strings.ToLower(string(data))
	for _, marker := range rateLimitMarkers {
		if strings.Contains(haystack, marker) {
			return true
		}
	}
	return false
}
