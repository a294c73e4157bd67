// Package orchestrator implements the request/response mailbox into a
// long-running external orchestrator process, plus the small coordination
// registries (agents, notes, memos, assignments) that follow the same
// write-atomic-file-into-a-well-known-directory pattern.
package orchestrator

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"coordplane/internal/config"
	"coordplane/internal/fsjson"
	"coordplane/internal/logger"
)

// SchemaVersion is stamped on every persisted coordination record.
const SchemaVersion = 1

// PollInterval is how often a waiting sender checks the outbox.
const PollInterval = 200 * time.Millisecond

// Request is one message dropped in the orchestrator inbox.
type Request struct {
	SchemaVersion int            `json:"schema_version"`
	ID            string         `json:"id"`
	Action        string         `json:"action"`
	Payload       map[string]any `json:"payload,omitempty"`
	CreatedBy     string         `json:"created_by"`
	CreatedAt     time.Time      `json:"created_at"`
}

// Response is the orchestrator's answer, keyed by the request id in its
// filename (resp__<request_id>.json).
type Response struct {
	SchemaVersion int            `json:"schema_version"`
	RequestID     string         `json:"request_id"`
	Payload       map[string]any `json:"payload,omitempty"`
	CompletedAt   time.Time      `json:"completed_at"`
}

// TimeoutError reports an expired wait. The request is not canceled; the
// response may still land at ResponsePath later, so retriers must dedupe
// by request id.
type TimeoutError struct {
	RequestID    string
	ResponsePath string
	Waited       time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("no response for %s after %s (still pending at %s)",
		e.RequestID, e.Waited, e.ResponsePath)
}

// Channel is the caller side of the mailbox.
type Channel struct {
	cfg *config.Config
	log *slog.Logger
	now func() time.Time
}

// NewChannel returns a channel over cfg's orchestrator directories.
func NewChannel(cfg *config.Config, log *slog.Logger) *Channel {
	if log == nil {
		log = logger.New()
	}
	return &Channel{cfg: cfg, log: log, now: time.Now}
}

// NewRequestID builds a collision-resistant, roughly time-ordered id:
// prefix__<utc timestamp>__<random hex>.
func NewRequestID(prefix string) string {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing is not survivable for id generation.
		panic(fmt.Sprintf("read random bytes: %v", err))
	}
	return fmt.Sprintf("%s__%s__%s", prefix, time.Now().UTC().Format("20060102T150405"), hex.EncodeToString(buf))
}

// Send writes a request into the inbox and, when wait > 0, polls the
// outbox for the response until the deadline. wait == 0 is fire-and-forget
// and never touches the outbox.
func (c *Channel) Send(ctx context.Context, action string, payload map[string]any, wait time.Duration) (string, *Response, error) {
	if action == "" {
		return "", nil, fmt.Errorf("action is required")
	}

	req := Request{
		SchemaVersion: SchemaVersion,
		ID:            NewRequestID("req"),
		Action:        action,
		Payload:       payload,
		CreatedBy:     c.cfg.AgentName,
		CreatedAt:     c.now().UTC(),
	}
	if err := fsjson.WriteAtomic(c.requestPath(req.ID), req); err != nil {
		return "", nil, fmt.Errorf("write request: %w", err)
	}

	c.appendEvent("orchestrator_request", req.ID, map[string]any{"action": action})

	if wait <= 0 {
		return req.ID, nil, nil
	}

	resp, err := c.await(ctx, req.ID, wait)
	if err != nil {
		return req.ID, nil, err
	}
	return req.ID, resp, nil
}

func (c *Channel) await(ctx context.Context, requestID string, wait time.Duration) (*Response, error) {
	respPath := c.ResponsePath(requestID)
	deadline := c.now().Add(wait)

	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	for {
		var resp Response
		err := fsjson.Read(respPath, &resp)
		if err == nil {
			return &resp, nil
		}
		if !fsjson.IsAbsent(err) {
			return nil, err
		}

		if !c.now().Before(deadline) {
			return nil, &TimeoutError{RequestID: requestID, ResponsePath: respPath, Waited: wait}
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Respond is the orchestrator side: write the response into the outbox and
// move the request to processed. The move is best-effort.
func (c *Channel) Respond(requestID string, payload map[string]any) error {
	if requestID == "" {
		return fmt.Errorf("request id is required")
	}
	resp := Response{
		SchemaVersion: SchemaVersion,
		RequestID:     requestID,
		Payload:       payload,
		CompletedAt:   c.now().UTC(),
	}
	if err := fsjson.WriteAtomic(c.ResponsePath(requestID), resp); err != nil {
		return fmt.Errorf("write response: %w", err)
	}

	src := c.requestPath(requestID)
	dst := filepath.Join(c.cfg.OrchProcessedDir(), requestID+".json")
	if err := os.MkdirAll(c.cfg.OrchProcessedDir(), 0o755); err == nil {
		if err := os.Rename(src, dst); err != nil && !os.IsNotExist(err) {
			logger.Soft(c.log, "move request to processed", err, "request_id", requestID)
		}
	}

	c.appendEvent("orchestrator_response", requestID, nil)
	return nil
}

// PendingRequests lists inbox requests the orchestrator has not processed.
func (c *Channel) PendingRequests() ([]Request, error) {
	entries, err := os.ReadDir(c.cfg.OrchInboxDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read inbox: %w", err)
	}
	out := make([]Request, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		var req Request
		if err := fsjson.Read(filepath.Join(c.cfg.OrchInboxDir(), entry.Name()), &req); err != nil {
			if fsjson.IsAbsent(err) {
				logger.Soft(c.log, "read inbox request", err)
				continue
			}
			return nil, err
		}
		out = append(out, req)
	}
	return out, nil
}

// ResponsePath is where the response for requestID appears.
func (c *Channel) ResponsePath(requestID string) string {
	return filepath.Join(c.cfg.OrchOutboxDir(), "resp__"+requestID+".json")
}

func (c *Channel) requestPath(requestID string) string {
	return filepath.Join(c.cfg.OrchInboxDir(), requestID+".json")
}

// appendEvent records an audit event. Log failures never fail the call.
func (c *Channel) appendEvent(eventType, subject string, payload map[string]any) {
	event := map[string]any{
		"schema_version": SchemaVersion,
		"type":           eventType,
		"subject":        subject,
		"actor":          c.cfg.AgentName,
		"ts":             c.now().UTC(),
	}
	if len(payload) > 0 {
		event["payload"] = payload
	}
	logger.Soft(c.log, "append audit event", fsjson.AppendLine(c.cfg.EventsPath(), event), "type", eventType)
}
