// Package notify announces completed migration runs as signed CloudEvents.
package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	ceevent "github.com/cloudevents/sdk-go/v2/event"

	"github.com/fr0stylo/photomigrate/internal/app/domain"
	"github.com/fr0stylo/photomigrate/internal/app/ports"
)

const (
	EventType     = "dev.photomigrate.run.completed"
	DefaultSource = "photomigrate"
	// SignatureHeader carries hex(hmac-sha256(body, secret)).
	SignatureHeader = "X-Webhook-Signature"
)

// Client posts run summaries to a webhook endpoint.
type Client struct {
	Endpoint   string
	Token      string
	Secret     string
	Source     string
	Timeout    time.Duration
	HTTPClient *http.Client
}

var _ ports.RunNotifier = Client{}

// RunReport is the event data.
type RunReport struct {
	RunID           string         `json:"run_id"`
	StartedAt       time.Time      `json:"started_at"`
	FinishedAt      time.Time      `json:"finished_at"`
	DurationSeconds float64        `json:"duration_seconds"`
	IndexSize       int            `json:"index_size"`
	Total           int            `json:"total"`
	Succeeded       int            `json:"succeeded"`
	Failed          int            `json:"failed"`
	BytesUploaded   int64          `json:"bytes_uploaded"`
	FailuresByKind  map[string]int `json:"failures_by_kind,omitempty"`
}

func reportFrom(s domain.Summary) RunReport {
	r := RunReport{
		RunID:           s.RunID,
		StartedAt:       s.StartedAt.UTC(),
		FinishedAt:      s.FinishedAt.UTC(),
		DurationSeconds: s.Duration().Seconds(),
		IndexSize:       s.IndexSize,
		Total:           s.Total,
		Succeeded:       s.Succeeded,
		Failed:          s.Failed,
		BytesUploaded:   s.BytesUploaded,
	}
	if len(s.FailuresByKind) > 0 {
		r.FailuresByKind = make(map[string]int, len(s.FailuresByKind))
		for kind, n := range s.FailuresByKind {
			r.FailuresByKind[string(kind)] = n
		}
	}
	return r
}

// BuildEventBody renders summary as a structured-mode CloudEvent.
func BuildEventBody(source string, summary domain.Summary) ([]byte, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		source = DefaultSource
	}
	if strings.TrimSpace(summary.RunID) == "" {
		return nil, fmt.Errorf("run id is required")
	}

	e := ceevent.New()
	e.SetID(summary.RunID)
	e.SetSource(source)
	e.SetType(EventType)
	e.SetSubject("run/" + summary.RunID)
	at := summary.FinishedAt
	if at.IsZero() {
		at = time.Now()
	}
	e.SetTime(at.UTC())
	if err := e.SetData(ceevent.ApplicationJSON, reportFrom(summary)); err != nil {
		return nil, fmt.Errorf("encode run report: %w", err)
	}
	if err := e.Validate(); err != nil {
		return nil, fmt.Errorf("invalid event: %w", err)
	}
	return json.Marshal(e)
}

// NotifyRunCompleted posts the run summary event.
func (c Client) NotifyRunCompleted(ctx context.Context, summary domain.Summary) error {
	body, err := BuildEventBody(c.Source, summary)
	if err != nil {
		return err
	}
	return c.publishBody(ctx, body)
}

func (c Client) publishBody(ctx context.Context, body []byte) error {
	endpoint := strings.TrimSpace(c.Endpoint)
	token := strings.TrimSpace(c.Token)
	secret := strings.TrimSpace(c.Secret)
	if endpoint == "" || token == "" || secret == "" {
		return fmt.Errorf("endpoint/token/secret are required")
	}

	httpClient := c.HTTPClient
	if httpClient == nil {
		timeout := c.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set(SignatureHeader, Sign(body, secret))
	req.Header.Set("Content-Type", "application/cloudevents+json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("webhook rejected: status=%s body=%s", resp.Status, strings.TrimSpace(string(payload)))
	}
	return nil
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
