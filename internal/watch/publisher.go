package watch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"git.home.luguber.info/inful/docscope/internal/logfields"
	"git.home.luguber.info/inful/docscope/internal/pipeline"
)

// DiagnosticsEvent is the wire form of one build's findings, published per
// completed watch-mode build so dashboards can track content health.
type DiagnosticsEvent struct {
	BuildID     string              `json:"build_id"`
	Timestamp   time.Time           `json:"timestamp"`
	Outcome     string              `json:"outcome"`
	Documents   int                 `json:"documents"`
	Artifacts   int                 `json:"artifacts"`
	FailedDocs  []string            `json:"failed_docs,omitempty"`
	Diagnostics map[string][]string `json:"diagnostics,omitempty"`
	DurationMS  int64               `json:"duration_ms"`
}

// Publisher sends build diagnostics to a NATS JetStream subject.
type Publisher struct {
	conn    *nats.Conn
	js      jetstream.JetStream
	subject string
	logger  *slog.Logger
}

// NewPublisher connects to NATS and prepares a JetStream context.
func NewPublisher(url, subject string, logger *slog.Logger) (*Publisher, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}
	logger.Info("Diagnostics publisher connected", logfields.URL(url), slog.String("subject", subject))
	return &Publisher{conn: conn, js: js, subject: subject, logger: logger}, nil
}

// PublishSummary publishes one build summary. Failures are logged, not
// raised; diagnostics delivery must never fail a build.
func (p *Publisher) PublishSummary(ctx context.Context, sum *pipeline.Summary) {
	if p == nil {
		return
	}
	event := DiagnosticsEvent{
		BuildID:    sum.BuildID,
		Timestamp:  time.Now(),
		Outcome:    sum.Outcome,
		Documents:  sum.Documents,
		Artifacts:  sum.Artifacts,
		FailedDocs: sum.FailedDocs,
		DurationMS: sum.Duration.Milliseconds(),
	}
	if len(sum.Diagnostics) > 0 {
		event.Diagnostics = make(map[string][]string, len(sum.Diagnostics))
		for doc, diags := range sum.Diagnostics {
			for _, d := range diags {
				event.Diagnostics[doc] = append(event.Diagnostics[doc], d.String())
			}
		}
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.logger.Warn("Failed to marshal diagnostics event", logfields.Error(err))
		return
	}
	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := p.js.Publish(pubCtx, p.subject, data); err != nil {
		p.logger.Warn("Failed to publish diagnostics event", logfields.Error(err))
		return
	}
	p.logger.Debug("Published diagnostics event", logfields.BuildID(sum.BuildID))
}

// Close drains the NATS connection.
func (p *Publisher) Close() {
	if p == nil || p.conn == nil {
		return
	}
	p.conn.Close()
}
