// Package events publishes artifact-generated notifications over NATS
// JetStream. The event bus is optional: a nil *NATSClient is a valid client
// that publishes nothing, so planners never need to care whether wiring is
// configured.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Event is the payload published for every generated artifact.
type Event struct {
	EventID   string    `json:"event_id"`
	ProjectID string    `json:"project_id"`
	Artifact  string    `json:"artifact"`
	Timestamp time.Time `json:"timestamp"`
}

type Publisher interface {
	Publish(ctx context.Context, subject string, projectID, artifact string) error
	Close()
}

type NATSClient struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	logger *slog.Logger
}

// NewNATSClient connects and ensures the artifact stream exists.
func NewNATSClient(ctx context.Context, url string, logger *slog.Logger) (*NATSClient, error) {
	nc, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      StreamName,
		Subjects:  []string{SubjectPattern},
		Retention: jetstream.LimitsPolicy,
		MaxAge:    24 * time.Hour,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream %s: %w", StreamName, err)
	}

	return &NATSClient{nc: nc, js: js, logger: logger}, nil
}

func (c *NATSClient) Publish(ctx context.Context, subject, projectID, artifact string) error {
	if c == nil {
		return nil
	}
	evt := Event{
		EventID:   uuid.NewString(),
		ProjectID: projectID,
		Artifact:  artifact,
		Timestamp: time.Now().UTC(),
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := c.js.Publish(ctx, subject, payload); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	c.logger.Debug("event published", "subject", subject, "event_id", evt.EventID)
	return nil
}

func (c *NATSClient) Close() {
	if c == nil || c.nc == nil {
		return
	}
	c.nc.Close()
}
