package outbox

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/multierr"

	"github.com/anishmaharjan/kinmel-backend/pkg/db/models"
	"github.com/anishmaharjan/kinmel-backend/pkg/logger"
	redispkg "github.com/anishmaharjan/kinmel-backend/pkg/redis"
)

// Message is what the relay puts on the wire for each outbox row.
type Message struct {
	EventType     string          `json:"event_type"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	Envelope      json.RawMessage `json:"envelope"`
}

// Relay drains unpublished outbox rows onto a redis channel.
type Relay struct {
	repo      *Repository
	publisher redispkg.Publisher
	channel   string
	batchSize int
	logg      *logger.Logger
}

func NewRelay(repo *Repository, publisher redispkg.Publisher, channel string, batchSize int, logg *logger.Logger) (*Relay, error) {
	if repo == nil {
		return nil, errors.New("repository is required")
	}
	if publisher == nil {
		return nil, errors.New("publisher is required")
	}
	if channel == "" {
		return nil, errors.New("channel is required")
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Relay{repo: repo, publisher: publisher, channel: channel, batchSize: batchSize, logg: logg}, nil
}

// DrainOnce publishes one batch. Rows that fail to publish get their attempt
// count bumped and stay unpublished for the next pass.
func (r *Relay) DrainOnce(ctx context.Context) (int, error) {
	rows, err := r.repo.FetchUnpublished(r.batchSize)
	if err != nil {
		return 0, err
	}

	var published int
	var errs error
	for _, row := range rows {
		if err := r.publishRow(ctx, row); err != nil {
			errs = multierr.Append(errs, err)
			if markErr := r.repo.MarkFailed(row.ID, err); markErr != nil {
				errs = multierr.Append(errs, markErr)
			}
			continue
		}
		if err := r.repo.MarkPublished(row.ID); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		published++
	}

	if r.logg != nil && published > 0 {
		logCtx := r.logg.WithFields(ctx, map[string]any{
			"published": published,
			"fetched":   len(rows),
		})
		r.logg.Info(logCtx, "outbox batch drained")
	}
	return published, errs
}

func (r *Relay) publishRow(ctx context.Context, row models.OutboxEvent) error {
	msg := Message{
		EventType:     string(row.EventType),
		AggregateType: string(row.AggregateType),
		AggregateID:   row.AggregateID.String(),
		Envelope:      row.Payload,
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return r.publisher.Publish(ctx, r.channel, string(raw))
}
