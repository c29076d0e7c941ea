// Package queue hands parsed orders to the downstream processing pipeline.
// Delivery is fire-and-forget from the producer's perspective; the consumer
// side is at-least-once.
package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"order-feed-sync/internal/protocol"
)

// Queue accepts a batch of parsed orders for downstream processing.
type Queue interface {
	Enqueue(ctx context.Context, orders []protocol.ParsedOrder, expedited bool) error
}

const insertJobsSQL = `INSERT INTO order_jobs (
    id,
    protocol_kind,
    payload,
    expedited
)
SELECT * FROM unnest(
    $1::uuid[],
    $2::text[],
    $3::jsonb[],
    $4::boolean[]
);`

// PGQueue persists jobs into the order_jobs table.
type PGQueue struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewPGQueue wires a pgx pool into a queue producer.
func NewPGQueue(pool *pgxpool.Pool, logger zerolog.Logger) *PGQueue {
	return &PGQueue{
		pool:   pool,
		logger: logger.With().Str("component", "order_queue").Logger(),
	}
}

// Enqueue inserts one job row per parsed order as a single statement.
func (q *PGQueue) Enqueue(ctx context.Context, orders []protocol.ParsedOrder, expedited bool) error {
	if len(orders) == 0 {
		return nil
	}
	if q.pool == nil {
		return fmt.Errorf("queue pool not configured")
	}

	ids := make([]string, len(orders))
	kinds := make([]string, len(orders))
	payloads := make([][]byte, len(orders))
	flags := make([]bool, len(orders))
	for i, order := range orders {
		payload, err := json.Marshal(order.Components)
		if err != nil {
			return fmt.Errorf("marshal order components: %w", err)
		}
		ids[i] = uuid.NewString()
		kinds[i] = string(order.Kind)
		payloads[i] = payload
		flags[i] = expedited
	}

	if _, err := q.pool.Exec(ctx, insertJobsSQL, ids, kinds, payloads, flags); err != nil {
		return fmt.Errorf("enqueue order jobs: %w", err)
	}

	q.logger.Debug().Int("jobs", len(orders)).Bool("expedited", expedited).Msg("orders enqueued")
	return nil
}

var _ Queue = (*PGQueue)(nil)
