// Package notify publishes stock-changed events after the inventory engine
// commits. Cache invalidation is the subscriber's job, not the engine's.
package notify

import (
	"context"
	"encoding/json"

	rd "github.com/redis/go-redis/v9"

	"shopcore/internal/domain"
	applog "shopcore/internal/log"
)

// Event describes one committed stock mutation.
type Event struct {
	VariantID string         `json:"variant_id"`
	Operation domain.StockOp `json:"operation"`
	OnHand    int            `json:"on_hand"`
	Reserved  int            `json:"reserved"`
	Available int            `json:"available"`
}

type Notifier interface {
	// StockChanged is best-effort: delivery failure must not fail the
	// already-committed mutation.
	StockChanged(ctx context.Context, ev Event)
}

// Nop is used in tests and redis-less deployments.
type Nop struct{}

func (Nop) StockChanged(context.Context, Event) {}

// Redis publishes events as JSON on a single pub/sub channel.
type Redis struct {
	rdb     *rd.Client
	channel string
}

func NewRedis(rdb *rd.Client, channel string) *Redis {
	return &Redis{rdb: rdb, channel: channel}
}

func (n *Redis) StockChanged(ctx context.Context, ev Event) {
	b, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := n.rdb.Publish(ctx, n.channel, b).Err(); err != nil {
		applog.Error(nil, "notify.stock_changed.fail", err, map[string]any{
			"variant": ev.VariantID, "op": string(ev.Operation),
		})
	}
}
