package devserver

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/pulsedash/pulse/internal/api"
)

// Pusher nudges the stored metrics on an interval and broadcasts the result,
// so connected dashboards visibly move without anyone entering data.
type Pusher struct {
	metrics *MetricsStore
	hub     *Hub
	every   time.Duration
	logger  *slog.Logger
	rng     *rand.Rand
}

func NewPusher(metrics *MetricsStore, hub *Hub, every time.Duration, logger *slog.Logger) *Pusher {
	return &Pusher{
		metrics: metrics,
		hub:     hub,
		every:   every,
		logger:  logger,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Run pushes until ctx is cancelled. A zero interval disables pushing.
func (p *Pusher) Run(ctx context.Context) {
	if p.every <= 0 {
		return
	}
	ticker := time.NewTicker(p.every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.push(ctx); err != nil {
				p.logger.Warn("metrics push failed", "error", err)
			}
		}
	}
}

func (p *Pusher) push(ctx context.Context) error {
	overview, err := p.metrics.Latest(ctx)
	if err != nil {
		return err
	}

	next := jitterOverview(*overview, p.rng)
	if err := p.metrics.Replace(ctx, next); err != nil {
		return err
	}
	return p.hub.Broadcast("metricsUpdated", next)
}

// jitterOverview applies a small random drift to the money flows and KPI
// values. Income and expenses only grow (money keeps flowing during the
// month); net and deltas are recomputed from the moved values.
func jitterOverview(o api.MetricsOverview, rng *rand.Rand) api.MetricsOverview {
	o.Balance.Income += o.Balance.Income * rng.Float64() * 0.01
	o.Balance.Expenses += o.Balance.Expenses * rng.Float64() * 0.01
	o.Balance.Net = o.Balance.Income - o.Balance.Expenses

	o.Ranking = append([]api.KPI(nil), o.Ranking...)
	for i := range o.Ranking {
		drift := (rng.Float64() - 0.5) * 0.04 // ±2%
		moved := o.Ranking[i].Value * drift
		o.Ranking[i].Value += moved
		o.Ranking[i].Delta += moved
	}
	return o
}
