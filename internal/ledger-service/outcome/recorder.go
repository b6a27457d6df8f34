package outcome

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/radieske/wager-ledger-poc/internal/wager"
	"github.com/radieske/wager-ledger-poc/pkg/contracts/events"
)

type Cache interface {
	Put(ctx context.Context, ev events.WagerSettled) error
}

type Publisher interface {
	PublishSettled(ctx context.Context, o wager.Outcome) error
}

// Recorder distribui o resultado de cada retomada: cache/pubsub e Kafka.
// Falhas são logadas e não afetam a liquidação, que já foi commitada.
type Recorder struct {
	Log       *zap.Logger
	Cache     Cache     // opcional
	Publisher Publisher // opcional

	OnError func(string) // métricas por fase
}

// Record é usado como Bridge.OnOutcome
func (r *Recorder) Record(ctx context.Context, o wager.Outcome) {
	// retomada sem resposta não tem resultado a divulgar
	if errors.Is(o.Err, wager.ErrResponseMissing) {
		return
	}
	ev := o.Event()

	// FAILED não vai para o cache: a aposta continua pendente e pode
	// ser liquidada por um veredito posterior
	if r.Cache != nil && o.Err == nil {
		if err := r.Cache.Put(ctx, ev); err != nil {
			r.Log.Warn("outcome cache failed", zap.Uint64("request_id", ev.RequestID), zap.Error(err))
			r.fail("cache")
		}
	}
	if r.Publisher != nil {
		if err := r.Publisher.PublishSettled(ctx, o); err != nil {
			r.Log.Warn("publish wager_settled failed", zap.Uint64("request_id", ev.RequestID), zap.Error(err))
			r.fail("kafka")
		}
	}
}

func (r *Recorder) fail(stage string) {
	if r.OnError != nil {
		r.OnError(stage)
	}
}
