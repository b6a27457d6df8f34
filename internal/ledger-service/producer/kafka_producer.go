package producer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/radieske/wager-ledger-poc/internal/wager"
	"github.com/radieske/wager-ledger-poc/pkg/contracts/events"
)

// MessageWriter é o subconjunto de *kafka.Writer usado aqui
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Topics diz para onde vai cada tipo de evento
type Topics struct {
	WagerRequested string
	WagerSettled   string
	LedgerEvents   string
}

// KafkaPublisher publica os eventos do ledger e os resultados de liquidação
type KafkaPublisher struct {
	writer MessageWriter
	topics Topics
	log    *zap.Logger
}

func NewKafkaPublisher(w MessageWriter, topics Topics, log *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{writer: w, topics: topics, log: log}
}

// Publish envia os eventos de uma chamada numa única escrita.
// run_agent vai para wager_requested com a chave do request; ft_* vai para ledger_events.
func (p *KafkaPublisher) Publish(ctx context.Context, evs []events.Envelope) error {
	msgs := make([]kafka.Message, 0, len(evs))
	now := time.Now()
	for _, ev := range evs {
		value, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		msg := kafka.Message{Value: value, Time: now}
		switch ev.Event {
		case events.EventRunAgent:
			msg.Topic = p.topics.WagerRequested
			msg.Key = runAgentKey(ev)
		default:
			msg.Topic = p.topics.LedgerEvents
			msg.Key = []byte(ev.Event)
		}
		msgs = append(msgs, msg)
	}
	if len(msgs) == 0 {
		return nil
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write %d events: %w", len(msgs), err)
	}
	p.log.Debug("published ledger events", zap.Int("count", len(msgs)))
	return nil
}

// PublishSettled envia o resultado da retomada para wager_settled
func (p *KafkaPublisher) PublishSettled(ctx context.Context, o wager.Outcome) error {
	value, err := json.Marshal(o.Event())
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Topic: p.topics.WagerSettled,
		Key:   []byte(o.RequestID.String()),
		Value: value,
		Time:  time.Now(),
	})
}

func runAgentKey(ev events.Envelope) []byte {
	runs, ok := ev.Data.([]events.RunAgent)
	if !ok || len(runs) == 0 || runs[0].RequestID == nil {
		return nil
	}
	return []byte(wager.RequestID(*runs[0].RequestID).String())
}
