package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	wdto "github.com/radieske/wager-ledger-poc/internal/arbiter-worker/dto"
	"github.com/radieske/wager-ledger-poc/internal/arbiter-worker/ledgerclient"
	"github.com/radieske/wager-ledger-poc/pkg/contracts/events"
)

type Reader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type Agent interface {
	Run(ctx context.Context, in wdto.AgentRunReq) (wdto.AgentRunResp, error)
}

type Ledger interface {
	GetRequest(ctx context.Context, id uint64) (wdto.PendingRequest, error)
	Respond(ctx context.Context, in wdto.RespondReq) error
}

// Processor consome run_agent, pede o veredito ao agente e grava a resposta
// no ledger como operador. Falhas transitórias são repetidas; depois disso
// (ou numa recusa definitiva) o evento vai para a DLQ.
type Processor struct {
	Log      *zap.Logger
	Reader   Reader
	Agent    Agent
	Ledger   Ledger
	DLQ      Writer // opcional
	DLQTopic string

	Retries int
	Backoff time.Duration

	OnConsumed  func()
	OnResponded func(ok bool)
	OnSkipped   func()
	OnDLQ       func()
	OnError     func(stage string)
}

// Run lê wager_requested até ctx ser cancelado
func (p *Processor) Run(ctx context.Context) error {
	for {
		msg, err := p.Reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.Log.Warn("kafka read", zap.Error(err))
			p.fail("read")
			time.Sleep(time.Second)
			continue
		}
		if p.OnConsumed != nil {
			p.OnConsumed()
		}

		var ev events.WagerRequested
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			p.Log.Error("unmarshal wager_requested", zap.Error(err))
			p.fail("decode")
			continue
		}
		if ev.Event != events.EventRunAgent {
			continue
		}
		for _, run := range ev.Data {
			if err := p.Handle(ctx, run); err != nil {
				p.Log.Error("process run_agent", zap.Uint64p("request_id", run.RequestID), zap.Error(err))
			}
		}
	}
}

// Handle processa uma notificação run_agent
func (p *Processor) Handle(ctx context.Context, run events.RunAgent) error {
	if run.RequestID == nil {
		p.fail("decode")
		return errors.New("run_agent without request_id")
	}
	id := *run.RequestID

	err := p.attempt(ctx, run)
	attempts := 1
	for i := 0; i < p.Retries && retryable(err); i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.Backoff * time.Duration(i+1)):
		}
		attempts++
		err = p.attempt(ctx, run)
	}

	switch {
	case err == nil:
		return nil
	case errors.Is(err, ledgerclient.ErrGone):
		// aposta já liquidada ou removida pelo operador
		p.Log.Info("request no longer pending", zap.Uint64("request_id", id))
		if p.OnSkipped != nil {
			p.OnSkipped()
		}
		return nil
	}

	p.fail("respond")
	p.deadLetter(ctx, run, err, attempts)
	return err
}

func (p *Processor) attempt(ctx context.Context, run events.RunAgent) error {
	id := *run.RequestID

	pending, err := p.Ledger.GetRequest(ctx, id)
	if err != nil {
		return err
	}

	verdict, err := p.Agent.Run(ctx, wdto.AgentRunReq{RequestID: id, Agent: run.Agent, Message: run.Message})
	if err != nil {
		return fmt.Errorf("agent: %w", err)
	}

	if err := p.Ledger.Respond(ctx, wdto.RespondReq{DataID: pending.DataID, RequestID: id, Response: verdict}); err != nil {
		return err
	}
	p.Log.Info("verdict recorded",
		zap.Uint64("request_id", id),
		zap.String("data_id", pending.DataID),
		zap.Bool("ok", verdict.OK),
	)
	if p.OnResponded != nil {
		p.OnResponded(verdict.OK)
	}
	return nil
}

func (p *Processor) deadLetter(ctx context.Context, run events.RunAgent, cause error, attempts int) {
	if p.DLQ == nil {
		return
	}
	payload, _ := json.Marshal(wdto.DeadLetter{
		Agent:     run.Agent,
		Message:   run.Message,
		RequestID: run.RequestID,
		Reason:    cause.Error(),
		Attempts:  attempts,
		Ts:        time.Now().UTC(),
	})
	msg := kafka.Message{
		Topic: p.DLQTopic,
		Key:   []byte(strconv.FormatUint(*run.RequestID, 10)),
		Value: payload,
		Time:  time.Now(),
	}
	if err := p.DLQ.WriteMessages(ctx, msg); err != nil {
		p.Log.Error("dlq write", zap.Error(err))
		p.fail("dlq")
		return
	}
	if p.OnDLQ != nil {
		p.OnDLQ()
	}
}

func (p *Processor) fail(stage string) {
	if p.OnError != nil {
		p.OnError(stage)
	}
}

// retryable: ErrGone e ErrRejected são definitivos
func retryable(err error) bool {
	return err != nil && !errors.Is(err, ledgerclient.ErrGone) && !errors.Is(err, ledgerclient.ErrRejected)
}
