package wager

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Continuation é a computação retomada para uma aposta (a liquidação)
type Continuation func(ctx context.Context, id RequestID) (Settlement, error)

// Outcome é o resultado de uma retomada, entregue a quem aguarda o handle
type Outcome struct {
	RequestID  RequestID
	Handle     Handle
	Settlement *Settlement // nil quando Err != nil
	Err        error
	At         time.Time
}

type resumption struct {
	handle Handle
	id     RequestID
}

type suspension struct {
	id       RequestID
	done     chan struct{}
	outcome  Outcome
	resolved time.Time
}

// Bridge liga a chamada suspensa em Initiate à sua retomada em Respond.
// Retomadas entram numa fila e são executadas por Run, uma por vez,
// cada uma com o orçamento mínimo de tempo definido em budget.
type Bridge struct {
	log       *zap.Logger
	budget    time.Duration
	retention time.Duration
	queue     chan resumption
	wake      chan struct{}

	mu       sync.Mutex
	pending  map[Handle]*suspension
	overflow []resumption // retomadas que não couberam na fila

	OnResumed func()                         // métricas
	OnOutcome func(context.Context, Outcome) // fan-out (cache, pub/sub, kafka)
}

// NewBridge cria a ponte. retention define por quanto tempo um resultado
// fica disponível em memória para Await depois de resolvido.
func NewBridge(log *zap.Logger, budget, retention time.Duration, queueSize int) *Bridge {
	if retention <= 0 {
		retention = time.Minute
	}
	return &Bridge{
		log:       log,
		budget:    budget,
		retention: retention,
		queue:     make(chan resumption, queueSize),
		wake:      make(chan struct{}, 1),
		pending:   make(map[Handle]*suspension),
	}
}

// Create emite um handle novo para a aposta id
func (b *Bridge) Create(id RequestID) (Handle, error) {
	u, err := uuid.NewRandom()
	if err != nil {
		return Handle{}, err
	}
	buf := make([]byte, 8, 8+len(u))
	binary.BigEndian.PutUint64(buf, uint64(id))
	buf = append(buf, u[:]...)
	return sha256.Sum256(buf), nil
}

// Suspend registra a chamada suspensa para que Await possa esperar por ela.
// Deve ser chamado depois do commit da aposta.
func (b *Bridge) Suspend(h Handle, id RequestID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.pending[h]; ok {
		return
	}
	b.pending[h] = &suspension{id: id, done: make(chan struct{})}
}

// Resume agenda a continuação de id. Não valida o handle: isso cabe a quem
// chama, contra o Request persistido. Nunca bloqueia: com a fila cheia a
// retomada vai para o overflow, drenado por Run.
func (b *Bridge) Resume(h Handle, id RequestID) {
	r := resumption{handle: h, id: id}
	select {
	case b.queue <- r:
		return
	default:
	}

	b.mu.Lock()
	b.overflow = append(b.overflow, r)
	b.mu.Unlock()
	select {
	case b.wake <- struct{}{}:
	default:
	}
}

// Await bloqueia até a retomada do handle ou até ctx expirar.
// Retorna ErrUnknownHandle se a suspensão não é conhecida por este processo.
func (b *Bridge) Await(ctx context.Context, h Handle) (Outcome, error) {
	b.mu.Lock()
	s, ok := b.pending[h]
	b.mu.Unlock()
	if !ok {
		return Outcome{}, ErrUnknownHandle
	}
	select {
	case <-s.done:
		return s.outcome, nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

// Pending retorna quantas suspensões ainda não foram resolvidas
func (b *Bridge) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, s := range b.pending {
		if s.resolved.IsZero() {
			n++
		}
	}
	return n
}

// Run consome a fila de retomadas até ctx ser cancelado
func (b *Bridge) Run(ctx context.Context, cont Continuation) error {
	ticker := time.NewTicker(b.retention)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case r := <-b.queue:
			b.resume(ctx, cont, r)
		case <-b.wake:
			for _, r := range b.drain() {
				b.resume(ctx, cont, r)
			}
		case now := <-ticker.C:
			for _, r := range b.drain() {
				b.resume(ctx, cont, r)
			}
			b.prune(now)
		}
	}
}

func (b *Bridge) drain() []resumption {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.overflow
	b.overflow = nil
	return out
}

func (b *Bridge) resume(ctx context.Context, cont Continuation, r resumption) {
	if b.OnResumed != nil {
		b.OnResumed()
	}

	// a continuação sempre recebe o orçamento completo, mesmo durante shutdown
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.budget)
	defer cancel()

	st, err := cont(runCtx, r.id)
	out := Outcome{RequestID: r.id, Handle: r.handle, Err: err, At: time.Now().UTC()}
	if err == nil {
		out.Settlement = &st
	} else {
		b.log.Warn("resumed call failed",
			zap.Uint64("request_id", uint64(r.id)),
			zap.String("data_id", r.handle.String()),
			zap.Error(err),
		)
	}

	b.resolve(out)
	if b.OnOutcome != nil {
		b.OnOutcome(ctx, out)
	}
}

// resolve entrega o resultado a quem aguarda. Uma retomada sem resposta
// gravada (replay ou handle de aposta removida) não resolve a suspensão.
// Depois de uma falha a aposta continua pendente: um novo veredito
// substitui o resultado FAILED para os próximos Await.
func (b *Bridge) resolve(out Outcome) {
	if errors.Is(out.Err, ErrResponseMissing) {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.pending[out.Handle]
	if !ok {
		return
	}
	if !s.resolved.IsZero() {
		if s.outcome.Err == nil {
			return
		}
		s = &suspension{id: s.id, done: make(chan struct{})}
		b.pending[out.Handle] = s
	}
	s.outcome = out
	s.resolved = out.At
	close(s.done)
}

func (b *Bridge) prune(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for h, s := range b.pending {
		if !s.resolved.IsZero() && now.Sub(s.resolved) > b.retention {
			delete(b.pending, h)
		}
	}
}
