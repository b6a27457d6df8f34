package wager

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"

	"go.uber.org/zap"

	"github.com/radieske/wager-ledger-poc/internal/ledger"
	"github.com/radieske/wager-ledger-poc/pkg/contracts/events"
)

const initialMintMemo = "Initial tokens supply is minted"

// EventSink publica os eventos de uma chamada depois do commit
type EventSink interface {
	Publish(ctx context.Context, evs []events.Envelope) error
}

// Contract implementa o protocolo de apostas sobre o ledger.
// Escritas são serializadas: cada chamada termina (ou é revertida)
// antes da próxima começar.
type Contract struct {
	mu     sync.Mutex
	log    *zap.Logger
	store  Store
	bridge *Bridge
	sink   EventSink
	bounds ledger.StorageBalanceBounds

	OnWager   func()          // aposta criada
	OnGift    func()          // transferência imediata
	OnRespond func()          // veredito gravado
	OnSettle  func(string)    // SETTLED | VOIDED | FAILED
	OnError   func(op string) // erros por operação
}

// New cria o contrato. sink pode ser nil: os eventos continuam indo para o log.
func New(log *zap.Logger, store Store, bridge *Bridge, sink EventSink, bounds ledger.StorageBalanceBounds) *Contract {
	return &Contract{log: log, store: store, bridge: bridge, sink: sink, bounds: bounds}
}

// call agrupa o que uma operação enxerga dentro da transação
type call struct {
	tx     Tx
	ledger *ledger.Ledger
	extra  []events.Envelope
}

func (c *call) emit(ev events.Envelope) { c.extra = append(c.extra, ev) }

func (c *call) staged() []events.Envelope {
	out := append([]events.Envelope{}, c.ledger.Events()...)
	return append(out, c.extra...)
}

// update roda fn numa transação de escrita e retorna os eventos a publicar
func (c *Contract) update(ctx context.Context, op string, fn func(ctx context.Context, cl *call) error) ([]events.Envelope, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var staged []events.Envelope
	err := c.store.Update(ctx, func(tx Tx) error {
		cl := &call{tx: tx, ledger: ledger.New(tx)}
		if err := fn(ctx, cl); err != nil {
			return err
		}
		staged = cl.staged()
		return nil
	})
	if err != nil {
		if c.OnError != nil {
			c.OnError(op)
		}
		return nil, err
	}
	return staged, nil
}

func (c *Contract) view(ctx context.Context, fn func(ctx context.Context, tx Tx, l *ledger.Ledger) error) error {
	return c.store.View(ctx, func(tx Tx) error {
		return fn(ctx, tx, ledger.New(tx))
	})
}

// publish registra cada evento no log e repassa ao sink
func (c *Contract) publish(ctx context.Context, evs []events.Envelope) {
	if len(evs) == 0 {
		return
	}
	for _, ev := range evs {
		c.log.Info(ev.String())
	}
	if c.sink == nil {
		return
	}
	if err := c.sink.Publish(ctx, evs); err != nil {
		c.log.Error("publish events", zap.Int("count", len(evs)), zap.Error(err))
		if c.OnError != nil {
			c.OnError("publish")
		}
	}
}

// Init cria o supply inicial na conta reserva e zera o contador de apostas
func (c *Contract) Init(ctx context.Context, p InitParams) error {
	if err := p.Metadata.Validate(); err != nil {
		return err
	}
	for _, id := range []ledger.AccountID{p.ReserveID, p.OperatorID} {
		if err := id.Validate(); err != nil {
			return err
		}
	}
	if err := ledger.ValidateAmount(p.TotalSupply); err != nil {
		return err
	}

	staged, err := c.update(ctx, "init", func(ctx context.Context, cl *call) error {
		_, err := cl.tx.State(ctx)
		if err == nil {
			return ErrAlreadyInitialized
		}
		if !errors.Is(err, ErrNotInitialized) {
			return err
		}
		if err := cl.ledger.Mint(ctx, p.ReserveID, p.TotalSupply, initialMintMemo); err != nil {
			return err
		}
		return cl.tx.PutState(ctx, State{
			ReserveID:  p.ReserveID,
			OperatorID: p.OperatorID,
			AgentName:  p.AgentName,
			Metadata:   p.Metadata,
		})
	})
	if err != nil {
		return err
	}
	c.publish(ctx, staged)
	c.log.Info("ledger initialized",
		zap.String("reserve_id", p.ReserveID.String()),
		zap.String("operator_id", p.OperatorID.String()),
		zap.String("total_supply", p.TotalSupply.String()),
	)
	return nil
}

// Initiate trata uma transferência de sender para receiver.
// Se receiver não cobre amount, a transferência é imediata.
// Caso contrário vira aposta: o Request é gravado, o contador avança
// e só depois do commit o árbitro é notificado.
func (c *Contract) Initiate(ctx context.Context, sender, receiver ledger.AccountID, amount ledger.Amount, memo string) (Initiation, error) {
	if err := ledger.ValidateAmount(amount); err != nil || !amount.IsPositive() {
		return Initiation{}, fmt.Errorf("%w: %s", ErrInvalidAmount, amount.String())
	}
	if sender == receiver {
		return Initiation{}, ErrSelfTransfer
	}

	var res Initiation
	staged, err := c.update(ctx, "initiate", func(ctx context.Context, cl *call) error {
		st, err := cl.tx.State(ctx)
		if err != nil {
			return err
		}
		if receiver == st.ReserveID {
			return ErrVaultReceiver
		}
		if err := receiver.Validate(); err != nil {
			return err
		}

		bal, err := cl.ledger.BalanceOf(ctx, receiver)
		if err != nil {
			return err
		}
		if bal.LessThan(amount) {
			if _, err := cl.ledger.EnsureRegistered(ctx, receiver); err != nil {
				return err
			}
			if err := cl.ledger.Transfer(ctx, sender, receiver, amount, memo); err != nil {
				return err
			}
			res = Initiation{Kind: KindTransferred}
			return nil
		}

		if st.NumRequests == math.MaxUint64 {
			return ErrCounterExhausted
		}
		id := RequestID(st.NumRequests)
		h, err := c.bridge.Create(id)
		if err != nil {
			return err
		}
		if err := cl.tx.PutRequest(ctx, id, Request{
			DataID:     h,
			Amount:     amount,
			SenderID:   sender,
			ReceiverID: receiver,
		}); err != nil {
			return err
		}
		st.NumRequests++
		if err := cl.tx.PutState(ctx, st); err != nil {
			return err
		}

		msg, err := json.Marshal(events.WagerParties{SenderID: sender.String(), ReceiverID: receiver.String()})
		if err != nil {
			return err
		}
		rid := uint64(id)
		cl.emit(events.NewRunAgent(events.RunAgent{Agent: st.AgentName, Message: string(msg), RequestID: &rid}))

		res = Initiation{Kind: KindPending, RequestID: id, Handle: h}
		return nil
	})
	if err != nil {
		return Initiation{}, err
	}

	if res.Suspended() {
		c.bridge.Suspend(res.Handle, res.RequestID)
		if c.OnWager != nil {
			c.OnWager()
		}
		c.log.Info("wager suspended",
			zap.Uint64("request_id", uint64(res.RequestID)),
			zap.String("sender_id", sender.String()),
			zap.String("receiver_id", receiver.String()),
			zap.String("amount", amount.String()),
		)
	} else if c.OnGift != nil {
		c.OnGift()
	}
	c.publish(ctx, staged)
	return res, nil
}

// Respond grava o veredito do árbitro e agenda a retomada da aposta.
// Só o operador pode chamar; não move saldo.
func (c *Contract) Respond(ctx context.Context, caller ledger.AccountID, h Handle, id RequestID, resp Response) error {
	_, err := c.update(ctx, "respond", func(ctx context.Context, cl *call) error {
		if err := c.assertOperator(ctx, cl.tx, caller); err != nil {
			return err
		}
		req, ok, err := cl.tx.Request(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %d", ErrRequestNotFound, id)
		}
		if req.DataID != h {
			return fmt.Errorf("%w: %d", ErrHandleMismatch, id)
		}
		return cl.tx.PutResponse(ctx, id, resp)
	})
	if err != nil {
		return err
	}
	if c.OnRespond != nil {
		c.OnRespond()
	}
	c.log.Info("verdict recorded", zap.Uint64("request_id", uint64(id)), zap.Bool("ok", resp.OK))
	c.bridge.Resume(h, id)
	return nil
}

// Settle é a continuação de uma aposta suspensa. Consome a resposta e o
// request na mesma transação da transferência do perdedor para o vencedor.
// Só é chamado pela Bridge.
func (c *Contract) Settle(ctx context.Context, id RequestID) (Settlement, error) {
	var out Settlement
	staged, err := c.update(ctx, "settle", func(ctx context.Context, cl *call) error {
		resp, ok, err := cl.tx.Response(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w for %d", ErrResponseMissing, id)
		}
		req, ok, err := cl.tx.Request(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %d", ErrRequestNotFound, id)
		}

		verdict, err := ParseVerdict(resp.Data)
		if err != nil {
			return err
		}
		if resp.OK && verdict.Winner != req.ReceiverID && verdict.Winner != req.SenderID {
			return fmt.Errorf("%w: winner %s", ErrUnknownWinner, verdict.Winner)
		}

		if err := cl.tx.DeleteResponse(ctx, id); err != nil {
			return err
		}
		if err := cl.tx.DeleteRequest(ctx, id); err != nil {
			return err
		}

		if resp.OK {
			if verdict.Winner == req.ReceiverID {
				if _, err := cl.ledger.EnsureRegistered(ctx, req.ReceiverID); err != nil {
					return err
				}
				err = cl.ledger.InternalTransfer(ctx, req.SenderID, req.ReceiverID, req.Amount, verdict.Message)
			} else {
				err = cl.ledger.InternalTransfer(ctx, req.ReceiverID, req.SenderID, req.Amount, verdict.Message)
			}
			if err != nil {
				return err
			}
		}

		out = Settlement{RequestID: id, Request: req, Response: resp, Verdict: verdict}
		return nil
	})
	if err != nil {
		if c.OnSettle != nil {
			c.OnSettle(events.SettlementFailed)
		}
		return Settlement{}, err
	}
	if c.OnSettle != nil {
		c.OnSettle(out.Status())
	}
	c.log.Info("wager settled",
		zap.Uint64("request_id", uint64(id)),
		zap.String("status", out.Status()),
		zap.String("winner", out.Verdict.Winner.String()),
	)
	c.publish(ctx, staged)
	return out, nil
}

// Run executa as retomadas agendadas pela Bridge
func (c *Contract) Run(ctx context.Context) error {
	return c.bridge.Run(ctx, c.Settle)
}

// Recover reagenda a liquidação de respostas gravadas e não consumidas,
// por exemplo depois de um restart.
func (c *Contract) Recover(ctx context.Context) (int, error) {
	var jobs []resumption
	err := c.store.View(ctx, func(tx Tx) error {
		ids, err := tx.PendingResponses(ctx)
		if err != nil {
			return err
		}
		for _, id := range ids {
			req, ok, err := tx.Request(ctx, id)
			if err != nil {
				return err
			}
			if ok {
				jobs = append(jobs, resumption{handle: req.DataID, id: id})
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	for _, j := range jobs {
		c.bridge.Resume(j.handle, j.id)
	}
	return len(jobs), nil
}

// Await espera o resultado da aposta suspensa identificada por h
func (c *Contract) Await(ctx context.Context, h Handle) (Outcome, error) {
	return c.bridge.Await(ctx, h)
}

// GetRequest retorna a aposta pendente ou ErrRequestNotFound
func (c *Contract) GetRequest(ctx context.Context, id RequestID) (Request, error) {
	var req Request
	err := c.store.View(ctx, func(tx Tx) error {
		r, ok, err := tx.Request(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %d", ErrRequestNotFound, id)
		}
		req = r
		return nil
	})
	return req, err
}

// RemoveRequest apaga request e resposta sem liquidar.
// A suspensão correspondente, se existir, nunca mais é retomada.
func (c *Contract) RemoveRequest(ctx context.Context, caller ledger.AccountID, id RequestID) error {
	_, err := c.update(ctx, "remove_request", func(ctx context.Context, cl *call) error {
		if err := c.assertOperator(ctx, cl.tx, caller); err != nil {
			return err
		}
		if err := cl.tx.DeleteRequest(ctx, id); err != nil {
			return err
		}
		return cl.tx.DeleteResponse(ctx, id)
	})
	if err != nil {
		return err
	}
	c.log.Warn("request removed by operator", zap.Uint64("request_id", uint64(id)))
	return nil
}

// SetOperatorID troca o operador; privado à conta do ledger
func (c *Contract) SetOperatorID(ctx context.Context, caller, operator ledger.AccountID) error {
	if err := operator.Validate(); err != nil {
		return err
	}
	return c.setState(ctx, "set_operator_id", caller, func(st *State) { st.OperatorID = operator })
}

// SetAgentName troca o nome do agente notificado; privado à conta do ledger
func (c *Contract) SetAgentName(ctx context.Context, caller ledger.AccountID, name string) error {
	return c.setState(ctx, "set_agent_name", caller, func(st *State) { st.AgentName = name })
}

// SetMetadata troca os metadados do token; privado à conta do ledger
func (c *Contract) SetMetadata(ctx context.Context, caller ledger.AccountID, m ledger.Metadata) error {
	if err := m.Validate(); err != nil {
		return err
	}
	return c.setState(ctx, "set_ft_metadata", caller, func(st *State) { st.Metadata = m })
}

func (c *Contract) setState(ctx context.Context, op string, caller ledger.AccountID, mutate func(*State)) error {
	_, err := c.update(ctx, op, func(ctx context.Context, cl *call) error {
		st, err := cl.tx.State(ctx)
		if err != nil {
			return err
		}
		if caller != st.ReserveID {
			return ErrNotSelf
		}
		mutate(&st)
		return cl.tx.PutState(ctx, st)
	})
	return err
}

func (c *Contract) assertOperator(ctx context.Context, tx Tx, caller ledger.AccountID) error {
	st, err := tx.State(ctx)
	if err != nil {
		return err
	}
	if caller != st.OperatorID {
		return ErrNotOperator
	}
	return nil
}

// State retorna a raiz agregada (operador, agente, contador, metadados)
func (c *Contract) State(ctx context.Context) (State, error) {
	var st State
	err := c.store.View(ctx, func(tx Tx) error {
		s, err := tx.State(ctx)
		st = s
		return err
	})
	return st, err
}

func (c *Contract) Metadata(ctx context.Context) (ledger.Metadata, error) {
	st, err := c.State(ctx)
	return st.Metadata, err
}

func (c *Contract) BalanceOf(ctx context.Context, id ledger.AccountID) (ledger.Amount, error) {
	var bal ledger.Amount
	err := c.view(ctx, func(ctx context.Context, _ Tx, l *ledger.Ledger) error {
		b, err := l.BalanceOf(ctx, id)
		bal = b
		return err
	})
	return bal, err
}

func (c *Contract) TotalSupply(ctx context.Context) (ledger.Amount, error) {
	var supply ledger.Amount
	err := c.view(ctx, func(ctx context.Context, _ Tx, l *ledger.Ledger) error {
		s, err := l.TotalSupply(ctx)
		supply = s
		return err
	})
	return supply, err
}

func (c *Contract) StorageBalanceBounds() ledger.StorageBalanceBounds { return c.bounds }

func (c *Contract) StorageBalanceOf(ctx context.Context, id ledger.AccountID) (*ledger.StorageBalance, error) {
	var sb *ledger.StorageBalance
	err := c.view(ctx, func(ctx context.Context, _ Tx, l *ledger.Ledger) error {
		b, err := l.StorageBalanceOf(ctx, id, c.bounds)
		sb = b
		return err
	})
	return sb, err
}

// StorageDeposit registra account (ou o próprio chamador quando vazio)
func (c *Contract) StorageDeposit(ctx context.Context, caller, account ledger.AccountID) (ledger.StorageBalance, error) {
	if account == "" {
		account = caller
	}
	var sb ledger.StorageBalance
	_, err := c.update(ctx, "storage_deposit", func(ctx context.Context, cl *call) error {
		b, err := cl.ledger.StorageDeposit(ctx, account, c.bounds)
		sb = b
		return err
	})
	return sb, err
}

// StorageWithdraw e StorageUnregister não são suportados por este ledger
func (c *Contract) StorageWithdraw(context.Context) error { return ledger.ErrNotAvailable }

func (c *Contract) StorageUnregister(context.Context) error { return ledger.ErrNotAvailable }
