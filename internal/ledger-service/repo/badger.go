package repo

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/timshannon/badgerhold/v4"
	"go.uber.org/zap"

	"github.com/radieske/wager-ledger-poc/internal/ledger"
	"github.com/radieske/wager-ledger-poc/internal/wager"
)

const (
	stateKey           = "state"
	supplyKey          = "supply"
	maxConflictRetries = 5
)

type accountRecord struct {
	ID      string
	Balance ledger.Amount
}

type supplyRecord struct {
	Amount ledger.Amount
}

type requestRecord struct {
	RequestID uint64
	Request   wager.Request
}

type responseRecord struct {
	RequestID uint64
	Response  wager.Response
}

// Badger implementa o Store do contrato sobre badgerhold.
// Diretório vazio abre o banco em memória (usado nos testes).
type Badger struct {
	store *badgerhold.Store
	stop  chan struct{}
}

func OpenBadger(dir string, log *zap.Logger) (*Badger, error) {
	inMemory := dir == ""

	opts := badger.DefaultOptions(dir)
	opts.Logger = badgerLogger{log.Sugar()}
	if inMemory {
		opts.InMemory = true
	} else {
		opts.Compression = options.ZSTD
	}

	st, err := badgerhold.Open(badgerhold.Options{
		Encoder:          badgerhold.DefaultEncode,
		Decoder:          badgerhold.DefaultDecode,
		SequenceBandwith: 100,
		Options:          opts,
	})
	if err != nil {
		return nil, err
	}

	b := &Badger{store: st, stop: make(chan struct{})}
	if !inMemory {
		go b.gc(log)
	}
	return b, nil
}

// gc roda a coleta do value log periodicamente
func (b *Badger) gc(log *zap.Logger) {
	ticker := time.NewTicker(30 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-b.stop:
			return
		case <-ticker.C:
			if err := b.store.Badger().RunValueLogGC(0.5); err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				log.Warn("badger value log gc", zap.Error(err))
			}
		}
	}
}

// Update reexecuta fn em caso de conflito de transação
func (b *Badger) Update(ctx context.Context, fn func(tx wager.Tx) error) error {
	var err error
	for attempt := 0; attempt <= maxConflictRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err = b.store.Badger().Update(func(txn *badger.Txn) error {
			return fn(&badgerTx{store: b.store, txn: txn})
		})
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

func (b *Badger) View(ctx context.Context, fn func(tx wager.Tx) error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return b.store.Badger().View(func(txn *badger.Txn) error {
		return fn(&badgerTx{store: b.store, txn: txn})
	})
}

func (b *Badger) Close() error {
	close(b.stop)
	return b.store.Close()
}

type badgerTx struct {
	store *badgerhold.Store
	txn   *badger.Txn
}

func (t *badgerTx) Balance(_ context.Context, id ledger.AccountID) (ledger.Amount, bool, error) {
	var rec accountRecord
	err := t.store.TxGet(t.txn, string(id), &rec)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return ledger.Zero, false, nil
	}
	if err != nil {
		return ledger.Zero, false, err
	}
	return rec.Balance, true, nil
}

func (t *badgerTx) PutBalance(_ context.Context, id ledger.AccountID, bal ledger.Amount) error {
	return t.store.TxUpsert(t.txn, string(id), accountRecord{ID: string(id), Balance: bal})
}

func (t *badgerTx) Supply(context.Context) (ledger.Amount, error) {
	var rec supplyRecord
	err := t.store.TxGet(t.txn, supplyKey, &rec)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return ledger.Zero, nil
	}
	if err != nil {
		return ledger.Zero, err
	}
	return rec.Amount, nil
}

func (t *badgerTx) PutSupply(_ context.Context, supply ledger.Amount) error {
	return t.store.TxUpsert(t.txn, supplyKey, supplyRecord{Amount: supply})
}

func (t *badgerTx) State(context.Context) (wager.State, error) {
	var st wager.State
	err := t.store.TxGet(t.txn, stateKey, &st)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return wager.State{}, wager.ErrNotInitialized
	}
	return st, err
}

func (t *badgerTx) PutState(_ context.Context, st wager.State) error {
	return t.store.TxUpsert(t.txn, stateKey, st)
}

func (t *badgerTx) Request(_ context.Context, id wager.RequestID) (wager.Request, bool, error) {
	var rec requestRecord
	err := t.store.TxGet(t.txn, uint64(id), &rec)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return wager.Request{}, false, nil
	}
	if err != nil {
		return wager.Request{}, false, err
	}
	return rec.Request, true, nil
}

func (t *badgerTx) PutRequest(_ context.Context, id wager.RequestID, req wager.Request) error {
	return t.store.TxUpsert(t.txn, uint64(id), requestRecord{RequestID: uint64(id), Request: req})
}

// DeleteRequest remove também a resposta, igual ao cascade do Postgres
func (t *badgerTx) DeleteRequest(ctx context.Context, id wager.RequestID) error {
	err := t.store.TxDelete(t.txn, uint64(id), &requestRecord{})
	if err != nil && !errors.Is(err, badgerhold.ErrNotFound) {
		return err
	}
	return t.DeleteResponse(ctx, id)
}

func (t *badgerTx) Response(_ context.Context, id wager.RequestID) (wager.Response, bool, error) {
	var rec responseRecord
	err := t.store.TxGet(t.txn, uint64(id), &rec)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return wager.Response{}, false, nil
	}
	if err != nil {
		return wager.Response{}, false, err
	}
	return rec.Response, true, nil
}

func (t *badgerTx) PutResponse(_ context.Context, id wager.RequestID, resp wager.Response) error {
	return t.store.TxUpsert(t.txn, uint64(id), responseRecord{RequestID: uint64(id), Response: resp})
}

func (t *badgerTx) DeleteResponse(_ context.Context, id wager.RequestID) error {
	err := t.store.TxDelete(t.txn, uint64(id), &responseRecord{})
	if err != nil && !errors.Is(err, badgerhold.ErrNotFound) {
		return err
	}
	return nil
}

func (t *badgerTx) PendingResponses(context.Context) ([]wager.RequestID, error) {
	var recs []responseRecord
	if err := t.store.TxFind(t.txn, &recs, &badgerhold.Query{}); err != nil {
		return nil, err
	}
	ids := make([]wager.RequestID, 0, len(recs))
	for _, r := range recs {
		ids = append(ids, wager.RequestID(r.RequestID))
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// badgerLogger adapta o zap para a interface de log do badger
type badgerLogger struct{ s *zap.SugaredLogger }

func (l badgerLogger) Errorf(f string, v ...interface{})   { l.s.Errorf(f, v...) }
func (l badgerLogger) Warningf(f string, v ...interface{}) { l.s.Warnf(f, v...) }
func (l badgerLogger) Infof(f string, v ...interface{})    { l.s.Debugf(f, v...) }
func (l badgerLogger) Debugf(f string, v ...interface{})   { l.s.Debugf(f, v...) }
