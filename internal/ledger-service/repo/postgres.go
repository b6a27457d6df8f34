package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/radieske/wager-ledger-poc/internal/ledger"
	"github.com/radieske/wager-ledger-poc/internal/wager"
)

// Postgres implementa o Store do contrato em banco
type Postgres struct{ db *sql.DB }

func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

// Update abre uma transação e trava a linha única de ledger_state,
// serializando escritores entre instâncias do serviço
func (p *Postgres) Update(ctx context.Context, fn func(tx wager.Tx) error) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err = tx.ExecContext(ctx, `SELECT id FROM ledger_state WHERE id=1 FOR UPDATE`); err != nil {
		return fmt.Errorf("lock ledger_state: %w", err)
	}

	if err = fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

// View roda fn numa transação somente leitura
func (p *Postgres) View(ctx context.Context, fn func(tx wager.Tx) error) error {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err = fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

func (p *Postgres) Close() error { return p.db.Close() }

// Ping é usado pelo /healthz
func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

type pgTx struct{ tx *sql.Tx }

// ids são NUMERIC(20,0): trafegam como texto para cobrir todo o intervalo u64
func idParam(id wager.RequestID) string { return strconv.FormatUint(uint64(id), 10) }

func (t *pgTx) Balance(ctx context.Context, id ledger.AccountID) (ledger.Amount, bool, error) {
	var bal ledger.Amount
	err := t.tx.QueryRowContext(ctx, `SELECT balance FROM accounts WHERE account_id=$1`, string(id)).Scan(&bal)
	if err == sql.ErrNoRows {
		return ledger.Zero, false, nil
	}
	if err != nil {
		return ledger.Zero, false, err
	}
	return bal, true, nil
}

func (t *pgTx) PutBalance(ctx context.Context, id ledger.AccountID, bal ledger.Amount) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO accounts (account_id, balance) VALUES ($1, $2)
		ON CONFLICT (account_id) DO UPDATE SET balance = EXCLUDED.balance, updated_at = NOW()`,
		string(id), bal)
	return err
}

func (t *pgTx) Supply(ctx context.Context) (ledger.Amount, error) {
	var supply ledger.Amount
	if err := t.tx.QueryRowContext(ctx, `SELECT total_supply FROM ledger_state WHERE id=1`).Scan(&supply); err != nil {
		return ledger.Zero, err
	}
	return supply, nil
}

func (t *pgTx) PutSupply(ctx context.Context, supply ledger.Amount) error {
	_, err := t.tx.ExecContext(ctx, `UPDATE ledger_state SET total_supply=$1, updated_at=NOW() WHERE id=1`, supply)
	return err
}

func (t *pgTx) State(ctx context.Context) (wager.State, error) {
	var (
		st          wager.State
		initialized bool
		reserve     string
		operator    string
		meta        []byte
		num         string
	)
	err := t.tx.QueryRowContext(ctx, `
		SELECT initialized, reserve_id, operator_id, agent_name, metadata, num_requests
		FROM ledger_state WHERE id=1`).Scan(&initialized, &reserve, &operator, &st.AgentName, &meta, &num)
	if err == sql.ErrNoRows || (err == nil && !initialized) {
		return wager.State{}, wager.ErrNotInitialized
	}
	if err != nil {
		return wager.State{}, err
	}
	if err := json.Unmarshal(meta, &st.Metadata); err != nil {
		return wager.State{}, fmt.Errorf("decode metadata: %w", err)
	}
	if st.NumRequests, err = strconv.ParseUint(num, 10, 64); err != nil {
		return wager.State{}, fmt.Errorf("decode num_requests: %w", err)
	}
	st.ReserveID = ledger.AccountID(reserve)
	st.OperatorID = ledger.AccountID(operator)
	return st, nil
}

func (t *pgTx) PutState(ctx context.Context, st wager.State) error {
	meta, err := json.Marshal(st.Metadata)
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(ctx, `
		UPDATE ledger_state
		SET initialized=TRUE, reserve_id=$1, operator_id=$2, agent_name=$3, metadata=$4,
		    num_requests=$5, updated_at=NOW()
		WHERE id=1`,
		string(st.ReserveID), string(st.OperatorID), st.AgentName, string(meta),
		strconv.FormatUint(st.NumRequests, 10))
	return err
}

func (t *pgTx) Request(ctx context.Context, id wager.RequestID) (wager.Request, bool, error) {
	var (
		req      wager.Request
		dataID   []byte
		sender   string
		receiver string
	)
	err := t.tx.QueryRowContext(ctx, `
		SELECT data_id, amount, sender_id, receiver_id
		FROM wager_requests WHERE request_id=$1`, idParam(id)).Scan(&dataID, &req.Amount, &sender, &receiver)
	if err == sql.ErrNoRows {
		return wager.Request{}, false, nil
	}
	if err != nil {
		return wager.Request{}, false, err
	}
	if len(dataID) != len(req.DataID) {
		return wager.Request{}, false, errors.New("stored data_id has wrong size")
	}
	copy(req.DataID[:], dataID)
	req.SenderID = ledger.AccountID(sender)
	req.ReceiverID = ledger.AccountID(receiver)
	return req, true, nil
}

func (t *pgTx) PutRequest(ctx context.Context, id wager.RequestID, req wager.Request) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO wager_requests (request_id, data_id, amount, sender_id, receiver_id)
		VALUES ($1,$2,$3,$4,$5)`,
		idParam(id), req.DataID[:], req.Amount, string(req.SenderID), string(req.ReceiverID))
	return err
}

// DeleteRequest também remove a resposta (ON DELETE CASCADE)
func (t *pgTx) DeleteRequest(ctx context.Context, id wager.RequestID) error {
	_, err := t.tx.ExecContext(ctx, `DELETE FROM wager_requests WHERE request_id=$1`, idParam(id))
	return err
}

func (t *pgTx) Response(ctx context.Context, id wager.RequestID) (wager.Response, bool, error) {
	var (
		resp      wager.Response
		data, sig sql.NullString
	)
	err := t.tx.QueryRowContext(ctx, `
		SELECT ok, data, signature FROM wager_responses WHERE request_id=$1`, idParam(id)).Scan(&resp.OK, &data, &sig)
	if err == sql.ErrNoRows {
		return wager.Response{}, false, nil
	}
	if err != nil {
		return wager.Response{}, false, err
	}
	if data.Valid {
		resp.Data = &data.String
	}
	if sig.Valid {
		resp.Signature = &sig.String
	}
	return resp, true, nil
}

func (t *pgTx) PutResponse(ctx context.Context, id wager.RequestID, resp wager.Response) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO wager_responses (request_id, ok, data, signature) VALUES ($1,$2,$3,$4)
		ON CONFLICT (request_id) DO UPDATE SET
		  ok = EXCLUDED.ok,
		  data = EXCLUDED.data,
		  signature = EXCLUDED.signature,
		  updated_at = NOW()`,
		idParam(id), resp.OK, nullString(resp.Data), nullString(resp.Signature))
	return err
}

func (t *pgTx) DeleteResponse(ctx context.Context, id wager.RequestID) error {
	_, err := t.tx.ExecContext(ctx, `DELETE FROM wager_responses WHERE request_id=$1`, idParam(id))
	return err
}

func (t *pgTx) PendingResponses(ctx context.Context) ([]wager.RequestID, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT request_id FROM wager_responses ORDER BY request_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []wager.RequestID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		id, err := wager.ParseRequestID(raw)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
