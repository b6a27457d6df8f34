package repo

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/wager-ledger-poc/internal/ledger"
	"github.com/radieske/wager-ledger-poc/internal/wager"
)

func openTestBadger(t *testing.T) *Badger {
	t.Helper()
	b, err := OpenBadger("", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestBadgerStateRequiresInit(t *testing.T) {
	b := openTestBadger(t)
	ctx := context.Background()

	err := b.View(ctx, func(tx wager.Tx) error {
		_, err := tx.State(ctx)
		return err
	})
	assert.ErrorIs(t, err, wager.ErrNotInitialized)

	require.NoError(t, b.Update(ctx, func(tx wager.Tx) error {
		return tx.PutState(ctx, wager.State{ReserveID: "ledger.poc", OperatorID: "operator.poc", NumRequests: 3})
	}))
	require.NoError(t, b.View(ctx, func(tx wager.Tx) error {
		st, err := tx.State(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(3), st.NumRequests)
		assert.Equal(t, ledger.AccountID("operator.poc"), st.OperatorID)
		return nil
	}))
}

func TestBadgerBalancesAndSupply(t *testing.T) {
	b := openTestBadger(t)
	ctx := context.Background()

	require.NoError(t, b.Update(ctx, func(tx wager.Tx) error {
		if err := tx.PutBalance(ctx, "alice.poc", ledger.NewAmount(42)); err != nil {
			return err
		}
		return tx.PutSupply(ctx, ledger.MaxAmount)
	}))

	require.NoError(t, b.View(ctx, func(tx wager.Tx) error {
		bal, ok, err := tx.Balance(ctx, "alice.poc")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.True(t, bal.Equal(ledger.NewAmount(42)))

		_, ok, err = tx.Balance(ctx, "bob.poc")
		require.NoError(t, err)
		assert.False(t, ok)

		supply, err := tx.Supply(ctx)
		require.NoError(t, err)
		assert.True(t, supply.Equal(ledger.MaxAmount))
		return nil
	}))
}

func TestBadgerUpdateRollsBackOnError(t *testing.T) {
	b := openTestBadger(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := b.Update(ctx, func(tx wager.Tx) error {
		if err := tx.PutBalance(ctx, "alice.poc", ledger.NewAmount(1)); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	require.NoError(t, b.View(ctx, func(tx wager.Tx) error {
		_, ok, err := tx.Balance(ctx, "alice.poc")
		require.NoError(t, err)
		assert.False(t, ok)
		return nil
	}))
}

func TestBadgerRequestsAndResponses(t *testing.T) {
	b := openTestBadger(t)
	ctx := context.Background()
	data := `{"message":"m","winner":"bob.poc"}`

	require.NoError(t, b.Update(ctx, func(tx wager.Tx) error {
		for _, id := range []wager.RequestID{5, 1, 3} {
			req := wager.Request{DataID: wager.Handle{byte(id)}, Amount: ledger.NewAmount(int64(id)), SenderID: "alice.poc", ReceiverID: "bob.poc"}
			if err := tx.PutRequest(ctx, id, req); err != nil {
				return err
			}
			if err := tx.PutResponse(ctx, id, wager.Response{OK: true, Data: &data}); err != nil {
				return err
			}
		}
		return nil
	}))

	require.NoError(t, b.Update(ctx, func(tx wager.Tx) error {
		ids, err := tx.PendingResponses(ctx)
		require.NoError(t, err)
		assert.Equal(t, []wager.RequestID{1, 3, 5}, ids)

		req, ok, err := tx.Request(ctx, 3)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, wager.Handle{3}, req.DataID)

		resp, ok, err := tx.Response(ctx, 3)
		require.NoError(t, err)
		require.True(t, ok)
		require.NotNil(t, resp.Data)
		assert.Equal(t, data, *resp.Data)
		assert.Nil(t, resp.Signature)

		// apagar o request leva a resposta junto
		require.NoError(t, tx.DeleteRequest(ctx, 3))
		// apagar o que não existe não é erro
		require.NoError(t, tx.DeleteRequest(ctx, 99))
		require.NoError(t, tx.DeleteResponse(ctx, 99))
		return nil
	}))

	require.NoError(t, b.View(ctx, func(tx wager.Tx) error {
		_, ok, err := tx.Response(ctx, 3)
		require.NoError(t, err)
		assert.False(t, ok)
		ids, err := tx.PendingResponses(ctx)
		require.NoError(t, err)
		assert.Equal(t, []wager.RequestID{1, 5}, ids)
		return nil
	}))
}
