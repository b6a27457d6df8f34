package agent

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	sdto "github.com/radieske/wager-ledger-poc/internal/arbiter-simulator/dto"
	"github.com/radieske/wager-ledger-poc/internal/wager"
)

func run(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/agent/run", bytes.NewBufferString(body)))
	return rec
}

func TestVerdictPicksOneOfTheParties(t *testing.T) {
	h := NewHandler(zap.NewNop(), 0, 42)
	body := `{"request_id":3,"agent":"arbiter.poc","message":"{\"sender_id\":\"alice.poc\",\"receiver_id\":\"bob.poc\"}"}`

	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		rec := run(t, h, body)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp sdto.RunResp
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.True(t, resp.OK)
		require.NotNil(t, resp.Signature)

		v, err := wager.ParseVerdict(resp.Data)
		require.NoError(t, err)
		assert.Contains(t, []string{"alice.poc", "bob.poc"}, v.Winner.String())
		seen[v.Winner.String()] = true
	}
	assert.Len(t, seen, 2)
}

func TestVoidRate(t *testing.T) {
	h := NewHandler(zap.NewNop(), 100, 1)
	var oks []bool
	h.OnVerdict = func(ok bool) { oks = append(oks, ok) }

	rec := run(t, h, `{"request_id":0,"agent":"a","message":"{\"sender_id\":\"a.poc\",\"receiver_id\":\"b.poc\"}"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp sdto.RunResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.OK)
	assert.Nil(t, resp.Signature)
	_, err := wager.ParseVerdict(resp.Data)
	assert.NoError(t, err)
	assert.Equal(t, []bool{false}, oks)
}

func TestBadInput(t *testing.T) {
	h := NewHandler(zap.NewNop(), 10, 1)
	assert.Equal(t, http.StatusBadRequest, run(t, h, `{`).Code)
	assert.Equal(t, http.StatusBadRequest, run(t, h, `{"request_id":1,"message":"{}"}`).Code)
}
