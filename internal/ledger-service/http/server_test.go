package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/wager-ledger-poc/internal/ledger"
	"github.com/radieske/wager-ledger-poc/internal/ledger-service/dto"
	"github.com/radieske/wager-ledger-poc/internal/ledger-service/repo"
	"github.com/radieske/wager-ledger-poc/internal/shared/auth"
	"github.com/radieske/wager-ledger-poc/internal/wager"
	"github.com/radieske/wager-ledger-poc/pkg/contracts/events"
)

type testAPI struct {
	t      *testing.T
	srv    *httptest.Server
	signer *auth.Signer
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	store, err := repo.OpenBadger("", zap.NewNop())
	require.NoError(t, err)
	bridge := wager.NewBridge(zap.NewNop(), 5*time.Second, time.Minute, 16)
	c := wager.New(zap.NewNop(), store, bridge, nil, ledger.NewStorageBounds(ledger.NewAmount(125)))
	require.NoError(t, c.Init(ctx, wager.InitParams{
		TotalSupply: ledger.NewAmount(1000),
		Metadata:    ledger.Metadata{Spec: ledger.FTMetadataSpec, Name: "Wager Token", Symbol: "WGR"},
		AgentName:   "arbiter.poc",
		OperatorID:  "operator.poc",
		ReserveID:   "ledger.poc",
	}))
	go func() { _ = c.Run(ctx) }()

	signer := auth.NewSigner("test-secret", time.Hour)
	srv := httptest.NewServer(NewServer(zap.NewNop(), c, nil, signer, nil).Router())
	t.Cleanup(func() {
		srv.Close()
		cancel()
		_ = store.Close()
	})
	return &testAPI{t: t, srv: srv, signer: signer}
}

func (a *testAPI) do(method, path, as string, body any) *http.Response {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, a.srv.URL+path, &buf)
	require.NoError(a.t, err)
	if as != "" {
		tok, err := a.signer.Issue(as)
		require.NoError(a.t, err)
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(a.t, err)
	a.t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func (a *testAPI) balance(account string) string {
	a.t.Helper()
	resp := a.do(http.MethodGet, "/ft_balance_of?account_id="+account, "", nil)
	require.Equal(a.t, http.StatusOK, resp.StatusCode)
	return decode[string](a.t, resp)
}

func TestTransferRequiresToken(t *testing.T) {
	api := newTestAPI(t)
	resp := api.do(http.MethodPost, "/ft_transfer", "", dto.TransferRequest{ReceiverID: "bob.poc", Amount: "1"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestTransferImmediate(t *testing.T) {
	api := newTestAPI(t)

	resp := api.do(http.MethodPost, "/ft_transfer", "ledger.poc", dto.TransferRequest{ReceiverID: "bob.poc", Amount: "500"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decode[dto.TransferResponse](t, resp)
	assert.Equal(t, wager.KindTransferred, out.Status)
	assert.Nil(t, out.RequestID)

	assert.Equal(t, "500", api.balance("bob.poc"))
	assert.Equal(t, "500", api.balance("ledger.poc"))
}

func TestWagerFlowOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	api.do(http.MethodPost, "/ft_transfer", "ledger.poc", dto.TransferRequest{ReceiverID: "bob.poc", Amount: "500"})
	api.do(http.MethodPost, "/ft_transfer", "ledger.poc", dto.TransferRequest{ReceiverID: "alice.poc", Amount: "200"})

	resp := api.do(http.MethodPost, "/ft_transfer", "alice.poc", dto.TransferRequest{ReceiverID: "bob.poc", Amount: "100"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	pending := decode[dto.TransferResponse](t, resp)
	require.NotNil(t, pending.RequestID)
	assert.Equal(t, uint64(0), *pending.RequestID)
	assert.Equal(t, wager.KindPending, pending.Status)

	resp = api.do(http.MethodGet, "/requests/0", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	req := decode[dto.RequestResponse](t, resp)
	assert.Equal(t, pending.DataID, req.DataID)
	assert.Equal(t, ledger.AccountID("alice.poc"), req.SenderID)

	resp = api.do(http.MethodGet, "/requests/0/outcome", "", nil)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	data := `{"message":"bob called it","winner":"bob.poc"}`
	body := dto.RespondRequest{DataID: pending.DataID, RequestID: 0, Response: wager.Response{OK: true, Data: &data}}

	resp = api.do(http.MethodPost, "/respond", "alice.poc", body)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, string(wager.KindAuth), decode[dto.ErrorResponse](t, resp).Kind)

	resp = api.do(http.MethodPost, "/respond", "operator.poc", body)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp = api.do(http.MethodGet, "/requests/0/outcome?wait=5s", "", nil)
	if resp.StatusCode == http.StatusOK {
		got := decode[dto.OutcomeResponse](t, resp)
		require.NotNil(t, got.Outcome)
		assert.Equal(t, events.SettlementSettled, got.Outcome.Status)
		assert.Equal(t, "alice.poc", got.Outcome.Loser)
	} else {
		// liquidada antes da consulta e sem cache: a aposta já não existe
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	}

	require.Eventually(t, func() bool { return api.balance("bob.poc") == "600" }, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, "100", api.balance("alice.poc"))

	resp = api.do(http.MethodGet, "/requests/0", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestFailedSettlementStaysPendingOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	api.do(http.MethodPost, "/ft_transfer", "ledger.poc", dto.TransferRequest{ReceiverID: "bob.poc", Amount: "500"})
	api.do(http.MethodPost, "/ft_transfer", "ledger.poc", dto.TransferRequest{ReceiverID: "alice.poc", Amount: "200"})

	resp := api.do(http.MethodPost, "/ft_transfer", "alice.poc", dto.TransferRequest{ReceiverID: "bob.poc", Amount: "100"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	pending := decode[dto.TransferResponse](t, resp)

	bad := `{"message":"carol called it","winner":"carol.poc"}`
	resp = api.do(http.MethodPost, "/respond", "operator.poc", dto.RespondRequest{DataID: pending.DataID, RequestID: 0, Response: wager.Response{OK: true, Data: &bad}})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	require.Eventually(t, func() bool {
		resp := api.do(http.MethodGet, "/requests/0/outcome?wait=1s", "", nil)
		if resp.StatusCode != http.StatusAccepted {
			return false
		}
		got := decode[dto.OutcomeResponse](t, resp)
		return got.Status == wager.KindPending && got.Outcome != nil && got.Outcome.Status == events.SettlementFailed
	}, 5*time.Second, 20*time.Millisecond)

	resp = api.do(http.MethodGet, "/requests/0", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	good := `{"message":"bob called it","winner":"bob.poc"}`
	resp = api.do(http.MethodPost, "/respond", "operator.poc", dto.RespondRequest{DataID: pending.DataID, RequestID: 0, Response: wager.Response{OK: true, Data: &good}})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	require.Eventually(t, func() bool { return api.balance("bob.poc") == "600" }, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, "100", api.balance("alice.poc"))
}

func TestTransferWithWait(t *testing.T) {
	api := newTestAPI(t)
	api.do(http.MethodPost, "/ft_transfer", "ledger.poc", dto.TransferRequest{ReceiverID: "bob.poc", Amount: "500"})

	resp := api.do(http.MethodPost, "/ft_transfer?wait=50ms", "alice.poc", dto.TransferRequest{ReceiverID: "bob.poc", Amount: "100"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	out := decode[dto.TransferResponse](t, resp)
	assert.Equal(t, wager.KindPending, out.Status)
	assert.Nil(t, out.Outcome)

	resp = api.do(http.MethodPost, "/ft_transfer?wait=forever", "alice.poc", dto.TransferRequest{ReceiverID: "bob.poc", Amount: "100"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestErrorMapping(t *testing.T) {
	api := newTestAPI(t)

	tests := []struct {
		name   string
		method string
		path   string
		as     string
		body   any
		want   int
	}{
		{"reserve as receiver", http.MethodPost, "/ft_transfer", "alice.poc", dto.TransferRequest{ReceiverID: "ledger.poc", Amount: "1"}, http.StatusBadRequest},
		{"bad amount", http.MethodPost, "/ft_transfer", "alice.poc", dto.TransferRequest{ReceiverID: "bob.poc", Amount: "1.5"}, http.StatusBadRequest},
		{"sender without balance", http.MethodPost, "/ft_transfer", "alice.poc", dto.TransferRequest{ReceiverID: "bob.poc", Amount: "1"}, http.StatusConflict},
		{"unknown request", http.MethodGet, "/requests/9", "", nil, http.StatusNotFound},
		{"bad request id", http.MethodGet, "/requests/abc", "", nil, http.StatusBadRequest},
		{"respond unknown", http.MethodPost, "/respond", "operator.poc", dto.RespondRequest{DataID: wager.Handle{}.String(), RequestID: 9}, http.StatusNotFound},
		{"respond bad handle", http.MethodPost, "/respond", "operator.poc", dto.RespondRequest{DataID: "zz"}, http.StatusBadRequest},
		{"remove not operator", http.MethodDelete, "/requests/0", "alice.poc", nil, http.StatusForbidden},
		{"storage withdraw", http.MethodPost, "/storage_withdraw", "alice.poc", nil, http.StatusBadRequest},
		{"setter not self", http.MethodPut, "/admin/agent", "operator.poc", dto.SetAgentRequest{AgentName: "x"}, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := api.do(tt.method, tt.path, tt.as, tt.body)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestQueriesAndStorage(t *testing.T) {
	api := newTestAPI(t)

	resp := api.do(http.MethodGet, "/ft_total_supply", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "1000", decode[string](t, resp))

	resp = api.do(http.MethodGet, "/ft_metadata", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "WGR", decode[ledger.Metadata](t, resp).Symbol)

	resp = api.do(http.MethodGet, "/storage_balance_of?account_id=carol.poc", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Nil(t, decode[*ledger.StorageBalance](t, resp))

	resp = api.do(http.MethodPost, "/storage_deposit", "carol.poc", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = api.do(http.MethodGet, "/storage_balance_of?account_id=carol.poc", "", nil)
	sb := decode[*ledger.StorageBalance](t, resp)
	require.NotNil(t, sb)
	assert.Equal(t, "125", sb.Total.String())

	resp = api.do(http.MethodGet, "/storage_balance_bounds", "", nil)
	bounds := decode[ledger.StorageBalanceBounds](t, resp)
	assert.Equal(t, "125", bounds.Min.String())

	resp = api.do(http.MethodPut, "/admin/agent", "ledger.poc", dto.SetAgentRequest{AgentName: "arbiter-v2.poc"})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}
