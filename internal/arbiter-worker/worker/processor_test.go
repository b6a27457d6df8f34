package worker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/wager-ledger-poc/internal/arbiter-worker/agent"
	wdto "github.com/radieske/wager-ledger-poc/internal/arbiter-worker/dto"
	"github.com/radieske/wager-ledger-poc/internal/arbiter-worker/ledgerclient"
	"github.com/radieske/wager-ledger-poc/pkg/contracts/events"
)

const dataID = "8d7f0c2a6e1b4d3f9a5c7e0b2d4f6a8c1e3b5d7f9a0c2e4b6d8f0a1c3e5b7d9f"

type fakeLedger struct {
	getStatus     int
	respondStatus int

	mu        sync.Mutex
	responded []wdto.RespondReq
	tokens    []string
}

func (f *fakeLedger) server(t *testing.T) *httptest.Server {
	r := chi.NewRouter()
	r.Get("/requests/{id}", func(w http.ResponseWriter, r *http.Request) {
		if f.getStatus != 0 {
			w.WriteHeader(f.getStatus)
			return
		}
		_ = json.NewEncoder(w).Encode(wdto.PendingRequest{
			RequestID: 7, DataID: dataID, Amount: "100", SenderID: "alice.poc", ReceiverID: "bob.poc",
		})
	})
	r.Post("/respond", func(w http.ResponseWriter, r *http.Request) {
		var in wdto.RespondReq
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		f.mu.Lock()
		f.responded = append(f.responded, in)
		f.tokens = append(f.tokens, r.Header.Get("Authorization"))
		f.mu.Unlock()
		if f.respondStatus != 0 {
			w.WriteHeader(f.respondStatus)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

type captureWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
}

func (c *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msgs...)
	return nil
}

func agentServer(t *testing.T, status int, calls *atomic.Int32) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var in wdto.AgentRunReq
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, uint64(7), in.RequestID)
		assert.Equal(t, "arbiter.poc", in.Agent)
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		data := `{"message":"bob wins","winner":"bob.poc"}`
		_ = json.NewEncoder(w).Encode(wdto.AgentRunResp{OK: true, Data: &data})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newProcessor(ledgerURL, agentURL string, dlq Writer) *Processor {
	return &Processor{
		Log:      zap.NewNop(),
		Agent:    agent.New(agentURL),
		Ledger:   ledgerclient.New(ledgerURL, func() (string, error) { return "op-token", nil }),
		DLQ:      dlq,
		DLQTopic: "wager_requested_dlq",
		Retries:  2,
		Backoff:  time.Millisecond,
	}
}

func runAgent() events.RunAgent {
	id := uint64(7)
	return events.RunAgent{
		Agent:     "arbiter.poc",
		Message:   `{"sender_id":"alice.poc","receiver_id":"bob.poc"}`,
		RequestID: &id,
	}
}

func TestHandleRecordsVerdict(t *testing.T) {
	fl := &fakeLedger{}
	var calls atomic.Int32
	dlq := &captureWriter{}
	p := newProcessor(fl.server(t).URL, agentServer(t, http.StatusOK, &calls).URL, dlq)

	var oks []bool
	p.OnResponded = func(ok bool) { oks = append(oks, ok) }

	require.NoError(t, p.Handle(context.Background(), runAgent()))

	require.Len(t, fl.responded, 1)
	got := fl.responded[0]
	assert.Equal(t, dataID, got.DataID)
	assert.Equal(t, uint64(7), got.RequestID)
	assert.True(t, got.Response.OK)
	assert.JSONEq(t, `{"message":"bob wins","winner":"bob.poc"}`, *got.Response.Data)
	assert.Equal(t, "Bearer op-token", fl.tokens[0])
	assert.Equal(t, []bool{true}, oks)
	assert.Empty(t, dlq.msgs)
}

func TestHandleSkipsRemovedRequest(t *testing.T) {
	fl := &fakeLedger{getStatus: http.StatusNotFound}
	var calls atomic.Int32
	dlq := &captureWriter{}
	p := newProcessor(fl.server(t).URL, agentServer(t, http.StatusOK, &calls).URL, dlq)

	skipped := 0
	p.OnSkipped = func() { skipped++ }

	require.NoError(t, p.Handle(context.Background(), runAgent()))
	assert.Equal(t, 1, skipped)
	assert.Zero(t, calls.Load())
	assert.Empty(t, dlq.msgs)
}

func TestHandleRetriesThenDeadLetters(t *testing.T) {
	fl := &fakeLedger{}
	var calls atomic.Int32
	dlq := &captureWriter{}
	p := newProcessor(fl.server(t).URL, agentServer(t, http.StatusBadGateway, &calls).URL, dlq)

	var stages []string
	p.OnError = func(s string) { stages = append(stages, s) }

	require.Error(t, p.Handle(context.Background(), runAgent()))
	assert.Equal(t, int32(3), calls.Load())
	assert.Empty(t, fl.responded)
	assert.Equal(t, []string{"respond"}, stages)

	require.Len(t, dlq.msgs, 1)
	assert.Equal(t, "wager_requested_dlq", dlq.msgs[0].Topic)
	assert.Equal(t, "7", string(dlq.msgs[0].Key))
	var dl wdto.DeadLetter
	require.NoError(t, json.Unmarshal(dlq.msgs[0].Value, &dl))
	assert.Equal(t, 3, dl.Attempts)
	assert.Contains(t, dl.Reason, "agent")
}

func TestHandleRejectedIsNotRetried(t *testing.T) {
	fl := &fakeLedger{respondStatus: http.StatusForbidden}
	var calls atomic.Int32
	dlq := &captureWriter{}
	p := newProcessor(fl.server(t).URL, agentServer(t, http.StatusOK, &calls).URL, dlq)

	err := p.Handle(context.Background(), runAgent())
	require.ErrorIs(t, err, ledgerclient.ErrRejected)
	assert.Equal(t, int32(1), calls.Load())
	require.Len(t, dlq.msgs, 1)
}

func TestHandleWithoutRequestID(t *testing.T) {
	p := newProcessor("http://127.0.0.1:1", "http://127.0.0.1:1", nil)
	run := runAgent()
	run.RequestID = nil
	assert.Error(t, p.Handle(context.Background(), run))
}

type chanReader struct{ ch chan kafka.Message }

func (r chanReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case m := <-r.ch:
		return m, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func TestRunConsumesRunAgentEvents(t *testing.T) {
	fl := &fakeLedger{}
	var calls atomic.Int32
	p := newProcessor(fl.server(t).URL, agentServer(t, http.StatusOK, &calls).URL, nil)

	ch := make(chan kafka.Message, 3)
	p.Reader = chanReader{ch: ch}
	var consumed atomic.Int32
	p.OnConsumed = func() { consumed.Add(1) }

	ev, err := json.Marshal(events.NewRunAgent(runAgent()))
	require.NoError(t, err)
	ch <- kafka.Message{Value: []byte("not json")}
	ch <- kafka.Message{Value: []byte(`{"standard":"nep141","version":"1.0.0","event":"ft_transfer","data":[]}`)}
	ch <- kafka.Message{Key: []byte("7"), Value: ev}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool {
		fl.mu.Lock()
		defer fl.mu.Unlock()
		return len(fl.responded) == 1
	}, 2*time.Second, 10*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, int32(3), consumed.Load())
	assert.Equal(t, int32(1), calls.Load())
}
