package agent

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"sync"

	"go.uber.org/zap"

	sdto "github.com/radieske/wager-ledger-poc/internal/arbiter-simulator/dto"
	"github.com/radieske/wager-ledger-poc/pkg/contracts/events"
)

// Handler é o agente de arbitragem mock: sorteia o vencedor entre as duas
// partes e anula uma fração das apostas (ok=false)
type Handler struct {
	log      *zap.Logger
	voidRate int // percentual de ok=false

	mu  sync.Mutex
	rnd *rand.Rand

	OnVerdict func(ok bool)
}

func NewHandler(log *zap.Logger, voidRate int, seed int64) *Handler {
	return &Handler{log: log, voidRate: voidRate, rnd: rand.New(rand.NewSource(seed))}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var req sdto.RunReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	var parties events.WagerParties
	if err := json.Unmarshal([]byte(req.Message), &parties); err != nil || parties.SenderID == "" || parties.ReceiverID == "" {
		http.Error(w, "bad message", http.StatusBadRequest)
		return
	}

	resp := h.decide(req, parties)
	h.log.Info("verdict",
		zap.Uint64("request_id", req.RequestID),
		zap.Bool("ok", resp.OK),
		zap.Stringp("data", resp.Data),
	)
	if h.OnVerdict != nil {
		h.OnVerdict(resp.OK)
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (h *Handler) decide(req sdto.RunReq, p events.WagerParties) sdto.RunResp {
	h.mu.Lock()
	void := h.rnd.Intn(100) < h.voidRate
	senderWins := h.rnd.Intn(2) == 0
	h.mu.Unlock()

	// o ledger valida o veredito mesmo quando ok=false
	if void {
		data := mustJSON(map[string]string{"message": sdto.ReasonVoided, "winner": p.ReceiverID})
		return sdto.RunResp{OK: false, Data: &data}
	}

	winner := p.ReceiverID
	if senderWins {
		winner = p.SenderID
	}
	data := mustJSON(map[string]string{
		"message": fmt.Sprintf("request %d decided by %s", req.RequestID, req.Agent),
		"winner":  winner,
	})
	sum := sha256.Sum256([]byte(data))
	sig := hex.EncodeToString(sum[:])
	return sdto.RunResp{OK: true, Data: &data, Signature: &sig}
}

func mustJSON(v any) string {
	b, _ := json.Marshal(v)
	return string(b)
}
