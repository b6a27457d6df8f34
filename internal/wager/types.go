package wager

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/radieske/wager-ledger-poc/internal/ledger"
	"github.com/radieske/wager-ledger-poc/pkg/contracts/events"
)

// RequestID identifica uma aposta pendente, do início até a liquidação
type RequestID uint64

func (id RequestID) String() string { return strconv.FormatUint(uint64(id), 10) }

// ParseRequestID converte a forma decimal usada nas rotas HTTP
func ParseRequestID(s string) (RequestID, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid request id %q: %w", s, err)
	}
	return RequestID(v), nil
}

// Handle é o token opaco que liga uma chamada suspensa à sua retomada.
// É emitido uma única vez pela Bridge e persistido sem alteração.
type Handle [32]byte

func (h Handle) String() string { return hex.EncodeToString(h[:]) }

func (h Handle) MarshalText() ([]byte, error) { return []byte(h.String()), nil }

func (h *Handle) UnmarshalText(b []byte) error {
	parsed, err := ParseHandle(string(b))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// ParseHandle aceita a forma hexadecimal de 64 caracteres
func ParseHandle(s string) (Handle, error) {
	var h Handle
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != len(h) {
		return h, fmt.Errorf("invalid data_id %q", s)
	}
	copy(h[:], raw)
	return h, nil
}

// Request é a aposta pendente guardada até a chegada do veredito
type Request struct {
	DataID     Handle           `json:"data_id"`
	Amount     ledger.Amount    `json:"amount"`
	SenderID   ledger.AccountID `json:"sender_id"`
	ReceiverID ledger.AccountID `json:"receiver_id"`
}

// Response é o que o operador registra para uma aposta.
// Uma resposta nova sobrescreve a anterior enquanto não houver retomada.
type Response struct {
	OK        bool    `json:"ok"`
	Data      *string `json:"data,omitempty"`
	Signature *string `json:"signature,omitempty"`
}

// Verdict é o conteúdo de Response.Data
type Verdict struct {
	Message string           `json:"message"`
	Winner  ledger.AccountID `json:"winner"`
}

// ParseVerdict exige os dois campos; data ausente equivale a string vazia
func ParseVerdict(data *string) (Verdict, error) {
	var raw struct {
		Message *string           `json:"message"`
		Winner  *ledger.AccountID `json:"winner"`
	}
	text := ""
	if data != nil {
		text = *data
	}
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return Verdict{}, fmt.Errorf("%w: %v", ErrMalformedVerdict, err)
	}
	if raw.Message == nil || raw.Winner == nil {
		return Verdict{}, fmt.Errorf("%w: message and winner are required", ErrMalformedVerdict)
	}
	if err := raw.Winner.Validate(); err != nil {
		return Verdict{}, fmt.Errorf("%w: %v", ErrMalformedVerdict, err)
	}
	return Verdict{Message: *raw.Message, Winner: *raw.Winner}, nil
}

// State é a raiz agregada do contrato: configuração, contador e metadados.
// Os mapas de requests e responses vivem no Store ao lado dela.
type State struct {
	ReserveID   ledger.AccountID `json:"reserve_id"`
	OperatorID  ledger.AccountID `json:"operator_id"`
	AgentName   string           `json:"agent_name"`
	Metadata    ledger.Metadata  `json:"metadata"`
	NumRequests uint64           `json:"num_requests"`
}

// InitParams são os argumentos de construção do ledger
type InitParams struct {
	TotalSupply ledger.Amount
	Metadata    ledger.Metadata
	AgentName   string
	OperatorID  ledger.AccountID
	ReserveID   ledger.AccountID
}

// Resultado de uma chamada a Initiate
const (
	KindTransferred = "TRANSFERRED"
	KindPending     = "PENDING_VERDICT"
)

type Initiation struct {
	Kind      string    `json:"status"`
	RequestID RequestID `json:"request_id"`
	Handle    Handle    `json:"data_id"`
}

func (i Initiation) Suspended() bool { return i.Kind == KindPending }

// Settlement é o resultado de uma retomada bem sucedida
type Settlement struct {
	RequestID RequestID
	Request   Request
	Response  Response
	Verdict   Verdict
}

// Status retorna SETTLED quando houve movimentação e VOIDED quando ok=false
func (s Settlement) Status() string {
	if s.Response.OK {
		return events.SettlementSettled
	}
	return events.SettlementVoided
}

// Loser é a parte que paga; vazio quando a aposta foi anulada
func (s Settlement) Loser() ledger.AccountID {
	if !s.Response.OK {
		return ""
	}
	if s.Verdict.Winner == s.Request.ReceiverID {
		return s.Request.SenderID
	}
	return s.Request.ReceiverID
}
