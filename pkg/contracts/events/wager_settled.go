package events

import "time"

// Status possíveis de uma liquidação
const (
	SettlementSettled = "SETTLED" // ok=true, saldo movido do perdedor para o vencedor
	SettlementVoided  = "VOIDED"  // ok=false, nada movido
	SettlementFailed  = "FAILED"  // veredito inválido ou erro de ledger, estado revertido
)

// WagerSettled é publicado após cada tentativa de retomada de uma aposta
type WagerSettled struct {
	RequestID uint64    `json:"request_id"`
	DataID    string    `json:"data_id"`
	Status    string    `json:"status"`
	OK        bool      `json:"ok"`
	Data      *string   `json:"data,omitempty"`
	Signature *string   `json:"signature,omitempty"`
	Winner    string    `json:"winner,omitempty"`
	Loser     string    `json:"loser,omitempty"`
	Amount    string    `json:"amount,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Ts        time.Time `json:"ts"`
}
