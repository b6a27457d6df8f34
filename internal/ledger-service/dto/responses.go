package dto

import (
	"github.com/radieske/wager-ledger-poc/internal/ledger"
	"github.com/radieske/wager-ledger-poc/internal/wager"
	"github.com/radieske/wager-ledger-poc/pkg/contracts/events"
)

// TransferResponse traz o ramo tomado e, com ?wait, o resultado da aposta
type TransferResponse struct {
	Status    string               `json:"status"` // TRANSFERRED | PENDING_VERDICT | SETTLED | VOIDED | FAILED
	RequestID *uint64              `json:"request_id,omitempty"`
	DataID    string               `json:"data_id,omitempty"`
	Outcome   *events.WagerSettled `json:"outcome,omitempty"`
}

// RequestResponse é a aposta pendente consultada por id
type RequestResponse struct {
	RequestID  uint64           `json:"request_id"`
	DataID     string           `json:"data_id"`
	Amount     ledger.Amount    `json:"amount"`
	SenderID   ledger.AccountID `json:"sender_id"`
	ReceiverID ledger.AccountID `json:"receiver_id"`
}

func NewRequestResponse(id wager.RequestID, req wager.Request) RequestResponse {
	return RequestResponse{
		RequestID:  uint64(id),
		DataID:     req.DataID.String(),
		Amount:     req.Amount,
		SenderID:   req.SenderID,
		ReceiverID: req.ReceiverID,
	}
}

// OutcomeResponse é a resposta de GET /requests/{id}/outcome
type OutcomeResponse struct {
	Status  string               `json:"status"`
	Outcome *events.WagerSettled `json:"outcome,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}
