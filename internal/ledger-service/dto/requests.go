package dto

import (
	"github.com/radieske/wager-ledger-poc/internal/ledger"
	"github.com/radieske/wager-ledger-poc/internal/wager"
)

// TransferRequest é o corpo de POST /ft_transfer. O sender é o chamador autenticado.
type TransferRequest struct {
	ReceiverID string  `json:"receiver_id"`
	Amount     string  `json:"amount"` // u128 em string decimal
	Memo       *string `json:"memo,omitempty"`
}

// RespondRequest é o corpo de POST /respond (somente operador)
type RespondRequest struct {
	DataID    string         `json:"data_id"`
	RequestID uint64         `json:"request_id"`
	Response  wager.Response `json:"response"`
}

type StorageDepositRequest struct {
	AccountID        string `json:"account_id,omitempty"`
	RegistrationOnly *bool  `json:"registration_only,omitempty"`
}

type SetOperatorRequest struct {
	OperatorID string `json:"operator_id"`
}

type SetAgentRequest struct {
	AgentName string `json:"agent_name"`
}

type SetMetadataRequest = ledger.Metadata
