package dto

import "time"

// AgentRunReq é enviado ao agente em POST /agent/run
type AgentRunReq struct {
	RequestID uint64 `json:"request_id"`
	Agent     string `json:"agent"`
	Message   string `json:"message"`
}

// AgentRunResp é o veredito do agente, repassado como está ao /respond
type AgentRunResp struct {
	OK        bool    `json:"ok"`
	Data      *string `json:"data,omitempty"`
	Signature *string `json:"signature,omitempty"`
}

// PendingRequest é a visão de GET /requests/{id} usada pelo worker
type PendingRequest struct {
	RequestID  uint64 `json:"request_id"`
	DataID     string `json:"data_id"`
	Amount     string `json:"amount"`
	SenderID   string `json:"sender_id"`
	ReceiverID string `json:"receiver_id"`
}

// RespondReq é o corpo de POST /respond
type RespondReq struct {
	DataID    string       `json:"data_id"`
	RequestID uint64       `json:"request_id"`
	Response  AgentRunResp `json:"response"`
}

// DeadLetter é o que vai para wager_requested_dlq quando o worker desiste
type DeadLetter struct {
	Agent     string    `json:"agent"`
	Message   string    `json:"message"`
	RequestID *uint64   `json:"request_id,omitempty"`
	Reason    string    `json:"reason"`
	Attempts  int       `json:"attempts"`
	Ts        time.Time `json:"ts"`
}
