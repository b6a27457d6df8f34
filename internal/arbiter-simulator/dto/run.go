package dto

// RunReq é o corpo de POST /agent/run enviado pelo arbiter-worker
type RunReq struct {
	RequestID uint64 `json:"request_id"`
	Agent     string `json:"agent"`
	Message   string `json:"message"` // {"sender_id": ..., "receiver_id": ...}
}

// RunResp é o veredito devolvido ao worker, no formato de resposta do ledger
type RunResp struct {
	OK        bool    `json:"ok"`
	Data      *string `json:"data,omitempty"` // {"message": ..., "winner": ...}
	Signature *string `json:"signature,omitempty"`
}

const (
	ReasonVoided = "agent_void_mock"
)
