package events

const (
	StandardAgent = "agent"
	VersionAgent  = "1.0.0"

	EventRunAgent = "run_agent"
)

// RunAgent é a notificação enviada ao árbitro quando uma aposta fica pendente.
// Message carrega {"sender_id": ..., "receiver_id": ...} em JSON.
type RunAgent struct {
	Agent     string  `json:"agent"`
	Message   string  `json:"message"`
	RequestID *uint64 `json:"request_id,omitempty"`
}

// WagerParties é o conteúdo de RunAgent.Message
type WagerParties struct {
	SenderID   string `json:"sender_id"`
	ReceiverID string `json:"receiver_id"`
}

func NewRunAgent(r RunAgent) Envelope {
	return Envelope{Standard: StandardAgent, Version: VersionAgent, Event: EventRunAgent, Data: []RunAgent{r}}
}

// WagerRequested é o formato consumido pelo arbiter-worker no tópico wager_requested
type WagerRequested struct {
	Standard string     `json:"standard"`
	Version  string     `json:"version"`
	Event    string     `json:"event"`
	Data     []RunAgent `json:"data"`
}
