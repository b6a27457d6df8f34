package events

import "encoding/json"

// Prefixo usado nas linhas de log de eventos (NEP-297)
const LogPrefix = "EVENT_JSON:"

// Envelope é o formato padrão dos eventos emitidos pelo ledger.
// Data é sempre uma lista, mesmo quando há um único item.
type Envelope struct {
	Standard string `json:"standard"`
	Version  string `json:"version"`
	Event    string `json:"event"`
	Data     any    `json:"data"`
}

// String retorna a linha de log no formato EVENT_JSON:{...}
func (e Envelope) String() string {
	b, err := json.Marshal(e)
	if err != nil {
		return LogPrefix + "{}"
	}
	return LogPrefix + string(b)
}
