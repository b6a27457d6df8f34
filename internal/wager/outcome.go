package wager

import "github.com/radieske/wager-ledger-poc/pkg/contracts/events"

// Event converte o resultado no evento publicado em wager_settled
func (o Outcome) Event() events.WagerSettled {
	ev := events.WagerSettled{
		RequestID: uint64(o.RequestID),
		DataID:    o.Handle.String(),
		Ts:        o.At,
	}
	if o.Err != nil {
		ev.Status = events.SettlementFailed
		ev.Reason = o.Err.Error()
		return ev
	}
	s := o.Settlement
	ev.Status = s.Status()
	ev.OK = s.Response.OK
	ev.Data = s.Response.Data
	ev.Signature = s.Response.Signature
	ev.Amount = s.Request.Amount.String()
	if s.Response.OK {
		ev.Winner = s.Verdict.Winner.String()
		ev.Loser = s.Loser().String()
	}
	return ev
}
