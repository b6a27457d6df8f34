package topics

const (
	// Wagers
	WagerRequested = "wager_requested"
	WagerSettled   = "wager_settled"

	// Ledger (ft_mint, ft_transfer)
	LedgerEvents = "ledger_events"

	// DLQs
	WagerRequestedDLQ = "wager_requested_dlq"
)
