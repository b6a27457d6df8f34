package events

const (
	StandardFT = "nep141"
	VersionFT  = "1.0.0"

	EventFtMint     = "ft_mint"
	EventFtTransfer = "ft_transfer"
)

// FtMint é emitido na criação do supply inicial.
// Amount é serializado como string decimal (u128).
type FtMint struct {
	OwnerID string `json:"owner_id"`
	Amount  string `json:"amount"`
	Memo    string `json:"memo,omitempty"`
}

// FtTransfer é emitido a cada movimentação de saldo entre contas
type FtTransfer struct {
	OldOwnerID string `json:"old_owner_id"`
	NewOwnerID string `json:"new_owner_id"`
	Amount     string `json:"amount"`
	Memo       string `json:"memo,omitempty"`
}

func NewFtMint(m FtMint) Envelope {
	return Envelope{Standard: StandardFT, Version: VersionFT, Event: EventFtMint, Data: []FtMint{m}}
}

func NewFtTransfer(t FtTransfer) Envelope {
	return Envelope{Standard: StandardFT, Version: VersionFT, Event: EventFtTransfer, Data: []FtTransfer{t}}
}
