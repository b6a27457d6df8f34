package ledger

import "context"

// StorageBalance é o depósito de storage de uma conta registrada.
// Como o registro tem custo fixo, Available é sempre zero.
type StorageBalance struct {
	Total     Amount `json:"total"`
	Available Amount `json:"available"`
}

// StorageBalanceBounds define o depósito mínimo e máximo para registro
type StorageBalanceBounds struct {
	Min Amount  `json:"min"`
	Max *Amount `json:"max,omitempty"`
}

// NewStorageBounds cria limites com min == max (registro de custo fixo)
func NewStorageBounds(cost Amount) StorageBalanceBounds {
	upper := cost
	return StorageBalanceBounds{Min: cost, Max: &upper}
}

// StorageBalanceOf retorna nil quando a conta não está registrada
func (l *Ledger) StorageBalanceOf(ctx context.Context, id AccountID, bounds StorageBalanceBounds) (*StorageBalance, error) {
	ok, err := l.IsRegistered(ctx, id)
	if err != nil || !ok {
		return nil, err
	}
	return &StorageBalance{Total: bounds.Min, Available: Zero}, nil
}

// StorageDeposit registra a conta se necessário e retorna o saldo de storage.
// Contas já registradas não geram erro (o depósito seria devolvido).
func (l *Ledger) StorageDeposit(ctx context.Context, id AccountID, bounds StorageBalanceBounds) (StorageBalance, error) {
	if _, err := l.EnsureRegistered(ctx, id); err != nil {
		return StorageBalance{}, err
	}
	return StorageBalance{Total: bounds.Min, Available: Zero}, nil
}
