package ledger

import (
	"context"
	"fmt"

	"github.com/radieske/wager-ledger-poc/pkg/contracts/events"
)

// Accounts é o armazenamento de saldos visto de dentro de uma transação.
// Balance retorna ok=false para contas não registradas.
type Accounts interface {
	Balance(ctx context.Context, id AccountID) (bal Amount, ok bool, err error)
	PutBalance(ctx context.Context, id AccountID, bal Amount) error
	Supply(ctx context.Context) (Amount, error)
	PutSupply(ctx context.Context, supply Amount) error
}

// Ledger implementa as regras de um token fungível sobre Accounts.
// Uma instância vive dentro de uma única transação e acumula os eventos
// emitidos, que só devem ser publicados após o commit.
type Ledger struct {
	accts  Accounts
	events []events.Envelope
}

// New cria um Ledger ligado às contas da transação corrente
func New(accts Accounts) *Ledger { return &Ledger{accts: accts} }

// Events retorna os eventos emitidos nesta transação, em ordem
func (l *Ledger) Events() []events.Envelope { return l.events }

// BalanceOf retorna zero para contas não registradas
func (l *Ledger) BalanceOf(ctx context.Context, id AccountID) (Amount, error) {
	bal, ok, err := l.accts.Balance(ctx, id)
	if err != nil {
		return Zero, err
	}
	if !ok {
		return Zero, nil
	}
	return bal, nil
}

func (l *Ledger) IsRegistered(ctx context.Context, id AccountID) (bool, error) {
	_, ok, err := l.accts.Balance(ctx, id)
	return ok, err
}

// RegisterAccount cria a conta com saldo zero; falha se já existir
func (l *Ledger) RegisterAccount(ctx context.Context, id AccountID) error {
	if err := id.Validate(); err != nil {
		return err
	}
	ok, err := l.IsRegistered(ctx, id)
	if err != nil {
		return err
	}
	if ok {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, id)
	}
	return l.accts.PutBalance(ctx, id, Zero)
}

// EnsureRegistered registra a conta apenas se necessário.
// Retorna true quando a conta foi criada nesta chamada.
func (l *Ledger) EnsureRegistered(ctx context.Context, id AccountID) (bool, error) {
	ok, err := l.IsRegistered(ctx, id)
	if err != nil || ok {
		return false, err
	}
	if err := l.RegisterAccount(ctx, id); err != nil {
		return false, err
	}
	return true, nil
}

// TotalSupply retorna o supply corrente do token
func (l *Ledger) TotalSupply(ctx context.Context) (Amount, error) {
	return l.accts.Supply(ctx)
}

// Mint registra o dono se preciso, deposita amount e aumenta o supply
func (l *Ledger) Mint(ctx context.Context, owner AccountID, amount Amount, memo string) error {
	if err := ValidateAmount(amount); err != nil {
		return err
	}
	if _, err := l.EnsureRegistered(ctx, owner); err != nil {
		return err
	}
	supply, err := l.accts.Supply(ctx)
	if err != nil {
		return err
	}
	newSupply := supply.Add(amount)
	if newSupply.GreaterThan(MaxAmount) {
		return ErrSupplyOverflow
	}
	if err := l.deposit(ctx, owner, amount); err != nil {
		return err
	}
	if err := l.accts.PutSupply(ctx, newSupply); err != nil {
		return err
	}
	l.events = append(l.events, events.NewFtMint(events.FtMint{
		OwnerID: owner.String(),
		Amount:  amount.String(),
		Memo:    memo,
	}))
	return nil
}

// Transfer é o caminho autorizado pelo chamador: sender deve ser quem assina a chamada
func (l *Ledger) Transfer(ctx context.Context, sender, receiver AccountID, amount Amount, memo string) error {
	if err := sender.Validate(); err != nil {
		return err
	}
	if err := receiver.Validate(); err != nil {
		return err
	}
	return l.InternalTransfer(ctx, sender, receiver, amount, memo)
}

// InternalTransfer move saldo sem checagem de autorização.
// Só deve ser chamado por código confiável (liquidação de apostas).
func (l *Ledger) InternalTransfer(ctx context.Context, sender, receiver AccountID, amount Amount, memo string) error {
	if sender == receiver {
		return ErrSameAccount
	}
	if err := ValidateAmount(amount); err != nil {
		return err
	}
	if !amount.IsPositive() {
		return ErrNonPositiveAmount
	}
	if err := l.withdraw(ctx, sender, amount); err != nil {
		return err
	}
	if err := l.deposit(ctx, receiver, amount); err != nil {
		return err
	}
	l.events = append(l.events, events.NewFtTransfer(events.FtTransfer{
		OldOwnerID: sender.String(),
		NewOwnerID: receiver.String(),
		Amount:     amount.String(),
		Memo:       memo,
	}))
	return nil
}

func (l *Ledger) withdraw(ctx context.Context, id AccountID, amount Amount) error {
	bal, ok, err := l.accts.Balance(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotRegistered, id)
	}
	if bal.LessThan(amount) {
		return fmt.Errorf("%w: %s", ErrInsufficientBalance, id)
	}
	return l.accts.PutBalance(ctx, id, bal.Sub(amount))
}

func (l *Ledger) deposit(ctx context.Context, id AccountID, amount Amount) error {
	bal, ok, err := l.accts.Balance(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotRegistered, id)
	}
	next := bal.Add(amount)
	if next.GreaterThan(MaxAmount) {
		return fmt.Errorf("%w: %s", ErrBalanceOverflow, id)
	}
	return l.accts.PutBalance(ctx, id, next)
}
