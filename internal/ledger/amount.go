package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Amount representa um valor u128 em unidades mínimas do token.
// Serializado em JSON como string decimal, igual ao U128 dos contratos NEP-141.
type Amount = decimal.Decimal

// MaxAmount é o maior valor representável (2^128 - 1)
var MaxAmount = decimal.RequireFromString("340282366920938463463374607431768211455")

// Zero é o saldo de uma conta recém registrada
var Zero = decimal.Zero

// ParseAmount converte uma string decimal em Amount validando o intervalo u128
func ParseAmount(s string) (Amount, error) {
	a, err := decimal.NewFromString(s)
	if err != nil {
		return Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if err := ValidateAmount(a); err != nil {
		return Zero, err
	}
	return a, nil
}

// ValidateAmount garante que o valor é inteiro e cabe em u128
func ValidateAmount(a Amount) error {
	if !a.IsInteger() || a.IsNegative() || a.GreaterThan(MaxAmount) {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, a.String())
	}
	return nil
}

// NewAmount cria um Amount a partir de um inteiro não negativo
func NewAmount(v int64) Amount { return decimal.NewFromInt(v) }
