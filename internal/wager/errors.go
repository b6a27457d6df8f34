package wager

import (
	"errors"

	"github.com/radieske/wager-ledger-poc/internal/ledger"
)

var (
	// violação de guarda
	ErrVaultReceiver = errors.New("receiver is the ledger reserve account")
	ErrInvalidAmount = errors.New("amount must be a positive u128")
	ErrSelfTransfer  = errors.New("sender and receiver should be different")

	// autorização
	ErrNotOperator = errors.New("ERR_NOT_AN_OPERATOR")
	ErrNotSelf     = errors.New("method is private to the ledger account")

	// não encontrado
	ErrRequestNotFound = errors.New("request ID not found")

	// violação de protocolo
	ErrMalformedVerdict = errors.New("wrong response message format")
	ErrUnknownWinner    = errors.New("unknown response received")
	ErrHandleMismatch   = errors.New("data_id does not match the request")

	// violação de invariante
	ErrResponseMissing = errors.New("response is missing")

	// ciclo de vida
	ErrNotInitialized     = errors.New("ledger is not initialized")
	ErrAlreadyInitialized = errors.New("ledger is already initialized")
	ErrCounterExhausted   = errors.New("request counter exhausted")
	ErrUnknownHandle      = errors.New("no suspended call for data_id")
)

// Kind agrupa os erros pela taxonomia do protocolo
type Kind string

const (
	KindGuard     Kind = "guard"
	KindAuth      Kind = "authorization"
	KindNotFound  Kind = "not_found"
	KindProtocol  Kind = "protocol"
	KindInvariant Kind = "invariant"
	KindLedger    Kind = "ledger"
	KindInternal  Kind = "internal"
)

// Classify mapeia um erro retornado pelo contrato para sua categoria
func Classify(err error) Kind {
	switch {
	case errors.Is(err, ErrVaultReceiver), errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrSelfTransfer),
		errors.Is(err, ErrAlreadyInitialized), errors.Is(err, ledger.ErrInvalidAccountID),
		errors.Is(err, ledger.ErrInvalidAmount), errors.Is(err, ledger.ErrInvalidMetadata),
		errors.Is(err, ledger.ErrNotAvailable):
		return KindGuard
	case errors.Is(err, ErrNotOperator), errors.Is(err, ErrNotSelf):
		return KindAuth
	case errors.Is(err, ErrRequestNotFound), errors.Is(err, ErrUnknownHandle):
		return KindNotFound
	case errors.Is(err, ErrMalformedVerdict), errors.Is(err, ErrUnknownWinner), errors.Is(err, ErrHandleMismatch):
		return KindProtocol
	case errors.Is(err, ErrResponseMissing):
		return KindInvariant
	case errors.Is(err, ledger.ErrNotRegistered), errors.Is(err, ledger.ErrAlreadyRegistered),
		errors.Is(err, ledger.ErrInsufficientBalance), errors.Is(err, ledger.ErrSameAccount),
		errors.Is(err, ledger.ErrNonPositiveAmount), errors.Is(err, ledger.ErrBalanceOverflow),
		errors.Is(err, ledger.ErrSupplyOverflow):
		return KindLedger
	default:
		return KindInternal
	}
}
