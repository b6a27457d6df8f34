package wager

import (
	"context"

	"github.com/radieske/wager-ledger-poc/internal/ledger"
)

// Store guarda o estado do contrato. Cada chamada pública roda inteira
// dentro de um Update: se fn retornar erro, nenhuma escrita é mantida.
// Implementações podem reexecutar fn em caso de conflito.
type Store interface {
	Update(ctx context.Context, fn func(tx Tx) error) error
	View(ctx context.Context, fn func(tx Tx) error) error
	Close() error
}

// Tx é a visão transacional do estado: saldos, raiz agregada e os dois mapas
// RequestID -> Request e RequestID -> Response
type Tx interface {
	ledger.Accounts

	// State retorna ErrNotInitialized antes de Init
	State(ctx context.Context) (State, error)
	PutState(ctx context.Context, st State) error

	Request(ctx context.Context, id RequestID) (Request, bool, error)
	PutRequest(ctx context.Context, id RequestID, req Request) error
	DeleteRequest(ctx context.Context, id RequestID) error

	Response(ctx context.Context, id RequestID) (Response, bool, error)
	PutResponse(ctx context.Context, id RequestID, resp Response) error
	DeleteResponse(ctx context.Context, id RequestID) error

	// PendingResponses lista respostas gravadas e ainda não consumidas
	PendingResponses(ctx context.Context) ([]RequestID, error)
}
