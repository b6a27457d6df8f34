package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/radieske/wager-ledger-poc/internal/ledger"
	"github.com/radieske/wager-ledger-poc/internal/ledger-service/dto"
	"github.com/radieske/wager-ledger-poc/internal/shared/auth"
	"github.com/radieske/wager-ledger-poc/internal/wager"
	"github.com/radieske/wager-ledger-poc/pkg/contracts/events"
)

// maxWait limita o ?wait das rotas que aguardam a liquidação
const maxWait = time.Minute

// Contract define as operações do ledger usadas pelos handlers
type Contract interface {
	Initiate(ctx context.Context, sender, receiver ledger.AccountID, amount ledger.Amount, memo string) (wager.Initiation, error)
	Respond(ctx context.Context, caller ledger.AccountID, h wager.Handle, id wager.RequestID, resp wager.Response) error
	Await(ctx context.Context, h wager.Handle) (wager.Outcome, error)
	GetRequest(ctx context.Context, id wager.RequestID) (wager.Request, error)
	RemoveRequest(ctx context.Context, caller ledger.AccountID, id wager.RequestID) error

	SetOperatorID(ctx context.Context, caller, operator ledger.AccountID) error
	SetAgentName(ctx context.Context, caller ledger.AccountID, name string) error
	SetMetadata(ctx context.Context, caller ledger.AccountID, m ledger.Metadata) error

	Metadata(ctx context.Context) (ledger.Metadata, error)
	BalanceOf(ctx context.Context, id ledger.AccountID) (ledger.Amount, error)
	TotalSupply(ctx context.Context) (ledger.Amount, error)
	StorageBalanceBounds() ledger.StorageBalanceBounds
	StorageBalanceOf(ctx context.Context, id ledger.AccountID) (*ledger.StorageBalance, error)
	StorageDeposit(ctx context.Context, caller, account ledger.AccountID) (ledger.StorageBalance, error)
	StorageWithdraw(ctx context.Context) error
	StorageUnregister(ctx context.Context) error
}

// OutcomeReader lê resultados já liquidados (cache Redis)
type OutcomeReader interface {
	Get(ctx context.Context, id wager.RequestID) (events.WagerSettled, bool, error)
}

// Server expõe o ledger via HTTP
type Server struct {
	log      *zap.Logger
	contract Contract
	outcomes OutcomeReader // opcional
	signer   *auth.Signer
	ws       http.HandlerFunc // opcional
}

func NewServer(log *zap.Logger, c Contract, outcomes OutcomeReader, signer *auth.Signer, ws http.HandlerFunc) *Server {
	return &Server{log: log, contract: c, outcomes: outcomes, signer: signer, ws: ws}
}

// Router retorna o roteador com as rotas públicas e as autenticadas
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	// consultas
	r.Get("/ft_balance_of", s.balanceOf)      // ?account_id=
	r.Get("/ft_total_supply", s.totalSupply)
	r.Get("/ft_metadata", s.metadata)
	r.Get("/storage_balance_of", s.storageOf) // ?account_id=
	r.Get("/storage_balance_bounds", s.bounds)
	r.Get("/requests/{id}", s.getRequest)
	r.Get("/requests/{id}/outcome", s.getOutcome) // ?wait=30s
	if s.ws != nil {
		r.Get("/ws", s.ws)
	}

	// chamadas assinadas
	r.Group(func(r chi.Router) {
		r.Use(s.signer.Middleware)
		r.Post("/ft_transfer", s.transfer) // ?wait=30s
		r.Post("/storage_deposit", s.storageDeposit)
		r.Post("/storage_withdraw", s.storageWithdraw)
		r.Post("/storage_unregister", s.storageUnregister)
		r.Post("/respond", s.respond)
		r.Delete("/requests/{id}", s.removeRequest)
		r.Put("/admin/operator", s.setOperator)
		r.Put("/admin/agent", s.setAgent)
		r.Put("/admin/metadata", s.setMetadata)
	})
	return r
}

// transfer inicia a transferência; vira aposta se o receiver cobre o valor
func (s *Server) transfer(w http.ResponseWriter, r *http.Request) {
	var req dto.TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	amount, err := ledger.ParseAmount(req.Amount)
	if err != nil {
		s.fail(w, err)
		return
	}
	wait, err := parseWait(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	memo := ""
	if req.Memo != nil {
		memo = *req.Memo
	}

	res, err := s.contract.Initiate(r.Context(), caller(r), ledger.AccountID(req.ReceiverID), amount, memo)
	if err != nil {
		s.fail(w, err)
		return
	}
	if !res.Suspended() {
		writeJSON(w, http.StatusOK, dto.TransferResponse{Status: res.Kind})
		return
	}

	id := uint64(res.RequestID)
	out := dto.TransferResponse{Status: res.Kind, RequestID: &id, DataID: res.Handle.String()}
	if wait > 0 {
		if ev, ok := s.await(r.Context(), res.Handle, wait); ok {
			out.Status = ev.Status
			out.Outcome = ev
			writeJSON(w, http.StatusOK, out)
			return
		}
	}
	writeJSON(w, http.StatusAccepted, out)
}

// await espera a liquidação do handle por até wait
func (s *Server) await(ctx context.Context, h wager.Handle, wait time.Duration) (*events.WagerSettled, bool) {
	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	o, err := s.contract.Await(ctx, h)
	if err != nil {
		return nil, false
	}
	ev := o.Event()
	return &ev, true
}

// respond grava o veredito do árbitro (somente operador)
func (s *Server) respond(w http.ResponseWriter, r *http.Request) {
	var req dto.RespondRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	h, err := wager.ParseHandle(req.DataID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.contract.Respond(r.Context(), caller(r), h, wager.RequestID(req.RequestID), req.Response); err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "RESUMING"})
}

func (s *Server) getRequest(w http.ResponseWriter, r *http.Request) {
	id, err := wager.ParseRequestID(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	req, err := s.contract.GetRequest(r.Context(), id)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewRequestResponse(id, req))
}

// getOutcome busca o resultado no cache; se a aposta ainda está pendente,
// aguarda a liquidação local por até ?wait
func (s *Server) getOutcome(w http.ResponseWriter, r *http.Request) {
	id, err := wager.ParseRequestID(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	wait, err := parseWait(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if ev, ok := s.cached(r.Context(), id); ok {
		writeJSON(w, http.StatusOK, dto.OutcomeResponse{Status: ev.Status, Outcome: ev})
		return
	}

	req, err := s.contract.GetRequest(r.Context(), id)
	if errors.Is(err, wager.ErrRequestNotFound) {
		// pode ter sido liquidada entre as duas leituras
		if ev, ok := s.cached(r.Context(), id); ok {
			writeJSON(w, http.StatusOK, dto.OutcomeResponse{Status: ev.Status, Outcome: ev})
			return
		}
	}
	if err != nil {
		s.fail(w, err)
		return
	}

	if wait > 0 {
		if ev, ok := s.await(r.Context(), req.DataID, wait); ok {
			// tentativa falhou mas a aposta segue pendente de novo veredito
			if ev.Status == events.SettlementFailed {
				writeJSON(w, http.StatusAccepted, dto.OutcomeResponse{Status: wager.KindPending, Outcome: ev})
				return
			}
			writeJSON(w, http.StatusOK, dto.OutcomeResponse{Status: ev.Status, Outcome: ev})
			return
		}
	}
	writeJSON(w, http.StatusAccepted, dto.OutcomeResponse{Status: wager.KindPending})
}

func (s *Server) cached(ctx context.Context, id wager.RequestID) (*events.WagerSettled, bool) {
	if s.outcomes == nil {
		return nil, false
	}
	ev, ok, err := s.outcomes.Get(ctx, id)
	if err != nil {
		s.log.Warn("outcome cache read failed", zap.Uint64("request_id", uint64(id)), zap.Error(err))
		return nil, false
	}
	return &ev, ok
}

// removeRequest descarta a aposta sem liquidar (somente operador)
func (s *Server) removeRequest(w http.ResponseWriter, r *http.Request) {
	id, err := wager.ParseRequestID(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.contract.RemoveRequest(r.Context(), caller(r), id); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) balanceOf(w http.ResponseWriter, r *http.Request) {
	account := r.URL.Query().Get("account_id")
	if account == "" {
		http.Error(w, "account_id required", http.StatusBadRequest)
		return
	}
	bal, err := s.contract.BalanceOf(r.Context(), ledger.AccountID(account))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bal)
}

func (s *Server) totalSupply(w http.ResponseWriter, r *http.Request) {
	supply, err := s.contract.TotalSupply(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, supply)
}

func (s *Server) metadata(w http.ResponseWriter, r *http.Request) {
	m, err := s.contract.Metadata(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) storageOf(w http.ResponseWriter, r *http.Request) {
	account := r.URL.Query().Get("account_id")
	if account == "" {
		http.Error(w, "account_id required", http.StatusBadRequest)
		return
	}
	sb, err := s.contract.StorageBalanceOf(r.Context(), ledger.AccountID(account))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sb) // null quando não registrada
}

func (s *Server) bounds(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.contract.StorageBalanceBounds())
}

func (s *Server) storageDeposit(w http.ResponseWriter, r *http.Request) {
	var req dto.StorageDepositRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
	}
	sb, err := s.contract.StorageDeposit(r.Context(), caller(r), ledger.AccountID(req.AccountID))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sb)
}

func (s *Server) storageWithdraw(w http.ResponseWriter, r *http.Request) {
	s.fail(w, s.contract.StorageWithdraw(r.Context()))
}

func (s *Server) storageUnregister(w http.ResponseWriter, r *http.Request) {
	s.fail(w, s.contract.StorageUnregister(r.Context()))
}

func (s *Server) setOperator(w http.ResponseWriter, r *http.Request) {
	var req dto.SetOperatorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if err := s.contract.SetOperatorID(r.Context(), caller(r), ledger.AccountID(req.OperatorID)); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) setAgent(w http.ResponseWriter, r *http.Request) {
	var req dto.SetAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if err := s.contract.SetAgentName(r.Context(), caller(r), req.AgentName); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) setMetadata(w http.ResponseWriter, r *http.Request) {
	var req dto.SetMetadataRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if err := s.contract.SetMetadata(r.Context(), caller(r), req); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// fail converte o erro do contrato em status HTTP pela categoria
func (s *Server) fail(w http.ResponseWriter, err error) {
	kind := wager.Classify(err)
	status := http.StatusInternalServerError
	switch kind {
	case wager.KindGuard:
		status = http.StatusBadRequest
	case wager.KindAuth:
		status = http.StatusForbidden
	case wager.KindNotFound:
		status = http.StatusNotFound
	case wager.KindProtocol:
		status = http.StatusUnprocessableEntity
	case wager.KindLedger:
		status = http.StatusConflict
	}
	if errors.Is(err, wager.ErrNotInitialized) {
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		s.log.Error("request failed", zap.Error(err))
	}
	writeJSON(w, status, dto.ErrorResponse{Error: err.Error(), Kind: string(kind)})
}

func caller(r *http.Request) ledger.AccountID {
	account, _ := auth.AccountFrom(r.Context())
	return ledger.AccountID(account)
}

func parseWait(r *http.Request) (time.Duration, error) {
	raw := r.URL.Query().Get("wait")
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return 0, errors.New("invalid wait")
	}
	return min(d, maxWait), nil
}

// writeJSON serializa a resposta em JSON e define o status HTTP
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
