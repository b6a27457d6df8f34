package ledgerclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	wdto "github.com/radieske/wager-ledger-poc/internal/arbiter-worker/dto"
)

var (
	// ErrGone indica que a aposta não existe mais (liquidada ou removida)
	ErrGone = errors.New("request no longer pending")
	// ErrRejected é uma recusa definitiva do ledger (4xx); não adianta repetir
	ErrRejected = errors.New("rejected by ledger")
)

// TokenSource devolve o bearer token do operador
type TokenSource func() (string, error)

// Client fala com o ledger-service em nome do operador
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Token   TokenSource
}

func New(base string, token TokenSource) *Client {
	return &Client{
		BaseURL: base,
		HTTP:    &http.Client{Timeout: 5 * time.Second},
		Token:   token,
	}
}

// GetRequest lê a aposta pendente para obter o data_id
func (c *Client) GetRequest(ctx context.Context, id uint64) (wdto.PendingRequest, error) {
	var out wdto.PendingRequest
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/requests/"+strconv.FormatUint(id, 10), nil)
	res, err := c.HTTP.Do(req)
	if err != nil {
		return out, err
	}
	defer res.Body.Close()
	if err := check(res, "get request"); err != nil {
		return out, err
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return out, err
	}
	return out, nil
}

// Respond grava o veredito; a liquidação acontece de forma assíncrona no ledger
func (c *Client) Respond(ctx context.Context, in wdto.RespondReq) error {
	token, err := c.Token()
	if err != nil {
		return fmt.Errorf("operator token: %w", err)
	}
	body, _ := json.Marshal(in)
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/respond", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	res, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	return check(res, "respond")
}

func check(res *http.Response, op string) error {
	switch {
	case res.StatusCode < 300:
		return nil
	case res.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s: %w", op, ErrGone)
	case res.StatusCode < 500:
		return fmt.Errorf("%s http %d: %w", op, res.StatusCode, ErrRejected)
	default:
		return fmt.Errorf("%s http %d", op, res.StatusCode)
	}
}
