package outcome

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/radieske/wager-ledger-poc/internal/wager"
	"github.com/radieske/wager-ledger-poc/pkg/contracts/events"
)

// RedisCache guarda o resultado de cada liquidação para consultas tardias
// e o repassa via Pub/Sub para as instâncias com clientes WebSocket
// Client: cliente Redis
// TTL: tempo de expiração dos registros
type RedisCache struct {
	Client  *redis.Client
	TTL     time.Duration
	Channel string
}

func NewRedisCache(c *redis.Client, ttl time.Duration, channel string) *RedisCache {
	return &RedisCache{Client: c, TTL: ttl, Channel: channel}
}

// key gera a chave Redis do resultado de um request
func key(id wager.RequestID) string { return "wager:outcome:" + id.String() }

// Put grava o resultado com TTL e publica no canal
func (r *RedisCache) Put(ctx context.Context, ev events.WagerSettled) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	pipe := r.Client.TxPipeline()
	pipe.Set(ctx, key(wager.RequestID(ev.RequestID)), b, r.TTL)
	pipe.Publish(ctx, r.Channel, b)
	_, err = pipe.Exec(ctx)
	return err
}

// Get retorna ok=false quando não há resultado (ainda pendente ou expirado)
func (r *RedisCache) Get(ctx context.Context, id wager.RequestID) (events.WagerSettled, bool, error) {
	var ev events.WagerSettled
	b, err := r.Client.Get(ctx, key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return ev, false, nil
	}
	if err != nil {
		return ev, false, err
	}
	if err := json.Unmarshal(b, &ev); err != nil {
		return ev, false, err
	}
	return ev, true, nil
}
