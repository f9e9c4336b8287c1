package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store persists session state between requests. Load on an unknown id
// returns a fresh empty state, never an error.
type Store interface {
	Load(ctx context.Context, id string) (*State, error)
	Save(ctx context.Context, id string, st *State) error
	Delete(ctx context.Context, id string) error

	// BindOrder records which session placed an order so that the payment
	// webhook, which carries no cookie, can clear the right cart.
	BindOrder(ctx context.Context, orderID uint, id string) error
	FindByOrder(ctx context.Context, orderID uint) (string, error)
}

type RedisStore struct {
	Client *redis.Client
	TTL    time.Duration
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{Client: client, TTL: 7 * 24 * time.Hour}
}

func sessionKey(id string) string { return "shop_sess:" + id }

func orderKey(orderID uint) string {
	return "shop_sess_order:" + strconv.FormatUint(uint64(orderID), 10)
}

func (s *RedisStore) Load(ctx context.Context, id string) (*State, error) {
	raw, err := s.Client.Get(ctx, sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return &State{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session: load failed: %w", err)
	}

	var st State
	if err := json.Unmarshal(raw, &st); err != nil {
		// corrupted state is dropped, not surfaced to the user
		return &State{}, nil
	}
	return &st, nil
}

func (s *RedisStore) Save(ctx context.Context, id string, st *State) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("session: marshal failed: %w", err)
	}
	if err := s.Client.Set(ctx, sessionKey(id), raw, s.TTL).Err(); err != nil {
		return fmt.Errorf("session: save failed: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.Client.Del(ctx, sessionKey(id)).Err(); err != nil {
		return fmt.Errorf("session: delete failed: %w", err)
	}
	return nil
}

func (s *RedisStore) BindOrder(ctx context.Context, orderID uint, id string) error {
	if err := s.Client.Set(ctx, orderKey(orderID), id, s.TTL).Err(); err != nil {
		return fmt.Errorf("session: bind order failed: %w", err)
	}
	return nil
}

func (s *RedisStore) FindByOrder(ctx context.Context, orderID uint) (string, error) {
	id, err := s.Client.Get(ctx, orderKey(orderID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("session: order lookup failed: %w", err)
	}
	return id, nil
}

var _ Store = (*RedisStore)(nil)
