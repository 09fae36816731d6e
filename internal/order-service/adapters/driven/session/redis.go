package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Joletx42/trans-aggregator-bot/internal/config"
	"github.com/Joletx42/trans-aggregator-bot/internal/mylogger"
	"github.com/Joletx42/trans-aggregator-bot/internal/order-service/core/ports"
)

// Store keeps per-user dialog state in redis with a sliding TTL, so an
// abandoned draft cleans itself up.
type Store struct {
	mylog  mylogger.Logger
	client *redis.Client
	ttl    time.Duration
}

func New(ctx context.Context, cfg config.Redisconfig, mylog mylogger.Logger) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %v", err)
	}
	return &Store{mylog: mylog, client: client, ttl: time.Duration(cfg.SessionTTL) * time.Minute}, nil
}

func key(userID int64) string {
	return fmt.Sprintf("session:%d", userID)
}

func (s *Store) Get(ctx context.Context, userID int64) (ports.Session, error) {
	raw, err := s.client.Get(ctx, key(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return ports.Session{UserID: userID}, nil
	}
	if err != nil {
		return ports.Session{}, err
	}
	var sess ports.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return ports.Session{}, err
	}
	return sess, nil
}

func (s *Store) Put(ctx context.Context, sess ports.Session) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, key(sess.UserID), raw, s.ttl).Err()
}

func (s *Store) Clear(ctx context.Context, userID int64) error {
	return s.client.Del(ctx, key(userID)).Err()
}

func (s *Store) Close() error {
	return s.client.Close()
}
