package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"moff.io/moff-wallet/internal/config"
	"moff.io/moff-wallet/internal/walletconnect"
	"moff.io/moff-wallet/pkg/errors"
	"moff.io/moff-wallet/pkg/log"
)

const defaultSessionPrefix = "moff-wallet:session:"

var _ walletconnect.Store = (*SessionStore)(nil)

// Connect opens a redis client and pings it.
func Connect(ctx context.Context, cred *config.DBCredential) (*redis.Client, error) {
	db, _ := strconv.ParseInt(cred.Database, 10, 64)
	client := redis.NewClient(&redis.Options{
		Addr:     cred.GetRedisAddress(),
		Password: cred.Password,
		DB:       int(db),
	})
	if _, err := client.Ping(ctx).Result(); err != nil {
		_ = client.Close()
		return nil, errors.Wrapf(err, "ping to redis %v", cred.GetRedisAddress())
	}
	return client, nil
}

// SessionStore keeps WalletConnect sessions in redis, one key per topic.
// Keys expire together with their session.
type SessionStore struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

func NewSessionStore(client *redis.Client, prefix string) *SessionStore {
	if prefix == "" {
		prefix = defaultSessionPrefix
	}
	return &SessionStore{client: client, prefix: prefix, now: time.Now}
}

func (s *SessionStore) key(topic string) string {
	return s.prefix + topic
}

func (s *SessionStore) SaveSession(ctx context.Context, stored *walletconnect.StoredSession) error {
	data, err := json.Marshal(stored)
	if err != nil {
		return errors.Wrap(err, "marshal session")
	}
	var ttl time.Duration
	if stored.Session.Expiry != 0 {
		ttl = time.Unix(stored.Session.Expiry, 0).Sub(s.now())
		if ttl <= 0 {
			return s.DeleteSession(ctx, stored.Session.Topic)
		}
	}
	if err := s.client.Set(ctx, s.key(stored.Session.Topic), data, ttl).Err(); err != nil {
		return errors.WrapAndReport(err, "save session to redis")
	}
	return nil
}

func (s *SessionStore) DeleteSession(ctx context.Context, topic string) error {
	if err := s.client.Del(ctx, s.key(topic)).Err(); err != nil {
		return errors.WrapAndReport(err, "delete session from redis")
	}
	return nil
}

// LoadSessions returns every stored session ordered by topic. Entries that
// cannot be decoded are skipped.
func (s *SessionStore) LoadSessions(ctx context.Context) ([]*walletconnect.StoredSession, error) {
	var sessions []*walletconnect.StoredSession
	err := s.scan(ctx, func(keys []string) error {
		values, err := s.client.MGet(ctx, keys...).Result()
		if err != nil {
			return errors.WrapAndReport(err, "load sessions from redis")
		}
		for i, v := range values {
			raw, ok := v.(string)
			if !ok {
				continue
			}
			var stored walletconnect.StoredSession
			if err := json.Unmarshal([]byte(raw), &stored); err != nil || stored.Session == nil {
				log.Warnf("skipping undecodable session %v", keys[i])
				continue
			}
			sessions = append(sessions, &stored)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].Session.Topic < sessions[j].Session.Topic })
	return sessions, nil
}

// Clear deletes every stored session.
func (s *SessionStore) Clear(ctx context.Context) error {
	return s.scan(ctx, func(keys []string) error {
		if err := s.client.Del(ctx, keys...).Err(); err != nil {
			return errors.WrapAndReport(err, "delete caches")
		}
		return nil
	})
}

func (s *SessionStore) scan(ctx context.Context, fn func(keys []string) error) error {
	var (
		cursor uint64
		match        = fmt.Sprintf("%v*", s.prefix)
		count  int64 = 200
	)
	for {
		keys, c, err := s.client.Scan(ctx, cursor, match, count).Result()
		if err != nil {
			return errors.WrapAndReport(err, "scan caches")
		}
		cursor = c
		if len(keys) > 0 {
			if err := fn(keys); err != nil {
				return err
			}
		}
		if c == 0 {
			return nil
		}
	}
}
