package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"moff.io/moff-wallet/internal/config"
	"moff.io/moff-wallet/internal/walletconnect"
)

func newTestStore(t *testing.T) (*SessionStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewSessionStore(client, ""), mr
}

func stored(topic string, expiry time.Time) *walletconnect.StoredSession {
	return &walletconnect.StoredSession{
		Session: &walletconnect.Session{
			Topic:  topic,
			Expiry: expiry.Unix(),
			Peer:   walletconnect.Participant{Metadata: walletconnect.Metadata{Name: "dapp"}},
		},
		SymKey: "00",
	}
}

func TestSessionStoreRoundTrip(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()
	expiry := time.Now().Add(time.Hour)

	require.NoError(t, store.SaveSession(ctx, stored("bbbb", expiry)))
	require.NoError(t, store.SaveSession(ctx, stored("aaaa", expiry)))
	assert.True(t, mr.Exists(defaultSessionPrefix+"aaaa"))
	assert.Greater(t, mr.TTL(defaultSessionPrefix+"aaaa"), 59*time.Minute)

	sessions, err := store.LoadSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "aaaa", sessions[0].Session.Topic)
	assert.Equal(t, "bbbb", sessions[1].Session.Topic)
	assert.Equal(t, "dapp", sessions[0].Session.Peer.Metadata.Name)
	assert.Equal(t, "00", sessions[0].SymKey)

	require.NoError(t, store.DeleteSession(ctx, "aaaa"))
	sessions, err = store.LoadSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "bbbb", sessions[0].Session.Topic)
}

func TestSessionStoreExpiry(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveSession(ctx, stored("aaaa", time.Now().Add(time.Minute))))
	mr.FastForward(2 * time.Minute)
	sessions, err := store.LoadSessions(ctx)
	require.NoError(t, err)
	assert.Empty(t, sessions)

	require.NoError(t, store.SaveSession(ctx, stored("bbbb", time.Now().Add(-time.Minute))))
	assert.False(t, mr.Exists(defaultSessionPrefix+"bbbb"))
}

func TestSessionStoreSkipsGarbage(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, mr.Set(defaultSessionPrefix+"broken", "{not json"))
	require.NoError(t, mr.Set("other:key", "x"))
	require.NoError(t, store.SaveSession(ctx, stored("aaaa", time.Now().Add(time.Hour))))

	sessions, err := store.LoadSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)

	require.NoError(t, store.Clear(ctx))
	assert.False(t, mr.Exists(defaultSessionPrefix+"aaaa"))
	assert.True(t, mr.Exists("other:key"))
}

func TestConnect(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := Connect(context.Background(), &config.DBCredential{Address: mr.Host(), Port: mr.Port(), Database: "0"})
	require.NoError(t, err)
	require.NoError(t, client.Close())

	host, port := mr.Host(), mr.Port()
	mr.Close()
	_, err = Connect(context.Background(), &config.DBCredential{Address: host, Port: port})
	assert.Error(t, err)
}
