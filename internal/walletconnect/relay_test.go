package walletconnect

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

// fakeRelay answers irn_* calls and pushes one irn_subscription per subscribe.
type fakeRelay struct {
	t      *testing.T
	query  chan map[string]string
	acks   chan int64
	calls  chan gjson.Result
	server *httptest.Server
}

func newFakeRelay(t *testing.T) *fakeRelay {
	r := &fakeRelay{
		t:     t,
		query: make(chan map[string]string, 1),
		acks:  make(chan int64, 8),
		calls: make(chan gjson.Result, 16),
	}
	upgrader := websocket.Upgrader{}
	r.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		q := req.URL.Query()
		r.query <- map[string]string{"auth": q.Get("auth"), "projectId": q.Get("projectId"), "ua": q.Get("ua")}
		if q.Get("projectId") == "bad" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			msg := gjson.ParseBytes(data)
			if !msg.Get("method").Exists() {
				r.acks <- msg.Get("id").Int()
				continue
			}
			r.calls <- msg
			id := msg.Get("id").Int()
			switch msg.Get("method").String() {
			case methodSubscribe:
				topic := msg.Get("params.topic").String()
				_ = conn.WriteJSON(map[string]interface{}{"id": id, "jsonrpc": "2.0", "result": "sub-" + topic})
				_ = conn.WriteJSON(map[string]interface{}{
					"id": 99, "jsonrpc": "2.0", "method": methodSubscription,
					"params": map[string]interface{}{
						"id": "sub-" + topic,
						"data": map[string]interface{}{
							"topic": topic, "message": "payload", "publishedAt": 1, "tag": 1100,
						},
					},
				})
			case methodPublish:
				if msg.Get("params.topic").String() == "forbidden" {
					_ = conn.WriteJSON(map[string]interface{}{"id": id, "jsonrpc": "2.0",
						"error": map[string]interface{}{"code": -32600, "message": "forbidden"}})
					continue
				}
				_ = conn.WriteJSON(map[string]interface{}{"id": id, "jsonrpc": "2.0", "result": true})
			default:
				_ = conn.WriteJSON(map[string]interface{}{"id": id, "jsonrpc": "2.0", "result": true})
			}
		}
	}))
	t.Cleanup(r.server.Close)
	return r
}

func (r *fakeRelay) url() string {
	return "ws" + strings.TrimPrefix(r.server.URL, "http")
}

func TestDialRelay(t *testing.T) {
	relay := newFakeRelay(t)
	identity, err := NewClientIdentity()
	require.NoError(t, err)

	transport, err := DialRelay(context.Background(), RelayOptions{
		RelayURL:  relay.url(),
		ProjectID: "project",
		Identity:  identity,
	})
	require.NoError(t, err)
	defer transport.Close()

	q := <-relay.query
	assert.Equal(t, "project", q["projectId"])
	assert.True(t, strings.HasPrefix(q["ua"], "wc-2/go-"))
	claims := jwt.MapClaims{}
	_, _, err = jwt.NewParser().ParseUnverified(q["auth"], claims)
	require.NoError(t, err)
	assert.Equal(t, identity.ClientID(), claims["iss"])
	assert.Equal(t, relay.url(), claims["aud"])

	received := make(chan *Message, 1)
	transport.OnMessage(func(msg *Message) { received <- msg })

	subID, err := transport.Subscribe(context.Background(), testTopic)
	require.NoError(t, err)
	assert.Equal(t, "sub-"+testTopic, subID)
	call := <-relay.calls
	assert.Equal(t, methodSubscribe, call.Get("method").String())
	assert.Equal(t, "2.0", call.Get("jsonrpc").String())

	select {
	case msg := <-received:
		assert.Equal(t, testTopic, msg.Topic)
		assert.Equal(t, "payload", msg.Message)
		assert.Equal(t, 1100, msg.Tag)
	case <-time.After(2 * time.Second):
		t.Fatal("subscription message not delivered")
	}
	assert.Equal(t, int64(99), <-relay.acks)

	require.NoError(t, transport.Publish(context.Background(), testTopic, "sealed", PublishOptions{TTL: 5 * time.Minute, Tag: 1109}))
	call = <-relay.calls
	assert.Equal(t, methodPublish, call.Get("method").String())
	assert.Equal(t, int64(300), call.Get("params.ttl").Int())
	assert.Equal(t, int64(1109), call.Get("params.tag").Int())
	assert.Equal(t, "sealed", call.Get("params.message").String())

	err = transport.Publish(context.Background(), "forbidden", "sealed", PublishOptions{})
	assert.ErrorContains(t, err, "forbidden")

	require.NoError(t, transport.Unsubscribe(context.Background(), testTopic, subID))
	call = <-relay.calls
	assert.Equal(t, methodUnsubscribe, call.Get("method").String())
	assert.Equal(t, subID, call.Get("params.id").String())
}

func TestDialRelayFailures(t *testing.T) {
	_, err := DialRelay(context.Background(), RelayOptions{RelayURL: "ws://127.0.0.1:1"})
	assert.ErrorContains(t, err, "project id")

	relay := newFakeRelay(t)
	_, err = DialRelay(context.Background(), RelayOptions{RelayURL: relay.url(), ProjectID: "bad"})
	assert.ErrorContains(t, err, "401")
}

func TestRelayUserAgentAndRequestTimeout(t *testing.T) {
	ua := make(chan string, 1)
	upgrader := websocket.Upgrader{}
	silent := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		ua <- req.URL.Query().Get("ua")
		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer silent.Close()

	transport, err := DialRelay(context.Background(), RelayOptions{
		RelayURL:       "ws" + strings.TrimPrefix(silent.URL, "http"),
		ProjectID:      "project",
		UserAgent:      "wc-2/go-2.0.0/moff-wallet-staging",
		RequestTimeout: 50 * time.Millisecond,
	})
	require.NoError(t, err)
	defer transport.Close()
	assert.Equal(t, "wc-2/go-2.0.0/moff-wallet-staging", <-ua)

	_, err = transport.Subscribe(context.Background(), testTopic)
	assert.ErrorContains(t, err, "timed out")
}

func TestRelayCallsFailAfterClose(t *testing.T) {
	relay := newFakeRelay(t)
	transport, err := DialRelay(context.Background(), RelayOptions{RelayURL: relay.url(), ProjectID: "project"})
	require.NoError(t, err)
	require.NoError(t, transport.Close())
	require.NoError(t, transport.Close())

	_, err = transport.Subscribe(context.Background(), testTopic)
	assert.ErrorIs(t, err, ErrClientClosed)
}

func TestIDGeneratorIsMonotonic(t *testing.T) {
	g := newIDGenerator()
	last := g.Next()
	for i := 0; i < 1000; i++ {
		next := g.Next()
		assert.Greater(t, next, last)
		last = next
	}
	assert.Less(t, last, int64(1)<<53)
}
