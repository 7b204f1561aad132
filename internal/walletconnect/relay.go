package walletconnect

import (
	"context"
	"encoding/json"
	"net/url"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"
	"go.uber.org/atomic"
	"go.uber.org/ratelimit"
	"moff.io/moff-wallet/pkg/errors"
	"moff.io/moff-wallet/pkg/log"
)

const (
	DefaultRelayURL = "wss://relay.walletconnect.org"

	methodSubscribe    = "irn_subscribe"
	methodUnsubscribe  = "irn_unsubscribe"
	methodPublish      = "irn_publish"
	methodSubscription = "irn_subscription"

	defaultRequestTimeout = 30 * time.Second
	defaultPublishRate    = 20
	sdkVersion            = "2.0.0"
)

// Message is a relay message delivered on a subscribed topic.
type Message struct {
	Topic       string `json:"topic"`
	Message     string `json:"message"`
	PublishedAt int64  `json:"publishedAt"`
	Tag         int    `json:"tag"`
}

type MessageHandler func(msg *Message)

// PublishOptions controls how long the relay keeps a message and how it is tagged.
type PublishOptions struct {
	TTL time.Duration
	Tag int
}

// Transport is the relay surface the client engine depends on.
type Transport interface {
	Subscribe(ctx context.Context, topic string) (string, error)
	Unsubscribe(ctx context.Context, topic, subscriptionID string) error
	Publish(ctx context.Context, topic, message string, opts PublishOptions) error
	OnMessage(handler MessageHandler)
	Close() error
}

type relayRequest struct {
	ID      int64       `json:"id"`
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
}

type relayResponse struct {
	ID      int64           `json:"id"`
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *ErrorReason    `json:"error,omitempty"`
}

type relayConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[int64]chan *relayResponse

	handlerMu sync.RWMutex
	handler   MessageHandler

	ids            *idGenerator
	limiter        ratelimit.Limiter
	requestTimeout time.Duration
	closed         atomic.Bool
	done           chan struct{}
}

// RelayOptions configures DialRelay.
type RelayOptions struct {
	RelayURL       string
	ProjectID      string
	UserAgent      string
	Identity       *ClientIdentity
	PublishRate    int
	// RequestTimeout bounds the websocket handshake and every irn_* call.
	RequestTimeout time.Duration
}

// DialRelay opens an authenticated websocket to the relay and starts reading.
// It returns once the websocket handshake has completed.
func DialRelay(ctx context.Context, opts RelayOptions) (Transport, error) {
	if opts.ProjectID == "" {
		return nil, errors.New("relay project id not present")
	}
	if opts.RelayURL == "" {
		opts.RelayURL = DefaultRelayURL
	}
	if opts.Identity == nil {
		id, err := NewClientIdentity()
		if err != nil {
			return nil, err
		}
		opts.Identity = id
	}
	if opts.UserAgent == "" {
		opts.UserAgent = formatUserAgent("moff-wallet")
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}
	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = opts.RequestTimeout
	auth, err := opts.Identity.SignJWT(opts.RelayURL, time.Now(), defaultAuthTTL)
	if err != nil {
		return nil, err
	}
	wsURL, err := formatRelayURL(opts.RelayURL, opts.ProjectID, auth, opts.UserAgent)
	if err != nil {
		return nil, err
	}
	log.Debugf("wallet connect - dialing relay %v", opts.RelayURL)
	conn, resp, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil {
			return nil, errors.Wrapf(err, "dial relay %v: http status %v", opts.RelayURL, resp.StatusCode)
		}
		return nil, errors.Wrapf(err, "dial relay %v", opts.RelayURL)
	}
	return newRelayConn(conn, opts.PublishRate, opts.RequestTimeout), nil
}

func newRelayConn(conn *websocket.Conn, publishRate int, requestTimeout time.Duration) *relayConn {
	if publishRate <= 0 {
		publishRate = defaultPublishRate
	}
	if requestTimeout <= 0 {
		requestTimeout = defaultRequestTimeout
	}
	r := &relayConn{
		conn:           conn,
		pending:        make(map[int64]chan *relayResponse),
		ids:            newIDGenerator(),
		limiter:        ratelimit.New(publishRate),
		requestTimeout: requestTimeout,
		done:           make(chan struct{}),
	}
	go r.readLoop()
	return r
}

func formatRelayURL(relayURL, projectID, auth, ua string) (string, error) {
	u, err := url.Parse(relayURL)
	if err != nil {
		return "", errors.Wrapf(err, "parse relay url %q", relayURL)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	q := u.Query()
	q.Set("auth", auth)
	q.Set("projectId", projectID)
	q.Set("ua", ua)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func formatUserAgent(app string) string {
	return strings.Join([]string{
		"wc-2",
		"go-" + sdkVersion,
		runtime.GOOS + "-" + runtime.GOARCH,
		app,
	}, "/")
}

func (r *relayConn) OnMessage(handler MessageHandler) {
	r.handlerMu.Lock()
	defer r.handlerMu.Unlock()
	r.handler = handler
}

func (r *relayConn) Subscribe(ctx context.Context, topic string) (string, error) {
	resp, err := r.call(ctx, methodSubscribe, map[string]string{"topic": topic})
	if err != nil {
		return "", errors.Wrapf(err, "subscribe topic %v", topic)
	}
	var id string
	if err := json.Unmarshal(resp.Result, &id); err != nil {
		return "", errors.Wrap(err, "decode subscription id")
	}
	return id, nil
}

func (r *relayConn) Unsubscribe(ctx context.Context, topic, subscriptionID string) error {
	_, err := r.call(ctx, methodUnsubscribe, map[string]string{"topic": topic, "id": subscriptionID})
	return errors.Wrapf(err, "unsubscribe topic %v", topic)
}

func (r *relayConn) Publish(ctx context.Context, topic, message string, opts PublishOptions) error {
	r.limiter.Take()
	_, err := r.call(ctx, methodPublish, map[string]interface{}{
		"topic":   topic,
		"message": message,
		"ttl":     int64(opts.TTL / time.Second),
		"tag":     opts.Tag,
	})
	return errors.Wrapf(err, "publish to topic %v", topic)
}

func (r *relayConn) Close() error {
	if !r.closed.CAS(false, true) {
		return nil
	}
	close(r.done)
	r.failPending()
	return r.conn.Close()
}

func (r *relayConn) call(ctx context.Context, method string, params interface{}) (*relayResponse, error) {
	if r.closed.Load() {
		return nil, ErrClientClosed
	}
	req := relayRequest{ID: r.ids.Next(), JSONRPC: jsonRPCVersion, Method: method, Params: params}
	ch := make(chan *relayResponse, 1)
	r.pendingMu.Lock()
	r.pending[req.ID] = ch
	r.pendingMu.Unlock()
	defer func() {
		r.pendingMu.Lock()
		delete(r.pending, req.ID)
		r.pendingMu.Unlock()
	}()

	if err := r.writeJSON(req); err != nil {
		return nil, err
	}
	timer := time.NewTimer(r.requestTimeout)
	defer timer.Stop()
	select {
	case resp, ok := <-ch:
		if !ok || resp == nil {
			return nil, ErrClientClosed
		}
		if resp.Error != nil {
			return nil, errors.Errorf("relay error %d: %s", resp.Error.Code, resp.Error.Message)
		}
		return resp, nil
	case <-timer.C:
		return nil, errors.Errorf("relay %s request %d timed out", method, req.ID)
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-r.done:
		return nil, ErrClientClosed
	}
}

func (r *relayConn) writeJSON(v interface{}) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	if err := r.conn.WriteJSON(v); err != nil {
		return errors.WrapAndReport(err, "write relay message")
	}
	return nil
}

func (r *relayConn) readLoop() {
	defer r.Close()
	for {
		msgType, data, err := r.conn.ReadMessage()
		if err != nil {
			if !r.closed.Load() {
				log.Errorf("wallet connect - relay read: %v", err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		r.dispatch(data)
	}
}

func (r *relayConn) dispatch(data []byte) {
	parsed := gjson.ParseBytes(data)
	if !parsed.Get("method").Exists() {
		var resp relayResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			log.Warnf("wallet connect - malformed relay response: %v", err)
			return
		}
		r.pendingMu.Lock()
		if ch, ok := r.pending[resp.ID]; ok {
			select {
			case ch <- &resp:
			default:
			}
		}
		r.pendingMu.Unlock()
		return
	}

	id := parsed.Get("id").Int()
	method := parsed.Get("method").String()
	if method != methodSubscription {
		log.Debugf("wallet connect - ignoring relay method %v", method)
		return
	}
	if err := r.writeJSON(JSONRPCResponse{ID: id, JSONRPC: jsonRPCVersion, Result: true}); err != nil {
		log.Error(err)
	}
	var msg Message
	if err := json.Unmarshal([]byte(parsed.Get("params.data").Raw), &msg); err != nil {
		log.Warnf("wallet connect - malformed subscription payload: %v", err)
		return
	}
	r.handlerMu.RLock()
	handler := r.handler
	r.handlerMu.RUnlock()
	if handler != nil {
		handler(&msg)
	}
}

func (r *relayConn) failPending() {
	r.pendingMu.Lock()
	defer r.pendingMu.Unlock()
	for id, ch := range r.pending {
		close(ch)
		delete(r.pending, id)
	}
}

// idGenerator yields JSON-RPC ids shaped like the reference SDK's
// (milliseconds * 1000 + counter) so they stay within JS safe integers.
type idGenerator struct {
	last atomic.Int64
}

func newIDGenerator() *idGenerator {
	return &idGenerator{}
}

func (g *idGenerator) Next() int64 {
	for {
		candidate := time.Now().UnixMilli() * 1000
		last := g.last.Load()
		if candidate <= last {
			candidate = last + 1
		}
		if g.last.CAS(last, candidate) {
			return candidate
		}
	}
}
