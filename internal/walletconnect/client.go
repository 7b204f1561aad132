package walletconnect

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"moff.io/moff-wallet/pkg/errors"
	"moff.io/moff-wallet/pkg/log"
)

const (
	methodSessionPropose = "wc_sessionPropose"
	methodSessionSettle  = "wc_sessionSettle"
	methodSessionRequest = "wc_sessionRequest"
	methodSessionDelete  = "wc_sessionDelete"
	methodSessionPing    = "wc_sessionPing"
	methodSessionEvent   = "wc_sessionEvent"
	methodPairingDelete  = "wc_pairingDelete"
	methodPairingPing    = "wc_pairingPing"
)

// relay publish tags, see the WalletConnect v2 relay RPC tag table
const (
	tagPairingDeleteResponse  = 1001
	tagPairingPingResponse    = 1003
	tagSessionProposeResponse = 1101
	tagSessionSettleRequest   = 1102
	tagSessionRequestResponse = 1109
	tagSessionDeleteRequest   = 1112
	tagSessionDeleteResponse  = 1113
	tagSessionPingResponse    = 1115
	tagSessionProposeReject   = 1121
)

const (
	fiveMinutes       = 5 * time.Minute
	oneDay            = 24 * time.Hour
	DefaultSessionTTL = 7 * oneDay
	inboxSize         = 256
)

// Options configures Init.
type Options struct {
	ProjectID      string
	RelayURL       string
	UserAgent      string
	Metadata       Metadata
	Store          Store
	SessionTTL     time.Duration
	PublishRate    int
	RequestTimeout time.Duration
	// Transport replaces the relay websocket, mostly for tests.
	Transport Transport
	Now       func() time.Time
}

type outboundRequest struct {
	method string
	topic  string
}

// Client is the wallet side of a WalletConnect v2 sign client.
type Client struct {
	transport  Transport
	store      Store
	metadata   Metadata
	sessionTTL time.Duration
	now        func() time.Time
	ids        *idGenerator

	mu            sync.RWMutex
	keys          map[string][]byte
	subscriptions map[string]string
	pairings      map[string]*PairingURI
	proposals     map[int64]*ProposalParams
	sessions      map[string]*Session
	requests      map[int64]outboundRequest

	handlersMu sync.RWMutex
	onProposal SessionProposalHandler
	onRequest  SessionRequestHandler
	onDelete   SessionDeleteHandler
	// held are proposals and requests that arrived before their handler.
	held []*Message

	inbox  chan *Message
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Init connects to the relay and restores persisted sessions. It returns
// once the relay handshake has completed; it does not retry.
func Init(ctx context.Context, opts Options) (*Client, error) {
	if opts.Store == nil {
		opts.Store = NewMemoryStore()
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = DefaultSessionTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	transport := opts.Transport
	if transport == nil {
		var err error
		transport, err = DialRelay(ctx, RelayOptions{
			RelayURL:       opts.RelayURL,
			ProjectID:      opts.ProjectID,
			UserAgent:      opts.UserAgent,
			PublishRate:    opts.PublishRate,
			RequestTimeout: opts.RequestTimeout,
		})
		if err != nil {
			return nil, err
		}
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	c := &Client{
		transport:     transport,
		store:         opts.Store,
		metadata:      opts.Metadata,
		sessionTTL:    opts.SessionTTL,
		now:           opts.Now,
		ids:           newIDGenerator(),
		keys:          make(map[string][]byte),
		subscriptions: make(map[string]string),
		pairings:      make(map[string]*PairingURI),
		proposals:     make(map[int64]*ProposalParams),
		sessions:      make(map[string]*Session),
		requests:      make(map[int64]outboundRequest),
		inbox:         make(chan *Message, inboxSize),
		ctx:           loopCtx,
		cancel:        cancel,
	}
	transport.OnMessage(c.enqueue)
	c.wg.Add(1)
	go c.loop()

	if err := c.restoreSessions(ctx); err != nil {
		c.Close()
		return nil, err
	}
	log.Infof("wallet connect - client initialized with %d active sessions", len(c.GetActiveSessions()))
	return c, nil
}

// OnSessionProposal registers h and redelivers proposals that were held
// for want of a handler.
func (c *Client) OnSessionProposal(h SessionProposalHandler) {
	c.handlersMu.Lock()
	c.onProposal = h
	held := c.takeHeld()
	c.handlersMu.Unlock()
	c.redeliver(held)
}

// OnSessionRequest registers h and redelivers requests that were held for
// want of a handler, e.g. those the relay queued for a restored session.
func (c *Client) OnSessionRequest(h SessionRequestHandler) {
	c.handlersMu.Lock()
	c.onRequest = h
	held := c.takeHeld()
	c.handlersMu.Unlock()
	c.redeliver(held)
}

func (c *Client) OnSessionDelete(h SessionDeleteHandler) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.onDelete = h
}

// Pair subscribes to the pairing topic named by uri. The peer's session
// proposal arrives afterwards through the session proposal handler.
func (c *Client) Pair(ctx context.Context, uri string) error {
	parsed, err := ParsePairingURI(uri)
	if err != nil {
		return err
	}
	if parsed.ExpiryTimestamp != 0 && c.now().Unix() >= parsed.ExpiryTimestamp {
		return errors.Errorf("pairing uri expired at %d", parsed.ExpiryTimestamp)
	}
	c.mu.Lock()
	if _, exists := c.pairings[parsed.Topic]; exists {
		c.mu.Unlock()
		return errors.Errorf("pairing %v already exists", parsed.Topic)
	}
	c.keys[parsed.Topic] = parsed.SymKey
	c.pairings[parsed.Topic] = parsed
	c.mu.Unlock()

	if err := c.subscribe(ctx, parsed.Topic); err != nil {
		c.mu.Lock()
		delete(c.keys, parsed.Topic)
		delete(c.pairings, parsed.Topic)
		c.mu.Unlock()
		return err
	}
	log.Infof("wallet connect - paired on topic %v", parsed.Topic)
	return nil
}

// ApproveSession settles the proposal id with namespaces and returns the new session.
func (c *Client) ApproveSession(ctx context.Context, id int64, namespaces Namespaces) (*Session, error) {
	c.mu.Lock()
	proposal, ok := c.proposals[id]
	delete(c.proposals, id)
	c.mu.Unlock()
	if !ok {
		return nil, errors.Wrapf(ErrUnknownPropose, "proposal %d", id)
	}
	if proposal.ExpiryTimestamp != 0 && c.now().Unix() >= proposal.ExpiryTimestamp {
		return nil, errors.Errorf("proposal %d expired", id)
	}

	self, err := GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	symKey, err := DeriveSymKey(self.Private, proposal.Proposer.PublicKey)
	if err != nil {
		return nil, err
	}
	topic := TopicFromKey(symKey)
	c.mu.Lock()
	c.keys[topic] = symKey
	c.mu.Unlock()
	if err := c.subscribe(ctx, topic); err != nil {
		c.mu.Lock()
		delete(c.keys, topic)
		c.mu.Unlock()
		return nil, err
	}

	relay := Relay{Protocol: relayProtocol}
	err = c.sendResponse(ctx, proposal.PairingTopic, NewResultResponse(id, map[string]interface{}{
		"relay":              relay,
		"responderPublicKey": self.PublicHex(),
	}), PublishOptions{TTL: fiveMinutes, Tag: tagSessionProposeResponse})
	if err != nil {
		return nil, err
	}

	session := &Session{
		Topic:              topic,
		PairingTopic:       proposal.PairingTopic,
		Relay:              relay,
		Expiry:             c.now().Add(c.sessionTTL).Unix(),
		Controller:         self.PublicHex(),
		Namespaces:         namespaces,
		RequiredNamespaces: proposal.RequiredNamespaces,
		OptionalNamespaces: proposal.OptionalNamespaces,
		Self:               Participant{PublicKey: self.PublicHex(), Metadata: c.metadata},
		Peer:               proposal.Proposer,
	}
	settle := map[string]interface{}{
		"relay":              relay,
		"namespaces":         namespaces,
		"requiredNamespaces": proposal.RequiredNamespaces,
		"optionalNamespaces": proposal.OptionalNamespaces,
		"pairingTopic":       proposal.PairingTopic,
		"controller":         session.Self,
		"expiry":             session.Expiry,
	}
	if len(proposal.SessionProperties) > 0 {
		settle["sessionProperties"] = proposal.SessionProperties
	}
	if _, err := c.sendRequest(ctx, topic, methodSessionSettle, settle,
		PublishOptions{TTL: fiveMinutes, Tag: tagSessionSettleRequest}); err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.sessions[topic] = session
	c.mu.Unlock()
	if err := c.store.SaveSession(ctx, &StoredSession{Session: session, SymKey: hex.EncodeToString(symKey)}); err != nil {
		log.Error(errors.WrapAndReport(err, "persist session"))
	}
	log.Infof("wallet connect - session %v settled with %v", topic, proposal.Proposer.Metadata.Name)
	return session.clone(), nil
}

// RejectSession answers the proposal id with reason.
func (c *Client) RejectSession(ctx context.Context, id int64, reason ErrorReason) error {
	c.mu.Lock()
	proposal, ok := c.proposals[id]
	delete(c.proposals, id)
	c.mu.Unlock()
	if !ok {
		return errors.Wrapf(ErrUnknownPropose, "proposal %d", id)
	}
	return c.sendResponse(ctx, proposal.PairingTopic, NewErrorResponse(id, reason),
		PublishOptions{TTL: fiveMinutes, Tag: tagSessionProposeReject})
}

// RespondSessionRequest sends response to the peer of session topic.
func (c *Client) RespondSessionRequest(ctx context.Context, topic string, response *JSONRPCResponse) error {
	if !c.hasSession(topic) {
		return errors.Wrapf(ErrUnknownSession, "topic %v", topic)
	}
	if response.JSONRPC == "" {
		response.JSONRPC = jsonRPCVersion
	}
	return c.sendResponse(ctx, topic, response, PublishOptions{TTL: fiveMinutes, Tag: tagSessionRequestResponse})
}

// DisconnectSession notifies the peer and forgets the session. The session
// is forgotten even when the notification cannot be published.
func (c *Client) DisconnectSession(ctx context.Context, topic string, reason ErrorReason) error {
	if !c.hasSession(topic) {
		return errors.Wrapf(ErrUnknownSession, "topic %v", topic)
	}
	_, err := c.sendRequest(ctx, topic, methodSessionDelete, reason,
		PublishOptions{TTL: oneDay, Tag: tagSessionDeleteRequest})
	c.forgetSession(ctx, topic)
	return err
}

// GetActiveSessions returns unexpired sessions keyed by topic.
func (c *Client) GetActiveSessions() map[string]*Session {
	now := c.now()
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]*Session, len(c.sessions))
	for topic, s := range c.sessions {
		if s.Expired(now) {
			continue
		}
		out[topic] = s.clone()
	}
	return out
}

// Close stops the event loop and the relay connection.
func (c *Client) Close() error {
	c.cancel()
	err := c.transport.Close()
	c.wg.Wait()
	return err
}

func (c *Client) restoreSessions(ctx context.Context) error {
	stored, err := c.store.LoadSessions(ctx)
	if err != nil {
		return errors.Wrap(err, "load sessions")
	}
	now := c.now()
	for _, s := range stored {
		if s.Session == nil {
			continue
		}
		if s.Session.Expired(now) {
			if err := c.store.DeleteSession(ctx, s.Session.Topic); err != nil {
				log.Error(err)
			}
			continue
		}
		symKey, err := hex.DecodeString(s.SymKey)
		if err != nil || len(symKey) != keyLength {
			log.Warnf("wallet connect - dropping session %v with invalid key", s.Session.Topic)
			continue
		}
		c.mu.Lock()
		c.keys[s.Session.Topic] = symKey
		c.sessions[s.Session.Topic] = s.Session
		c.mu.Unlock()
		if err := c.subscribe(ctx, s.Session.Topic); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) subscribe(ctx context.Context, topic string) error {
	id, err := c.transport.Subscribe(ctx, topic)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.subscriptions[topic] = id
	c.mu.Unlock()
	return nil
}

func (c *Client) unsubscribe(ctx context.Context, topic string) {
	c.mu.Lock()
	id, ok := c.subscriptions[topic]
	delete(c.subscriptions, topic)
	c.mu.Unlock()
	if !ok {
		return
	}
	if err := c.transport.Unsubscribe(ctx, topic, id); err != nil {
		log.Warnf("wallet connect - unsubscribe %v: %v", topic, err)
	}
}

func (c *Client) hasSession(topic string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.sessions[topic]
	return ok
}

func (c *Client) forgetSession(ctx context.Context, topic string) {
	c.mu.Lock()
	delete(c.sessions, topic)
	delete(c.keys, topic)
	c.mu.Unlock()
	c.unsubscribe(ctx, topic)
	if err := c.store.DeleteSession(ctx, topic); err != nil {
		log.Error(errors.WrapAndReport(err, "delete persisted session"))
	}
}

func (c *Client) forgetPairing(ctx context.Context, topic string) {
	c.mu.Lock()
	delete(c.pairings, topic)
	delete(c.keys, topic)
	c.mu.Unlock()
	c.unsubscribe(ctx, topic)
}

func (c *Client) sendRequest(ctx context.Context, topic, method string, params interface{}, opts PublishOptions) (int64, error) {
	req := JSONRPCRequest{ID: c.ids.Next(), JSONRPC: jsonRPCVersion, Method: method, Params: params}
	c.mu.Lock()
	c.requests[req.ID] = outboundRequest{method: method, topic: topic}
	c.mu.Unlock()
	if err := c.publish(ctx, topic, req, opts); err != nil {
		c.mu.Lock()
		delete(c.requests, req.ID)
		c.mu.Unlock()
		return 0, err
	}
	return req.ID, nil
}

func (c *Client) sendResponse(ctx context.Context, topic string, resp *JSONRPCResponse, opts PublishOptions) error {
	return c.publish(ctx, topic, resp, opts)
}

func (c *Client) publish(ctx context.Context, topic string, payload interface{}, opts PublishOptions) error {
	c.mu.RLock()
	symKey, ok := c.keys[topic]
	c.mu.RUnlock()
	if !ok {
		return errors.Wrapf(ErrNoMatchingKey, "topic %v", topic)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "marshal json-rpc payload")
	}
	log.Debugf("wallet connect - publish %v: %s", topic, data)
	message, err := EncodeEnvelope(symKey, data)
	if err != nil {
		return err
	}
	return c.transport.Publish(ctx, topic, message, opts)
}

func (c *Client) enqueue(msg *Message) {
	select {
	case c.inbox <- msg:
	case <-c.ctx.Done():
	}
}

// loop handles inbound messages one at a time, in arrival order.
func (c *Client) loop() {
	defer c.wg.Done()
	for {
		select {
		case <-c.ctx.Done():
			return
		case msg := <-c.inbox:
			c.handleMessage(msg)
		}
	}
}

func (c *Client) handleMessage(msg *Message) {
	defer func() {
		if r := recover(); r != nil {
			log.Error(errors.ErrorfAndReport("wallet connect - handle message panic: %v", r))
		}
	}()
	c.mu.RLock()
	symKey, ok := c.keys[msg.Topic]
	c.mu.RUnlock()
	if !ok {
		log.Warnf("wallet connect - message on unknown topic %v", msg.Topic)
		return
	}
	payload, err := DecodeAndOpen(symKey, msg.Message)
	if err != nil {
		log.Errorf("wallet connect - decrypt message on %v: %v", msg.Topic, err)
		return
	}
	log.Debugf("wallet connect - receive %v: %s", msg.Topic, payload)

	parsed := gjson.ParseBytes(payload)
	if method := parsed.Get("method"); method.Exists() {
		c.handleRequest(msg, method.String(), payload)
		return
	}
	c.handleResponse(parsed)
}

func (c *Client) handleRequest(msg *Message, method string, payload []byte) {
	ctx := c.ctx
	topic := msg.Topic
	var req struct {
		ID     int64           `json:"id"`
		Params json.RawMessage `json:"params"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		log.Warnf("wallet connect - malformed %v request: %v", method, err)
		return
	}

	switch method {
	case methodSessionPropose:
		var params ProposalParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			log.Warnf("wallet connect - malformed session proposal: %v", err)
			return
		}
		params.ID = req.ID
		params.PairingTopic = topic
		c.mu.Lock()
		c.proposals[req.ID] = &params
		c.mu.Unlock()
		c.handlersMu.Lock()
		h := c.onProposal
		if h == nil {
			c.holdLocked(msg)
		}
		c.handlersMu.Unlock()
		if h != nil {
			h(ctx, &SessionProposal{ID: req.ID, Params: params})
		}

	case methodSessionRequest:
		if !c.hasSession(topic) {
			log.Warnf("wallet connect - session request %d on unknown session %v", req.ID, topic)
			return
		}
		var params SessionRequestParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			log.Warnf("wallet connect - malformed session request: %v", err)
			return
		}
		c.handlersMu.Lock()
		h := c.onRequest
		if h == nil {
			c.holdLocked(msg)
		}
		c.handlersMu.Unlock()
		if h != nil {
			h(ctx, &SessionRequest{ID: req.ID, Topic: topic, Params: params})
		}

	case methodSessionDelete:
		var reason ErrorReason
		_ = json.Unmarshal(req.Params, &reason)
		c.ack(ctx, topic, req.ID, tagSessionDeleteResponse)
		if !c.hasSession(topic) {
			return
		}
		c.forgetSession(ctx, topic)
		log.Infof("wallet connect - session %v deleted by peer: %v", topic, reason.Message)
		c.handlersMu.RLock()
		h := c.onDelete
		c.handlersMu.RUnlock()
		if h != nil {
			h(ctx, &SessionDelete{ID: req.ID, Topic: topic, Reason: reason})
		}

	case methodSessionPing:
		c.ack(ctx, topic, req.ID, tagSessionPingResponse)

	case methodPairingPing:
		c.ack(ctx, topic, req.ID, tagPairingPingResponse)

	case methodPairingDelete:
		c.ack(ctx, topic, req.ID, tagPairingDeleteResponse)
		c.forgetPairing(ctx, topic)

	case methodSessionEvent:
		log.Debugf("wallet connect - ignoring session event on %v", topic)

	default:
		log.Warnf("wallet connect - unsupported method %v on %v", method, topic)
	}
}

// holdLocked keeps msg for redelivery once a handler is registered. The
// oldest held message goes when the buffer is full. handlersMu must be held.
func (c *Client) holdLocked(msg *Message) {
	if len(c.held) >= inboxSize {
		log.Warnf("wallet connect - dropping held message on %v", c.held[0].Topic)
		c.held = c.held[1:]
	}
	log.Debugf("wallet connect - holding message on %v until a handler is registered", msg.Topic)
	c.held = append(c.held, msg)
}

// takeHeld empties the held buffer. handlersMu must be held.
func (c *Client) takeHeld() []*Message {
	held := c.held
	c.held = nil
	return held
}

func (c *Client) redeliver(held []*Message) {
	for _, msg := range held {
		c.enqueue(msg)
	}
}

func (c *Client) ack(ctx context.Context, topic string, id int64, tag int) {
	err := c.sendResponse(ctx, topic, NewResultResponse(id, true), PublishOptions{TTL: fiveMinutes, Tag: tag})
	if err != nil {
		log.Error(err)
	}
}

func (c *Client) handleResponse(parsed gjson.Result) {
	id := parsed.Get("id").Int()
	c.mu.Lock()
	req, ok := c.requests[id]
	delete(c.requests, id)
	c.mu.Unlock()
	if !ok {
		log.Debugf("wallet connect - response to unknown request %d", id)
		return
	}
	if errMsg := parsed.Get("error.message"); errMsg.Exists() {
		log.Warnf("wallet connect - %v %d failed: %v", req.method, id, errMsg.String())
		return
	}
	if req.method != methodSessionSettle || !parsed.Get("result").Bool() {
		return
	}
	c.mu.Lock()
	session, ok := c.sessions[req.topic]
	if ok {
		session.Acknowledged = true
		session = session.clone()
	}
	symKey := c.keys[req.topic]
	c.mu.Unlock()
	if !ok {
		return
	}
	if err := c.store.SaveSession(c.ctx, &StoredSession{Session: session, SymKey: hex.EncodeToString(symKey)}); err != nil {
		log.Error(errors.WrapAndReport(err, "persist acknowledged session"))
	}
	log.Infof("wallet connect - session %v acknowledged", req.topic)
}
