// Package wallet reacts to WalletConnect session proposals and signing
// requests on behalf of a single ephemeral account.
package wallet

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"

	"moff.io/moff-wallet/internal/account"
	"moff.io/moff-wallet/internal/chains"
	"moff.io/moff-wallet/internal/walletconnect"
	"moff.io/moff-wallet/pkg/errors"
	"moff.io/moff-wallet/pkg/log"
)

const (
	MethodSendTransaction = "eth_sendTransaction"
	MethodPersonalSign    = "personal_sign"

	EventAccountsChanged = "accountsChanged"
	EventChainChanged    = "chainChanged"
)

var (
	SupportedMethods = []string{MethodSendTransaction, MethodPersonalSign}
	SupportedEvents  = []string{EventAccountsChanged, EventChainChanged}

	requestRejected  = walletconnect.ErrorReason{Code: 5000, Message: "User rejected"}
	userDisconnected = walletconnect.ErrorReason{Code: 5000, Message: "User disconnected"}
	// json-rpc invalid params, for requests whose message cannot be read
	invalidParams = walletconnect.ErrorReason{Code: -32602, Message: "Invalid params"}
)

var (
	ErrClientNotReady   = errors.New("wallet connect client not initialized")
	ErrNoIdentity       = errors.New("wallet identity not generated")
	ErrNoPendingRequest = errors.New("no pending request")
	ErrEmptyURI         = errors.New("pairing uri is empty")
)

// PendingPolicy decides what happens to a signing request that arrives
// while another one is still waiting for the operator.
type PendingPolicy string

const (
	// OverwritePending replaces the waiting request. The replaced request is
	// never answered.
	OverwritePending PendingPolicy = "overwrite"
	// RejectOverlapping keeps the waiting request and rejects the new one.
	RejectOverlapping PendingPolicy = "reject"
)

// SigningMode decides when a staged message is signed.
type SigningMode string

const (
	// EagerSigning signs on arrival. A rejected request discards its signature.
	EagerSigning SigningMode = "eager"
	// DeferredSigning signs only once the operator approves.
	DeferredSigning SigningMode = "deferred"
)

// ConnectionClient is the WalletConnect client surface the wallet uses.
type ConnectionClient interface {
	Pair(ctx context.Context, uri string) error
	ApproveSession(ctx context.Context, id int64, namespaces walletconnect.Namespaces) (*walletconnect.Session, error)
	RejectSession(ctx context.Context, id int64, reason walletconnect.ErrorReason) error
	RespondSessionRequest(ctx context.Context, topic string, response *walletconnect.JSONRPCResponse) error
	DisconnectSession(ctx context.Context, topic string, reason walletconnect.ErrorReason) error
	GetActiveSessions() map[string]*walletconnect.Session
	OnSessionProposal(h walletconnect.SessionProposalHandler)
	OnSessionRequest(h walletconnect.SessionRequestHandler)
	OnSessionDelete(h walletconnect.SessionDeleteHandler)
	Close() error
}

// ClientFactory connects a ConnectionClient with the given project credential.
type ClientFactory func(ctx context.Context, projectID string) (ConnectionClient, error)

type Options struct {
	ChainID       int
	PendingPolicy PendingPolicy
	SigningMode   SigningMode
	Events        EventPublisher
}

// Wallet owns one identity and at most one connection client.
type Wallet struct {
	factory ClientFactory
	chain   *chains.Blockchain
	policy  PendingPolicy
	signing SigningMode
	events  EventPublisher

	mu       sync.RWMutex
	state    State
	identity *account.Account
	client   ConnectionClient
}

func New(factory ClientFactory, opts Options) (*Wallet, error) {
	if factory == nil {
		return nil, errors.New("wallet connect client factory not present")
	}
	if opts.ChainID == 0 {
		opts.ChainID = chains.Mainnet.ID
	}
	chain, ok := chains.Lookup(opts.ChainID)
	if !ok {
		return nil, errors.Errorf("unsupported chain id %d", opts.ChainID)
	}
	switch opts.PendingPolicy {
	case "":
		opts.PendingPolicy = OverwritePending
	case OverwritePending, RejectOverlapping:
	default:
		return nil, errors.Errorf("unknown pending policy %q", opts.PendingPolicy)
	}
	switch opts.SigningMode {
	case "":
		opts.SigningMode = EagerSigning
	case EagerSigning, DeferredSigning:
	default:
		return nil, errors.Errorf("unknown signing mode %q", opts.SigningMode)
	}
	return &Wallet{
		factory: factory,
		chain:   chain,
		policy:  opts.PendingPolicy,
		signing: opts.SigningMode,
		events:  opts.Events,
	}, nil
}

// State returns a snapshot of the wallet state.
func (w *Wallet) State() State {
	w.mu.RLock()
	defer w.mu.RUnlock()
	s := w.state
	s.Pending = s.Pending.clone()
	return s
}

func (w *Wallet) Chain() *chains.Blockchain {
	return w.chain
}

func (w *Wallet) dispatch(e Event) State {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.state = Reduce(w.state, e)
	return w.state
}

func (w *Wallet) connection() ConnectionClient {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.client
}

func (w *Wallet) signer() *account.Account {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.identity
}

// GenerateIdentity replaces the wallet identity with a fresh account and
// returns its address.
func (w *Wallet) GenerateIdentity() (string, error) {
	acct, err := account.Generate()
	if err != nil {
		return "", err
	}
	w.mu.Lock()
	w.identity = acct
	w.state = Reduce(w.state, IdentityGenerated{Address: acct.Hex()})
	w.mu.Unlock()
	log.Infof("wallet - generated address %v", acct.Hex())
	return acct.Hex(), nil
}

// InitClient connects the connection client and resumes the first active
// session it already knows about. Failures are not retried.
//
// Handlers are registered last: the client holds messages that arrive
// before then, such as requests the relay queued for a restored session,
// and hands them over on registration.
func (w *Wallet) InitClient(ctx context.Context, projectID string) error {
	client, err := w.factory(ctx, projectID)
	if err != nil {
		log.Errorf("wallet - init wallet connect client: %v", err)
		return err
	}

	w.mu.Lock()
	previous := w.client
	w.client = client
	w.state = Reduce(w.state, ClientInitialized{})
	w.mu.Unlock()
	if previous != nil {
		if err := previous.Close(); err != nil {
			log.Warnf("wallet - close previous client: %v", err)
		}
	}

	w.resume(client)
	client.OnSessionDelete(w.onSessionDelete)
	client.OnSessionProposal(w.onSessionProposal)
	client.OnSessionRequest(w.onSessionRequest)
	return nil
}

// resume makes the first active session, by topic, the current one.
func (w *Wallet) resume(client ConnectionClient) {
	sessions := client.GetActiveSessions()
	if len(sessions) == 0 {
		return
	}
	topics := make([]string, 0, len(sessions))
	for topic := range sessions {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	w.dispatch(SessionResumed{Topic: topics[0]})
	log.Infof("wallet - resumed session %v", topics[0])
	a := newActivity(SessionResumedActivity)
	a.SessionTopic = topics[0]
	a.Peer = sessions[topics[0]].Peer.Metadata.Name
	w.publish(a)
}

// Pair hands uri to the connection client. State only changes on success.
func (w *Wallet) Pair(ctx context.Context, uri string) error {
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return ErrEmptyURI
	}
	client := w.connection()
	if client == nil {
		return ErrClientNotReady
	}
	if err := client.Pair(ctx, uri); err != nil {
		log.Errorf("wallet - pair: %v", err)
		return err
	}
	w.dispatch(Paired{})
	return nil
}

// SupportedNamespaces is everything the wallet offers for address.
func (w *Wallet) SupportedNamespaces(address string) walletconnect.Namespaces {
	return walletconnect.Namespaces{
		chains.Namespace: {
			Chains:   []string{w.chain.CAIP2()},
			Methods:  append([]string(nil), SupportedMethods...),
			Events:   append([]string(nil), SupportedEvents...),
			Accounts: []string{w.chain.AccountID(address)},
		},
	}
}

func (w *Wallet) onSessionProposal(ctx context.Context, proposal *walletconnect.SessionProposal) {
	client := w.connection()
	if client == nil {
		return
	}
	peer := proposal.Params.Proposer.Metadata.Name
	address := w.State().Address
	if address == "" {
		log.Warnf("wallet - rejecting proposal %d from %v: no identity", proposal.ID, peer)
		w.rejectProposal(ctx, client, proposal, "no identity")
		return
	}
	namespaces, err := walletconnect.BuildApprovedNamespaces(proposal.Params, w.SupportedNamespaces(address))
	if err != nil {
		log.Warnf("wallet - rejecting proposal %d from %v: %v", proposal.ID, peer, err)
		w.rejectProposal(ctx, client, proposal, err.Error())
		return
	}
	session, err := client.ApproveSession(ctx, proposal.ID, namespaces)
	if err != nil {
		log.Errorf("wallet - approve proposal %d: %v", proposal.ID, err)
		return
	}
	w.dispatch(SessionApproved{Topic: session.Topic})
	log.Infof("wallet - session %v approved for %v", session.Topic, peer)

	a := newActivity(SessionApprovedActivity)
	a.SessionTopic = session.Topic
	a.Peer = peer
	w.publish(a)
}

func (w *Wallet) rejectProposal(ctx context.Context, client ConnectionClient, proposal *walletconnect.SessionProposal, why string) {
	if err := client.RejectSession(ctx, proposal.ID, walletconnect.SdkError(walletconnect.UserRejected)); err != nil {
		log.Errorf("wallet - reject proposal %d: %v", proposal.ID, err)
		return
	}
	a := newActivity(SessionRejectedActivity)
	a.Peer = proposal.Params.Proposer.Metadata.Name
	a.Reason = why
	w.publish(a)
}

func (w *Wallet) onSessionRequest(ctx context.Context, request *walletconnect.SessionRequest) {
	client := w.connection()
	if client == nil {
		return
	}
	method := request.Params.Request.Method
	if !supportedMethod(method) {
		log.Warnf("wallet - request %d: unsupported method %v", request.ID, method)
		w.respond(ctx, client, request.Topic,
			walletconnect.NewErrorResponse(request.ID, walletconnect.SdkError(walletconnect.UnsupportedMethods)))
		return
	}
	payload, err := firstParamAsBytes(request.Params.Request)
	if err != nil {
		log.Errorf("wallet - request %d: %v", request.ID, err)
		w.respond(ctx, client, request.Topic, walletconnect.NewErrorResponse(request.ID, invalidParams))
		return
	}
	pending := &PendingRequest{
		ID:      request.ID,
		Method:  method,
		Message: account.Text(payload),
		Topic:   request.Topic,
		Payload: payload,
	}
	if w.signing == EagerSigning {
		if pending.Response, err = w.sign(pending); err != nil {
			log.Errorf("wallet - request %d: %v", request.ID, err)
			return
		}
	}

	w.mu.Lock()
	current := w.state.Pending
	if current != nil && w.policy == RejectOverlapping {
		w.mu.Unlock()
		log.Warnf("wallet - request %d rejected: request %d still pending", request.ID, current.ID)
		w.respond(ctx, client, request.Topic, walletconnect.NewErrorResponse(request.ID, requestRejected))
		a := newActivity(RequestDroppedActivity)
		a.SessionTopic = request.Topic
		a.RequestID = request.ID
		a.Method = method
		a.Reason = "request pending"
		w.publish(a)
		return
	}
	w.state = Reduce(w.state, RequestStaged{Request: pending})
	w.mu.Unlock()

	if current != nil {
		log.Warnf("wallet - request %d overwrites pending request %d, which will not be answered", request.ID, current.ID)
		a := newActivity(RequestDroppedActivity)
		a.SessionTopic = current.Topic
		a.RequestID = current.ID
		a.Method = current.Method
		a.Reason = "overwritten"
		w.publish(a)
	}
	log.Infof("wallet - request %d (%v) waiting for approval", request.ID, method)
	a := newActivity(RequestStagedActivity)
	a.SessionTopic = request.Topic
	a.RequestID = request.ID
	a.Method = method
	w.publish(a)
}

func (w *Wallet) onSessionDelete(_ context.Context, deleted *walletconnect.SessionDelete) {
	w.dispatch(PeerDisconnected{Topic: deleted.Topic})
	log.Infof("wallet - session %v deleted by peer: %v", deleted.Topic, deleted.Reason.Message)
	a := newActivity(SessionDisconnectedActivity)
	a.SessionTopic = deleted.Topic
	a.Reason = deleted.Reason.Message
	w.publish(a)
}

// ApprovePendingRequest sends the signed response of the pending request.
func (w *Wallet) ApprovePendingRequest(ctx context.Context) error {
	pending, client, err := w.takePending()
	if err != nil {
		return err
	}
	if pending.Response == nil {
		if pending.Response, err = w.sign(pending); err != nil {
			w.dispatch(RequestRestored{Request: pending})
			return err
		}
	}
	if err := client.RespondSessionRequest(ctx, pending.Topic, pending.Response); err != nil {
		w.dispatch(RequestRestored{Request: pending})
		log.Errorf("wallet - approve request %d: %v", pending.ID, err)
		return err
	}
	a := newActivity(RequestApprovedActivity)
	a.SessionTopic = pending.Topic
	a.RequestID = pending.ID
	a.Method = pending.Method
	w.publish(a)
	return nil
}

// RejectPendingRequest answers the pending request with a user rejection.
func (w *Wallet) RejectPendingRequest(ctx context.Context) error {
	pending, client, err := w.takePending()
	if err != nil {
		return err
	}
	resp := walletconnect.NewErrorResponse(pending.ID, requestRejected)
	if err := client.RespondSessionRequest(ctx, pending.Topic, resp); err != nil {
		w.dispatch(RequestRestored{Request: pending})
		log.Errorf("wallet - reject request %d: %v", pending.ID, err)
		return err
	}
	a := newActivity(RequestRejectedActivity)
	a.SessionTopic = pending.Topic
	a.RequestID = pending.ID
	a.Method = pending.Method
	w.publish(a)
	return nil
}

// takePending removes the pending request so that only one caller ever
// answers it.
func (w *Wallet) takePending() (*PendingRequest, ConnectionClient, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.client == nil {
		return nil, nil, ErrClientNotReady
	}
	pending := w.state.Pending
	if pending == nil {
		return nil, nil, ErrNoPendingRequest
	}
	w.state = Reduce(w.state, RequestCleared{ID: pending.ID})
	return pending, w.client, nil
}

// Disconnect ends the session on topic, or the current session when topic
// is empty. Local state is cleared whatever the client reports.
func (w *Wallet) Disconnect(ctx context.Context, topic string) error {
	if topic == "" {
		topic = w.State().SessionTopic
	}
	var err error
	if client := w.connection(); client != nil && topic != "" {
		err = client.DisconnectSession(ctx, topic, userDisconnected)
		if errors.Is(err, walletconnect.ErrUnknownSession) {
			log.Warnf("wallet - session %v already gone", topic)
			err = nil
		}
		if err != nil {
			log.Errorf("wallet - disconnect %v: %v", topic, err)
		}
	}
	w.dispatch(Disconnected{Topic: topic})

	a := newActivity(SessionDisconnectedActivity)
	a.SessionTopic = topic
	a.Reason = userDisconnected.Message
	w.publish(a)
	return err
}

// Close releases the connection client.
func (w *Wallet) Close() error {
	w.mu.Lock()
	client := w.client
	w.client = nil
	w.state.ClientReady = false
	w.mu.Unlock()
	if client == nil {
		return nil
	}
	return client.Close()
}

func (w *Wallet) respond(ctx context.Context, client ConnectionClient, topic string, resp *walletconnect.JSONRPCResponse) {
	if err := client.RespondSessionRequest(ctx, topic, resp); err != nil {
		log.Errorf("wallet - respond to request %d: %v", resp.ID, err)
	}
}

func (w *Wallet) sign(p *PendingRequest) (*walletconnect.JSONRPCResponse, error) {
	acct := w.signer()
	if acct == nil {
		return nil, ErrNoIdentity
	}
	payload := p.Payload
	if payload == nil {
		payload = []byte(p.Message)
	}
	sig, err := acct.SignMessage(payload)
	if err != nil {
		return nil, err
	}
	return walletconnect.NewResultResponse(p.ID, sig), nil
}

func supportedMethod(method string) bool {
	for _, m := range SupportedMethods {
		if m == method {
			return true
		}
	}
	return false
}

// firstParamAsBytes decodes the first positional param, a hex string.
func firstParamAsBytes(req walletconnect.Request) ([]byte, error) {
	params, err := req.PositionalParams()
	if err != nil {
		return nil, errors.Wrapf(err, "%v params are not positional", req.Method)
	}
	if len(params) == 0 {
		return nil, errors.Errorf("%v has no params", req.Method)
	}
	var encoded string
	if err := json.Unmarshal(params[0], &encoded); err != nil {
		return nil, errors.Errorf("%v first param is not a hex string", req.Method)
	}
	return account.HexToBytes(encoded)
}
