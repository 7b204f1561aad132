package walletconnect

import (
	"context"
	"encoding/json"
	"time"
)

// Metadata describes a peer application.
type Metadata struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	URL         string   `json:"url"`
	Icons       []string `json:"icons"`
}

type Relay struct {
	Protocol string `json:"protocol"`
	Data     string `json:"data,omitempty"`
}

// ProposalNamespace is what a peer asks for under one namespace key.
type ProposalNamespace struct {
	Chains  []string `json:"chains,omitempty"`
	Methods []string `json:"methods"`
	Events  []string `json:"events"`
}

// Namespace is what a wallet grants under one namespace key.
type Namespace struct {
	Chains   []string `json:"chains,omitempty"`
	Accounts []string `json:"accounts"`
	Methods  []string `json:"methods"`
	Events   []string `json:"events"`
}

type (
	ProposalNamespaces map[string]ProposalNamespace
	Namespaces         map[string]Namespace
)

type Participant struct {
	PublicKey string   `json:"publicKey"`
	Metadata  Metadata `json:"metadata"`
}

// ProposalParams are the params of a wc_sessionPropose request.
type ProposalParams struct {
	ID                 int64              `json:"id"`
	ExpiryTimestamp    int64              `json:"expiryTimestamp,omitempty"`
	Relays             []Relay            `json:"relays"`
	Proposer           Participant        `json:"proposer"`
	RequiredNamespaces ProposalNamespaces `json:"requiredNamespaces"`
	OptionalNamespaces ProposalNamespaces `json:"optionalNamespaces,omitempty"`
	PairingTopic       string             `json:"pairingTopic"`
	SessionProperties  map[string]string  `json:"sessionProperties,omitempty"`
}

// SessionProposal is emitted when a peer proposes a session over a pairing.
type SessionProposal struct {
	ID     int64          `json:"id"`
	Params ProposalParams `json:"params"`
}

// Request is the inner method call of a wc_sessionRequest.
type Request struct {
	Method          string          `json:"method"`
	Params          json.RawMessage `json:"params"`
	ExpiryTimestamp int64           `json:"expiryTimestamp,omitempty"`
}

// PositionalParams decodes Params as a JSON array.
func (r Request) PositionalParams() ([]json.RawMessage, error) {
	var params []json.RawMessage
	if err := json.Unmarshal(r.Params, &params); err != nil {
		return nil, err
	}
	return params, nil
}

type SessionRequestParams struct {
	Request Request `json:"request"`
	ChainID string  `json:"chainId"`
}

// SessionRequest is emitted when a peer calls a method over a session.
type SessionRequest struct {
	ID     int64                `json:"id"`
	Topic  string               `json:"topic"`
	Params SessionRequestParams `json:"params"`
}

// SessionDelete is emitted when a peer terminates a session.
type SessionDelete struct {
	ID     int64       `json:"id"`
	Topic  string      `json:"topic"`
	Reason ErrorReason `json:"reason"`
}

// Session is an established, topic-identified channel with a peer.
type Session struct {
	Topic              string             `json:"topic"`
	PairingTopic       string             `json:"pairingTopic"`
	Relay              Relay              `json:"relay"`
	Expiry             int64              `json:"expiry"`
	Acknowledged       bool               `json:"acknowledged"`
	Controller         string             `json:"controller"`
	Namespaces         Namespaces         `json:"namespaces"`
	RequiredNamespaces ProposalNamespaces `json:"requiredNamespaces"`
	OptionalNamespaces ProposalNamespaces `json:"optionalNamespaces,omitempty"`
	Self               Participant        `json:"self"`
	Peer               Participant        `json:"peer"`
}

func (s *Session) Expired(now time.Time) bool {
	return s.Expiry != 0 && now.Unix() >= s.Expiry
}

func (s *Session) clone() *Session {
	cp := *s
	return &cp
}

// ErrorReason is the {code, message} pair carried by rejections and deletes.
type ErrorReason struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e ErrorReason) Error() string {
	return e.Message
}

const jsonRPCVersion = "2.0"

// JSONRPCRequest is a method call exchanged between peers.
type JSONRPCRequest struct {
	ID      int64       `json:"id"`
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
}

// JSONRPCResponse answers a JSONRPCRequest with exactly one of Result or Error.
type JSONRPCResponse struct {
	ID      int64        `json:"id"`
	JSONRPC string       `json:"jsonrpc"`
	Result  interface{}  `json:"result,omitempty"`
	Error   *ErrorReason `json:"error,omitempty"`
}

// NewResultResponse builds a success response to request id.
func NewResultResponse(id int64, result interface{}) *JSONRPCResponse {
	return &JSONRPCResponse{ID: id, JSONRPC: jsonRPCVersion, Result: result}
}

// NewErrorResponse builds an error response to request id.
func NewErrorResponse(id int64, reason ErrorReason) *JSONRPCResponse {
	return &JSONRPCResponse{ID: id, JSONRPC: jsonRPCVersion, Error: &reason}
}

func (r *JSONRPCResponse) IsError() bool {
	return r.Error != nil
}

// MarshalJSON always emits exactly one of "result" or "error", so a zero
// result such as false is not dropped.
func (r JSONRPCResponse) MarshalJSON() ([]byte, error) {
	if r.Error != nil {
		return json.Marshal(struct {
			ID      int64        `json:"id"`
			JSONRPC string       `json:"jsonrpc"`
			Error   *ErrorReason `json:"error"`
		}{r.ID, r.JSONRPC, r.Error})
	}
	return json.Marshal(struct {
		ID      int64       `json:"id"`
		JSONRPC string      `json:"jsonrpc"`
		Result  interface{} `json:"result"`
	}{r.ID, r.JSONRPC, r.Result})
}

type (
	SessionProposalHandler func(ctx context.Context, proposal *SessionProposal)
	SessionRequestHandler  func(ctx context.Context, request *SessionRequest)
	SessionDeleteHandler   func(ctx context.Context, deleted *SessionDelete)
)
