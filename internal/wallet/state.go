package wallet

import "moff.io/moff-wallet/internal/walletconnect"

// PendingRequest is a signing request waiting for the operator to decide.
type PendingRequest struct {
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Message string `json:"message"`
	Topic   string `json:"topic"`
	// Payload is the decoded message as sent. Message is its text form and
	// may be lossy; the signature always covers Payload.
	Payload []byte `json:"-"`
	// Response is the prepared success response. It is nil until the
	// message has been signed.
	Response *walletconnect.JSONRPCResponse `json:"-"`
}

func (p *PendingRequest) clone() *PendingRequest {
	if p == nil {
		return nil
	}
	cp := *p
	return &cp
}

// State is everything the wallet knows about itself and its peer.
// It only changes through Reduce.
type State struct {
	Address      string          `json:"address"`
	ClientReady  bool            `json:"client_ready"`
	Connected    bool            `json:"connected"`
	SessionTopic string          `json:"session_topic,omitempty"`
	Pending      *PendingRequest `json:"pending,omitempty"`
}

// Event is a state transition input.
type Event interface {
	event()
}

type (
	IdentityGenerated struct{ Address string }
	ClientInitialized struct{}
	Paired            struct{}
	SessionApproved   struct{ Topic string }
	SessionResumed    struct{ Topic string }
	// RequestStaged replaces whatever request is pending.
	RequestStaged struct{ Request *PendingRequest }
	// RequestCleared removes the pending request if it is still request ID.
	RequestCleared struct{ ID int64 }
	// RequestRestored puts a request back after a failed send, unless another
	// request took the slot meanwhile.
	RequestRestored struct{ Request *PendingRequest }
	// Disconnected ends Topic, or the current session when Topic is empty.
	Disconnected struct{ Topic string }
	// PeerDisconnected only applies when Topic is the current session.
	PeerDisconnected struct{ Topic string }
)

func (IdentityGenerated) event() {}
func (ClientInitialized) event() {}
func (Paired) event()            {}
func (SessionApproved) event()   {}
func (SessionResumed) event()    {}
func (RequestStaged) event()     {}
func (RequestCleared) event()    {}
func (RequestRestored) event()   {}
func (Disconnected) event()      {}
func (PeerDisconnected) event()  {}

// Reduce returns the state that follows s after e.
func Reduce(s State, e Event) State {
	switch e := e.(type) {
	case IdentityGenerated:
		s.Address = e.Address
	case ClientInitialized:
		s.ClientReady = true
	case Paired:
		s.Connected = true
	case SessionApproved:
		s.Connected = true
		s.SessionTopic = e.Topic
	case SessionResumed:
		s.Connected = true
		s.SessionTopic = e.Topic
	case RequestStaged:
		s.Pending = e.Request.clone()
	case RequestCleared:
		if s.Pending != nil && s.Pending.ID == e.ID {
			s.Pending = nil
		}
	case RequestRestored:
		if s.Pending == nil {
			s.Pending = e.Request.clone()
		}
	case Disconnected:
		// ending another session leaves the current one alone
		if e.Topic == "" || s.SessionTopic == "" || e.Topic == s.SessionTopic {
			s = disconnect(s)
		} else if s.Pending != nil && s.Pending.Topic == e.Topic {
			s.Pending = nil
		}
	case PeerDisconnected:
		if e.Topic == s.SessionTopic {
			s = disconnect(s)
		}
	}
	return s
}

func disconnect(s State) State {
	if s.Pending != nil && s.Pending.Topic == s.SessionTopic {
		s.Pending = nil
	}
	s.Connected = false
	s.SessionTopic = ""
	return s
}
