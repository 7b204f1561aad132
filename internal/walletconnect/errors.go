package walletconnect

import "moff.io/moff-wallet/pkg/errors"

// SDK error keys understood by SdkError.
const (
	UserRejected            = "USER_REJECTED"
	UserDisconnected        = "USER_DISCONNECTED"
	UnsupportedChains       = "UNSUPPORTED_CHAINS"
	UnsupportedMethods      = "UNSUPPORTED_METHODS"
	UnsupportedEvents       = "UNSUPPORTED_EVENTS"
	UnsupportedNamespaceKey = "UNSUPPORTED_NAMESPACE_KEY"
)

var sdkErrors = map[string]ErrorReason{
	UserRejected:            {Code: 5000, Message: "User rejected."},
	UnsupportedChains:       {Code: 5100, Message: "Unsupported chains."},
	UnsupportedMethods:      {Code: 5101, Message: "Unsupported methods."},
	UnsupportedEvents:       {Code: 5102, Message: "Unsupported events."},
	UnsupportedNamespaceKey: {Code: 5104, Message: "Unsupported namespace key."},
	UserDisconnected:        {Code: 6000, Message: "User disconnected."},
}

// SdkError returns the standard reason registered under key, or an
// unknown-error reason for keys it does not know.
func SdkError(key string) ErrorReason {
	if reason, ok := sdkErrors[key]; ok {
		return reason
	}
	return ErrorReason{Code: 0, Message: "Unknown error: " + key}
}

var (
	ErrMalformedURI   = errors.New("malformed pairing uri")
	ErrNoMatchingKey  = errors.New("no matching key")
	ErrUnknownSession = errors.New("unknown session topic")
	ErrUnknownPropose = errors.New("unknown session proposal")
	ErrClientClosed   = errors.New("relay client closed")
)
