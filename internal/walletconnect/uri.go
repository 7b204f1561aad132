package walletconnect

import (
	"encoding/hex"
	"net/url"
	"strconv"
	"strings"

	"moff.io/moff-wallet/pkg/errors"
)

const (
	uriScheme       = "wc"
	protocolVersion = 2
	relayProtocol   = "irn"
)

// PairingURI is a parsed wc: pairing string.
type PairingURI struct {
	Topic           string
	Version         int
	SymKey          []byte
	Relay           Relay
	ExpiryTimestamp int64
}

// ParsePairingURI parses wc:<topic>@2?relay-protocol=irn&symKey=<hex>.
func ParsePairingURI(raw string) (*PairingURI, error) {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, uriScheme+":") {
		return nil, errors.Wrapf(ErrMalformedURI, "missing %s: scheme", uriScheme)
	}
	rest := strings.TrimPrefix(raw, uriScheme+":")
	// older dapps emit wc://topic@2
	rest = strings.TrimPrefix(rest, "//")

	path, query := rest, ""
	if i := strings.Index(rest, "?"); i >= 0 {
		path, query = rest[:i], rest[i+1:]
	}
	at := strings.LastIndex(path, "@")
	if at <= 0 {
		return nil, errors.Wrap(ErrMalformedURI, "missing topic or version")
	}
	topic := path[:at]
	version, err := strconv.Atoi(path[at+1:])
	if err != nil {
		return nil, errors.Wrapf(ErrMalformedURI, "invalid version %q", path[at+1:])
	}
	if version != protocolVersion {
		return nil, errors.Wrapf(ErrMalformedURI, "unsupported version %d", version)
	}
	if _, err := hex.DecodeString(topic); err != nil || len(topic) != 64 {
		return nil, errors.Wrapf(ErrMalformedURI, "invalid topic %q", topic)
	}

	values, err := url.ParseQuery(query)
	if err != nil {
		return nil, errors.Wrapf(ErrMalformedURI, "invalid query: %v", err)
	}
	symKey, err := hex.DecodeString(values.Get("symKey"))
	if err != nil || len(symKey) != keyLength {
		return nil, errors.Wrap(ErrMalformedURI, "invalid symKey")
	}
	relay := Relay{
		Protocol: values.Get("relay-protocol"),
		Data:     values.Get("relay-data"),
	}
	if relay.Protocol == "" {
		relay.Protocol = relayProtocol
	}
	uri := &PairingURI{
		Topic:   topic,
		Version: version,
		SymKey:  symKey,
		Relay:   relay,
	}
	if exp := values.Get("expiryTimestamp"); exp != "" {
		uri.ExpiryTimestamp, err = strconv.ParseInt(exp, 10, 64)
		if err != nil {
			return nil, errors.Wrapf(ErrMalformedURI, "invalid expiryTimestamp %q", exp)
		}
	}
	return uri, nil
}

func (u *PairingURI) String() string {
	values := url.Values{}
	values.Set("relay-protocol", u.Relay.Protocol)
	if u.Relay.Data != "" {
		values.Set("relay-data", u.Relay.Data)
	}
	values.Set("symKey", hex.EncodeToString(u.SymKey))
	if u.ExpiryTimestamp != 0 {
		values.Set("expiryTimestamp", strconv.FormatInt(u.ExpiryTimestamp, 10))
	}
	return uriScheme + ":" + u.Topic + "@" + strconv.Itoa(u.Version) + "?" + values.Encode()
}
