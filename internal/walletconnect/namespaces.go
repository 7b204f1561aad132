package walletconnect

import (
	"sort"
	"strings"

	"gopkg.in/fatih/set.v0"
	"moff.io/moff-wallet/pkg/errors"
)

// BuildApprovedNamespaces checks a proposal against what the wallet supports
// and returns the namespaces to approve it with.
//
// Every required namespace must be supported, and its chains, methods and
// events must all be supported. Each approved namespace carries exactly the
// supported chains, methods, events and accounts, never anything taken from
// the proposal.
func BuildApprovedNamespaces(proposal ProposalParams, supported Namespaces) (Namespaces, error) {
	for _, key := range sortedKeys(proposal.RequiredNamespaces) {
		required := proposal.RequiredNamespaces[key]
		nsKey := namespaceKey(key)
		ns, ok := supported[nsKey]
		if !ok {
			return nil, reasonError(UnsupportedNamespaceKey, key)
		}
		chains := append([]string(nil), required.Chains...)
		if strings.Contains(key, ":") {
			chains = append(chains, key)
		}
		if missing := missingFrom(ns.Chains, chains); len(missing) > 0 {
			return nil, reasonError(UnsupportedChains, missing...)
		}
		if missing := missingFrom(ns.Methods, required.Methods); len(missing) > 0 {
			return nil, reasonError(UnsupportedMethods, missing...)
		}
		if missing := missingFrom(ns.Events, required.Events); len(missing) > 0 {
			return nil, reasonError(UnsupportedEvents, missing...)
		}
	}

	requested := set.New(set.NonThreadSafe)
	for key := range proposal.RequiredNamespaces {
		requested.Add(namespaceKey(key))
	}
	for key := range proposal.OptionalNamespaces {
		requested.Add(namespaceKey(key))
	}

	approved := make(Namespaces)
	for key, ns := range supported {
		if requested.Size() > 0 && !requested.Has(key) {
			continue
		}
		approved[key] = Namespace{
			Chains:   append([]string(nil), ns.Chains...),
			Accounts: append([]string(nil), ns.Accounts...),
			Methods:  append([]string(nil), ns.Methods...),
			Events:   append([]string(nil), ns.Events...),
		}
	}
	if len(approved) == 0 {
		return nil, reasonError(UnsupportedNamespaceKey, "no supported namespace requested")
	}
	return approved, nil
}

// namespaceKey maps "eip155:1" style keys to their namespace "eip155".
func namespaceKey(key string) string {
	if i := strings.Index(key, ":"); i >= 0 {
		return key[:i]
	}
	return key
}

func missingFrom(supported, wanted []string) []string {
	have := set.New(set.NonThreadSafe)
	for _, s := range supported {
		have.Add(s)
	}
	var missing []string
	for _, w := range wanted {
		if !have.Has(w) {
			missing = append(missing, w)
		}
	}
	return missing
}

func reasonError(key string, details ...string) error {
	reason := SdkError(key)
	return errors.Errorf("%s %s", reason.Message, strings.Join(details, ", "))
}

func sortedKeys(m ProposalNamespaces) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
