package walletconnect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func supportedEIP155() Namespaces {
	return Namespaces{
		"eip155": {
			Chains:   []string{"eip155:1"},
			Methods:  []string{"eth_sendTransaction", "personal_sign"},
			Events:   []string{"accountsChanged", "chainChanged"},
			Accounts: []string{"eip155:1:0x2c7536E3605D9C16a7a3D7b1898e529396a65c23"},
		},
	}
}

func TestBuildApprovedNamespacesGrantsExactlySupported(t *testing.T) {
	proposal := ProposalParams{
		RequiredNamespaces: ProposalNamespaces{
			"eip155": {
				Chains:  []string{"eip155:1"},
				Methods: []string{"personal_sign"},
				Events:  []string{"chainChanged"},
			},
		},
		OptionalNamespaces: ProposalNamespaces{
			"eip155": {
				Chains:  []string{"eip155:1", "eip155:137"},
				Methods: []string{"eth_signTypedData_v4"},
			},
		},
	}
	approved, err := BuildApprovedNamespaces(proposal, supportedEIP155())
	require.NoError(t, err)
	assert.Equal(t, supportedEIP155(), approved)
}

func TestBuildApprovedNamespacesOptionalOnly(t *testing.T) {
	proposal := ProposalParams{
		OptionalNamespaces: ProposalNamespaces{
			"eip155": {Chains: []string{"eip155:137"}, Methods: []string{"eth_sign"}},
		},
	}
	approved, err := BuildApprovedNamespaces(proposal, supportedEIP155())
	require.NoError(t, err)
	assert.Equal(t, supportedEIP155(), approved)
}

func TestBuildApprovedNamespacesEmptyProposal(t *testing.T) {
	approved, err := BuildApprovedNamespaces(ProposalParams{}, supportedEIP155())
	require.NoError(t, err)
	assert.Equal(t, supportedEIP155(), approved)
}

func TestBuildApprovedNamespacesChainScopedKey(t *testing.T) {
	proposal := ProposalParams{
		RequiredNamespaces: ProposalNamespaces{
			"eip155:1": {Methods: []string{"personal_sign"}},
		},
	}
	approved, err := BuildApprovedNamespaces(proposal, supportedEIP155())
	require.NoError(t, err)
	assert.Contains(t, approved, "eip155")

	proposal.RequiredNamespaces = ProposalNamespaces{"eip155:10": {Methods: []string{"personal_sign"}}}
	_, err = BuildApprovedNamespaces(proposal, supportedEIP155())
	assert.Error(t, err)
}

func TestBuildApprovedNamespacesRejectsUnsupported(t *testing.T) {
	cases := map[string]ProposalNamespaces{
		"namespace": {"solana": {Chains: []string{"solana:mainnet"}, Methods: []string{"solana_signMessage"}}},
		"chain":     {"eip155": {Chains: []string{"eip155:137"}, Methods: []string{"personal_sign"}}},
		"method":    {"eip155": {Chains: []string{"eip155:1"}, Methods: []string{"eth_signTypedData_v4"}}},
		"event":     {"eip155": {Chains: []string{"eip155:1"}, Events: []string{"disconnect"}}},
	}
	for name, required := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := BuildApprovedNamespaces(ProposalParams{RequiredNamespaces: required}, supportedEIP155())
			assert.Error(t, err)
		})
	}
}

func TestBuildApprovedNamespacesDoesNotShareSlices(t *testing.T) {
	supported := supportedEIP155()
	approved, err := BuildApprovedNamespaces(ProposalParams{}, supported)
	require.NoError(t, err)
	approved["eip155"].Methods[0] = "eth_sign"
	assert.Equal(t, "eth_sendTransaction", supported["eip155"].Methods[0])
}
