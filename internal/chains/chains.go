package chains

import (
	"fmt"
	"sort"
)

// Namespace is the CAIP-2 namespace of every chain listed here.
const Namespace = "eip155"

type Blockchain struct {
	ID    int
	IDHex string
	Name  string
}

// CAIP2 returns the chain id in CAIP-2 form, e.g. eip155:1.
func (b *Blockchain) CAIP2() string {
	return fmt.Sprintf("%s:%d", Namespace, b.ID)
}

// AccountID returns the CAIP-10 account id of address on this chain.
func (b *Blockchain) AccountID(address string) string {
	return fmt.Sprintf("%s:%s", b.CAIP2(), address)
}

var (
	Mainnet = &Blockchain{ID: 1, IDHex: "0x1", Name: "eth"}

	Mapping = map[int]*Blockchain{
		1:        Mainnet,
		5:        {ID: 5, IDHex: "0x5", Name: "goerli"},
		10:       {ID: 10, IDHex: "0xa", Name: "optimism"},
		56:       {ID: 56, IDHex: "0x38", Name: "bsc"},
		97:       {ID: 97, IDHex: "0x61", Name: "bsc testnet"},
		137:      {ID: 137, IDHex: "0x89", Name: "polygon"},
		250:      {ID: 250, IDHex: "0xfa", Name: "fantom"},
		8453:     {ID: 8453, IDHex: "0x2105", Name: "base"},
		42161:    {ID: 42161, IDHex: "0xa4b1", Name: "arbitrum"},
		43114:    {ID: 43114, IDHex: "0xa86a", Name: "avalanche"},
		80001:    {ID: 80001, IDHex: "0x13881", Name: "mumbai"},
		11155111: {ID: 11155111, IDHex: "0xaa36a7", Name: "sepolia"},
	}
)

// Lookup returns the chain registered under id.
func Lookup(id int) (*Blockchain, bool) {
	b, ok := Mapping[id]
	return b, ok
}

// IDs returns every known chain id in ascending order.
func IDs() []int {
	ids := make([]int, 0, len(Mapping))
	for id := range Mapping {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
