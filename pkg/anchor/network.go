package anchor

import (
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Network names a chain and, for public chains, its block explorer. Explorer
// links are convenience references only; the receipt is authoritative.
type Network struct {
	ChainID     int64  `json:"chainId" yaml:"chain_id"`
	Name        string `json:"name" yaml:"name"`
	ExplorerURL string `json:"explorerUrl,omitempty" yaml:"explorer_url"`
	Local       bool   `json:"local" yaml:"local"`
}

var builtinNetworks = map[int64]Network{
	1:        {ChainID: 1, Name: "Ethereum Mainnet", ExplorerURL: "https://etherscan.io"},
	137:      {ChainID: 137, Name: "Polygon PoS", ExplorerURL: "https://polygonscan.com"},
	80002:    {ChainID: 80002, Name: "Polygon Amoy", ExplorerURL: "https://amoy.polygonscan.com"},
	11155111: {ChainID: 11155111, Name: "Sepolia", ExplorerURL: "https://sepolia.etherscan.io"},
	1337:     {ChainID: 1337, Name: "Local", Local: true},
	31337:    {ChainID: 31337, Name: "Hardhat", Local: true},
}

// LookupNetwork resolves chainID against overrides first, then the built-in
// table. Unknown chains get a generic name and no explorer.
func LookupNetwork(chainID int64, overrides map[int64]Network) Network {
	if n, ok := overrides[chainID]; ok {
		n.ChainID = chainID
		if n.Local {
			n.ExplorerURL = ""
		}
		return n
	}
	if n, ok := builtinNetworks[chainID]; ok {
		return n
	}
	return Network{ChainID: chainID, Name: "chain-" + strconv.FormatInt(chainID, 10)}
}

// TxURL links to a transaction, or "" when the network has no explorer.
func (n Network) TxURL(h common.Hash) string {
	if n.ExplorerURL == "" {
		return ""
	}
	return strings.TrimRight(n.ExplorerURL, "/") + "/tx/" + h.Hex()
}

// AddressURL links to an account or contract, or "".
func (n Network) AddressURL(a common.Address) string {
	if n.ExplorerURL == "" {
		return ""
	}
	return strings.TrimRight(n.ExplorerURL, "/") + "/address/" + a.Hex()
}
