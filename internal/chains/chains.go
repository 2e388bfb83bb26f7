package chains

import (
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Blockchain is the metadata a wallet needs to add a chain it does not know.
type Blockchain struct {
	ID       int64
	IDHex    string
	Name     string
	Symbol   string
	Decimals int
	RPC      string
}

var (
	// public endpoints, good enough for balance reads and wallet_addEthereumChain
	Array = []*Blockchain{
		{
			ID:       1,
			Name:     "Ethereum Mainnet",
			Symbol:   "ETH",
			Decimals: 18,
			RPC:      "https://cloudflare-eth.com",
		},
		{
			ID:       5,
			Name:     "Goerli",
			Symbol:   "ETH",
			Decimals: 18,
			RPC:      "https://rpc.ankr.com/eth_goerli",
		},
		{
			ID:       137,
			Name:     "Polygon Mainnet",
			Symbol:   "MATIC",
			Decimals: 18,
			RPC:      "https://polygon-rpc.com",
		},
		{
			ID:       80001,
			Name:     "Mumbai",
			Symbol:   "MATIC",
			Decimals: 18,
			RPC:      "https://rpc-mumbai.maticvigil.com",
		},
		{
			ID:       56,
			Name:     "BNB Smart Chain",
			Symbol:   "BNB",
			Decimals: 18,
			RPC:      "https://bsc-dataseed.binance.org",
		},
		{
			ID:       97,
			Name:     "BNB Smart Chain Testnet",
			Symbol:   "tBNB",
			Decimals: 18,
			RPC:      "https://data-seed-prebsc-1-s1.binance.org:8545",
		},
		{
			ID:       43114,
			Name:     "Avalanche C-Chain",
			Symbol:   "AVAX",
			Decimals: 18,
			RPC:      "https://api.avax.network/ext/bc/C/rpc",
		},
		{
			ID:       43113,
			Name:     "Avalanche Fuji Testnet",
			Symbol:   "AVAX",
			Decimals: 18,
			RPC:      "https://api.avax-test.network/ext/bc/C/rpc",
		},
		{
			ID:       250,
			Name:     "Fantom Opera",
			Symbol:   "FTM",
			Decimals: 18,
			RPC:      "https://rpc.ftm.tools",
		},
		{
			ID:       25,
			Name:     "Cronos Mainnet",
			Symbol:   "CRO",
			Decimals: 18,
			RPC:      "https://evm.cronos.org",
		},
	}

	Mapping = make(map[int64]*Blockchain, len(Array))
)

func init() {
	for _, c := range Array {
		c.IDHex = hexutil.EncodeUint64(uint64(c.ID))
		Mapping[c.ID] = c
	}
}

// Lookup returns the known metadata for id.
func Lookup(id int64) (*Blockchain, bool) {
	c, ok := Mapping[id]
	return c, ok
}
