package oracle

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Chainlink-style aggregator ABI, just the two views we need.
const aggregatorABIJSON = `[
	{
		"inputs": [],
		"name": "latestRoundData",
		"outputs": [
			{"internalType": "uint80", "name": "roundId", "type": "uint80"},
			{"internalType": "int256", "name": "answer", "type": "int256"},
			{"internalType": "uint256", "name": "startedAt", "type": "uint256"},
			{"internalType": "uint256", "name": "updatedAt", "type": "uint256"},
			{"internalType": "uint80", "name": "answeredInRound", "type": "uint80"}
		],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "decimals",
		"outputs": [{"internalType": "uint8", "name": "", "type": "uint8"}],
		"stateMutability": "view",
		"type": "function"
	}
]`

var aggregatorABI abi.ABI

func init() {
	var err error
	aggregatorABI, err = abi.JSON(strings.NewReader(aggregatorABIJSON))
	if err != nil {
		panic("failed to parse aggregator ABI: " + err.Error())
	}
}

// targetDecimals is the venue's fixed-point scale (1e7).
const targetDecimals = 7

// Chainlink reads prices from on-chain aggregator contracts. The feed name
// is the aggregator's address; answers are rescaled from the aggregator's
// decimals to 7-decimal fixed point.
type Chainlink struct {
	client      *ethclient.Client
	rateLimiter *time.Ticker

	mu       sync.Mutex
	decimals map[common.Address]uint8
}

// NewChainlink connects to an EVM RPC endpoint.
func NewChainlink(rpcURL string) (*Chainlink, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC: %w", err)
	}

	return &Chainlink{
		client:      client,
		rateLimiter: time.NewTicker(100 * time.Millisecond), // 10 requests per second
		decimals:    make(map[common.Address]uint8),
	}, nil
}

// Close releases the RPC connection.
func (c *Chainlink) Close() {
	c.client.Close()
	c.rateLimiter.Stop()
}

func (c *Chainlink) rateLimit() {
	<-c.rateLimiter.C
}

// LastPrice calls latestRoundData on the aggregator named by feed. The asset
// argument is ignored: each aggregator serves exactly one asset pair.
func (c *Chainlink) LastPrice(ctx context.Context, feed, asset string) (Price, bool, error) {
	if !common.IsHexAddress(feed) {
		return Price{}, false, fmt.Errorf("feed %q is not an aggregator address", feed)
	}
	addr := common.HexToAddress(feed)

	dec, err := c.feedDecimals(ctx, addr)
	if err != nil {
		return Price{}, false, err
	}

	data, err := aggregatorABI.Pack("latestRoundData")
	if err != nil {
		return Price{}, false, fmt.Errorf("packing latestRoundData: %w", err)
	}

	raw, err := c.callContract(ctx, addr, data)
	if err != nil {
		return Price{}, false, err
	}

	out, err := aggregatorABI.Unpack("latestRoundData", raw)
	if err != nil {
		return Price{}, false, fmt.Errorf("unpacking latestRoundData: %w", err)
	}

	answer := out[1].(*big.Int)
	updatedAt := out[3].(*big.Int)
	if answer.Sign() <= 0 {
		return Price{}, false, nil
	}

	return Price{
		Value:     rescale(answer, int(dec), targetDecimals),
		Timestamp: time.Unix(updatedAt.Int64(), 0),
	}, true, nil
}

func (c *Chainlink) feedDecimals(ctx context.Context, addr common.Address) (uint8, error) {
	c.mu.Lock()
	dec, ok := c.decimals[addr]
	c.mu.Unlock()
	if ok {
		return dec, nil
	}

	data, err := aggregatorABI.Pack("decimals")
	if err != nil {
		return 0, fmt.Errorf("packing decimals: %w", err)
	}

	raw, err := c.callContract(ctx, addr, data)
	if err != nil {
		return 0, err
	}

	out, err := aggregatorABI.Unpack("decimals", raw)
	if err != nil {
		return 0, fmt.Errorf("unpacking decimals: %w", err)
	}
	dec = out[0].(uint8)

	c.mu.Lock()
	c.decimals[addr] = dec
	c.mu.Unlock()
	return dec, nil
}

func (c *Chainlink) callContract(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	c.rateLimit()

	msg := ethereum.CallMsg{
		To:   &to,
		Data: data,
	}

	result, err := c.client.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("contract call failed: %w", err)
	}
	return result, nil
}

// rescale converts v from one decimal scale to another, truncating toward
// zero when scaling down.
func rescale(v *big.Int, from, to int) *big.Int {
	out := new(big.Int).Set(v)
	switch {
	case from == to:
	case from < to:
		out.Mul(out, new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(to-from)), nil))
	default:
		out.Quo(out, new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(from-to)), nil))
	}
	return out
}
