package fetcher

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const aggregatorABIJSON = `[
  {"inputs":[],"name":"latestRoundData","outputs":[
    {"internalType":"uint80","name":"roundId","type":"uint80"},
    {"internalType":"int256","name":"answer","type":"int256"},
    {"internalType":"uint256","name":"startedAt","type":"uint256"},
    {"internalType":"uint256","name":"updatedAt","type":"uint256"},
    {"internalType":"uint80","name":"answeredInRound","type":"uint80"}],
   "stateMutability":"view","type":"function"},
  {"inputs":[],"name":"decimals","outputs":[
    {"internalType":"uint8","name":"","type":"uint8"}],
   "stateMutability":"view","type":"function"}
]`

var aggregatorABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(aggregatorABIJSON))
	if err != nil {
		panic("failed to parse aggregator ABI: " + err.Error())
	}
	aggregatorABI = parsed
}

// OnchainQuoteOptions parameterise the on-chain quote source.
type OnchainQuoteOptions struct {
	RPCURL string
	// Aggregators maps a stablecoin symbol to its price-feed contract address.
	Aggregators map[string]string
	Timeout     time.Duration
}

// OnchainQuotes reads stablecoin prices from Chainlink-style aggregator
// contracts over Ethereum RPC.
type OnchainQuotes struct {
	opts   OnchainQuoteOptions
	logger zerolog.Logger

	clientMux sync.Mutex
	client    *ethclient.Client

	decimalsMux   sync.Mutex
	decimalsCache map[common.Address]int32
}

// NewOnchainQuotes builds an on-chain quote source.
func NewOnchainQuotes(opts OnchainQuoteOptions, logger zerolog.Logger) *OnchainQuotes {
	return &OnchainQuotes{
		opts:          opts,
		logger:        logger.With().Str("component", "onchain_quotes").Logger(),
		decimalsCache: make(map[common.Address]int32),
	}
}

// FetchQuotes reads latestRoundData from every configured aggregator.
func (o *OnchainQuotes) FetchQuotes(ctx context.Context) ([]Quote, error) {
	if o.opts.RPCURL == "" {
		return nil, errors.New("ethereum rpc url not configured")
	}
	if len(o.opts.Aggregators) == 0 {
		return nil, errors.New("no aggregator addresses configured")
	}

	timeout := o.opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	var cancel context.CancelFunc
	ctx, cancel = context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := o.getClient(ctx)
	if err != nil {
		return nil, err
	}

	quotes := make([]Quote, 0, len(o.opts.Aggregators))
	for symbol, hexAddr := range o.opts.Aggregators {
		addr := common.HexToAddress(hexAddr)

		price, err := o.readPrice(ctx, client, addr)
		if err != nil {
			return nil, fmt.Errorf("read %s aggregator: %w", symbol, err)
		}
		quotes = append(quotes, Quote{Symbol: symbol, Price: price})
	}

	return quotes, nil
}

func (o *OnchainQuotes) readPrice(ctx context.Context, client *ethclient.Client, addr common.Address) (decimal.Decimal, error) {
	payload, err := aggregatorABI.Pack("latestRoundData")
	if err != nil {
		return decimal.Decimal{}, err
	}

	res, err := client.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: payload}, nil)
	if err != nil {
		return decimal.Decimal{}, err
	}

	outputs, err := aggregatorABI.Unpack("latestRoundData", res)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if len(outputs) != 5 {
		return decimal.Decimal{}, errors.New("unexpected latestRoundData response")
	}

	answer, ok := outputs[1].(*big.Int)
	if !ok {
		return decimal.Decimal{}, errors.New("failed to decode aggregator answer")
	}

	scale, err := o.decimals(ctx, client, addr)
	if err != nil {
		return decimal.Decimal{}, err
	}

	return decimal.NewFromBigInt(answer, -scale), nil
}

func (o *OnchainQuotes) decimals(ctx context.Context, client *ethclient.Client, addr common.Address) (int32, error) {
	o.decimalsMux.Lock()
	cached, ok := o.decimalsCache[addr]
	o.decimalsMux.Unlock()
	if ok {
		return cached, nil
	}

	payload, err := aggregatorABI.Pack("decimals")
	if err != nil {
		return 0, err
	}

	res, err := client.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: payload}, nil)
	if err != nil {
		return 0, err
	}

	outputs, err := aggregatorABI.Unpack("decimals", res)
	if err != nil {
		return 0, err
	}
	if len(outputs) != 1 {
		return 0, errors.New("unexpected decimals response")
	}

	scale, ok := outputs[0].(uint8)
	if !ok {
		return 0, errors.New("failed to decode aggregator decimals")
	}

	o.decimalsMux.Lock()
	o.decimalsCache[addr] = int32(scale)
	o.decimalsMux.Unlock()

	return int32(scale), nil
}

func (o *OnchainQuotes) getClient(ctx context.Context) (*ethclient.Client, error) {
	o.clientMux.Lock()
	defer o.clientMux.Unlock()

	if o.client != nil {
		return o.client, nil
	}

	client, err := ethclient.DialContext(ctx, o.opts.RPCURL)
	if err != nil {
		return nil, err
	}
	o.client = client
	return client, nil
}

var _ QuoteFetcher = (*OnchainQuotes)(nil)
