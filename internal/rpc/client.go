package rpc

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
	"github.com/ledgerflow-xyz/evmindexer/internal/logger"
	pkgrpc "github.com/ledgerflow-xyz/evmindexer/pkg/rpc"
)

// Compile-time check to ensure Client implements pkgrpc.EthClient.
var _ pkgrpc.EthClient = (*Client)(nil)

const (
	maxBatchSize = 100

	methodBlockNumber      = "eth_blockNumber"
	methodGetBlockByNumber = "eth_getBlockByNumber"
	methodGetReceipt       = "eth_getTransactionReceipt"
	methodGetBalance       = "eth_getBalance"
	methodCall             = "eth_call"
	methodTraceReplay      = "trace_replayTransaction"
)

// NamedURLs maps a JSON-RPC method name to the endpoint it should be
// directed to; methods absent from the map fall back to DefaultURL.
type NamedURLs map[string]string

// Config configures the transport side of the Client: the default
// HTTP endpoint, optional per-method overrides, an optional WS
// endpoint for Subscribe, and the chain's trace method name (chains
// vary between "trace_replayTransaction" and "debug_traceTransaction").
type Config struct {
	DefaultURL  string
	MethodURLs  NamedURLs
	WSURL       string
	TraceMethod string
	CallTimeout time.Duration
}

// Client wraps one *rpc.Client per distinct configured endpoint with
// convenience methods implementing pkgrpc.EthClient.
type Client struct {
	cfg Config
	log *logger.Logger

	eth     *ethclient.Client
	rpcByURL map[string]*gethrpc.Client
	ws      *gethrpc.Client
}

// NewClient dials the default endpoint and any distinct per-method
// endpoints named in cfg.MethodURLs, eagerly (so a misconfigured
// endpoint fails fast at startup rather than on first use).
func NewClient(ctx context.Context, cfg Config, log *logger.Logger) (*Client, error) {
	if cfg.CallTimeout == 0 {
		cfg.CallTimeout = 60 * time.Second
	}
	if cfg.TraceMethod == "" {
		cfg.TraceMethod = methodTraceReplay
	}

	rpcByURL := make(map[string]*gethrpc.Client)
	dial := func(url string) (*gethrpc.Client, error) {
		if c, ok := rpcByURL[url]; ok {
			return c, nil
		}
		c, err := gethrpc.DialContext(ctx, url)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", url, err)
		}
		rpcByURL[url] = c
		return c, nil
	}

	defaultConn, err := dial(cfg.DefaultURL)
	if err != nil {
		return nil, err
	}
	for _, url := range cfg.MethodURLs {
		if _, err := dial(url); err != nil {
			return nil, err
		}
	}

	c := &Client{
		cfg:      cfg,
		log:      log.WithComponent("rpc-client"),
		eth:      ethclient.NewClient(defaultConn),
		rpcByURL: rpcByURL,
	}

	if cfg.WSURL != "" {
		ws, err := gethrpc.DialContext(ctx, cfg.WSURL)
		if err != nil {
			c.log.Warnf("failed to dial websocket endpoint %s, subscriptions disabled: %v", cfg.WSURL, err)
		} else {
			c.ws = ws
		}
	}

	return c, nil
}

// Close releases every dialed connection.
func (c *Client) Close() {
	for _, conn := range c.rpcByURL {
		conn.Close()
	}
	if c.ws != nil {
		c.ws.Close()
	}
}

// connFor returns the *rpc.Client routed for method, per cfg.MethodURLs.
func (c *Client) connFor(method string) *gethrpc.Client {
	if url, ok := c.cfg.MethodURLs[method]; ok {
		if conn, ok := c.rpcByURL[url]; ok {
			return conn
		}
	}
	return c.rpcByURL[c.cfg.DefaultURL]
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.cfg.CallTimeout)
}

// FetchBlocksByRange fetches headers and full transaction bodies for
// [first, last] in one batch call, leaving receipts for a later stage.
func (c *Client) FetchBlocksByRange(ctx context.Context, first, last uint64) (*pkgrpc.BlockRangeResult, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	conn := c.connFor(methodGetBlockByNumber)

	var blockNums []uint64
	if first <= last {
		for n := first; n <= last; n++ {
			blockNums = append(blockNums, n)
		}
	} else {
		for n := first; n >= last; n-- {
			blockNums = append(blockNums, n)
			if n == 0 {
				break
			}
		}
	}

	start := time.Now()
	RPCMethodInc(methodGetBlockByNumber)

	type rpcBlock struct {
		Hash         ethcommon.Hash   `json:"hash"`
		Number       string           `json:"number"`
		ParentHash   ethcommon.Hash   `json:"parentHash"`
		Miner        ethcommon.Address `json:"miner"`
		Timestamp    string           `json:"timestamp"`
		Difficulty   string           `json:"difficulty"`
		TotalDifficulty string        `json:"totalDifficulty"`
		GasUsed      string           `json:"gasUsed"`
		GasLimit     string           `json:"gasLimit"`
		Size         string           `json:"size"`
		Nonce        string           `json:"nonce"`
		Transactions []*types.Transaction `json:"transactions"`
	}

	results := make([]*rpcBlock, len(blockNums))
	batch := make([]gethrpc.BatchElem, len(blockNums))
	for i, n := range blockNums {
		batch[i] = gethrpc.BatchElem{
			Method: methodGetBlockByNumber,
			Args:   []any{toBlockNumArg(n), true},
			Result: &results[i],
		}
	}

	for i := 0; i < len(batch); i += maxBatchSize {
		end := min(i+maxBatchSize, len(batch))
		if err := conn.BatchCallContext(ctx, batch[i:end]); err != nil {
			RPCMethodError(methodGetBlockByNumber, "transport")
			return nil, fmt.Errorf("batch fetching blocks: %w", err)
		}
	}
	RPCMethodDuration(methodGetBlockByNumber, time.Since(start))

	headers := make([]*types.Header, 0, len(results))
	var txs []*types.Transaction
	txBlockNumbers := make(map[string]uint64)
	next := pkgrpc.NextMore

	for i, elem := range batch {
		if elem.Error != nil {
			RPCMethodError(methodGetBlockByNumber, "node_rejected")
			return nil, fmt.Errorf("fetching block %d: %w", blockNums[i], elem.Error)
		}
		rb := results[i]
		if rb == nil {
			// node returned null: block not yet produced, tail reached.
			next = pkgrpc.NextEndOfChain
			continue
		}

		number := parseHexUint64(rb.Number)
		header := &types.Header{
			ParentHash: rb.ParentHash,
			Coinbase:   rb.Miner,
			Number:     new(big.Int).SetUint64(number),
			GasLimit:   parseHexUint64(rb.GasLimit),
			GasUsed:    parseHexUint64(rb.GasUsed),
			Time:       parseHexUint64(rb.Timestamp),
			Difficulty: parseHexBig(rb.Difficulty),
			Nonce:      types.EncodeNonce(parseHexUint64(rb.Nonce)),
		}
		headers = append(headers, header)

		for _, tx := range rb.Transactions {
			txs = append(txs, tx)
			txBlockNumbers[tx.Hash().Hex()] = number
		}
	}

	return &pkgrpc.BlockRangeResult{
		Blocks:                      headers,
		TransactionsWithoutReceipts: txs,
		TransactionBlockNumbers:     txBlockNumbers,
		Next:                        next,
	}, nil
}

// FetchBlockByTag resolves "earliest"/"latest"/"pending" to a number.
func (c *Client) FetchBlockByTag(ctx context.Context, tag string) (uint64, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	var blockNum *big.Int
	switch tag {
	case "latest", "":
		blockNum = nil
	case "earliest":
		blockNum = big.NewInt(0)
	case "pending":
		blockNum = big.NewInt(int64(gethrpc.PendingBlockNumber))
	case "finalized":
		blockNum = big.NewInt(int64(gethrpc.FinalizedBlockNumber))
	case "safe":
		blockNum = big.NewInt(int64(gethrpc.SafeBlockNumber))
	default:
		return 0, fmt.Errorf("invalid block tag %q", tag)
	}

	start := time.Now()
	RPCMethodInc(methodBlockNumber)
	header, err := c.eth.HeaderByNumber(ctx, blockNum)
	RPCMethodDuration(methodBlockNumber, time.Since(start))
	if err != nil {
		RPCMethodError(methodBlockNumber, classifyError(err))
		return 0, err
	}
	return header.Number.Uint64(), nil
}

// FetchTransactionReceipts batches eth_getTransactionReceipt, chunked
// at maxBatchSize, and splits the result into receipts + flattened logs.
func (c *Client) FetchTransactionReceipts(ctx context.Context, reqs []pkgrpc.ReceiptRequest) (*pkgrpc.ReceiptsResult, error) {
	if len(reqs) == 0 {
		return &pkgrpc.ReceiptsResult{}, nil
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	conn := c.connFor(methodGetReceipt)
	start := time.Now()
	RPCMethodInc(methodGetReceipt)

	out := &pkgrpc.ReceiptsResult{}
	for i := 0; i < len(reqs); i += maxBatchSize {
		end := min(i+maxBatchSize, len(reqs))
		chunk := reqs[i:end]

		results := make([]*types.Receipt, len(chunk))
		batch := make([]gethrpc.BatchElem, len(chunk))
		for j, r := range chunk {
			batch[j] = gethrpc.BatchElem{
				Method: methodGetReceipt,
				Args:   []any{ethcommon.Hash(r.Hash)},
				Result: &results[j],
			}
		}

		if err := conn.BatchCallContext(ctx, batch); err != nil {
			RPCMethodError(methodGetReceipt, "transport")
			return nil, fmt.Errorf("batch fetching receipts: %w", err)
		}

		for j, elem := range batch {
			if elem.Error != nil {
				RPCMethodError(methodGetReceipt, "node_rejected")
				return nil, fmt.Errorf("fetching receipt %s: %w", chunk[j].Hash, elem.Error)
			}
			if results[j] == nil {
				// receipt not available yet: not mined, surfaced as a retry.
				return nil, fmt.Errorf("receipt for %s not yet available", ethcommon.Hash(chunk[j].Hash))
			}
			out.Receipts = append(out.Receipts, results[j])
			for _, l := range results[j].Logs {
				out.Logs = append(out.Logs, l)
			}
		}
	}

	RPCMethodDuration(methodGetReceipt, time.Since(start))
	return out, nil
}

// FetchBalances batches eth_getBalance.
func (c *Client) FetchBalances(ctx context.Context, reqs []pkgrpc.BalanceRequest) ([]pkgrpc.BalanceResult, error) {
	if len(reqs) == 0 {
		return nil, nil
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	conn := c.connFor(methodGetBalance)
	start := time.Now()
	RPCMethodInc(methodGetBalance)

	out := make([]pkgrpc.BalanceResult, 0, len(reqs))
	for i := 0; i < len(reqs); i += maxBatchSize {
		end := min(i+maxBatchSize, len(reqs))
		chunk := reqs[i:end]

		results := make([]string, len(chunk))
		batch := make([]gethrpc.BatchElem, len(chunk))
		for j, r := range chunk {
			batch[j] = gethrpc.BatchElem{
				Method: methodGetBalance,
				Args:   []any{ethcommon.Address(r.Address), toBlockNumArg(r.BlockNumber)},
				Result: &results[j],
			}
		}

		if err := conn.BatchCallContext(ctx, batch); err != nil {
			RPCMethodError(methodGetBalance, "transport")
			return nil, fmt.Errorf("batch fetching balances: %w", err)
		}

		for j, elem := range batch {
			res := pkgrpc.BalanceResult{Address: chunk[j].Address, BlockNumber: chunk[j].BlockNumber}
			if elem.Error != nil {
				c.log.Warnf("balance fetch rejected for %s: %v", ethcommon.Address(chunk[j].Address), elem.Error)
			} else {
				v := parseHexBig(results[j]).String()
				res.Value = &v
			}
			out = append(out, res)
		}
	}

	RPCMethodDuration(methodGetBalance, time.Since(start))
	return out, nil
}

// FetchInternalTransactions batches the chain's configured trace
// method. Trace payload shapes vary widely across clients; this
// decodes the common Parity/OpenEthereum "trace_replayTransaction"
// shape and leaves per-chain specializations to a wrapping decorator.
func (c *Client) FetchInternalTransactions(ctx context.Context, reqs []pkgrpc.InternalTxRequest) ([]pkgrpc.TraceResult, error) {
	if len(reqs) == 0 {
		return nil, nil
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	conn := c.connFor(c.cfg.TraceMethod)
	start := time.Now()
	RPCMethodInc(c.cfg.TraceMethod)

	type traceAction struct {
		From     ethcommon.Address  `json:"from"`
		To       *ethcommon.Address `json:"to"`
		Value    string             `json:"value"`
		Gas      string             `json:"gas"`
		Input    string             `json:"input"`
		CallType string             `json:"callType"`
	}
	type traceResultPayload struct {
		GasUsed         string             `json:"gasUsed"`
		Output          string             `json:"output"`
		Address         *ethcommon.Address `json:"address"`
	}
	type traceEntry struct {
		Action       traceAction         `json:"action"`
		Result       *traceResultPayload `json:"result"`
		Error        string              `json:"error"`
		TraceAddress []int               `json:"traceAddress"`
		Type         string              `json:"type"`
	}
	type replayResult struct {
		Trace []traceEntry `json:"trace"`
	}

	out := make([]pkgrpc.TraceResult, 0, len(reqs))
	for i := 0; i < len(reqs); i += maxBatchSize {
		end := min(i+maxBatchSize, len(reqs))
		chunk := reqs[i:end]

		results := make([]*replayResult, len(chunk))
		batch := make([]gethrpc.BatchElem, len(chunk))
		for j, r := range chunk {
			batch[j] = gethrpc.BatchElem{
				Method: c.cfg.TraceMethod,
				Args:   []any{ethcommon.Hash(r.Hash).Hex(), []string{"trace"}},
				Result: &results[j],
			}
		}

		if err := conn.BatchCallContext(ctx, batch); err != nil {
			RPCMethodError(c.cfg.TraceMethod, "transport")
			return nil, fmt.Errorf("batch fetching traces: %w", err)
		}

		for j, elem := range batch {
			if elem.Error != nil {
				RPCMethodError(c.cfg.TraceMethod, "node_rejected")
				c.log.Warnf("trace rejected for %s: %v", ethcommon.Hash(chunk[j].Hash), elem.Error)
				continue
			}
			if results[j] == nil {
				continue
			}
			for idx, entry := range results[j].Trace {
				tr := pkgrpc.TraceResult{
					TransactionHash: chunk[j].Hash,
					BlockNumber:     chunk[j].BlockNumber,
					Index:           uint64(idx),
					Type:            entry.Type,
					CallType:        entry.Action.CallType,
					From:            [20]byte(entry.Action.From),
					Gas:             parseHexUint64(entry.Action.Gas),
					Input:           ethcommon.FromHex(entry.Action.Input),
					Error:           entry.Error,
					TraceAddress:    traceAddressString(entry.TraceAddress),
				}
				if entry.Action.To != nil {
					to := [20]byte(*entry.Action.To)
					tr.To = &to
				}
				if entry.Action.Value != "" {
					v := parseHexBig(entry.Action.Value).String()
					tr.Value = &v
				}
				if entry.Result != nil {
					tr.GasUsed = parseHexUint64(entry.Result.GasUsed)
					tr.Output = ethcommon.FromHex(entry.Result.Output)
				}
				out = append(out, tr)
			}
		}
	}

	RPCMethodDuration(c.cfg.TraceMethod, time.Since(start))
	return out, nil
}

// FetchTokenBalances batches eth_call against the ERC-20 balanceOf
// selector (0x70a08231).
func (c *Client) FetchTokenBalances(ctx context.Context, reqs []pkgrpc.TokenBalanceRequest) ([]pkgrpc.TokenBalanceResult, error) {
	if len(reqs) == 0 {
		return nil, nil
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	const balanceOfSelector = "0x70a08231"
	conn := c.connFor(methodCall)
	start := time.Now()
	RPCMethodInc(methodCall)

	out := make([]pkgrpc.TokenBalanceResult, 0, len(reqs))
	for i := 0; i < len(reqs); i += maxBatchSize {
		end := min(i+maxBatchSize, len(reqs))
		chunk := reqs[i:end]

		results := make([]string, len(chunk))
		batch := make([]gethrpc.BatchElem, len(chunk))
		for j, r := range chunk {
			data := balanceOfSelector + fmt.Sprintf("%064x", ethcommon.Address(r.Address))
			callArg := map[string]any{
				"to":   ethcommon.Address(r.TokenContract),
				"data": data,
			}
			batch[j] = gethrpc.BatchElem{
				Method: methodCall,
				Args:   []any{callArg, toBlockNumArg(r.BlockNumber)},
				Result: &results[j],
			}
		}

		if err := conn.BatchCallContext(ctx, batch); err != nil {
			RPCMethodError(methodCall, "transport")
			return nil, fmt.Errorf("batch fetching token balances: %w", err)
		}

		for j, elem := range batch {
			res := pkgrpc.TokenBalanceResult{
				Address:       chunk[j].Address,
				TokenContract: chunk[j].TokenContract,
				BlockNumber:   chunk[j].BlockNumber,
			}
			if elem.Error != nil {
				c.log.Warnf("token balance call rejected: %v", elem.Error)
			} else {
				v := parseHexBig(results[j]).String()
				res.Value = &v
			}
			out = append(out, res)
		}
	}

	RPCMethodDuration(methodCall, time.Since(start))
	return out, nil
}

// Subscribe opens a best-effort WebSocket subscription. Returns a nil
// channel and a no-op unsubscribe if no WS endpoint was configured or
// dialing failed at construction time — callers fall back to polling.
func (c *Client) Subscribe(ctx context.Context, event string) (<-chan pkgrpc.Notification, func(), error) {
	if c.ws == nil {
		return nil, func() {}, fmt.Errorf("no websocket endpoint configured")
	}

	out := make(chan pkgrpc.Notification, 16)
	var sub *gethrpc.ClientSubscription
	var err error

	switch event {
	case "newHeads":
		headers := make(chan *types.Header, 16)
		sub, err = c.ws.EthSubscribe(ctx, headers, "newHeads")
		if err == nil {
			go func() {
				for h := range headers {
					out <- pkgrpc.Notification{Kind: "newHeads", Header: h}
				}
			}()
		}
	case "logs":
		logs := make(chan types.Log, 16)
		sub, err = c.ws.EthSubscribe(ctx, logs, "logs", map[string]any{})
		if err == nil {
			go func() {
				for l := range logs {
					l := l
					out <- pkgrpc.Notification{Kind: "logs", Log: &l}
				}
			}()
		}
	default:
		return nil, func() {}, fmt.Errorf("unsupported subscription event %q", event)
	}

	if err != nil {
		close(out)
		return nil, func() {}, fmt.Errorf("subscribe %s: %w", event, err)
	}

	unsubscribe := func() {
		sub.Unsubscribe()
		close(out)
	}
	return out, unsubscribe, nil
}

// classifyError maps a go-ethereum RPC error into a coarse error kind.
func classifyError(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline"):
		return "transport"
	case strings.Contains(msg, "429"), strings.Contains(msg, "rate limit"):
		return "rate_limited"
	case strings.Contains(msg, "connection"):
		return "transport"
	default:
		return "unknown"
	}
}

func toBlockNumArg(blockNum uint64) string {
	return fmt.Sprintf("0x%x", blockNum)
}

func parseHexUint64(s string) uint64 {
	if s == "" {
		return 0
	}
	s = strings.TrimPrefix(s, "0x")
	if s == "" {
		return 0
	}
	n := new(big.Int)
	n.SetString(s, 16)
	return n.Uint64()
}

func parseHexBig(s string) *big.Int {
	if s == "" {
		return new(big.Int)
	}
	s = strings.TrimPrefix(s, "0x")
	n := new(big.Int)
	n.SetString(s, 16)
	return n
}

func traceAddressString(path []int) string {
	parts := make([]string, len(path))
	for i, p := range path {
		parts[i] = fmt.Sprintf("%d", p)
	}
	return strings.Join(parts, ",")
}
