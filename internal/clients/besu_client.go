package clients

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"crosschain-core/internal/metrics"
	"crosschain-core/internal/types"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/sirupsen/logrus"
)

const (
	methodSendCrosschainRaw      = "cross_sendCrossChainRawTransaction"
	methodProcessSubordinateView = "cross_processSubordinateView"
	methodGetTransactionCount    = "eth_getTransactionCount"

	defaultDialTimeout = 10 * time.Second
)

// BesuClient talks to a Besu node with the crosschain RPC extensions enabled
type BesuClient struct {
	rpc      *rpc.Client
	eth      *ethclient.Client
	endpoint string
}

// NewBesuClient wraps an already connected RPC client
func NewBesuClient(client *rpc.Client) *BesuClient {
	return &BesuClient{
		rpc: client,
		eth: ethclient.NewClient(client),
	}
}

// DialBesu connects to the first endpoint whose eth_chainId equals chainID.
// Signatures bind chainID, so an endpoint serving another chain is skipped.
func DialBesu(ctx context.Context, endpoints []string, chainID *big.Int, timeout time.Duration, logger *logrus.Logger) (*BesuClient, error) {
	if chainID == nil {
		return nil, fmt.Errorf("DialBesu: expected chain id is required")
	}
	client, endpoint, err := dialFirst(ctx, "Besu", endpoints, chainID, timeout, logger)
	if err != nil {
		return nil, err
	}
	besu := NewBesuClient(client)
	besu.endpoint = endpoint
	return besu, nil
}

// DialCoordination connects to the coordination chain; the returned client provides BlockNumber.
// Only reachability is checked, the coordination blockchain id is protocol data rather than an eth_chainId.
func DialCoordination(ctx context.Context, endpoints []string, timeout time.Duration, logger *logrus.Logger) (*ethclient.Client, error) {
	client, _, err := dialFirst(ctx, "Coordination", endpoints, nil, timeout, logger)
	if err != nil {
		return nil, err
	}
	return ethclient.NewClient(client), nil
}

// dialFirst returns the first endpoint answering eth_chainId; a non-nil expected must match the answer
func dialFirst(ctx context.Context, label string, endpoints []string, expected *big.Int, timeout time.Duration, logger *logrus.Logger) (*rpc.Client, string, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}
	if len(endpoints) == 0 {
		return nil, "", fmt.Errorf("%w: no %s RPC endpoints configured", types.ErrRPCTransport, label)
	}

	var lastErr error
	for i, endpoint := range endpoints {
		log := logger.WithFields(logrus.Fields{
			"node":     label,
			"endpoint": endpoint,
			"attempt":  fmt.Sprintf("%d/%d", i+1, len(endpoints)),
		})

		dialCtx, cancel := context.WithTimeout(ctx, timeout)
		client, err := rpc.DialContext(dialCtx, endpoint)
		if err != nil {
			cancel()
			log.WithError(err).Warn("[Dial] Dial failed")
			lastErr = err
			continue
		}

		chainID, err := ethclient.NewClient(client).ChainID(dialCtx)
		cancel()
		if err != nil {
			log.WithError(err).Warn("[Dial] eth_chainId check failed")
			client.Close()
			lastErr = err
			continue
		}

		if expected != nil && chainID.Cmp(expected) != 0 {
			log.WithFields(logrus.Fields{
				"chain_id":          chainID.String(),
				"expected_chain_id": expected.String(),
			}).Warn("[Dial] Endpoint serves a different chain")
			client.Close()
			lastErr = fmt.Errorf("chain id mismatch at %s: got %s, want %s", endpoint, chainID, expected)
			continue
		}

		log.WithField("chain_id", chainID.String()).Info("[Dial] Connection verified")
		return client, endpoint, nil
	}

	return nil, "", fmt.Errorf("%w: all %s RPC endpoints failed: %v", types.ErrRPCTransport, label, lastErr)
}

// Endpoint returns the URL the client was dialed with, empty for wrapped clients
func (c *BesuClient) Endpoint() string {
	return c.endpoint
}

// PendingNonceAt returns eth_getTransactionCount(address, "pending")
func (c *BesuClient) PendingNonceAt(ctx context.Context, account common.Address) (*big.Int, error) {
	var result hexutil.Big
	if err := c.rpc.CallContext(ctx, &result, methodGetTransactionCount, account, "pending"); err != nil {
		metrics.RPCErrors.WithLabelValues(methodGetTransactionCount, "transport").Inc()
		return nil, fmt.Errorf("%w: %s: %v", types.ErrRPCTransport, methodGetTransactionCount, err)
	}
	return result.ToInt(), nil
}

// SendCrosschainRawTransaction submits a signed crosschain transaction.
// Node-side rejections come back inside the response envelope, transport failures as ErrRPCTransport.
func (c *BesuClient) SendCrosschainRawTransaction(ctx context.Context, signedHex string) (*types.SendTransactionResponse, error) {
	var txHash string
	if err := c.rpc.CallContext(ctx, &txHash, methodSendCrosschainRaw, signedHex); err != nil {
		if rpcErr := envelopeError(methodSendCrosschainRaw, err); rpcErr != nil {
			return &types.SendTransactionResponse{Error: rpcErr}, nil
		}
		return nil, fmt.Errorf("%w: %s: %v", types.ErrRPCTransport, methodSendCrosschainRaw, err)
	}
	return &types.SendTransactionResponse{TransactionHash: txHash}, nil
}

// ProcessSubordinateView executes a signed subordinate view and returns its ABI-encoded result
func (c *BesuClient) ProcessSubordinateView(ctx context.Context, signedHex string) (*types.SubordinateViewResponse, error) {
	var value string
	if err := c.rpc.CallContext(ctx, &value, methodProcessSubordinateView, signedHex); err != nil {
		if rpcErr := envelopeError(methodProcessSubordinateView, err); rpcErr != nil {
			return &types.SubordinateViewResponse{Error: rpcErr}, nil
		}
		return nil, fmt.Errorf("%w: %s: %v", types.ErrRPCTransport, methodProcessSubordinateView, err)
	}
	return &types.SubordinateViewResponse{Value: value}, nil
}

// TransactionReceipt returns ethereum.NotFound while the transaction is pending
func (c *BesuClient) TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error) {
	return c.eth.TransactionReceipt(ctx, txHash)
}

// Close closes the underlying connection
func (c *BesuClient) Close() {
	c.rpc.Close()
}

// envelopeError converts a JSON-RPC error object into *types.RPCError; nil for transport errors
func envelopeError(method string, err error) *types.RPCError {
	var rpcErr rpc.Error
	if !errors.As(err, &rpcErr) {
		metrics.RPCErrors.WithLabelValues(method, "transport").Inc()
		return nil
	}
	metrics.RPCErrors.WithLabelValues(method, "envelope").Inc()
	return &types.RPCError{Code: rpcErr.ErrorCode(), Message: rpcErr.Error()}
}
