package services

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"crosschain-core/internal/config"
	"crosschain-core/internal/metrics"
	"crosschain-core/internal/models"
	"crosschain-core/internal/types"
	"crosschain-core/internal/utils"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// CrosschainNode is the crosschain-extended node of the local chain; *clients.BesuClient satisfies it
type CrosschainNode interface {
	PendingNonceAt(ctx context.Context, account common.Address) (*big.Int, error)
	SendCrosschainRawTransaction(ctx context.Context, signedHex string) (*types.SendTransactionResponse, error)
	ProcessSubordinateView(ctx context.Context, signedHex string) (*types.SubordinateViewResponse, error)
}

// CoordinationChain provides the coordination chain head; *ethclient.Client satisfies it
type CoordinationChain interface {
	BlockNumber(ctx context.Context) (uint64, error)
}

// SubmissionListener observes every submission state change
type SubmissionListener interface {
	SubmissionUpdated(sub *models.Submission)
}

// ManagerConfig is fixed at construction
type ManagerConfig struct {
	Besu         CrosschainNode
	Coordination CoordinationChain
	Strategy     SigningStrategy
	ChainID      *big.Int

	CoordinationBlockchainID    *big.Int
	CoordinationContractAddress string
	TimeoutInBlocks             uint64

	// Used for the default polling receipt processor; Besu must then also implement ReceiptFetcher
	PollingAttempts int
	PollingInterval time.Duration
}

// ManagerOption customizes optional collaborators
type ManagerOption func(*CrosschainTransactionManager)

// WithReceiptProcessor replaces the default polling receipt processor
func WithReceiptProcessor(p ReceiptProcessor) ManagerOption {
	return func(m *CrosschainTransactionManager) { m.receipts = p }
}

// WithTxHashVerifier replaces StrictTxHashVerifier
func WithTxHashVerifier(v TxHashVerifier) ManagerOption {
	return func(m *CrosschainTransactionManager) { m.verifier = v }
}

func WithLogger(logger *logrus.Logger) ManagerOption {
	return func(m *CrosschainTransactionManager) { m.logger = logger }
}

// WithSubmissionListener receives submission transitions, e.g. an events.SubmissionEventPublisher
func WithSubmissionListener(l SubmissionListener) ManagerOption {
	return func(m *CrosschainTransactionManager) { m.listener = l }
}

// CrosschainTransactionManager composes, signs and submits crosschain transactions.
// It holds no per-call state and may be shared between goroutines.
type CrosschainTransactionManager struct {
	besu         CrosschainNode
	coordination CoordinationChain
	signer       *CrosschainSigner

	coordinationBlockchainID    *big.Int
	coordinationContractAddress common.Address
	timeoutInBlocks             uint64

	receipts ReceiptProcessor
	verifier TxHashVerifier
	listener SubmissionListener
	logger   *logrus.Logger
}

// NewCrosschainTransactionManager validates cfg and wires the default collaborators
func NewCrosschainTransactionManager(cfg ManagerConfig, opts ...ManagerOption) (*CrosschainTransactionManager, error) {
	if cfg.Besu == nil {
		return nil, fmt.Errorf("crosschain manager: besu client is required")
	}
	if cfg.Coordination == nil {
		return nil, fmt.Errorf("crosschain manager: coordination chain client is required")
	}
	signer, err := NewCrosschainSigner(cfg.ChainID, cfg.Strategy)
	if err != nil {
		return nil, err
	}
	if err := utils.ValidateUint("coordination_blockchain_id", cfg.CoordinationBlockchainID); err != nil {
		return nil, err
	}
	contract, err := utils.ParseAddress(cfg.CoordinationContractAddress)
	if err != nil {
		return nil, fmt.Errorf("coordination_contract_address: %w", err)
	}

	m := &CrosschainTransactionManager{
		besu:                        cfg.Besu,
		coordination:                cfg.Coordination,
		signer:                      signer,
		coordinationBlockchainID:    new(big.Int).Set(utils.OrZero(cfg.CoordinationBlockchainID)),
		coordinationContractAddress: contract,
		timeoutInBlocks:             cfg.TimeoutInBlocks,
		verifier:                    StrictTxHashVerifier,
		logger:                      logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.receipts == nil {
		fetcher, ok := cfg.Besu.(ReceiptFetcher)
		if !ok {
			return nil, fmt.Errorf("crosschain manager: no receipt processor and besu client cannot fetch receipts")
		}
		attempts := cfg.PollingAttempts
		if attempts <= 0 {
			attempts = config.DefaultPollingAttempts
		}
		interval := cfg.PollingInterval
		if interval <= 0 {
			interval = config.DefaultPollingIntervalMs * time.Millisecond
		}
		m.receipts = NewPollingReceiptProcessor(fetcher, attempts, interval, m.logger)
	}

	m.logger.WithFields(logrus.Fields{
		"chain_id":              signer.ChainID().String(),
		"from":                  signer.Address().Hex(),
		"signing_strategy":      cfg.Strategy.Name(),
		"coordination_chain":    m.coordinationBlockchainID.String(),
		"coordination_contract": m.coordinationContractAddress.Hex(),
		"timeout_in_blocks":     m.timeoutInBlocks,
	}).Info("[CrosschainTxManager] Initialized")
	return m, nil
}

// FromAddress is the sender address used for nonce lookups and signing
func (m *CrosschainTransactionManager) FromAddress() common.Address {
	return m.signer.Address()
}

func (m *CrosschainTransactionManager) ChainID() *big.Int {
	return m.signer.ChainID()
}

// ===== Role-specific signing =====

func (m *CrosschainTransactionManager) SignSubordinateTx(ctx context.Context, req *types.TransactionRequest, cc *models.CrosschainContext) ([]byte, error) {
	return m.composeAndSign(ctx, models.SubordinateTransaction, req, cc, false)
}

// SignSubordinateDeployLockable ignores req.To
func (m *CrosschainTransactionManager) SignSubordinateDeployLockable(ctx context.Context, req *types.TransactionRequest, cc *models.CrosschainContext) ([]byte, error) {
	return m.composeAndSign(ctx, models.SubordinateDeployLockable, req, cc, true)
}

func (m *CrosschainTransactionManager) SignSubordinateView(ctx context.Context, req *types.TransactionRequest, cc *models.CrosschainContext) ([]byte, error) {
	return m.composeAndSign(ctx, models.SubordinateView, req, cc, false)
}

func (m *CrosschainTransactionManager) SignOriginatingTx(ctx context.Context, req *types.TransactionRequest, cc *models.CrosschainContext) ([]byte, error) {
	return m.composeAndSign(ctx, models.OriginatingTransaction, req, cc, false)
}

// SignOriginatingDeployLockable uses the singlechain tag when cc is nil. req.To is ignored.
func (m *CrosschainTransactionManager) SignOriginatingDeployLockable(ctx context.Context, req *types.TransactionRequest, cc *models.CrosschainContext) ([]byte, error) {
	return m.composeAndSign(ctx, deployLockableType(cc), req, cc, true)
}

func deployLockableType(cc *models.CrosschainContext) models.CrosschainTransactionType {
	if cc == nil {
		return models.SinglechainDeployLockable
	}
	return models.OriginatingDeployLockable
}

func (m *CrosschainTransactionManager) composeAndSign(
	ctx context.Context,
	txType models.CrosschainTransactionType,
	req *types.TransactionRequest,
	cc *models.CrosschainContext,
	contractCreation bool,
) ([]byte, error) {
	if req == nil {
		return nil, fmt.Errorf("nil transaction request")
	}
	to := req.To
	if contractCreation {
		to = ""
	}

	// Inputs are validated before any node round trip
	tx, err := models.NewCrosschainRawTransaction(txType, nil, req.GasPrice, req.GasLimit, to, req.Value, req.Data, nil)
	if err != nil {
		return nil, err
	}

	nonce, err := m.besu.PendingNonceAt(ctx, m.signer.Address())
	if err != nil {
		return nil, asTransportError("eth_getTransactionCount", err)
	}
	tx.Nonce = nonce

	head, err := m.coordination.BlockNumber(ctx)
	if err != nil {
		metrics.RPCErrors.WithLabelValues("eth_blockNumber", "transport").Inc()
		return nil, asTransportError("eth_blockNumber", err)
	}
	metrics.CoordinationHead.Set(float64(head))
	timeout := new(big.Int).Add(new(big.Int).SetUint64(head), new(big.Int).SetUint64(m.timeoutInBlocks))

	if cc != nil {
		tx.Context = cc.WithCoordination(models.Coordination{
			BlockchainID:       m.coordinationBlockchainID,
			ContractAddress:    m.coordinationContractAddress,
			TimeoutBlockNumber: timeout,
		})
	}

	m.logger.WithFields(logrus.Fields{
		"type":            txType.String(),
		"shape":           tx.Shape().String(),
		"nonce":           nonce.String(),
		"coordination_at": head,
		"timeout_block":   timeout.String(),
	}).Debug("[CrosschainTxManager] Composed transaction")

	signed, err := m.signer.SignTransaction(ctx, tx)
	if err != nil {
		metrics.SigningFailures.WithLabelValues(m.signer.strategy.Name()).Inc()
		return nil, err
	}
	metrics.TransactionsSigned.WithLabelValues(txType.String()).Inc()
	return signed, nil
}

func asTransportError(method string, err error) error {
	if errors.Is(err, types.ErrRPCTransport) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", types.ErrRPCTransport, method, err)
}

// ===== Execution =====

// ExecuteCrosschainTransaction signs an originating transaction, submits it and waits for its receipt.
// A reverted transaction is returned with a nil error; inspect receipt.Status.
func (m *CrosschainTransactionManager) ExecuteCrosschainTransaction(ctx context.Context, req *types.TransactionRequest, cc *models.CrosschainContext) (*ethtypes.Receipt, error) {
	return m.execute(ctx, models.OriginatingTransaction, func() ([]byte, error) {
		return m.SignOriginatingTx(ctx, req, cc)
	})
}

// ExecuteLockableContractDeploy deploys a lockable contract, crosschain when cc is set
func (m *CrosschainTransactionManager) ExecuteLockableContractDeploy(ctx context.Context, req *types.TransactionRequest, cc *models.CrosschainContext) (*ethtypes.Receipt, error) {
	return m.execute(ctx, deployLockableType(cc), func() ([]byte, error) {
		return m.SignOriginatingDeployLockable(ctx, req, cc)
	})
}

func (m *CrosschainTransactionManager) execute(ctx context.Context, txType models.CrosschainTransactionType, sign func() ([]byte, error)) (*ethtypes.Receipt, error) {
	sub := models.NewSubmission(uuid.NewString(), txType, m.signer.ChainID().String())
	log := m.logger.WithFields(logrus.Fields{
		"submission_id": sub.ID,
		"type":          txType.String(),
	})

	signed, err := sign()
	if err != nil {
		log.WithError(err).Warn("[CrosschainTxManager] Failed to sign transaction")
		return nil, err
	}
	m.advance(log, sub, models.SubmissionStateSigned)

	resp, err := m.besu.SendCrosschainRawTransaction(ctx, hexutil.Encode(signed))
	if err == nil && resp == nil {
		err = fmt.Errorf("%w: empty response from cross_sendCrossChainRawTransaction", types.ErrRPCTransport)
	}
	if err != nil {
		// the node never acknowledged the bytes
		err = asTransportError("cross_sendCrossChainRawTransaction", err)
		m.fail(log, sub, models.SubmissionStateRPCError, err)
		return nil, err
	}
	m.advance(log, sub, models.SubmissionStateSubmitted)
	if resp.HasError() {
		m.fail(log, sub, models.SubmissionStateRPCError, resp.Error)
		return nil, resp.Error
	}

	localHash := crypto.Keccak256Hash(signed).Hex()
	sub.TxHash = resp.TransactionHash
	if !m.verifier.Verify(localHash, resp.TransactionHash) {
		metrics.TxHashMismatches.Inc()
		mismatch := &types.TxHashMismatchError{Local: localHash, Remote: resp.TransactionHash}
		m.fail(log, sub, models.SubmissionStateHashMismatch, mismatch)
		return nil, mismatch
	}
	m.advance(log, sub, models.SubmissionStateHashVerified)
	m.advance(log, sub, models.SubmissionStateReceiptPending)

	receipt, err := m.receipts.WaitForReceipt(ctx, common.HexToHash(resp.TransactionHash))
	if err == nil && receipt == nil {
		err = fmt.Errorf("%w: receipt processor returned no receipt for %s", types.ErrReceiptTimeout, resp.TransactionHash)
	}
	if err != nil {
		if errors.Is(err, types.ErrReceiptTimeout) {
			m.fail(log, sub, models.SubmissionStateTimeout, err)
		} else {
			sub.LastError = err.Error()
			log.WithError(err).Warn("[CrosschainTxManager] Stopped waiting for receipt")
		}
		return nil, err
	}

	if receipt.BlockNumber == nil {
		// no-op processors never observe inclusion
		log.WithField("tx_hash", sub.TxHash).Info("[CrosschainTxManager] Submitted without waiting for confirmation")
		return receipt, nil
	}

	blockNumber := receipt.BlockNumber.Uint64()
	sub.BlockNumber = &blockNumber
	if receipt.Status == ethtypes.ReceiptStatusSuccessful {
		m.advance(log, sub, models.SubmissionStateCommitted)
	} else {
		sub.LastError = "transaction reverted"
		m.advance(log, sub, models.SubmissionStateReverted)
	}
	return receipt, nil
}

func (m *CrosschainTransactionManager) fail(log *logrus.Entry, sub *models.Submission, state models.SubmissionState, err error) {
	sub.LastError = err.Error()
	m.advance(log.WithError(err), sub, state)
}

func (m *CrosschainTransactionManager) advance(log *logrus.Entry, sub *models.Submission, state models.SubmissionState) {
	if err := sub.Transition(state); err != nil {
		log.WithError(err).Error("[CrosschainTxManager] Illegal submission transition")
		return
	}

	entry := log.WithFields(logrus.Fields{"state": state})
	if sub.TxHash != "" {
		entry = entry.WithField("tx_hash", sub.TxHash)
	}
	switch state {
	case models.SubmissionStateCommitted:
		entry.Info("[CrosschainTxManager] Transaction committed")
	case models.SubmissionStateReverted, models.SubmissionStateTimeout:
		entry.Warn("[CrosschainTxManager] Transaction did not commit")
	case models.SubmissionStateHashMismatch, models.SubmissionStateRPCError:
		entry.Error("[CrosschainTxManager] Submission failed")
	default:
		entry.Debug("[CrosschainTxManager] Submission state changed")
	}

	if state.IsTerminal() {
		metrics.SubmissionOutcomes.WithLabelValues(sub.Type.String(), string(state)).Inc()
	}
	if m.listener != nil {
		m.listener.SubmissionUpdated(sub)
	}
}

// ===== Subordinate views =====

// ExecuteSubordinateView signs a subordinate view calling method with args, asks the node to process it
// and returns the first decoded output value, or nil when the method returns nothing.
// req.Data is replaced by the ABI-encoded call.
func (m *CrosschainTransactionManager) ExecuteSubordinateView(
	ctx context.Context,
	req *types.TransactionRequest,
	method *abi.Method,
	args []interface{},
	cc *models.CrosschainContext,
) (interface{}, error) {
	if req == nil || method == nil {
		return nil, fmt.Errorf("subordinate view needs a request and an ABI method")
	}
	input, err := method.Inputs.Pack(args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s arguments: %w", method.Name, err)
	}
	call := *req
	call.Data = hexutil.Encode(append(append([]byte{}, method.ID...), input...))

	signed, err := m.SignSubordinateView(ctx, &call, cc)
	if err != nil {
		return nil, err
	}

	resp, err := m.besu.ProcessSubordinateView(ctx, hexutil.Encode(signed))
	if err == nil && resp == nil {
		err = fmt.Errorf("%w: empty response from cross_processSubordinateView", types.ErrRPCTransport)
	}
	if err != nil {
		return nil, asTransportError("cross_processSubordinateView", err)
	}
	if resp.HasError() {
		return nil, resp.Error
	}

	raw, err := utils.ParseHexData(resp.Value)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 || len(method.Outputs) == 0 {
		return nil, nil
	}
	values, err := method.Outputs.Unpack(raw)
	if err != nil {
		return nil, fmt.Errorf("unpack %s result: %w", method.Name, err)
	}

	m.logger.WithFields(logrus.Fields{
		"method":  method.Sig,
		"outputs": len(values),
	}).Debug("[CrosschainTxManager] Subordinate view processed")
	if len(values) == 0 {
		return nil, nil
	}
	return values[0], nil
}

// ExecuteSubordinateViewAs runs ExecuteSubordinateView and asserts the result to T.
// A view without a result yields the zero value of T.
func ExecuteSubordinateViewAs[T any](
	ctx context.Context,
	m *CrosschainTransactionManager,
	req *types.TransactionRequest,
	method *abi.Method,
	args []interface{},
	cc *models.CrosschainContext,
) (T, error) {
	var zero T
	value, err := m.ExecuteSubordinateView(ctx, req, method, args, cc)
	if err != nil || value == nil {
		return zero, err
	}
	typed, ok := value.(T)
	if !ok {
		return zero, fmt.Errorf("%s returned %T, want %T", method.Name, value, zero)
	}
	return typed, nil
}
