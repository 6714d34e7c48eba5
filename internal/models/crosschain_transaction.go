package models

import (
	"fmt"
	"math/big"

	"crosschain-core/internal/utils"

	"github.com/ethereum/go-ethereum/common"
)

// CrosschainTransactionType is the first field of every encoded crosschain transaction.
// The numeric tags are the dispatch contract with the Besu crosschain decoder and must not change.
type CrosschainTransactionType uint8

const (
	OriginatingTransaction    CrosschainTransactionType = 0
	SubordinateTransaction    CrosschainTransactionType = 1
	SubordinateView           CrosschainTransactionType = 2
	OriginatingDeployLockable CrosschainTransactionType = 3
	SubordinateDeployLockable CrosschainTransactionType = 4
	SinglechainDeployLockable CrosschainTransactionType = 5
)

func (t CrosschainTransactionType) String() string {
	switch t {
	case OriginatingTransaction:
		return "ORIGINATING_TRANSACTION"
	case SubordinateTransaction:
		return "SUBORDINATE_TRANSACTION"
	case SubordinateView:
		return "SUBORDINATE_VIEW"
	case OriginatingDeployLockable:
		return "ORIGINATING_DEPLOY_LOCKABLE"
	case SubordinateDeployLockable:
		return "SUBORDINATE_DEPLOY_LOCKABLE"
	case SinglechainDeployLockable:
		return "SINGLECHAIN_DEPLOY_LOCKABLE"
	default:
		return fmt.Sprintf("CrosschainTransactionType(%d)", uint8(t))
	}
}

// Coordination is the metadata the transaction manager stamps onto every crosschain context
type Coordination struct {
	BlockchainID       *big.Int
	ContractAddress    common.Address
	TimeoutBlockNumber *big.Int
}

// SubordinateOrigin says which sidechain and account called a subordinate transaction.
// A set FromSidechainID requires OriginatingSidechainID; the encoder rejects the origin otherwise.
type SubordinateOrigin struct {
	OriginatingSidechainID *big.Int
	FromSidechainID        *big.Int
	FromAddress            common.Address
}

// CrosschainContext holds the coordination data of one crosschain operation.
// Callers build it with NewOriginatingContext or NewSubordinateContext; the manager
// attaches Coordination on a copy via WithCoordination.
type CrosschainContext struct {
	TransactionID *big.Int
	// Origin is nil for originating transactions
	Origin *SubordinateOrigin
	// SubordinateTransactionsAndViews are already-signed encodings, embedded as opaque byte strings
	SubordinateTransactionsAndViews [][]byte
	Coordination                    *Coordination
}

// NewOriginatingContext creates the context for a transaction on the originating chain
func NewOriginatingContext(transactionID *big.Int, subordinates ...[]byte) *CrosschainContext {
	return &CrosschainContext{
		TransactionID:                   transactionID,
		SubordinateTransactionsAndViews: subordinates,
	}
}

// NewSubordinateContext creates the context for a subordinate transaction or view
func NewSubordinateContext(transactionID *big.Int, origin SubordinateOrigin, subordinates ...[]byte) *CrosschainContext {
	return &CrosschainContext{
		TransactionID:                   transactionID,
		Origin:                          &origin,
		SubordinateTransactionsAndViews: subordinates,
	}
}

// IsSubordinate reports whether the context names the sidechain it was called from.
// The subordinate field group is keyed on FromSidechainID, an origin without it encodes as originating.
func (c *CrosschainContext) IsSubordinate() bool {
	return c != nil && c.Origin != nil && c.Origin.FromSidechainID != nil
}

// WithCoordination returns a copy of the context with coordination metadata attached.
// The receiver is left untouched.
func (c *CrosschainContext) WithCoordination(coord Coordination) *CrosschainContext {
	out := &CrosschainContext{
		TransactionID: copyInt(c.TransactionID),
		Coordination: &Coordination{
			BlockchainID:       copyInt(coord.BlockchainID),
			ContractAddress:    coord.ContractAddress,
			TimeoutBlockNumber: copyInt(coord.TimeoutBlockNumber),
		},
	}
	if c.Origin != nil {
		out.Origin = &SubordinateOrigin{
			OriginatingSidechainID: copyInt(c.Origin.OriginatingSidechainID),
			FromSidechainID:        copyInt(c.Origin.FromSidechainID),
			FromAddress:            c.Origin.FromAddress,
		}
	}
	if c.SubordinateTransactionsAndViews != nil {
		out.SubordinateTransactionsAndViews = make([][]byte, len(c.SubordinateTransactionsAndViews))
		for i, sub := range c.SubordinateTransactionsAndViews {
			out.SubordinateTransactionsAndViews[i] = append([]byte{}, sub...)
		}
	}
	return out
}

func copyInt(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}

// TransactionShape selects which optional field groups appear on the wire
type TransactionShape int

const (
	ShapeSinglechain TransactionShape = iota
	ShapeOriginating
	ShapeSubordinate
)

func (s TransactionShape) String() string {
	switch s {
	case ShapeSinglechain:
		return "singlechain"
	case ShapeOriginating:
		return "originating"
	case ShapeSubordinate:
		return "subordinate"
	default:
		return "unknown"
	}
}

// CrosschainRawTransaction is an unsigned crosschain transaction. Treat it as immutable once built.
type CrosschainRawTransaction struct {
	Type     CrosschainTransactionType
	Nonce    *big.Int
	GasPrice *big.Int
	GasLimit *big.Int
	To       *common.Address // nil for contract creation
	Value    *big.Int
	Data     []byte
	Context  *CrosschainContext // nil for singlechain transactions
}

// NewCrosschainRawTransaction builds a transaction from hex inputs, validating them at the boundary
func NewCrosschainRawTransaction(
	txType CrosschainTransactionType,
	nonce, gasPrice, gasLimit *big.Int,
	to string,
	value *big.Int,
	data string,
	cc *CrosschainContext,
) (*CrosschainRawTransaction, error) {
	for _, field := range []struct {
		name string
		v    *big.Int
	}{{"nonce", nonce}, {"gas_price", gasPrice}, {"gas_limit", gasLimit}, {"value", value}} {
		if err := utils.ValidateUint(field.name, field.v); err != nil {
			return nil, err
		}
	}

	toAddr, err := utils.ParseOptionalAddress(to)
	if err != nil {
		return nil, fmt.Errorf("to: %w", err)
	}
	payload, err := utils.ParseHexData(data)
	if err != nil {
		return nil, fmt.Errorf("data: %w", err)
	}

	return &CrosschainRawTransaction{
		Type:     txType,
		Nonce:    utils.OrZero(nonce),
		GasPrice: utils.OrZero(gasPrice),
		GasLimit: utils.OrZero(gasLimit),
		To:       toAddr,
		Value:    utils.OrZero(value),
		Data:     payload,
		Context:  cc,
	}, nil
}

// Shape derives the wire shape from the context
func (tx *CrosschainRawTransaction) Shape() TransactionShape {
	switch {
	case tx.Context == nil:
		return ShapeSinglechain
	case tx.Context.IsSubordinate():
		return ShapeSubordinate
	default:
		return ShapeOriginating
	}
}

// SignatureData holds the v, r, s trailer of an encoded transaction
type SignatureData struct {
	V []byte
	R []byte
	S []byte
}

// PreimageSignature is the EIP-155 placeholder used when hashing for signing: v = chain id, empty r and s
func PreimageSignature(chainID *big.Int) *SignatureData {
	return &SignatureData{
		V: utils.OrZero(chainID).Bytes(),
		R: []byte{},
		S: []byte{},
	}
}
