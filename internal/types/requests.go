// Package types provides request/response envelopes and the error taxonomy shared by the crosschain core
package types

import (
	"math/big"
)

// TransactionRequest carries the caller-supplied part of a crosschain transaction.
// Nonce and coordination metadata are filled in by the transaction manager.
type TransactionRequest struct {
	GasPrice *big.Int `json:"gas_price"`
	GasLimit *big.Int `json:"gas_limit"`
	To       string   `json:"to,omitempty"` // hex address; empty for contract creation
	Data     string   `json:"data"`         // hex-encoded call data or init code
	Value    *big.Int `json:"value"`
}

// SendTransactionResponse is the envelope returned by cross_sendCrossChainRawTransaction
type SendTransactionResponse struct {
	TransactionHash string    `json:"transaction_hash"`
	Error           *RPCError `json:"error,omitempty"`
}

// HasError reports whether the node returned a structured error
func (r *SendTransactionResponse) HasError() bool {
	return r.Error != nil
}

// SubordinateViewResponse is the envelope returned by cross_processSubordinateView
type SubordinateViewResponse struct {
	Value string    `json:"value"` // hex-encoded ABI return data
	Error *RPCError `json:"error,omitempty"`
}

// HasError reports whether the node returned a structured error
func (r *SubordinateViewResponse) HasError() bool {
	return r.Error != nil
}
