package types

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidHex is returned for hex inputs that are not valid hex digit sequences
	ErrInvalidHex = errors.New("invalid hex")
	// ErrInvalidAddress is returned when a decoded address is not exactly 20 bytes
	ErrInvalidAddress = errors.New("invalid address")
	// ErrInvalidNumeric is returned for negative integer inputs
	ErrInvalidNumeric = errors.New("invalid numeric value")
	// ErrMissingCoordination is returned when a crosschain context reaches the encoder without coordination metadata
	ErrMissingCoordination = errors.New("crosschain context has no coordination metadata")

	ErrRPCTransport   = errors.New("rpc transport failure")
	ErrReceiptTimeout = errors.New("transaction receipt not available")
	ErrSigningFailed  = errors.New("signing failed")
	ErrKeyInvalid     = errors.New("invalid signing key")
)

// RPCError is a structured error returned inside a node response envelope
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("error processing transaction request: %s", e.Message)
}

// TxHashMismatchError reports that the hash of the submitted bytes differs from the node-reported hash
type TxHashMismatchError struct {
	Local  string
	Remote string
}

func (e *TxHashMismatchError) Error() string {
	return fmt.Sprintf("transaction hash mismatch: local=%s, remote=%s", e.Local, e.Remote)
}
