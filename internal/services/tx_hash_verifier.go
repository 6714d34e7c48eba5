package services

// TxHashVerifier compares the hash computed over the submitted bytes with the hash the node reported
type TxHashVerifier interface {
	Verify(localHash, remoteHash string) bool
}

// TxHashVerifierFunc adapts a plain function to TxHashVerifier
type TxHashVerifierFunc func(localHash, remoteHash string) bool

func (f TxHashVerifierFunc) Verify(localHash, remoteHash string) bool {
	return f(localHash, remoteHash)
}

// StrictTxHashVerifier accepts only byte-for-byte equal hash strings
var StrictTxHashVerifier TxHashVerifier = TxHashVerifierFunc(func(localHash, remoteHash string) bool {
	return localHash == remoteHash
})
