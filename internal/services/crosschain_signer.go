package services

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"crosschain-core/internal/clients"
	"crosschain-core/internal/models"
	"crosschain-core/internal/types"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ===== Signing strategies =====

// SigningStrategy signs a 32-byte digest and returns a 65-byte [R || S || recid] signature
type SigningStrategy interface {
	Sign(ctx context.Context, digest []byte) ([]byte, error)
	Address() common.Address
	Name() string
}

// PrivateKeySigningStrategy signs with an in-process secp256k1 key
type PrivateKeySigningStrategy struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewPrivateKeySigningStrategy parses a hex private key (0x prefix optional)
func NewPrivateKeySigningStrategy(hexKey string) (*PrivateKeySigningStrategy, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrKeyInvalid, err)
	}
	return NewPrivateKeySigningStrategyFromKey(key)
}

// NewPrivateKeySigningStrategyFromKey wraps an existing key
func NewPrivateKeySigningStrategyFromKey(key *ecdsa.PrivateKey) (*PrivateKeySigningStrategy, error) {
	if key == nil || key.D == nil || key.D.Sign() <= 0 {
		return nil, types.ErrKeyInvalid
	}
	return &PrivateKeySigningStrategy{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
	}, nil
}

func (s *PrivateKeySigningStrategy) Sign(_ context.Context, digest []byte) ([]byte, error) {
	return crypto.Sign(digest, s.key)
}

func (s *PrivateKeySigningStrategy) Address() common.Address {
	return s.address
}

func (s *PrivateKeySigningStrategy) Name() string {
	return "PrivateKey"
}

// KMSSigningStrategy delegates digest signing to the remote KMS service
type KMSSigningStrategy struct {
	client   *clients.KMSClient
	keyAlias string
	chainID  *big.Int
	address  common.Address
}

// NewKMSSigningStrategy resolves the signing address from the KMS when address is empty
func NewKMSSigningStrategy(ctx context.Context, client *clients.KMSClient, keyAlias string, chainID *big.Int, address string) (*KMSSigningStrategy, error) {
	if client == nil || keyAlias == "" {
		return nil, fmt.Errorf("%w: KMS client and key alias are required", types.ErrKeyInvalid)
	}
	if address == "" {
		info, err := client.GetKeyByAlias(ctx, keyAlias, chainID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", types.ErrKeyInvalid, err)
		}
		address = info.PublicAddress
	}
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("%w: KMS address %q", types.ErrKeyInvalid, address)
	}
	return &KMSSigningStrategy{
		client:   client,
		keyAlias: keyAlias,
		chainID:  chainID,
		address:  common.HexToAddress(address),
	}, nil
}

func (s *KMSSigningStrategy) Sign(ctx context.Context, digest []byte) ([]byte, error) {
	return s.client.SignDigest(ctx, s.keyAlias, s.chainID, digest)
}

func (s *KMSSigningStrategy) Address() common.Address {
	return s.address
}

func (s *KMSSigningStrategy) Name() string {
	return "KMS"
}

// ===== Signer =====

var (
	secp256k1N     = crypto.S256().Params().N
	secp256k1HalfN = new(big.Int).Rsh(secp256k1N, 1)
)

// CrosschainSigner produces EIP-155 signed crosschain transactions
type CrosschainSigner struct {
	chainID  *big.Int
	strategy SigningStrategy
}

// NewCrosschainSigner binds a signing strategy to a chain id
func NewCrosschainSigner(chainID *big.Int, strategy SigningStrategy) (*CrosschainSigner, error) {
	if chainID == nil || chainID.Sign() < 0 {
		return nil, fmt.Errorf("%w: chain id must be non-negative", types.ErrInvalidNumeric)
	}
	if strategy == nil {
		return nil, types.ErrKeyInvalid
	}
	return &CrosschainSigner{chainID: new(big.Int).Set(chainID), strategy: strategy}, nil
}

func (s *CrosschainSigner) ChainID() *big.Int {
	return new(big.Int).Set(s.chainID)
}

func (s *CrosschainSigner) Address() common.Address {
	return s.strategy.Address()
}

// SigningHash is keccak256 of the pre-image encoding (v = chain id, empty r and s)
func (s *CrosschainSigner) SigningHash(tx *models.CrosschainRawTransaction) (common.Hash, error) {
	preimage, err := EncodeCrosschainTransaction(tx, models.PreimageSignature(s.chainID))
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(preimage), nil
}

// SignTransaction hashes the pre-image, signs it and returns the final signed encoding
func (s *CrosschainSigner) SignTransaction(ctx context.Context, tx *models.CrosschainRawTransaction) ([]byte, error) {
	hash, err := s.SigningHash(tx)
	if err != nil {
		return nil, err
	}

	raw, err := s.strategy.Sign(ctx, hash.Bytes())
	if err != nil {
		if errors.Is(err, types.ErrKeyInvalid) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %v", types.ErrSigningFailed, s.strategy.Name(), err)
	}

	sig, err := canonicalSignature(raw)
	if err != nil {
		return nil, err
	}

	// Verify the signature recovers to the configured sender
	pub, err := crypto.SigToPub(hash.Bytes(), sig)
	if err != nil {
		return nil, fmt.Errorf("%w: recover public key: %v", types.ErrSigningFailed, err)
	}
	if recovered := crypto.PubkeyToAddress(*pub); recovered != s.strategy.Address() {
		return nil, fmt.Errorf("%w: signature recovers to %s, expected %s",
			types.ErrSigningFailed, recovered.Hex(), s.strategy.Address().Hex())
	}

	return EncodeCrosschainTransaction(tx, eip155SignatureData(sig, s.chainID))
}

// canonicalSignature validates a 65-byte signature, maps recid 27/28 to 0/1 and folds high-s into low-s
func canonicalSignature(raw []byte) ([]byte, error) {
	if len(raw) != crypto.SignatureLength {
		return nil, fmt.Errorf("%w: signature length %d", types.ErrSigningFailed, len(raw))
	}
	sig := append([]byte{}, raw...)

	recid := sig[crypto.RecoveryIDOffset]
	if recid >= 27 {
		recid -= 27
	}
	if recid > 1 {
		return nil, fmt.Errorf("%w: recovery id %d", types.ErrSigningFailed, raw[crypto.RecoveryIDOffset])
	}

	sVal := new(big.Int).SetBytes(sig[32:64])
	if sVal.Sign() == 0 || sVal.Cmp(secp256k1N) >= 0 {
		return nil, fmt.Errorf("%w: s out of range", types.ErrSigningFailed)
	}
	if sVal.Cmp(secp256k1HalfN) > 0 {
		sVal.Sub(secp256k1N, sVal)
		sVal.FillBytes(sig[32:64])
		recid ^= 1
	}
	sig[crypto.RecoveryIDOffset] = recid
	return sig, nil
}

// eip155SignatureData applies v = recid + chainID*2 + 35
func eip155SignatureData(sig []byte, chainID *big.Int) *models.SignatureData {
	v := new(big.Int).Mul(chainID, big.NewInt(2))
	v.Add(v, big.NewInt(35+int64(sig[crypto.RecoveryIDOffset])))
	return &models.SignatureData{
		V: v.Bytes(),
		R: append([]byte{}, sig[:32]...),
		S: append([]byte{}, sig[32:64]...),
	}
}
