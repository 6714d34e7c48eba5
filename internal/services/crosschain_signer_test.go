package services

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"crosschain-core/internal/clients"
	"crosschain-core/internal/config"
	"crosschain-core/internal/models"
	"crosschain-core/internal/types"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recoverSigner rebuilds [R || S || recid] from an encoded signed transaction and recovers the sender
func recoverSigner(t *testing.T, signer *CrosschainSigner, tx *models.CrosschainRawTransaction, signed []byte) (common.Address, *big.Int) {
	t.Helper()
	fields := decodeFields(t, signed)
	n := len(fields)
	v, r, s := bigOf(fields[n-3]), bigOf(fields[n-2]), bigOf(fields[n-1])

	recid := new(big.Int).Sub(v, big.NewInt(35))
	chainID := new(big.Int).Rsh(recid, 1)
	recid.And(recid, big.NewInt(1))
	require.Equal(t, signer.ChainID().Int64(), chainID.Int64())

	sig := make([]byte, crypto.SignatureLength)
	r.FillBytes(sig[:32])
	s.FillBytes(sig[32:64])
	sig[crypto.RecoveryIDOffset] = byte(recid.Uint64())

	hash, err := signer.SigningHash(tx)
	require.NoError(t, err)
	pub, err := crypto.SigToPub(hash.Bytes(), sig)
	require.NoError(t, err)
	return crypto.PubkeyToAddress(*pub), s
}

func TestSignSinglechainDeployLockable(t *testing.T) {
	strategy := testStrategy(t)
	signer, err := NewCrosschainSigner(testChainID, strategy)
	require.NoError(t, err)

	tx, err := models.NewCrosschainRawTransaction(models.SinglechainDeployLockable,
		big.NewInt(0), big.NewInt(20_000_000_000), big.NewInt(6_721_975), "", big.NewInt(0),
		"0x6080604052348015600f57600080fd5b50", nil)
	require.NoError(t, err)

	signed, err := signer.SignTransaction(context.Background(), tx)
	require.NoError(t, err)

	fields := decodeFields(t, signed)
	require.Len(t, fields, 10)
	assert.Equal(t, int64(models.SinglechainDeployLockable), bigOf(fields[0]).Int64())
	assert.Empty(t, fields[4].Bytes())

	v := bigOf(fields[7]).Int64()
	assert.Contains(t, []int64{2*2018 + 35, 2*2018 + 36}, v)

	from, s := recoverSigner(t, signer, tx, signed)
	assert.Equal(t, strategy.Address(), from)
	assert.LessOrEqual(t, s.Cmp(secp256k1HalfN), 0)
}

func TestSigningHashUsesChainIDPreimage(t *testing.T) {
	signer, err := NewCrosschainSigner(testChainID, testStrategy(t))
	require.NoError(t, err)
	tx, err := models.NewCrosschainRawTransaction(models.SinglechainDeployLockable,
		big.NewInt(0), big.NewInt(1), big.NewInt(1), "", big.NewInt(0), "", nil)
	require.NoError(t, err)

	preimage, err := EncodeCrosschainTransaction(tx, models.PreimageSignature(testChainID))
	require.NoError(t, err)
	fields := decodeFields(t, preimage)
	assert.Equal(t, []byte{0x07, 0xe2}, fields[7].Bytes())
	assert.Empty(t, fields[8].Bytes())
	assert.Empty(t, fields[9].Bytes())

	hash, err := signer.SigningHash(tx)
	require.NoError(t, err)
	assert.Equal(t, crypto.Keccak256Hash(preimage), hash)
}

func TestSignSubordinateRecoversSender(t *testing.T) {
	strategy := testStrategy(t)
	signer, err := NewCrosschainSigner(testChainID, strategy)
	require.NoError(t, err)

	cc := coordinated(models.NewSubordinateContext(big.NewInt(1), subordinateOrigin()), 60)
	tx, err := models.NewCrosschainRawTransaction(models.SubordinateTransaction,
		big.NewInt(2), big.NewInt(1), big.NewInt(100000),
		"0x00000000000000000000000000000000000000ff", big.NewInt(0), "0x1234", cc)
	require.NoError(t, err)

	signed, err := signer.SignTransaction(context.Background(), tx)
	require.NoError(t, err)
	require.Len(t, decodeFields(t, signed), 18)

	from, _ := recoverSigner(t, signer, tx, signed)
	assert.Equal(t, strategy.Address(), from)
}

func TestCanonicalSignatureFoldsHighS(t *testing.T) {
	key := testKey(t)
	digest := crypto.Keccak256([]byte("crosschain"))
	low, err := crypto.Sign(digest, key)
	require.NoError(t, err)

	high := append([]byte{}, low...)
	s := new(big.Int).SetBytes(low[32:64])
	new(big.Int).Sub(secp256k1N, s).FillBytes(high[32:64])
	high[crypto.RecoveryIDOffset] ^= 1

	normalized, err := canonicalSignature(high)
	require.NoError(t, err)
	assert.Equal(t, low, normalized)

	legacy := append([]byte{}, low...)
	legacy[crypto.RecoveryIDOffset] += 27
	normalized, err = canonicalSignature(legacy)
	require.NoError(t, err)
	assert.Equal(t, low, normalized)

	_, err = canonicalSignature(low[:64])
	assert.ErrorIs(t, err, types.ErrSigningFailed)

	badRecid := append([]byte{}, low...)
	badRecid[crypto.RecoveryIDOffset] = 5
	_, err = canonicalSignature(badRecid)
	assert.ErrorIs(t, err, types.ErrSigningFailed)
}

func TestEIP155SignatureData(t *testing.T) {
	sig := make([]byte, crypto.SignatureLength)
	sig[crypto.RecoveryIDOffset] = 1
	data := eip155SignatureData(sig, testChainID)
	assert.Equal(t, big.NewInt(2*2018+36).Bytes(), data.V)
}

type staticStrategy struct {
	sig     []byte
	err     error
	address common.Address
}

func (s *staticStrategy) Sign(context.Context, []byte) ([]byte, error) { return s.sig, s.err }
func (s *staticStrategy) Address() common.Address { return s.address }
func (s *staticStrategy) Name() string { return "static" }

func TestSignTransactionFailures(t *testing.T) {
	tx, err := models.NewCrosschainRawTransaction(models.SinglechainDeployLockable,
		big.NewInt(0), big.NewInt(1), big.NewInt(1), "", big.NewInt(0), "", nil)
	require.NoError(t, err)

	failing, err := NewCrosschainSigner(testChainID, &staticStrategy{err: errors.New("hsm offline")})
	require.NoError(t, err)
	_, err = failing.SignTransaction(context.Background(), tx)
	assert.ErrorIs(t, err, types.ErrSigningFailed)

	// a valid signature from a key other than the advertised sender
	realSigner, err := NewCrosschainSigner(testChainID, testStrategy(t))
	require.NoError(t, err)
	hash, err := realSigner.SigningHash(tx)
	require.NoError(t, err)
	sig, err := crypto.Sign(hash.Bytes(), testKey(t))
	require.NoError(t, err)

	impostor, err := NewCrosschainSigner(testChainID, &staticStrategy{sig: sig, address: testFromAddress})
	require.NoError(t, err)
	_, err = impostor.SignTransaction(context.Background(), tx)
	assert.ErrorIs(t, err, types.ErrSigningFailed)
}

func TestPrivateKeySigningStrategyInvalidKey(t *testing.T) {
	_, err := NewPrivateKeySigningStrategy("not-a-key")
	assert.ErrorIs(t, err, types.ErrKeyInvalid)

	strategy, err := NewPrivateKeySigningStrategy("0x" + testKeyHex)
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(testKey(t).PublicKey), strategy.Address())

	_, err = NewCrosschainSigner(big.NewInt(-1), strategy)
	assert.ErrorIs(t, err, types.ErrInvalidNumeric)
}

func TestKMSSigningStrategy(t *testing.T) {
	key := testKey(t)
	address := crypto.PubkeyToAddress(key.PublicKey)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer kms-token", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/api/v1/keys":
			_ = json.NewEncoder(w).Encode(clients.KMSGetKeysResponse{
				Success: true,
				Count:   1,
				Keys: []clients.KMSKeyInfo{{
					KeyAlias:      "relayer",
					ChainID:       "2018",
					PublicAddress: address.Hex(),
					Status:        "active",
				}},
			})
		case "/api/v1/sign":
			var req clients.KMSSignRequest
			if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
				http.Error(w, "bad request", http.StatusBadRequest)
				return
			}
			assert.Equal(t, "relayer", req.KeyAlias)
			assert.Equal(t, "2018", req.ChainID)
			digest, err := hexutil.Decode(req.Digest)
			if !assert.NoError(t, err) {
				http.Error(w, "bad digest", http.StatusBadRequest)
				return
			}
			sig, err := crypto.Sign(digest, key)
			if !assert.NoError(t, err) {
				http.Error(w, "sign failed", http.StatusInternalServerError)
				return
			}
			sig[crypto.RecoveryIDOffset] += 27
			_ = json.NewEncoder(w).Encode(clients.KMSSignResponse{Success: true, Signature: hexutil.Encode(sig)})
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	kms := clients.NewKMSClient(config.KMSConfig{Enabled: true, ServiceURL: server.URL, AuthToken: "kms-token", Timeout: 5})
	strategy, err := NewKMSSigningStrategy(context.Background(), kms, "relayer", testChainID, "")
	require.NoError(t, err)
	assert.Equal(t, address, strategy.Address())
	assert.Equal(t, "KMS", strategy.Name())

	signer, err := NewCrosschainSigner(testChainID, strategy)
	require.NoError(t, err)
	tx, err := models.NewCrosschainRawTransaction(models.SinglechainDeployLockable,
		big.NewInt(0), big.NewInt(1), big.NewInt(1), "", big.NewInt(0), "0x00", nil)
	require.NoError(t, err)

	signed, err := signer.SignTransaction(context.Background(), tx)
	require.NoError(t, err)
	from, _ := recoverSigner(t, signer, tx, signed)
	assert.Equal(t, address, from)
}

func TestKMSSigningStrategyUnknownAlias(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(clients.KMSGetKeysResponse{Success: true})
	}))
	defer server.Close()

	kms := clients.NewKMSClient(config.KMSConfig{ServiceURL: server.URL})
	_, err := NewKMSSigningStrategy(context.Background(), kms, "missing", testChainID, "")
	assert.ErrorIs(t, err, types.ErrKeyInvalid)
}
