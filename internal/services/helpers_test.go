package services

import (
	"crypto/ecdsa"
	"math/big"
	"testing"

	"crosschain-core/internal/models"
	"crosschain-core/internal/rlp"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

const testKeyHex = "b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291"

var (
	testChainID      = big.NewInt(2018)
	testCoordination = common.HexToAddress("0x00000000000000000000000000000000000000c0")
	testFromAddress  = common.HexToAddress("0x000000000000000000000000000000000000000a")
)

func testKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := crypto.HexToECDSA(testKeyHex)
	require.NoError(t, err)
	return key
}

func testStrategy(t *testing.T) *PrivateKeySigningStrategy {
	t.Helper()
	strategy, err := NewPrivateKeySigningStrategyFromKey(testKey(t))
	require.NoError(t, err)
	return strategy
}

// decodeFields decodes a top-level transaction list
func decodeFields(t *testing.T, encoded []byte) []rlp.Item {
	t.Helper()
	item, err := rlp.Decode(encoded)
	require.NoError(t, err)
	require.True(t, item.IsList())
	return item.Items()
}

func bigOf(item rlp.Item) *big.Int {
	return new(big.Int).SetBytes(item.Bytes())
}

func coordinated(cc *models.CrosschainContext, timeout int64) *models.CrosschainContext {
	return cc.WithCoordination(models.Coordination{
		BlockchainID:       big.NewInt(31),
		ContractAddress:    testCoordination,
		TimeoutBlockNumber: big.NewInt(timeout),
	})
}

func subordinateOrigin() models.SubordinateOrigin {
	return models.SubordinateOrigin{
		OriginatingSidechainID: big.NewInt(3),
		FromSidechainID:        big.NewInt(7),
		FromAddress:            testFromAddress,
	}
}
