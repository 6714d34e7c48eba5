package services

import (
	"bytes"
	"math/big"
	"testing"

	"crosschain-core/internal/models"
	"crosschain-core/internal/types"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeSinglechainFixture(t *testing.T) {
	tx, err := models.NewCrosschainRawTransaction(models.SinglechainDeployLockable,
		big.NewInt(0), big.NewInt(1), big.NewInt(2), "", big.NewInt(0), "0x01", nil)
	require.NoError(t, err)

	encoded, err := EncodeCrosschainTransaction(tx, nil)
	require.NoError(t, err)
	assert.Equal(t, common.FromHex("0xc705800102808001"), encoded)
}

func TestEncodeElementCounts(t *testing.T) {
	blob := bytes.Repeat([]byte{0x5a}, 32)
	sig := &models.SignatureData{V: []byte{0x0f, 0xe8}, R: []byte{0x01}, S: []byte{0x02}}

	tests := []struct {
		name     string
		cc       *models.CrosschainContext
		unsigned int
		signed   int
	}{
		{"singlechain", nil, 7, 10},
		{"originating", coordinated(models.NewOriginatingContext(big.NewInt(1), blob), 110), 12, 15},
		{"subordinate", coordinated(models.NewSubordinateContext(big.NewInt(1), subordinateOrigin()), 110), 15, 18},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx, err := models.NewCrosschainRawTransaction(models.OriginatingTransaction,
				big.NewInt(1), big.NewInt(20_000_000_000), big.NewInt(6_721_975),
				"0x00000000000000000000000000000000000000ff", big.NewInt(0), "0xabcdef", tt.cc)
			require.NoError(t, err)

			unsigned, err := EncodeCrosschainTransaction(tx, nil)
			require.NoError(t, err)
			assert.Len(t, decodeFields(t, unsigned), tt.unsigned)

			signed, err := EncodeCrosschainTransaction(tx, sig)
			require.NoError(t, err)
			assert.Len(t, decodeFields(t, signed), tt.signed)
		})
	}
}

func TestEncodeOriginatingLayout(t *testing.T) {
	blob := bytes.Repeat([]byte{0x5a}, 32)
	cc := coordinated(models.NewOriginatingContext(big.NewInt(1), blob), 110)
	tx, err := models.NewCrosschainRawTransaction(models.OriginatingTransaction,
		big.NewInt(4), big.NewInt(20_000_000_000), big.NewInt(6_721_975),
		"0x00000000000000000000000000000000000000ff", big.NewInt(0), "0x", cc)
	require.NoError(t, err)

	encoded, err := EncodeCrosschainTransaction(tx, nil)
	require.NoError(t, err)
	fields := decodeFields(t, encoded)

	assert.Equal(t, int64(0), bigOf(fields[0]).Int64())
	assert.Equal(t, int64(31), bigOf(fields[1]).Int64())
	assert.Equal(t, testCoordination.Bytes(), fields[2].Bytes())
	assert.Equal(t, int64(110), bigOf(fields[3]).Int64())
	assert.Equal(t, int64(1), bigOf(fields[4]).Int64())
	assert.Equal(t, int64(4), bigOf(fields[5]).Int64())
	// gas price is encoded minimally
	assert.Equal(t, big.NewInt(20_000_000_000).Bytes(), fields[6].Bytes())

	subs := fields[11]
	require.True(t, subs.IsList())
	require.Len(t, subs.Items(), 1)
	assert.Equal(t, blob, subs.Items()[0].Bytes())
}

func TestEncodeSubordinateKeepsAddressLeadingZeros(t *testing.T) {
	cc := coordinated(models.NewSubordinateContext(big.NewInt(9), subordinateOrigin()), 50)
	tx, err := models.NewCrosschainRawTransaction(models.SubordinateTransaction,
		big.NewInt(0), big.NewInt(1), big.NewInt(21000),
		"0x0000000000000000000000000000000000000001", big.NewInt(0), "", cc)
	require.NoError(t, err)

	encoded, err := EncodeCrosschainTransaction(tx, nil)
	require.NoError(t, err)
	fields := decodeFields(t, encoded)

	assert.Equal(t, int64(3), bigOf(fields[5]).Int64())
	assert.Equal(t, int64(7), bigOf(fields[6]).Int64())
	require.Len(t, fields[7].Bytes(), 20)
	assert.Equal(t, testFromAddress.Bytes(), fields[7].Bytes())
	require.Len(t, fields[11].Bytes(), 20)
	assert.Equal(t, common.HexToAddress("0x01").Bytes(), fields[11].Bytes())
	// no subordinates still encodes an empty list
	assert.True(t, fields[14].IsList())
	assert.Empty(t, fields[14].Items())
}

func TestEncodeContractCreationUsesEmptyString(t *testing.T) {
	tx, err := models.NewCrosschainRawTransaction(models.SinglechainDeployLockable,
		big.NewInt(0), big.NewInt(1), big.NewInt(1), "", big.NewInt(0), "0x60806040", nil)
	require.NoError(t, err)

	encoded, err := EncodeCrosschainTransaction(tx, nil)
	require.NoError(t, err)
	fields := decodeFields(t, encoded)
	assert.False(t, fields[4].IsList())
	assert.Empty(t, fields[4].Bytes())
}

func TestEncodeTrimsSignatureLeadingZeros(t *testing.T) {
	tx, err := models.NewCrosschainRawTransaction(models.SinglechainDeployLockable,
		big.NewInt(0), big.NewInt(1), big.NewInt(1), "", big.NewInt(0), "", nil)
	require.NoError(t, err)

	r := append([]byte{0x00, 0x00}, bytes.Repeat([]byte{0x11}, 30)...)
	s := append([]byte{0x00}, bytes.Repeat([]byte{0x22}, 31)...)
	encoded, err := EncodeCrosschainTransaction(tx, &models.SignatureData{V: []byte{0x0f, 0xe7}, R: r, S: s})
	require.NoError(t, err)
	fields := decodeFields(t, encoded)

	assert.Equal(t, []byte{0x0f, 0xe7}, fields[7].Bytes())
	assert.Equal(t, r[2:], fields[8].Bytes())
	assert.Equal(t, s[1:], fields[9].Bytes())
}

func TestEncodeErrors(t *testing.T) {
	uncoordinated := models.NewOriginatingContext(big.NewInt(1))
	tx, err := models.NewCrosschainRawTransaction(models.OriginatingTransaction,
		big.NewInt(0), big.NewInt(1), big.NewInt(1), "", big.NewInt(0), "", uncoordinated)
	require.NoError(t, err)
	_, err = EncodeCrosschainTransaction(tx, nil)
	assert.ErrorIs(t, err, types.ErrMissingCoordination)

	negative := &models.CrosschainRawTransaction{
		Type: models.SinglechainDeployLockable, Nonce: big.NewInt(-1),
		GasPrice: big.NewInt(0), GasLimit: big.NewInt(0), Value: big.NewInt(0),
	}
	_, err = EncodeCrosschainTransaction(negative, nil)
	assert.ErrorIs(t, err, types.ErrInvalidNumeric)

	badTimeout := models.NewOriginatingContext(big.NewInt(1)).WithCoordination(models.Coordination{
		BlockchainID: big.NewInt(1), TimeoutBlockNumber: big.NewInt(-5),
	})
	tx.Context = badTimeout
	_, err = EncodeCrosschainTransaction(tx, nil)
	assert.ErrorIs(t, err, types.ErrInvalidNumeric)
}

func TestEncodeOriginWithoutFromSidechainUsesOriginatingShape(t *testing.T) {
	origin := models.SubordinateOrigin{FromAddress: testFromAddress}
	cc := coordinated(models.NewSubordinateContext(big.NewInt(1), origin), 110)
	tx, err := models.NewCrosschainRawTransaction(models.OriginatingTransaction,
		big.NewInt(0), big.NewInt(1), big.NewInt(21000), "", big.NewInt(0), "", cc)
	require.NoError(t, err)

	encoded, err := EncodeCrosschainTransaction(tx, nil)
	require.NoError(t, err)
	fields := decodeFields(t, encoded)
	require.Len(t, fields, 12)
	// element 5 is the nonce, not an originating sidechain id
	assert.Empty(t, fields[5].Bytes())
	assert.True(t, fields[11].IsList())
}

func TestEncodeRejectsIncompleteSubordinateOrigin(t *testing.T) {
	origin := models.SubordinateOrigin{FromSidechainID: big.NewInt(7), FromAddress: testFromAddress}
	cc := coordinated(models.NewSubordinateContext(big.NewInt(1), origin), 110)
	tx, err := models.NewCrosschainRawTransaction(models.SubordinateTransaction,
		big.NewInt(0), big.NewInt(1), big.NewInt(21000), "", big.NewInt(0), "", cc)
	require.NoError(t, err)

	_, err = EncodeCrosschainTransaction(tx, nil)
	assert.ErrorIs(t, err, types.ErrInvalidNumeric)
	assert.ErrorContains(t, err, "originating_sidechain_id")
}
