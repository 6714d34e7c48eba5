package services

import (
	"fmt"
	"math/big"

	"crosschain-core/internal/models"
	"crosschain-core/internal/rlp"
	"crosschain-core/internal/types"
	"crosschain-core/internal/utils"

	"github.com/ethereum/go-ethereum/common"
)

// EncodeCrosschainTransaction serializes tx into the RLP list Besu's crosschain decoder expects.
// A nil sig omits the v, r, s trailer. Both the signing pre-image and the signed encoding come from here.
func EncodeCrosschainTransaction(tx *models.CrosschainRawTransaction, sig *models.SignatureData) ([]byte, error) {
	items, err := crosschainItems(tx, sig)
	if err != nil {
		return nil, err
	}
	return rlp.Encode(rlp.List(items...))
}

func crosschainItems(tx *models.CrosschainRawTransaction, sig *models.SignatureData) ([]rlp.Item, error) {
	if tx == nil {
		return nil, fmt.Errorf("nil crosschain transaction")
	}

	items := []rlp.Item{rlp.Uint64(uint64(tx.Type))}

	var header []rlp.Item
	var err error
	switch tx.Shape() {
	case models.ShapeOriginating:
		header, err = coordinationItems(tx.Context)
	case models.ShapeSubordinate:
		header, err = coordinationItems(tx.Context)
		if err == nil {
			var origin []rlp.Item
			origin, err = originItems(tx.Context.Origin)
			header = append(header, origin...)
		}
	}
	if err != nil {
		return nil, err
	}
	items = append(items, header...)

	body, err := bodyItems(tx)
	if err != nil {
		return nil, err
	}
	items = append(items, body...)

	if tx.Context != nil {
		items = append(items, subordinateListItem(tx.Context.SubordinateTransactionsAndViews))
	}

	if sig != nil {
		items = append(items,
			rlp.String(sig.V),
			rlp.String(trimLeadingZeroes(sig.R)),
			rlp.String(trimLeadingZeroes(sig.S)),
		)
	}
	return items, nil
}

// coordinationItems: coordination blockchain id, coordination contract, timeout block, transaction id
func coordinationItems(cc *models.CrosschainContext) ([]rlp.Item, error) {
	coord := cc.Coordination
	if coord == nil {
		return nil, types.ErrMissingCoordination
	}
	if err := validateUints(
		namedInt{"coordination_blockchain_id", coord.BlockchainID},
		namedInt{"timeout_block_number", coord.TimeoutBlockNumber},
		namedInt{"transaction_id", cc.TransactionID},
	); err != nil {
		return nil, err
	}
	return []rlp.Item{
		rlp.Uint(coord.BlockchainID),
		addressItem(coord.ContractAddress),
		rlp.Uint(coord.TimeoutBlockNumber),
		rlp.Uint(cc.TransactionID),
	}, nil
}

// originItems: originating sidechain id, from sidechain id, from address
func originItems(origin *models.SubordinateOrigin) ([]rlp.Item, error) {
	if origin.OriginatingSidechainID == nil {
		return nil, fmt.Errorf("%w: originating_sidechain_id is required with from_sidechain_id", types.ErrInvalidNumeric)
	}
	if err := validateUints(
		namedInt{"originating_sidechain_id", origin.OriginatingSidechainID},
		namedInt{"from_sidechain_id", origin.FromSidechainID},
	); err != nil {
		return nil, err
	}
	return []rlp.Item{
		rlp.Uint(origin.OriginatingSidechainID),
		rlp.Uint(origin.FromSidechainID),
		addressItem(origin.FromAddress),
	}, nil
}

// bodyItems: nonce, gas price, gas limit, to, value, data
func bodyItems(tx *models.CrosschainRawTransaction) ([]rlp.Item, error) {
	if err := validateUints(
		namedInt{"nonce", tx.Nonce},
		namedInt{"gas_price", tx.GasPrice},
		namedInt{"gas_limit", tx.GasLimit},
		namedInt{"value", tx.Value},
	); err != nil {
		return nil, err
	}

	// contract creation encodes an empty string, never a numeric zero
	to := rlp.String(nil)
	if tx.To != nil {
		to = addressItem(*tx.To)
	}

	return []rlp.Item{
		rlp.Uint(tx.Nonce),
		rlp.Uint(tx.GasPrice),
		rlp.Uint(tx.GasLimit),
		to,
		rlp.Uint(tx.Value),
		rlp.String(tx.Data),
	}, nil
}

func subordinateListItem(subordinates [][]byte) rlp.Item {
	elems := make([]rlp.Item, 0, len(subordinates))
	for _, signed := range subordinates {
		elems = append(elems, rlp.String(signed))
	}
	return rlp.List(elems...)
}

// addressItem keeps all 20 bytes, leading zeros included
func addressItem(addr common.Address) rlp.Item {
	return rlp.String(addr.Bytes())
}

type namedInt struct {
	name string
	v    *big.Int
}

func validateUints(fields ...namedInt) error {
	for _, f := range fields {
		if err := utils.ValidateUint(f.name, f.v); err != nil {
			return err
		}
	}
	return nil
}

func trimLeadingZeroes(b []byte) []byte {
	i := 0
	for i < len(b) && b[i] == 0 {
		i++
	}
	return b[i:]
}
