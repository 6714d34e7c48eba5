package utils

import (
	"fmt"
	"strings"

	"crosschain-core/internal/types"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// has0xPrefix checks whether the input starts with 0x or 0X
func has0xPrefix(input string) bool {
	return len(input) >= 2 && input[0] == '0' && (input[1] == 'x' || input[1] == 'X')
}

// ParseHexData decodes a hex string into bytes.
// The 0x prefix is optional and an odd number of digits is left-padded with a zero nibble.
// An empty string (or a bare "0x") decodes to an empty slice.
func ParseHexData(input string) ([]byte, error) {
	digits := strings.TrimSpace(input)
	if has0xPrefix(digits) {
		digits = digits[2:]
	}
	if len(digits)%2 == 1 {
		digits = "0" + digits
	}

	data, err := hexutil.Decode("0x" + digits)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", types.ErrInvalidHex, input, err)
	}
	return data, nil
}

// ParseAddress decodes a 20-byte address from hex.
// Unlike common.HexToAddress it never pads or truncates, so leading zero bytes are kept exactly as given.
func ParseAddress(input string) (common.Address, error) {
	raw, err := ParseHexData(input)
	if err != nil {
		return common.Address{}, err
	}
	if len(raw) != common.AddressLength {
		return common.Address{}, fmt.Errorf("%w: %q decodes to %d bytes", types.ErrInvalidAddress, input, len(raw))
	}
	return common.BytesToAddress(raw), nil
}

// ParseOptionalAddress returns nil for an empty input (contract creation) and the parsed address otherwise
func ParseOptionalAddress(input string) (*common.Address, error) {
	if strings.TrimSpace(input) == "" {
		return nil, nil
	}
	addr, err := ParseAddress(input)
	if err != nil {
		return nil, err
	}
	return &addr, nil
}

// IsEvmAddress checks whether the input is a well-formed 20-byte hex address
func IsEvmAddress(address string) bool {
	_, err := ParseAddress(address)
	return err == nil
}
