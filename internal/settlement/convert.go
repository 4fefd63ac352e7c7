package settlement

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/params"
	"github.com/shopspring/decimal"
)

var weiPerEther = decimal.NewFromBigInt(big.NewInt(params.Ether), 0)

// ToWei converts a native-unit amount into wei, truncating below one wei
func ToWei(native decimal.Decimal) *big.Int {
	return native.Mul(weiPerEther).Truncate(0).BigInt()
}

// FromWei converts wei into native units
func FromWei(wei *big.Int) decimal.Decimal {
	return decimal.NewFromBigInt(wei, 0).Div(weiPerEther)
}

// NormalizeAddress validates a hex address and returns its checksummed form
func NormalizeAddress(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if !common.IsHexAddress(addr) {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, addr)
	}
	return common.HexToAddress(addr).Hex(), nil
}

// NormalizeTxHash validates a 32-byte transaction hash and returns it lower-cased
func NormalizeTxHash(hash string) (string, error) {
	hash = strings.TrimSpace(hash)
	raw := strings.TrimPrefix(strings.TrimPrefix(hash, "0x"), "0X")
	if len(raw) != 2*common.HashLength {
		return "", fmt.Errorf("%w: transaction hash %q", ErrInvalidResponse, hash)
	}
	if _, ok := new(big.Int).SetString(raw, 16); !ok {
		return "", fmt.Errorf("%w: transaction hash %q", ErrInvalidResponse, hash)
	}
	return common.HexToHash(raw).Hex(), nil
}
