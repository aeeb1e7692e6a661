package utils

import (
	"regexp"

	"github.com/ethereum/go-ethereum/common"
)

var txHashPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

// IsValidEthereumAddress reports whether s is a 0x-prefixed 40-hex-digit
// wallet address.
func IsValidEthereumAddress(address string) bool {
	return common.IsHexAddress(address)
}

// IsValidTransactionHash reports whether s is a 0x-prefixed 32-byte hash.
func IsValidTransactionHash(hash string) bool {
	return txHashPattern.MatchString(hash)
}
