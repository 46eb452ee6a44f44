package utils

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// IsValidAddress checks if a string is a valid Ethereum address
func IsValidAddress(address string) bool {
	return common.IsHexAddress(address)
}

// NormalizeAddress normalizes an address to lowercase with 0x prefix
func NormalizeAddress(address string) string {
	if !strings.HasPrefix(address, "0x") {
		address = "0x" + address
	}
	return strings.ToLower(address)
}

// KeccakText returns the 0x-prefixed keccak256 hash of the UTF-8 bytes of text.
// On-chain nft data keys are tagged with this hash.
func KeccakText(text string) string {
	return crypto.Keccak256Hash([]byte(text)).Hex()
}

// HexText encodes the UTF-8 bytes of text as a 0x-prefixed hex string.
func HexText(text string) string {
	return hexutil.Encode([]byte(text))
}

// SplitList splits a comma separated list, trimming blanks and dropping empty items.
func SplitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// HexifyList splits a comma separated list and hex encodes each item.
// It returns nil for an empty list so the result reads as "no constraint".
func HexifyList(raw string) []string {
	items := SplitList(raw)
	if len(items) == 0 {
		return nil
	}

	out := make([]string, len(items))
	for i, item := range items {
		out[i] = HexText(item)
	}
	return out
}
