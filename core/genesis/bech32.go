package genesis

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"orderchain/crypto"
)

// ParseAccount decodes a genesis account written as ord1... bech32 or 0x hex.
func ParseAccount(addr string) (common.Address, error) {
	parsed, err := crypto.ParseAddress(addr)
	if err != nil {
		return common.Address{}, fmt.Errorf("decode account %q: %w", addr, err)
	}
	return parsed, nil
}

func parseOptionalAccount(addr string) (common.Address, error) {
	if addr == "" {
		return common.Address{}, nil
	}
	return ParseAccount(addr)
}
