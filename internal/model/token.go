package model

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ErrInvalidToken is returned for inputs that are not 20-byte hex addresses.
var ErrInvalidToken = errors.New("invalid token address")

// Token identifies a fungible asset by its chain address, stored lower-cased
// so that equality is case-insensitive.
type Token string

// ParseToken validates and normalizes a hex address.
func ParseToken(input string) (Token, error) {
	input = strings.TrimSpace(input)
	if !common.IsHexAddress(input) {
		return "", fmt.Errorf("%w: %q", ErrInvalidToken, input)
	}
	return Token(strings.ToLower(common.HexToAddress(input).Hex())), nil
}

// MustToken is ParseToken for static inputs; it panics on invalid addresses.
func MustToken(input string) Token {
	token, err := ParseToken(input)
	if err != nil {
		panic(err)
	}
	return token
}

// ParseTokens converts string addresses into tokens, skipping blanks.
func ParseTokens(inputs []string) ([]Token, error) {
	tokens := make([]Token, 0, len(inputs))
	for _, input := range inputs {
		if strings.TrimSpace(input) == "" {
			continue
		}
		token, err := ParseToken(input)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, token)
	}
	return tokens, nil
}

func (t Token) String() string {
	return string(t)
}

// Address returns the go-ethereum address form.
func (t Token) Address() common.Address {
	return common.HexToAddress(string(t))
}

// Equal reports whether two tokens name the same address regardless of case.
func (t Token) Equal(other Token) bool {
	return strings.EqualFold(string(t), string(other))
}
