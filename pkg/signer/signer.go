// Package signer holds the key material used to authorize anchor transactions.
// Keys never appear in logs or error messages.
package signer

import (
	"crypto/ecdsa"
	"log/slog"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/RushikeshHarne/Immortal-Logic-AnchorChain-Demo/pkg/contracts"
)

// Signer authorizes transactions for one sending account.
type Signer interface {
	Address() common.Address
	SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
}

// KeySigner signs with an in-process secp256k1 key.
type KeySigner struct {
	key  *ecdsa.PrivateKey
	addr common.Address
}

var _ Signer = (*KeySigner)(nil)

// FromHex parses a hex private key, with or without the 0x prefix.
func FromHex(hexKey string) (*KeySigner, error) {
	k := strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	if k == "" {
		return nil, contracts.Errorf(contracts.KindMissingSigner, "signer.load", "no private key configured")
	}
	key, err := crypto.HexToECDSA(k)
	if err != nil {
		// the parse error can echo key bytes; do not wrap it
		return nil, contracts.Errorf(contracts.KindMissingSigner, "signer.load", "private key is malformed")
	}
	return FromKey(key), nil
}

// FromKey wraps an existing key.
func FromKey(key *ecdsa.PrivateKey) *KeySigner {
	return &KeySigner{key: key, addr: crypto.PubkeyToAddress(key.PublicKey)}
}

// Generate creates a fresh random key. Used by local development and tests.
func Generate() (*KeySigner, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	return FromKey(key), nil
}

func (s *KeySigner) Address() common.Address { return s.addr }

func (s *KeySigner) SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	if chainID == nil || chainID.Sign() <= 0 {
		return nil, contracts.Errorf(contracts.KindInvalidInput, "signer.sign", "chain id is required")
	}
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), s.key)
	if err != nil {
		return nil, contracts.E(contracts.KindInvalidInput, "signer.sign", err)
	}
	return signed, nil
}

func (s *KeySigner) String() string { return "signer(" + s.addr.Hex() + ")" }

// LogValue keeps slog from reflecting into the key.
func (s *KeySigner) LogValue() slog.Value { return slog.StringValue(s.addr.Hex()) }
