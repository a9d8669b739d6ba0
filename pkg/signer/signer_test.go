package signer

import (
	"bytes"
	"fmt"
	"log/slog"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RushikeshHarne/Immortal-Logic-AnchorChain-Demo/pkg/contracts"
)

// Well-known development key (account #0 of the default local devnet mnemonic).
const devKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func TestFromHex(t *testing.T) {
	s, err := FromHex(devKey)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"), s.Address())

	noPrefix, err := FromHex(devKey[2:])
	require.NoError(t, err)
	assert.Equal(t, s.Address(), noPrefix.Address())
}

func TestFromHex_Failures(t *testing.T) {
	_, err := FromHex("   ")
	assert.ErrorIs(t, err, contracts.ErrMissingSigner)

	_, err = FromHex("0xnothex")
	assert.ErrorIs(t, err, contracts.ErrMissingSigner)
	assert.NotContains(t, err.Error(), "nothex")
}

func TestSignTx_RecoversSender(t *testing.T) {
	s, err := Generate()
	require.NoError(t, err)

	to := common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	chainID := big.NewInt(80002)
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     7,
		GasTipCap: big.NewInt(1),
		GasFeeCap: big.NewInt(2),
		Gas:       350000,
		To:        &to,
	})
	signed, err := s.SignTx(tx, chainID)
	require.NoError(t, err)

	from, err := types.Sender(types.LatestSignerForChainID(chainID), signed)
	require.NoError(t, err)
	assert.Equal(t, s.Address(), from)

	_, err = s.SignTx(tx, nil)
	assert.ErrorIs(t, err, contracts.ErrInvalidInput)
}

func TestKeyNeverLogged(t *testing.T) {
	s, err := FromHex(devKey)
	require.NoError(t, err)

	var buf bytes.Buffer
	slog.New(slog.NewJSONHandler(&buf, nil)).Info("loaded", "signer", s)
	assert.NotContains(t, buf.String(), devKey[2:])
	assert.Contains(t, buf.String(), s.Address().Hex())
	assert.NotContains(t, fmt.Sprintf("%v", s), devKey[2:])
}
