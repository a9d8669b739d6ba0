package txbuilder

import (
	"context"
	"math/big"

	"github.com/RushikeshHarne/Immortal-Logic-AnchorChain-Demo/pkg/chain"
	"github.com/RushikeshHarne/Immortal-Logic-AnchorChain-Demo/pkg/contracts"
)

// FeeParams carries either a legacy GasPrice or the MaxFeePerGas +
// MaxPriorityFeePerGas pair, never both.
type FeeParams struct {
	GasPrice             *big.Int `json:"gasPrice,omitempty"`
	MaxFeePerGas         *big.Int `json:"maxFeePerGas,omitempty"`
	MaxPriorityFeePerGas *big.Int `json:"maxPriorityFeePerGas,omitempty"`
}

// Dynamic reports whether the base+priority pair is set.
func (f FeeParams) Dynamic() bool {
	return f.MaxFeePerGas != nil && f.MaxPriorityFeePerGas != nil
}

// IsZero reports whether no fee field is set.
func (f FeeParams) IsZero() bool {
	return f.GasPrice == nil && f.MaxFeePerGas == nil && f.MaxPriorityFeePerGas == nil
}

func (f FeeParams) Validate() error {
	const op = "txbuilder.fees"
	legacy := f.GasPrice != nil
	partial := (f.MaxFeePerGas == nil) != (f.MaxPriorityFeePerGas == nil)
	switch {
	case partial:
		return contracts.Errorf(contracts.KindInvalidInput, op, "maxFeePerGas and maxPriorityFeePerGas must be set together")
	case legacy && f.Dynamic():
		return contracts.Errorf(contracts.KindInvalidInput, op, "gasPrice cannot be combined with maxFeePerGas/maxPriorityFeePerGas")
	case !legacy && !f.Dynamic():
		return contracts.Errorf(contracts.KindInvalidInput, op, "fee parameters are required")
	case legacy && f.GasPrice.Sign() <= 0:
		return contracts.Errorf(contracts.KindInvalidInput, op, "gasPrice must be positive")
	case f.Dynamic() && (f.MaxFeePerGas.Sign() <= 0 || f.MaxPriorityFeePerGas.Sign() < 0):
		return contracts.Errorf(contracts.KindInvalidInput, op, "fee values must be positive")
	case f.Dynamic() && f.MaxPriorityFeePerGas.Cmp(f.MaxFeePerGas) > 0:
		return contracts.Errorf(contracts.KindInvalidInput, op, "maxPriorityFeePerGas %s exceeds maxFeePerGas %s", f.MaxPriorityFeePerGas, f.MaxFeePerGas)
	}
	return nil
}

func (f FeeParams) clone() FeeParams {
	cp := func(v *big.Int) *big.Int {
		if v == nil {
			return nil
		}
		return new(big.Int).Set(v)
	}
	return FeeParams{GasPrice: cp(f.GasPrice), MaxFeePerGas: cp(f.MaxFeePerGas), MaxPriorityFeePerGas: cp(f.MaxPriorityFeePerGas)}
}

// Gwei converts a decimal gwei amount to wei.
func Gwei(v float64) *big.Int {
	wei, _ := new(big.Float).Mul(big.NewFloat(v), big.NewFloat(1e9)).Int(nil)
	return wei
}

// SuggestFees returns override when it is set. Otherwise it asks the ledger:
// on a London chain the tip comes from eth_maxPriorityFeePerGas and the cap is
// twice the latest base fee plus the tip; pre-London chains get eth_gasPrice.
func SuggestFees(ctx context.Context, backend chain.FeeBackend, override FeeParams) (FeeParams, error) {
	const op = "txbuilder.suggest_fees"
	if !override.IsZero() {
		if err := override.Validate(); err != nil {
			return FeeParams{}, err
		}
		return override.clone(), nil
	}

	head, err := backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return FeeParams{}, chain.Wrap(op, err)
	}
	if head.BaseFee == nil {
		price, err := backend.SuggestGasPrice(ctx)
		if err != nil {
			return FeeParams{}, chain.Wrap(op, err)
		}
		return FeeParams{GasPrice: price}, nil
	}

	tip, err := backend.SuggestGasTipCap(ctx)
	if err != nil {
		return FeeParams{}, chain.Wrap(op, err)
	}
	maxFee := new(big.Int).Mul(head.BaseFee, big.NewInt(2))
	maxFee.Add(maxFee, tip)
	return FeeParams{MaxFeePerGas: maxFee, MaxPriorityFeePerGas: tip}, nil
}
