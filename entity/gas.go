package entity

import "math/big"

// GasPricing is either EIP1559Pricing, LegacyPricing or nil when unspecified.
type GasPricing interface {
	isGasPricing()
}

type EIP1559Pricing struct {
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
}

type LegacyPricing struct {
	GasPrice *big.Int
}

func (EIP1559Pricing) isGasPricing() {}
func (LegacyPricing) isGasPricing()  {}

// GasOptions apply to direct submissions only.
type GasOptions struct {
	GasLimit *uint64
	Pricing  GasPricing
	Nonce    *uint64
}
