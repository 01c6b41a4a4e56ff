package main

import (
	"fmt"

	"github.com/pulkyeet/flasharb/internal/amm"
	"github.com/pulkyeet/flasharb/internal/eth"
)

// describePool renders a pool's fee and spot price seen from base.
func describePool(p amm.Pool, base eth.TokenInfo) string {
	desc := fmt.Sprintf("%s fee %d bps", p.Address.Hex(), p.EffectiveFee().Bps())
	pairedAddr, err := p.Other(base.Address)
	if err != nil {
		return desc
	}
	paired, err := eth.ResolveToken(pairedAddr.Hex())
	if err != nil {
		return desc
	}
	price, err := eth.Price(p, base.Address, base.Decimals, paired.Decimals)
	if err != nil {
		return desc
	}
	return fmt.Sprintf("%s, 1 %s = %s %s", desc, base.Symbol, price.Round(6).String(), paired.Symbol)
}
