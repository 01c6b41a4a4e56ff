package arbitrage

import (
	"errors"
	"fmt"
	"sort"
)

// DetectOpportunities plans every pool combination of a pair and returns the
// profitable plans, most profitable first. Pairs without a gap yield nil, nil.
func DetectOpportunities(pair *PairPools, opt *Optimizer) ([]*Plan, error) {
	if len(pair.Pools) < 2 {
		return nil, fmt.Errorf("need at least 2 pools to detect arbitrage")
	}

	var plans []*Plan
	for i := 0; i < len(pair.Pools); i++ {
		for j := i + 1; j < len(pair.Pools); j++ {
			plan, err := opt.Optimize(pair.Pools[i], pair.Pools[j], pair.Base)
			if errors.Is(err, ErrNoOpportunity) {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("pools %s/%s: %w", pair.Pools[i].Address.Hex(), pair.Pools[j].Address.Hex(), err)
			}
			plans = append(plans, plan)
		}
	}

	sort.Slice(plans, func(i, j int) bool {
		return plans[i].ExpectedProfit.Gt(plans[j].ExpectedProfit)
	})
	return plans, nil
}
