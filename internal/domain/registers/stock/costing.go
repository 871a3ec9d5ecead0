package stock

import (
	"stockledger/internal/core/types"
)

// WeightedAverageCost merges incoming stock into the current unit cost:
//
//	newCost = (oldQty*oldCost + inQty*inCost) / (oldQty + inQty)
//
// A zero incoming quantity is a cost-only correction and returns inCost, as does
// a non-positive resulting quantity. The result is rounded to types.CostPlaces.
func WeightedAverageCost(oldQty types.Quantity, oldCost types.Money, inQty types.Quantity, inCost types.Money) types.Money {
	total := oldQty + inQty
	if inQty == 0 || total <= 0 || oldQty <= 0 {
		return types.RoundCost(inCost)
	}
	value := oldQty.Amount(oldCost).Add(inQty.Amount(inCost))
	return types.RoundCost(value.Div(total.Decimal()))
}
