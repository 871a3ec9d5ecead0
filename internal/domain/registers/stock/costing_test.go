package stock

import (
	"testing"

	"github.com/stretchr/testify/require"

	"stockledger/internal/core/types"
)

func TestWeightedAverageCost(t *testing.T) {
	tests := []struct {
		name    string
		oldQty  int64
		oldCost string
		inQty   int64
		inCost  string
		want    string
	}{
		{"equal halves", 10, "100", 10, "200", "150"},
		{"empty entry takes incoming cost", 0, "80", 5, "120", "120"},
		{"cost only correction", 10, "100", 0, "95.5", "95.5"},
		{"uneven blend", 3, "10", 1, "14", "11"},
		{"repeating fraction rounded", 2, "1", 1, "2", "1.3333"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := WeightedAverageCost(
				types.NewQuantity(tt.oldQty), types.MustMoney(tt.oldCost),
				types.NewQuantity(tt.inQty), types.MustMoney(tt.inCost),
			)
			require.True(t, got.Equal(types.MustMoney(tt.want)), "got %s want %s", got, tt.want)
		})
	}
}
