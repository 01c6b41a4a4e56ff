package amm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFeeValidate(t *testing.T) {
	assert.NoError(t, UniswapV2Fee.Validate())
	assert.NoError(t, PancakeV2Fee.Validate())
	assert.NoError(t, Fee{1, 1}.Validate())
	assert.ErrorIs(t, Fee{}.Validate(), ErrInvalidPool)
	assert.ErrorIs(t, Fee{5, 4}.Validate(), ErrInvalidPool)
}

func TestFeeBps(t *testing.T) {
	assert.Equal(t, uint64(30), UniswapV2Fee.Bps())
	assert.Equal(t, uint64(25), PancakeV2Fee.Bps())
	assert.Equal(t, uint64(20), ApeSwapFee.Bps())
	assert.Equal(t, "997/1000", UniswapV2Fee.String())
}
