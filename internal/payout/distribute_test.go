package payout

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contest-settlement/internal/domain"
)

var standardFees = FeeSchedule{CommissionBps: 500, PlatformFeeBps: 100, MaxPlatformFeeBps: 1000}

func newDistributor(t *testing.T, ratio string) *Distributor {
	t.Helper()
	d, err := NewDistributor(ratio)
	require.NoError(t, err)
	return d
}

func TestTieredDistribution(t *testing.T) {
	d := newDistributor(t, DefaultTierRatio)

	dist, err := d.Distribute(1_000_000, 3, standardFees, domain.DistributionTiered)
	require.NoError(t, err)

	assert.Equal(t, uint64(50_000), dist.Commission)
	assert.Equal(t, uint64(10_000), dist.PlatformFee)
	assert.Equal(t, uint64(940_000), dist.Remaining)
	assert.Equal(t, []uint64{537_142, 268_571, 134_285}, dist.Prizes)
	assert.Equal(t, uint64(2), dist.Dust)
	assert.Equal(t, dist.Remaining-dist.Dust, dist.Distributed())
}

func TestEvenSplitDistribution(t *testing.T) {
	d := newDistributor(t, DefaultTierRatio)

	dist, err := d.Distribute(1_000_000, 2, standardFees, domain.DistributionEven)
	require.NoError(t, err)
	assert.Equal(t, uint64(940_000), dist.Remaining)
	assert.Equal(t, []uint64{470_000, 470_000}, dist.Prizes)
	assert.Zero(t, dist.Dust)

	dist, err = d.Distribute(10, 3, FeeSchedule{}, domain.DistributionEven)
	require.NoError(t, err)
	assert.Equal(t, []uint64{3, 3, 3}, dist.Prizes)
	assert.Equal(t, uint64(1), dist.Dust)
}

func TestSingleWinnerTakesRemaining(t *testing.T) {
	d := newDistributor(t, DefaultTierRatio)
	for _, mode := range []domain.DistributionMode{domain.DistributionTiered, domain.DistributionEven} {
		dist, err := d.Distribute(1_000_000, 1, standardFees, mode)
		require.NoError(t, err)
		assert.Equal(t, []uint64{dist.Remaining}, dist.Prizes, mode)
		assert.Zero(t, dist.Dust, mode)
	}
}

func TestTieredExactRatio(t *testing.T) {
	d := newDistributor(t, "0.625")
	assert.Equal(t, "0.625", d.Ratio().String())

	// 5/8 gives integer weights 64, 40, 25
	dist, err := d.Distribute(1290, 3, FeeSchedule{}, domain.DistributionTiered)
	require.NoError(t, err)
	assert.Equal(t, []uint64{640, 400, 250}, dist.Prizes)
	assert.Zero(t, dist.Dust)
}

func TestTieredIsStrictlyDecreasingWithBoundedDust(t *testing.T) {
	d := newDistributor(t, DefaultTierRatio)
	pools := []uint64{1_000_003, 987_654_321, 1 << 50, math.MaxUint64}
	for _, pool := range pools {
		for winners := 1; winners <= 20; winners++ {
			dist, err := d.Distribute(pool, winners, standardFees, domain.DistributionTiered)
			require.NoError(t, err, "pool %d winners %d", pool, winners)
			require.Len(t, dist.Prizes, winners)
			for k := 1; k < winners; k++ {
				assert.Greater(t, dist.Prizes[k-1], dist.Prizes[k])
			}
			assert.Less(t, dist.Dust, uint64(winners))
			assert.Equal(t, pool, dist.Commission+dist.PlatformFee+dist.Remaining)
		}
	}
}

func TestTieredRejectsFlatCurve(t *testing.T) {
	d := newDistributor(t, DefaultTierRatio)
	_, err := d.Distribute(2, 3, FeeSchedule{}, domain.DistributionTiered)
	assert.ErrorIs(t, err, domain.ErrPoolTooSmallForTiers)
}

func TestEmptyPoolPaysZero(t *testing.T) {
	d := newDistributor(t, DefaultTierRatio)
	dist, err := d.Distribute(0, 3, standardFees, domain.DistributionTiered)
	require.NoError(t, err)
	assert.Equal(t, []uint64{0, 0, 0}, dist.Prizes)
}

func TestTieredSmallPools(t *testing.T) {
	d := newDistributor(t, DefaultTierRatio)
	for _, remaining := range []uint64{1, 3} {
		_, err := d.Distribute(remaining, 3, FeeSchedule{}, domain.DistributionTiered)
		assert.ErrorIs(t, err, domain.ErrPoolTooSmallForTiers, remaining)
	}

	// weights 4:2:1
	dist, err := d.Distribute(6, 3, FeeSchedule{}, domain.DistributionTiered)
	require.NoError(t, err)
	assert.Equal(t, []uint64{3, 1, 0}, dist.Prizes)
	assert.Equal(t, uint64(2), dist.Dust)
}

func TestDistributeRejectsBadInput(t *testing.T) {
	d := newDistributor(t, DefaultTierRatio)

	_, err := d.Distribute(100, 0, standardFees, domain.DistributionEven)
	assert.ErrorIs(t, err, domain.ErrInvalidWinnerCount)

	_, err = d.Distribute(100, 2, standardFees, domain.DistributionMode("random"))
	assert.ErrorIs(t, err, domain.ErrInvalidMode)

	_, err = d.Distribute(100, 2, FeeSchedule{CommissionBps: 10_001, MaxPlatformFeeBps: 1000}, domain.DistributionEven)
	assert.ErrorIs(t, err, domain.ErrInvalidBasisPoints)

	_, err = d.Distribute(100, 2, FeeSchedule{PlatformFeeBps: 1500, MaxPlatformFeeBps: 1000}, domain.DistributionEven)
	assert.ErrorIs(t, err, domain.ErrPlatformFeeTooHigh)

	_, err = d.Distribute(100, 2, FeeSchedule{CommissionBps: 10_000, PlatformFeeBps: 100, MaxPlatformFeeBps: 1000}, domain.DistributionEven)
	assert.ErrorIs(t, err, domain.ErrFeeExceedsPool)
}

func TestNewDistributorRejectsRatio(t *testing.T) {
	for _, ratio := range []string{"1", "1.5", "0", "-0.5", "half"} {
		_, err := NewDistributor(ratio)
		assert.Error(t, err, ratio)
	}
	d, err := NewDistributor("")
	require.NoError(t, err)
	assert.Equal(t, "0.5", d.Ratio().String())
}

func TestBasisPoints(t *testing.T) {
	assert.Equal(t, uint64(50_000), BasisPoints(1_000_000, 500))
	assert.Equal(t, uint64(0), BasisPoints(9_999, 1))
	assert.Equal(t, uint64(math.MaxUint64), BasisPoints(math.MaxUint64, MaxBasisPoints))
	assert.Equal(t, uint64(math.MaxUint64)/10, BasisPoints(math.MaxUint64, 1000))
}
