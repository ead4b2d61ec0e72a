// Package payout splits a contest pool into per-rank prizes net of fees.
//
// All amounts are integers in the smallest currency unit and rates are basis
// points. Division always floors; whatever the floors leave behind is dust and
// stays with the treasury.
//
// Tiered prizes must come out strictly decreasing, otherwise Distribute fails
// with ErrPoolTooSmallForTiers. An empty remainder is the one exception: it
// pays every winner zero in either mode, since there is nothing to rank.
package payout

import (
	"fmt"
	"math"
	"math/big"
	"math/bits"

	"github.com/shopspring/decimal"

	"contest-settlement/internal/domain"
)

// MaxBasisPoints is 100%.
const MaxBasisPoints = 10_000

// DefaultTierRatio halves the prize at every rank.
const DefaultTierRatio = "0.5"

// FeeSchedule is the fee configuration a distribution is computed with.
type FeeSchedule struct {
	CommissionBps     uint16 `json:"commissionBps"`
	PlatformFeeBps    uint16 `json:"platformFeeBps"`
	MaxPlatformFeeBps uint16 `json:"maxPlatformFeeBps"`
}

// Validate checks every rate is a basis-point value and the platform fee is
// within its configured maximum.
func (f FeeSchedule) Validate() error {
	if f.CommissionBps > MaxBasisPoints {
		return fmt.Errorf("%w: commission %d", domain.ErrInvalidBasisPoints, f.CommissionBps)
	}
	if f.PlatformFeeBps > MaxBasisPoints {
		return fmt.Errorf("%w: platform fee %d", domain.ErrInvalidBasisPoints, f.PlatformFeeBps)
	}
	if f.MaxPlatformFeeBps > MaxBasisPoints {
		return fmt.Errorf("%w: platform fee cap %d", domain.ErrInvalidBasisPoints, f.MaxPlatformFeeBps)
	}
	if f.PlatformFeeBps > f.MaxPlatformFeeBps {
		return fmt.Errorf("%w: %d bps over the %d bps cap", domain.ErrPlatformFeeTooHigh, f.PlatformFeeBps, f.MaxPlatformFeeBps)
	}
	return nil
}

// Distribution is the full breakdown of one pool.
type Distribution struct {
	Pool        uint64                  `json:"pool"`
	Commission  uint64                  `json:"commission"`
	PlatformFee uint64                  `json:"platformFee"`
	Remaining   uint64                  `json:"remaining"`
	Mode        domain.DistributionMode `json:"mode"`
	Prizes      []uint64                `json:"prizes"`
	Dust        uint64                  `json:"dust"`
}

// Distributed is the sum of all prizes.
func (d Distribution) Distributed() uint64 {
	return d.Remaining - d.Dust
}

// Distributor computes distributions with a fixed tier ratio.
type Distributor struct {
	ratio decimal.Decimal
	num   *big.Int
	den   *big.Int
}

// NewDistributor parses ratio exactly, e.g. "0.5" or "0.625". It must lie
// strictly between 0 and 1.
func NewDistributor(ratio string) (*Distributor, error) {
	if ratio == "" {
		ratio = DefaultTierRatio
	}
	r, err := decimal.NewFromString(ratio)
	if err != nil {
		return nil, fmt.Errorf("parse tier ratio %q: %w", ratio, err)
	}
	if r.Sign() <= 0 || !r.LessThan(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("tier ratio %s must be in (0, 1)", r)
	}

	num := new(big.Int).Set(r.Coefficient())
	den := big.NewInt(1)
	if exp := r.Exponent(); exp < 0 {
		den.Exp(big.NewInt(10), big.NewInt(int64(-exp)), nil)
	} else {
		num.Mul(num, new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(exp)), nil))
	}
	g := new(big.Int).GCD(nil, nil, num, den)
	num.Quo(num, g)
	den.Quo(den, g)

	return &Distributor{ratio: r, num: num, den: den}, nil
}

// Ratio returns the decay factor between consecutive tiered prizes.
func (d *Distributor) Ratio() decimal.Decimal {
	return d.ratio
}

// Distribute takes commission and platform fee off pool and splits the rest
// across winners ranks, rank 1 first.
func (d *Distributor) Distribute(pool uint64, winners int, fees FeeSchedule, mode domain.DistributionMode) (Distribution, error) {
	if winners <= 0 {
		return Distribution{}, fmt.Errorf("%w: %d", domain.ErrInvalidWinnerCount, winners)
	}
	if !mode.Valid() {
		return Distribution{}, fmt.Errorf("%w: %q", domain.ErrInvalidMode, mode)
	}
	if err := fees.Validate(); err != nil {
		return Distribution{}, err
	}

	commission := BasisPoints(pool, fees.CommissionBps)
	platformFee := BasisPoints(pool, fees.PlatformFeeBps)
	if commission > pool || platformFee > pool-commission {
		return Distribution{}, fmt.Errorf("%w: commission %d and fee %d from pool %d", domain.ErrFeeExceedsPool, commission, platformFee, pool)
	}
	remaining := pool - commission - platformFee

	var prizes []uint64
	switch {
	case winners == 1:
		prizes = []uint64{remaining}
	case remaining == 0:
		prizes = make([]uint64, winners)
	case mode == domain.DistributionEven:
		prizes = evenSplit(remaining, winners)
	default:
		var err error
		if prizes, err = d.tiered(remaining, winners); err != nil {
			return Distribution{}, err
		}
	}

	var sum uint64
	for _, p := range prizes {
		sum += p
	}
	return Distribution{
		Pool:        pool,
		Commission:  commission,
		PlatformFee: platformFee,
		Remaining:   remaining,
		Mode:        mode,
		Prizes:      prizes,
		Dust:        remaining - sum,
	}, nil
}

func evenSplit(remaining uint64, winners int) []uint64 {
	share := remaining / uint64(winners)
	prizes := make([]uint64, winners)
	for i := range prizes {
		prizes[i] = share
	}
	return prizes
}

// tiered gives rank k the share w_k/Σw of remaining, with integer weights
// w_k = num^(k-1) * den^(winners-k) so that w_{k+1}/w_k is exactly the ratio.
func (d *Distributor) tiered(remaining uint64, winners int) ([]uint64, error) {
	weights := make([]*big.Int, winners)
	total := new(big.Int)
	for k := 0; k < winners; k++ {
		w := new(big.Int).Exp(d.num, big.NewInt(int64(k)), nil)
		w.Mul(w, new(big.Int).Exp(d.den, big.NewInt(int64(winners-1-k)), nil))
		weights[k] = w
		total.Add(total, w)
	}

	pot := new(big.Int).SetUint64(remaining)
	prizes := make([]uint64, winners)
	for k, w := range weights {
		share := new(big.Int).Mul(pot, w)
		share.Quo(share, total)
		prizes[k] = share.Uint64()
		if k > 0 && prizes[k] >= prizes[k-1] {
			return nil, fmt.Errorf("%w: %d cannot fund %d strictly decreasing prizes at ratio %s",
				domain.ErrPoolTooSmallForTiers, remaining, winners, d.ratio)
		}
	}
	return prizes, nil
}

// BasisPoints returns floor(amount*bps/10000) using a 128-bit product. Rates
// above 100% saturate at the maximum uint64.
func BasisPoints(amount uint64, bps uint16) uint64 {
	hi, lo := bits.Mul64(amount, uint64(bps))
	if hi >= MaxBasisPoints {
		return math.MaxUint64
	}
	q, _ := bits.Div64(hi, lo, MaxBasisPoints)
	return q
}
