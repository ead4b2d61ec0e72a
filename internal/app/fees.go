package app

import (
	"fmt"
	"sync"

	"contest-settlement/internal/domain"
	"contest-settlement/internal/payout"
)

// FeeRegistry holds the platform fee configuration. Every update creates a
// new version; settlements copy the version current at the time.
type FeeRegistry struct {
	mu      sync.RWMutex
	current domain.FeeSnapshot
}

// NewFeeRegistry starts at version 1.
func NewFeeRegistry(platformFeeBps, maxPlatformFeeBps uint16, treasury string) (*FeeRegistry, error) {
	if maxPlatformFeeBps > payout.MaxBasisPoints {
		return nil, fmt.Errorf("%w: platform fee cap %d", domain.ErrInvalidBasisPoints, maxPlatformFeeBps)
	}
	if platformFeeBps > maxPlatformFeeBps {
		return nil, fmt.Errorf("%w: %d bps over the %d bps cap", domain.ErrPlatformFeeTooHigh, platformFeeBps, maxPlatformFeeBps)
	}
	return &FeeRegistry{current: domain.FeeSnapshot{
		Version:           1,
		PlatformFeeBps:    platformFeeBps,
		MaxPlatformFeeBps: maxPlatformFeeBps,
		Treasury:          treasury,
	}}, nil
}

// Snapshot returns the current version.
func (r *FeeRegistry) Snapshot() domain.FeeSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// Update replaces the platform fee and treasury. The cap is fixed at startup.
func (r *FeeRegistry) Update(platformFeeBps uint16, treasury string) (domain.FeeSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if platformFeeBps > r.current.MaxPlatformFeeBps {
		return domain.FeeSnapshot{}, fmt.Errorf("%w: %d bps over the %d bps cap",
			domain.ErrPlatformFeeTooHigh, platformFeeBps, r.current.MaxPlatformFeeBps)
	}
	if treasury == "" {
		treasury = r.current.Treasury
	}
	r.current = domain.FeeSnapshot{
		Version:           r.current.Version + 1,
		PlatformFeeBps:    platformFeeBps,
		MaxPlatformFeeBps: r.current.MaxPlatformFeeBps,
		Treasury:          treasury,
	}
	return r.current, nil
}

// Schedule combines a fee snapshot with a contest's commission.
func Schedule(fees domain.FeeSnapshot, commissionBps uint16) payout.FeeSchedule {
	return payout.FeeSchedule{
		CommissionBps:     commissionBps,
		PlatformFeeBps:    fees.PlatformFeeBps,
		MaxPlatformFeeBps: fees.MaxPlatformFeeBps,
	}
}
