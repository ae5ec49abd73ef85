package services

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/datingdna/datingdna_backend/models"
	"github.com/datingdna/datingdna_backend/repositories"
)

// SweepResult reports what one lock sweep did.
type SweepResult struct {
	Locked int `json:"locked"`
	Voided int `json:"voided"`
	Failed int `json:"failed"`
}

// SweepService promotes commissions out of the pending hold window.
type SweepService struct {
	orders      repositories.OrderRepository
	commissions repositories.CommissionRepository
	notifier    ActivityNotifier
}

// NewSweepService wires the sweep over its repositories.
func NewSweepService(orders repositories.OrderRepository, commissions repositories.CommissionRepository, notifier ActivityNotifier) *SweepService {
	return &SweepService{orders: orders, commissions: commissions, notifier: notifier}
}

// Sweep locks every pending commission whose hold window elapsed before now,
// voiding those whose order was refunded or disputed in the meantime. Each
// transition is a conditional update, so a concurrent or repeated sweep finds
// nothing left to do.
func (s *SweepService) Sweep(ctx context.Context, now time.Time) (SweepResult, error) {
	var result SweepResult

	eligible, err := s.commissions.FindLockEligible(ctx, now)
	if err != nil {
		return result, err
	}

	for _, commission := range eligible {
		order, err := s.orders.FindByID(ctx, commission.OrderID)
		if err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				log.Printf("commission %s references missing order %s, skipping", commission.ID.Hex(), commission.OrderID.Hex())
				result.Failed++
				continue
			}
			return result, err
		}

		if order.RefundedAt != nil || order.Disputed {
			voided, err := s.commissions.Void(ctx, commission.ID, []string{models.CommissionStatusPending},
				models.VoidReasonExpiredWhileDisputed, "", now)
			if err != nil {
				return result, err
			}
			if voided {
				result.Voided++
			}
			continue
		}

		locked, err := s.commissions.Transition(ctx, commission.ID,
			[]string{models.CommissionStatusPending}, models.CommissionStatusLocked)
		if err != nil {
			return result, err
		}
		if locked {
			result.Locked++
		}
	}

	if result.Locked > 0 || result.Voided > 0 {
		log.Printf("lock sweep: %d locked, %d voided, %d failed", result.Locked, result.Voided, result.Failed)
		if s.notifier != nil {
			s.notifier.Broadcast("lock_sweep", "Lock sweep completed", result)
		}
	}
	return result, nil
}
