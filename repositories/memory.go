package repositories

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/datingdna/datingdna_backend/models"
)

// In-memory repository implementations with the same conditional-update
// semantics as the Mongo ones. They back the test suite and local runs
// without a database.

type MemoryOrderRepository struct {
	mu     sync.Mutex
	orders []*models.Order
}

func NewMemoryOrderRepository() *MemoryOrderRepository {
	return &MemoryOrderRepository{}
}

func (r *MemoryOrderRepository) Insert(ctx context.Context, order *models.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.orders {
		if o.PaymentIntentID == order.PaymentIntentID {
			return ErrDuplicate
		}
	}
	if order.ID.IsZero() {
		order.ID = primitive.NewObjectID()
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now()
	}
	clone := *order
	r.orders = append(r.orders, &clone)
	return nil
}

func (r *MemoryOrderRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.orders {
		if o.ID == id {
			clone := *o
			return &clone, nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryOrderRepository) FindByPaymentIntentID(ctx context.Context, paymentIntentID string) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.orders {
		if o.PaymentIntentID == paymentIntentID {
			clone := *o
			return &clone, nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryOrderRepository) MarkRefunded(ctx context.Context, id primitive.ObjectID, refund models.RefundUpdate) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.orders {
		if o.ID == id {
			if o.RefundedAt != nil {
				return false, nil
			}
			at := refund.RefundedAt
			o.RefundedAt = &at
			o.RefundAmount = refund.Amount
			o.FullRefund = refund.FullRefund
			o.RefundID = refund.RefundID
			o.RefundReason = refund.Reason
			o.RefundStatus = refund.Status
			return true, nil
		}
	}
	return false, nil
}

func (r *MemoryOrderRepository) MarkDisputed(ctx context.Context, id primitive.ObjectID, dispute models.DisputeUpdate) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.orders {
		if o.ID == id {
			if o.Disputed {
				return false, nil
			}
			at := dispute.DisputedAt
			o.Disputed = true
			o.DisputeID = dispute.DisputeID
			o.DisputeStatus = dispute.Status
			o.DisputedAt = &at
			return true, nil
		}
	}
	return false, nil
}

func (r *MemoryOrderRepository) List(ctx context.Context, page, limit int64) ([]models.Order, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return paginateNewestFirst(r.orders, page, limit)
}

type MemoryCommissionRepository struct {
	mu          sync.Mutex
	commissions []*models.Commission
}

func NewMemoryCommissionRepository() *MemoryCommissionRepository {
	return &MemoryCommissionRepository{}
}

func (r *MemoryCommissionRepository) Insert(ctx context.Context, commission *models.Commission) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if commission.ID.IsZero() {
		commission.ID = primitive.NewObjectID()
	}
	now := time.Now()
	if commission.CreatedAt.IsZero() {
		commission.CreatedAt = now
	}
	commission.UpdatedAt = now
	clone := *commission
	r.commissions = append(r.commissions, &clone)
	return nil
}

func (r *MemoryCommissionRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Commission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.commissions {
		if c.ID == id {
			clone := *c
			return &clone, nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryCommissionRepository) FindByOrderID(ctx context.Context, orderID primitive.ObjectID) ([]models.Commission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := []models.Commission{}
	for _, c := range r.commissions {
		if c.OrderID == orderID {
			result = append(result, *c)
		}
	}
	return result, nil
}

func (r *MemoryCommissionRepository) FindLockEligible(ctx context.Context, now time.Time) ([]models.Commission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := []models.Commission{}
	for _, c := range r.commissions {
		if c.Status == models.CommissionStatusPending && !c.LockEligibleAt.After(now) {
			result = append(result, *c)
		}
	}
	return result, nil
}

func (r *MemoryCommissionRepository) FindLockedInPeriod(ctx context.Context, periodStart, periodEnd time.Time) ([]models.Commission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := []models.Commission{}
	for _, c := range r.commissions {
		if c.Status != models.CommissionStatusLocked {
			continue
		}
		if c.LockEligibleAt.Before(periodStart) || c.LockEligibleAt.After(periodEnd) {
			continue
		}
		result = append(result, *c)
	}
	return result, nil
}

func (r *MemoryCommissionRepository) Transition(ctx context.Context, id primitive.ObjectID, fromStatuses []string, toStatus string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.commissions {
		if c.ID == id && statusIn(c.Status, fromStatuses) {
			c.Status = toStatus
			c.UpdatedAt = time.Now()
			return true, nil
		}
	}
	return false, nil
}

func (r *MemoryCommissionRepository) Void(ctx context.Context, id primitive.ObjectID, fromStatuses []string, reason, refundID string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.commissions {
		if c.ID == id && statusIn(c.Status, fromStatuses) {
			voidedAt := at
			c.Status = models.CommissionStatusVoid
			c.VoidReason = reason
			c.VoidedAt = &voidedAt
			if refundID != "" {
				c.VoidRefundID = refundID
			}
			c.UpdatedAt = time.Now()
			return true, nil
		}
	}
	return false, nil
}

func (r *MemoryCommissionRepository) AdjustForRefund(ctx context.Context, id primitive.ObjectID, refundID string, newCommissionCents, newBaseCents int64, refundPercent float64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	adjustable := []string{models.CommissionStatusLocked, models.CommissionStatusQueuedForPayout}
	for _, c := range r.commissions {
		if c.ID != id || !statusIn(c.Status, adjustable) || c.AdjustedRefundID == refundID {
			continue
		}
		if c.OriginalCommissionCents == 0 {
			c.OriginalCommissionCents = c.CommissionCents
		}
		if c.OriginalBaseAmountCents == 0 {
			c.OriginalBaseAmountCents = c.BaseAmountCents
		}
		c.CommissionCents = newCommissionCents
		c.BaseAmountCents = newBaseCents
		c.AdjustedForRefund = true
		c.AppliedRefundPercent = refundPercent
		c.AdjustedRefundID = refundID
		c.UpdatedAt = time.Now()
		return true, nil
	}
	return false, nil
}

func (r *MemoryCommissionRepository) MarkPaid(ctx context.Context, id primitive.ObjectID, payoutID primitive.ObjectID, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.commissions {
		if c.ID == id && c.Status == models.CommissionStatusQueuedForPayout {
			paidAt := at
			c.Status = models.CommissionStatusPaid
			c.PaidPayoutID = &payoutID
			c.PaidAt = &paidAt
			c.UpdatedAt = time.Now()
			return true, nil
		}
	}
	return false, nil
}

func (r *MemoryCommissionRepository) SummarizeByPartner(ctx context.Context) ([]models.CommissionSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	byPartner := map[string]*models.CommissionSummary{}
	for _, c := range r.commissions {
		s, ok := byPartner[c.PartnerCode]
		if !ok {
			s = &models.CommissionSummary{PartnerCode: c.PartnerCode}
			byPartner[c.PartnerCode] = s
		}
		s.Count++
		switch c.Status {
		case models.CommissionStatusPending:
			s.PendingCents += c.CommissionCents
		case models.CommissionStatusLocked:
			s.LockedCents += c.CommissionCents
		case models.CommissionStatusQueuedForPayout:
			s.QueuedCents += c.CommissionCents
		case models.CommissionStatusPaid:
			s.PaidCents += c.CommissionCents
		case models.CommissionStatusVoid:
			s.VoidCents += c.CommissionCents
		}
	}
	codes := make([]string, 0, len(byPartner))
	for code := range byPartner {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	result := make([]models.CommissionSummary, 0, len(codes))
	for _, code := range codes {
		result = append(result, *byPartner[code])
	}
	return result, nil
}

func (r *MemoryCommissionRepository) List(ctx context.Context, page, limit int64) ([]models.Commission, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return paginateNewestFirst(r.commissions, page, limit)
}

type MemoryPayoutRepository struct {
	mu      sync.Mutex
	payouts []*models.Payout
	items   []*models.PayoutItem
}

func NewMemoryPayoutRepository() *MemoryPayoutRepository {
	return &MemoryPayoutRepository{}
}

func (r *MemoryPayoutRepository) InsertPayout(ctx context.Context, payout *models.Payout) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if payout.ID.IsZero() {
		payout.ID = primitive.NewObjectID()
	}
	if payout.CreatedAt.IsZero() {
		payout.CreatedAt = time.Now()
	}
	clone := *payout
	r.payouts = append(r.payouts, &clone)
	return nil
}

func (r *MemoryPayoutRepository) InsertItems(ctx context.Context, items []models.PayoutItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	for i := range items {
		if items[i].ID.IsZero() {
			items[i].ID = primitive.NewObjectID()
		}
		if items[i].CreatedAt.IsZero() {
			items[i].CreatedAt = now
		}
		clone := items[i]
		r.items = append(r.items, &clone)
	}
	return nil
}

func (r *MemoryPayoutRepository) FindPayoutByID(ctx context.Context, id primitive.ObjectID) (*models.Payout, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.payouts {
		if p.ID == id {
			clone := *p
			return &clone, nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryPayoutRepository) FindItemsByPayoutID(ctx context.Context, payoutID primitive.ObjectID) ([]models.PayoutItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := []models.PayoutItem{}
	for _, item := range r.items {
		if item.PayoutID == payoutID {
			result = append(result, *item)
		}
	}
	return result, nil
}

func (r *MemoryPayoutRepository) TransitionStatus(ctx context.Context, id primitive.ObjectID, fromStatuses []string, toStatus string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.payouts {
		if p.ID == id && statusIn(p.Status, fromStatuses) {
			stamp := at
			p.Status = toStatus
			switch toStatus {
			case models.PayoutStatusExported:
				p.ExportedAt = &stamp
			case models.PayoutStatusPaid:
				p.PaidAt = &stamp
			}
			return true, nil
		}
	}
	return false, nil
}

func (r *MemoryPayoutRepository) ListPayouts(ctx context.Context, page, limit int64) ([]models.Payout, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return paginateNewestFirst(r.payouts, page, limit)
}

func (r *MemoryPayoutRepository) ListItems(ctx context.Context, page, limit int64) ([]models.PayoutItem, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return paginateNewestFirst(r.items, page, limit)
}

type MemoryPartnerRepository struct {
	mu       sync.Mutex
	partners []*models.Partner
}

func NewMemoryPartnerRepository() *MemoryPartnerRepository {
	return &MemoryPartnerRepository{}
}

func (r *MemoryPartnerRepository) Insert(ctx context.Context, partner *models.Partner) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.partners {
		if p.Code == partner.Code {
			return ErrDuplicate
		}
	}
	if partner.ID.IsZero() {
		partner.ID = primitive.NewObjectID()
	}
	now := time.Now()
	if partner.CreatedAt.IsZero() {
		partner.CreatedAt = now
	}
	partner.UpdatedAt = now
	clone := *partner
	r.partners = append(r.partners, &clone)
	return nil
}

func (r *MemoryPartnerRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Partner, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.partners {
		if p.ID == id {
			clone := *p
			return &clone, nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryPartnerRepository) FindByCode(ctx context.Context, code string) (*models.Partner, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.partners {
		if p.Code == code {
			clone := *p
			return &clone, nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryPartnerRepository) Update(ctx context.Context, id primitive.ObjectID, set map[string]interface{}) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.partners {
		if p.ID != id {
			continue
		}
		for k, v := range set {
			switch k {
			case "name":
				p.Name, _ = v.(string)
			case "email":
				p.Email, _ = v.(string)
			case "payoutMethod":
				p.PayoutMethod, _ = v.(string)
			case "rate":
				p.Rate, _ = v.(float64)
			case "active":
				p.Active, _ = v.(bool)
			}
		}
		p.UpdatedAt = time.Now()
		return true, nil
	}
	return false, nil
}

func (r *MemoryPartnerRepository) List(ctx context.Context, page, limit int64) ([]models.Partner, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return paginateNewestFirst(r.partners, page, limit)
}

func statusIn(status string, statuses []string) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

// paginateNewestFirst mirrors the Mongo repositories' _id-descending order.
func paginateNewestFirst[T any](docs []*T, page, limit int64) ([]T, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	total := int64(len(docs))
	start := (page - 1) * limit
	if start >= total {
		return []T{}, total, nil
	}
	end := start + limit
	if end > total {
		end = total
	}
	result := make([]T, 0, end-start)
	for i := total - 1 - start; i >= total-end; i-- {
		result = append(result, *docs[i])
	}
	return result, total, nil
}
