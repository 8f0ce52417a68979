package subscription

import (
	"bytes"
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shelter-labs/sponsorship-storage/internal/domain"
)

// memRepo mimics the gorm repo: Transaction serialises callers and rolls back on error.
type memRepo struct {
	mu   sync.Mutex
	rows map[uuid.UUID]Subscription

	// beforeUpdate runs before GetForUpdate reads a row, letting tests inject concurrent changes.
	beforeUpdate func(id uuid.UUID)
	// createErr fails the next insert.
	createErr error
}

func newMemRepo() *memRepo {
	return &memRepo{
		rows: make(map[uuid.UUID]Subscription),
	}
}

func (r *memRepo) Transaction(_ context.Context, fn func(DataProvider) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	snapshot := maps.Clone(r.rows)
	if err := fn(&memTx{repo: r}); err != nil {
		r.rows = snapshot
		return err
	}

	return nil
}

func (r *memRepo) locked(fn func(t *memTx)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	fn(&memTx{repo: r})
}

func (r *memRepo) Create(ctx context.Context, s *Subscription) (err error) {
	r.locked(func(t *memTx) { err = t.Create(ctx, s) })
	return err
}

func (r *memRepo) Save(ctx context.Context, s *Subscription) (err error) {
	r.locked(func(t *memTx) { err = t.Save(ctx, s) })
	return err
}

func (r *memRepo) GetByID(ctx context.Context, id uuid.UUID) (s *Subscription, err error) {
	r.locked(func(t *memTx) { s, err = t.GetByID(ctx, id) })
	return s, err
}

func (r *memRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*Subscription, error) {
	return r.GetByID(ctx, id)
}

func (r *memRepo) GetByProviderID(ctx context.Context, providerID string) (s *Subscription, err error) {
	r.locked(func(t *memTx) { s, err = t.GetByProviderID(ctx, providerID) })
	return s, err
}

func (r *memRepo) HasOpenForScope(ctx context.Context, userID uuid.UUID, scopeType ScopeType, scopeID uuid.UUID) (ok bool, err error) {
	r.locked(func(t *memTx) { ok, err = t.HasOpenForScope(ctx, userID, scopeType, scopeID) })
	return ok, err
}

func (r *memRepo) GetOpenByScope(ctx context.Context, scopeType ScopeType, scopeID uuid.UUID) (list []Subscription, err error) {
	r.locked(func(t *memTx) { list, err = t.GetOpenByScope(ctx, scopeType, scopeID) })
	return list, err
}

func (r *memRepo) GetOverdueIDs(ctx context.Context, cutoff time.Time, after uuid.UUID, limit int) (ids []uuid.UUID, err error) {
	r.locked(func(t *memTx) { ids, err = t.GetOverdueIDs(ctx, cutoff, after, limit) })
	return ids, err
}

func (r *memRepo) GetByFilters(ctx context.Context, filters []Filter) (list List, err error) {
	r.locked(func(t *memTx) { list, err = t.GetByFilters(ctx, filters) })
	return list, err
}

func (r *memRepo) get(id uuid.UUID) Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.rows[id]
}

// set overwrites a row bypassing the service, like a concurrent writer would.
func (r *memRepo) set(s Subscription) {
	r.rows[s.ID] = s
}

// memTx operates on the store while the caller already holds the lock.
type memTx struct {
	repo *memRepo
}

func (t *memTx) Transaction(_ context.Context, fn func(DataProvider) error) error {
	return fn(t)
}

func (t *memTx) Create(_ context.Context, s *Subscription) error {
	if err := t.repo.createErr; err != nil {
		t.repo.createErr = nil
		return err
	}

	for _, row := range t.repo.rows {
		if row.ID == s.ID || row.ProviderSubscriptionID == s.ProviderSubscriptionID {
			return fmt.Errorf("duplicate key %s", s.ID)
		}
	}

	s.CreatedAt = time.Now()
	s.UpdatedAt = s.CreatedAt
	t.repo.rows[s.ID] = *s

	return nil
}

func (t *memTx) Save(_ context.Context, s *Subscription) error {
	s.UpdatedAt = time.Now()
	t.repo.rows[s.ID] = *s

	return nil
}

func (t *memTx) GetByID(_ context.Context, id uuid.UUID) (*Subscription, error) {
	s, ok := t.repo.rows[id]
	if !ok {
		return nil, fmt.Errorf("subscription #%s: %w", id, domain.ErrNotFound)
	}

	return &s, nil
}

func (t *memTx) GetForUpdate(ctx context.Context, id uuid.UUID) (*Subscription, error) {
	if t.repo.beforeUpdate != nil {
		t.repo.beforeUpdate(id)
	}

	return t.GetByID(ctx, id)
}

func (t *memTx) GetByProviderID(_ context.Context, providerID string) (*Subscription, error) {
	for _, row := range t.repo.rows {
		if row.ProviderSubscriptionID == providerID {
			return &row, nil
		}
	}

	return nil, fmt.Errorf("subscription #%s: %w", providerID, domain.ErrNotFound)
}

func (t *memTx) HasOpenForScope(_ context.Context, userID uuid.UUID, scopeType ScopeType, scopeID uuid.UUID) (bool, error) {
	for _, row := range t.repo.rows {
		if row.Status != StatusCanceled && row.ScopeType == scopeType &&
			row.UserID != nil && *row.UserID == userID &&
			row.ScopeID != nil && *row.ScopeID == scopeID {
			return true, nil
		}
	}

	return false, nil
}

func (t *memTx) GetOpenByScope(_ context.Context, scopeType ScopeType, scopeID uuid.UUID) ([]Subscription, error) {
	var list []Subscription
	for _, row := range t.repo.rows {
		if row.Status != StatusCanceled && row.ScopeType == scopeType && row.ScopeID != nil && *row.ScopeID == scopeID {
			list = append(list, row)
		}
	}

	return list, nil
}

func (t *memTx) GetOverdueIDs(_ context.Context, cutoff time.Time, after uuid.UUID, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for _, row := range t.repo.rows {
		if row.Status != StatusActive || row.NextChargeAt == nil || row.NextChargeAt.After(cutoff) {
			continue
		}
		if bytes.Compare(row.ID[:], after[:]) <= 0 {
			continue
		}
		ids = append(ids, row.ID)
	}

	sort.Slice(ids, func(i, j int) bool { return bytes.Compare(ids[i][:], ids[j][:]) < 0 })
	if len(ids) > limit {
		ids = ids[:limit]
	}

	return ids, nil
}

func (t *memTx) GetByFilters(_ context.Context, filters []Filter) (List, error) {
	var (
		list []Subscription
		page *PageFilter
	)

	match := func(s Subscription) bool {
		for _, f := range filters {
			switch v := f.(type) {
			case UserIDFilter:
				if s.UserID == nil || *s.UserID != v.ID {
					return false
				}
			case StatusFilter:
				if len(v.Statuses) > 0 && !containsStatus(v.Statuses, s.Status) {
					return false
				}
			case ScopeFilter:
				if s.ScopeType != v.Type || (v.ID != nil && (s.ScopeID == nil || *s.ScopeID != *v.ID)) {
					return false
				}
			}
		}
		return true
	}

	for _, f := range filters {
		if v, ok := f.(PageFilter); ok {
			page = &v
		}
	}

	for _, row := range t.repo.rows {
		if match(row) {
			list = append(list, row)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })

	total := int64(len(list))
	if page != nil {
		start := min(page.Offset, len(list))
		end := min(start+page.Limit, len(list))
		list = list[start:end]
	}

	return List{Subscriptions: list, TotalCount: total}, nil
}

func containsStatus(list []Status, st Status) bool {
	for _, v := range list {
		if v == st {
			return true
		}
	}

	return false
}
