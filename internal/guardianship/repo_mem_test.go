package guardianship

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shelter-labs/sponsorship-storage/internal/domain"
)

type linkKey struct {
	guardianshipID uuid.UUID
	donationID     uuid.UUID
}

type memStore struct {
	rows  map[uuid.UUID]Guardianship
	links map[linkKey]int
	seq   int
}

func (st *memStore) clone() *memStore {
	c := &memStore{
		rows:  make(map[uuid.UUID]Guardianship, len(st.rows)),
		links: make(map[linkKey]int, len(st.links)),
		seq:   st.seq,
	}
	for k, v := range st.rows {
		c.rows[k] = v
	}
	for k, v := range st.links {
		c.links[k] = v
	}

	return c
}

// memRepo mimics the gorm repo: Transaction serialises callers and rolls back on error.
type memRepo struct {
	mu    *sync.Mutex
	store *memStore

	// beforeUpdate runs before GetForUpdate reads a row, letting tests inject concurrent changes.
	beforeUpdate func(id uuid.UUID)
}

func newMemRepo() *memRepo {
	return &memRepo{
		mu: &sync.Mutex{},
		store: &memStore{
			rows:  make(map[uuid.UUID]Guardianship),
			links: make(map[linkKey]int),
		},
	}
}

func (r *memRepo) Transaction(_ context.Context, fn func(DataProvider) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	snapshot := r.store.clone()
	tx := &memTx{repo: r}
	if err := fn(tx); err != nil {
		r.store = snapshot
		return err
	}

	return nil
}

func (r *memRepo) lockedRead(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	fn()
}

func (r *memRepo) Create(ctx context.Context, g *Guardianship) error {
	var err error
	r.lockedRead(func() { err = (&memTx{repo: r}).Create(ctx, g) })
	return err
}

func (r *memRepo) Save(ctx context.Context, g *Guardianship) error {
	var err error
	r.lockedRead(func() { err = (&memTx{repo: r}).Save(ctx, g) })
	return err
}

func (r *memRepo) GetByID(ctx context.Context, id uuid.UUID) (*Guardianship, error) {
	var (
		g   *Guardianship
		err error
	)
	r.lockedRead(func() { g, err = (&memTx{repo: r}).GetByID(ctx, id) })
	return g, err
}

func (r *memRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*Guardianship, error) {
	return r.GetByID(ctx, id)
}

func (r *memRepo) HasActive(ctx context.Context, userID, animalID, exclude uuid.UUID) (bool, error) {
	var (
		ok  bool
		err error
	)
	r.lockedRead(func() { ok, err = (&memTx{repo: r}).HasActive(ctx, userID, animalID, exclude) })
	return ok, err
}

func (r *memRepo) LinkDonation(ctx context.Context, guardianshipID, donationID uuid.UUID) (bool, error) {
	var (
		ok  bool
		err error
	)
	r.lockedRead(func() { ok, err = (&memTx{repo: r}).LinkDonation(ctx, guardianshipID, donationID) })
	return ok, err
}

func (r *memRepo) GetDonationIDs(ctx context.Context, guardianshipID uuid.UUID) ([]uuid.UUID, error) {
	var (
		ids []uuid.UUID
		err error
	)
	r.lockedRead(func() { ids, err = (&memTx{repo: r}).GetDonationIDs(ctx, guardianshipID) })
	return ids, err
}

func (r *memRepo) GetExpiredIDs(ctx context.Context, now time.Time, after uuid.UUID, limit int) ([]uuid.UUID, error) {
	var (
		ids []uuid.UUID
		err error
	)
	r.lockedRead(func() { ids, err = (&memTx{repo: r}).GetExpiredIDs(ctx, now, after, limit) })
	return ids, err
}

func (r *memRepo) GetByFilters(ctx context.Context, filters []Filter) (List, error) {
	var (
		list List
		err  error
	)
	r.lockedRead(func() { list, err = (&memTx{repo: r}).GetByFilters(ctx, filters) })
	return list, err
}

func (r *memRepo) linkCount(guardianshipID uuid.UUID) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cnt := 0
	for k := range r.store.links {
		if k.guardianshipID == guardianshipID {
			cnt++
		}
	}

	return cnt
}

// set overwrites a row bypassing the service, like a concurrent writer would.
func (r *memRepo) set(g Guardianship) {
	r.store.rows[g.ID] = g
}

// memTx operates on the store while the caller already holds the lock.
type memTx struct {
	repo *memRepo
}

func (t *memTx) Transaction(_ context.Context, fn func(DataProvider) error) error {
	return fn(t)
}

func (t *memTx) Create(_ context.Context, g *Guardianship) error {
	if _, ok := t.repo.store.rows[g.ID]; ok {
		return fmt.Errorf("duplicate key %s", g.ID)
	}

	g.CreatedAt = time.Now()
	g.UpdatedAt = g.CreatedAt
	t.repo.store.rows[g.ID] = *g

	return nil
}

func (t *memTx) Save(_ context.Context, g *Guardianship) error {
	if g.Status == StatusActive {
		for _, row := range t.repo.store.rows {
			if row.ID != g.ID && row.Status == StatusActive && row.UserID == g.UserID && row.AnimalID == g.AnimalID {
				return fmt.Errorf("unique violation idx_guardianships_active_pair")
			}
		}
	}

	g.UpdatedAt = time.Now()
	t.repo.store.rows[g.ID] = *g

	return nil
}

func (t *memTx) GetByID(_ context.Context, id uuid.UUID) (*Guardianship, error) {
	g, ok := t.repo.store.rows[id]
	if !ok {
		return nil, fmt.Errorf("guardianship #%s: %w", id, domain.ErrNotFound)
	}

	return &g, nil
}

func (t *memTx) GetForUpdate(ctx context.Context, id uuid.UUID) (*Guardianship, error) {
	if t.repo.beforeUpdate != nil {
		t.repo.beforeUpdate(id)
	}

	return t.GetByID(ctx, id)
}

func (t *memTx) HasActive(_ context.Context, userID, animalID, exclude uuid.UUID) (bool, error) {
	for _, row := range t.repo.store.rows {
		if row.ID != exclude && row.Status == StatusActive && row.UserID == userID && row.AnimalID == animalID {
			return true, nil
		}
	}

	return false, nil
}

func (t *memTx) LinkDonation(_ context.Context, guardianshipID, donationID uuid.UUID) (bool, error) {
	key := linkKey{guardianshipID: guardianshipID, donationID: donationID}
	if _, ok := t.repo.store.links[key]; ok {
		return false, nil
	}

	t.repo.store.seq++
	t.repo.store.links[key] = t.repo.store.seq

	return true, nil
}

func (t *memTx) GetDonationIDs(_ context.Context, guardianshipID uuid.UUID) ([]uuid.UUID, error) {
	type item struct {
		id  uuid.UUID
		seq int
	}

	var items []item
	for k, seq := range t.repo.store.links {
		if k.guardianshipID == guardianshipID {
			items = append(items, item{id: k.donationID, seq: seq})
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].seq < items[j].seq })

	ids := make([]uuid.UUID, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.id)
	}

	return ids, nil
}

func (t *memTx) GetExpiredIDs(_ context.Context, now time.Time, after uuid.UUID, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for _, row := range t.repo.store.rows {
		if row.Status != StatusRequiresPayment || row.GraceUntil == nil || row.GraceUntil.After(now) {
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
		list  []Guardianship
		page  *PageFilter
		match = func(Guardianship) bool { return true }
	)

	for _, f := range filters {
		prev := match
		switch v := f.(type) {
		case PageFilter:
			page = &v
		case UserIDFilter:
			match = func(g Guardianship) bool { return prev(g) && g.UserID == v.ID }
		case AnimalIDFilter:
			match = func(g Guardianship) bool { return prev(g) && g.AnimalID == v.ID }
		case StatusFilter:
			match = func(g Guardianship) bool {
				if !prev(g) {
					return false
				}
				if len(v.Statuses) == 0 {
					return true
				}
				for _, st := range v.Statuses {
					if g.Status == st {
						return true
					}
				}
				return false
			}
		}
	}

	for _, row := range t.repo.store.rows {
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

	return List{Guardianships: list, TotalCount: total}, nil
}
