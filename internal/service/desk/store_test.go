package desk

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/yurimoinhos/flowpay/internal/model"
	"github.com/yurimoinhos/flowpay/internal/repository"
)

// memStore is an in-memory store with the same conditional-write rules as
// the MySQL repositories.
type memStore struct {
	mu        sync.Mutex
	customers map[string]model.Customer
	sessions  map[int64]model.Session
	gates     map[model.ServiceType]int64
	nextID    int64
	now       func() time.Time

	// beforePromote runs without the lock before each PromoteSession.
	beforePromote func()
	// failWith is returned by every call when set.
	failWith error
}

var (
	_ repository.CustomersRepository = (*memStore)(nil)
	_ repository.SessionsRepository  = (*memStore)(nil)
)

func newMemStore() *memStore {
	return &memStore{
		customers: map[string]model.Customer{},
		sessions:  map[int64]model.Session{},
		gates:     map[model.ServiceType]int64{},
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (m *memStore) CustomerExists(_ context.Context, email string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return false, m.failWith
	}
	_, ok := m.customers[email]
	return ok, nil
}

func (m *memStore) FindCustomerByEmail(_ context.Context, email string) (*model.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	c, ok := m.customers[email]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (m *memStore) SaveCustomer(_ context.Context, c model.Customer) (model.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.customers[c.Email]; ok {
		return existing, nil
	}
	m.nextID++
	c.ID = m.nextID
	m.customers[c.Email] = c
	return c, nil
}

func (m *memStore) customerID(email string) (int64, bool) {
	c, ok := m.customers[email]
	return c.ID, ok
}

func (m *memStore) activeFor(customerID int64) (model.Session, bool) {
	for _, s := range m.sessions {
		if s.CustomerID == customerID && s.FinishedAt == nil {
			return s, true
		}
	}
	return model.Session{}, false
}

func (m *memStore) FindActiveSessionByEmail(_ context.Context, email string) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	id, ok := m.customerID(email)
	if !ok {
		return nil, nil
	}
	s, ok := m.activeFor(id)
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *memStore) FindSessionByID(_ context.Context, id int64) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *memStore) InsertSession(_ context.Context, s model.Session) (model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.activeFor(s.CustomerID); ok {
		return model.Session{}, repository.ErrDuplicate
	}
	m.nextID++
	s.ID = m.nextID
	s.Version = 0
	s.FinishedAt = nil
	m.sessions[s.ID] = s
	return s, nil
}

func (m *memStore) SaveSession(_ context.Context, s model.Session) (model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.sessions[s.ID]
	if !ok || cur.Version != s.Version {
		return model.Session{}, repository.ErrVersionConflict
	}
	s.Version++
	m.sessions[s.ID] = s
	return s, nil
}

func (m *memStore) SetFinishedNow(_ context.Context, email string, status model.SessionStatus, version int64) (model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.customerID(email)
	if !ok {
		return model.Session{}, repository.ErrNotFound
	}
	s, ok := m.activeFor(id)
	if !ok {
		return model.Session{}, repository.ErrNotFound
	}
	if s.Version != version {
		return model.Session{}, repository.ErrVersionConflict
	}
	at := m.now()
	s.Status = status
	s.FinishedAt = &at
	s.Version++
	m.sessions[s.ID] = s
	return s, nil
}

func (m *memStore) SlotGate(_ context.Context, st model.ServiceType) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gates[st], nil
}

func (m *memStore) PromoteSession(_ context.Context, s model.Session, gate int64) (model.Session, error) {
	if m.beforePromote != nil {
		m.beforePromote()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gates[s.ServiceType] != gate {
		return model.Session{}, repository.ErrVersionConflict
	}
	cur, ok := m.sessions[s.ID]
	if !ok || cur.Version != s.Version || cur.Status != model.StatusPending || cur.FinishedAt != nil {
		return model.Session{}, repository.ErrVersionConflict
	}
	m.gates[s.ServiceType]++
	cur.Status = model.StatusInProgress
	cur.Version++
	m.sessions[s.ID] = cur
	return cur, nil
}

func (m *memStore) CountInProgress(_ context.Context, st model.ServiceType) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return 0, m.failWith
	}
	n := 0
	for _, s := range m.sessions {
		if s.ServiceType == st && s.Status == model.StatusInProgress && s.FinishedAt == nil {
			n++
		}
	}
	return n, nil
}

// queue returns active PENDING sessions of st in queue order.
func (m *memStore) queue(st model.ServiceType) []model.Session {
	var out []model.Session
	for _, s := range m.sessions {
		if s.ServiceType == st && s.Status == model.StatusPending && s.FinishedAt == nil {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.Before(out[j].StartedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (m *memStore) FindOldestPending(_ context.Context, st model.ServiceType) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q := m.queue(st)
	if len(q) == 0 {
		return nil, nil
	}
	return &q[0], nil
}

func (m *memStore) FindAllInProgress(_ context.Context, st model.ServiceType) ([]model.InProgressSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	byID := map[int64]model.Customer{}
	for _, c := range m.customers {
		byID[c.ID] = c
	}
	out := []model.InProgressSession{}
	for _, s := range m.sessions {
		if s.ServiceType == st && s.Status == model.StatusInProgress && s.FinishedAt == nil {
			c := byID[s.CustomerID]
			out = append(out, model.InProgressSession{
				SessionID:     s.ID,
				CustomerName:  c.Name,
				CustomerEmail: c.Email,
				ServiceType:   s.ServiceType,
				StartedAt:     s.StartedAt,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SessionID < out[j].SessionID })
	return out, nil
}

func (m *memStore) QueuePosition(_ context.Context, email string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.customerID(email)
	if !ok {
		return 0, repository.ErrNotFound
	}
	me, ok := m.activeFor(id)
	if !ok {
		return 0, repository.ErrNotFound
	}
	var ahead int64
	for _, s := range m.queue(me.ServiceType) {
		if s.StartedAt.Before(me.StartedAt) || (s.StartedAt.Equal(me.StartedAt) && s.ID < me.ID) {
			ahead++
		}
	}
	return ahead + 1, nil
}

func (m *memStore) AggregateCounts(_ context.Context) (model.StatusCounts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return model.StatusCounts{}, m.failWith
	}
	var c model.StatusCounts
	for _, s := range m.sessions {
		switch s.Status {
		case model.StatusPending:
			c.Pending++
		case model.StatusInProgress:
			c.InProgress++
		case model.StatusCompleted:
			c.Completed++
		case model.StatusCanceled:
			c.Canceled++
		}
	}
	return c, nil
}

func (m *memStore) AverageDuration(_ context.Context) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var sum float64
	var n int
	for _, s := range m.sessions {
		if s.Status == model.StatusCompleted && s.FinishedAt != nil {
			sum += s.FinishedAt.Sub(s.StartedAt).Seconds()
			n++
		}
	}
	if n == 0 {
		return 0, nil
	}
	return sum / float64(n), nil
}

func (m *memStore) AveragePerCustomer(_ context.Context) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	customers := map[int64]struct{}{}
	for _, s := range m.sessions {
		customers[s.CustomerID] = struct{}{}
	}
	if len(customers) == 0 {
		return 0, nil
	}
	return float64(len(m.sessions)) / float64(len(customers)), nil
}

// status reads a session's status, for assertions.
func (m *memStore) status(id int64) model.SessionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[id].Status
}
