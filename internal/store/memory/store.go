// Package memory holds process-local stores with the same conflict and guard
// rules as the postgres stores. Used for tests and for running without a
// database in dev.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"quackquery/internal/domain"
)

type Store struct {
	mu       sync.Mutex
	seq      int
	now      time.Time
	users    map[string]domain.UserWithPassword
	external map[string]string
	sessions map[string]domain.Session
	payments map[string]domain.Payment
	pending  map[string]domain.PendingPayment
	sudo     map[string]domain.SudoUser
	settings *domain.AppSettings
	events   map[string]domain.WebhookEvent
}

func New() *Store {
	return &Store{
		now:      time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		users:    map[string]domain.UserWithPassword{},
		external: map[string]string{},
		sessions: map[string]domain.Session{},
		payments: map[string]domain.Payment{},
		pending:  map[string]domain.PendingPayment{},
		sudo:     map[string]domain.SudoUser{},
		events:   map[string]domain.WebhookEvent{},
	}
}

func (m *Store) tick() time.Time {
	m.now = m.now.Add(time.Second)
	return m.now
}

func (m *Store) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s%d", prefix, m.seq)
}

// AddUser stores u as is, filling in timestamps. Seeding helper.
func (m *Store) AddUser(u domain.User) domain.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.tick()
	u.Email = domain.NormalizeEmail(u.Email)
	u.CreatedAt, u.UpdatedAt = now, now
	m.users[u.ID] = domain.UserWithPassword{User: u}
	return u
}

func (m *Store) Payment(userID string) (domain.Payment, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[userID]
	return p, ok
}

func (m *Store) PendingPayment(id string) (domain.PendingPayment, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pending[id]
	return p, ok
}

func (m *Store) WebhookEvent(id string) (domain.WebhookEvent, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[id]
	return ev, ok
}

// Counts reports the number of payment, pending payment and webhook rows.
func (m *Store) Counts() (payments, pending, events int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.payments), len(m.pending), len(m.events)
}

// DeleteExpired drops sessions that expired before cutoff.
func (m *Store) DeleteExpired(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, s := range m.sessions {
		if s.ExpiresAt.Before(cutoff) {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}

func (m *Store) Ping(context.Context) error { return nil }

func (m *Store) userByEmailLocked(email string) (domain.UserWithPassword, bool) {
	for _, u := range m.users {
		if u.Email == email {
			return u, true
		}
	}
	return domain.UserWithPassword{}, false
}

func (m *Store) CreateUser(_ context.Context, email, name, passwordHash string) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.userByEmailLocked(email); ok {
		return domain.User{}, domain.ErrEmailTaken
	}
	now := m.tick()
	u := domain.User{ID: m.nextID("user-"), Email: email, Name: name, CreatedAt: now, UpdatedAt: now}
	m.users[u.ID] = domain.UserWithPassword{User: u, PasswordHash: passwordHash}
	return u, nil
}

func (m *Store) GetUserByID(_ context.Context, id string) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return u.User, nil
}

func (m *Store) GetUserByEmail(_ context.Context, email string) (domain.UserWithPassword, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.userByEmailLocked(domain.NormalizeEmail(email))
	if !ok {
		return domain.UserWithPassword{}, domain.ErrNotFound
	}
	return u, nil
}

func (m *Store) GetUserByExternalAccount(_ context.Context, provider, providerID string) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.external[provider+"|"+providerID]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return m.users[id].User, nil
}

func (m *Store) CreateUserWithExternalAccount(_ context.Context, provider, providerID, email, name string) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.userByEmailLocked(email); ok {
		return domain.User{}, domain.ErrEmailTaken
	}
	now := m.tick()
	u := domain.User{ID: m.nextID("user-"), Email: email, Name: name, CreatedAt: now, UpdatedAt: now}
	m.users[u.ID] = domain.UserWithPassword{User: u}
	m.external[provider+"|"+providerID] = u.ID
	return u, nil
}

func (m *Store) LinkExternalAccount(_ context.Context, userID, provider, providerID, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := provider + "|" + providerID
	if _, ok := m.external[key]; ok {
		return domain.ErrExternalAccountExists
	}
	m.external[key] = userID
	return nil
}

func (m *Store) SetLastLogin(_ context.Context, userID string, when time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return domain.ErrNotFound
	}
	u.LastLoginAt = &when
	m.users[userID] = u
	return nil
}

func (m *Store) CountAdmins(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, u := range m.users {
		if u.IsAdmin {
			n++
		}
	}
	return n, nil
}

func (m *Store) ClaimFirstAdmin(_ context.Context, userID string) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.IsAdmin {
			return domain.User{}, domain.ErrAdminExists
		}
	}
	u, ok := m.users[userID]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	u.IsAdmin = true
	m.users[userID] = u
	return u.User, nil
}

func (m *Store) CreateSession(_ context.Context, userID string, expiresAt time.Time, _, _ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID("sess-")
	m.sessions[id] = domain.Session{ID: id, UserID: userID, CreatedAt: m.tick(), ExpiresAt: expiresAt}
	return id, nil
}

func (m *Store) GetSession(_ context.Context, sessionID string) (domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok || s.RevokedAt != nil {
		return domain.Session{}, domain.ErrNotFound
	}
	return s, nil
}

func (m *Store) RevokeSession(_ context.Context, sessionID string, when time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil
	}
	s.RevokedAt = &when
	m.sessions[sessionID] = s
	return nil
}

func (m *Store) LatestPaymentForUser(_ context.Context, userID string) (domain.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[userID]
	if !ok {
		return domain.Payment{}, domain.ErrNotFound
	}
	return p, nil
}

func (m *Store) UpsertPayment(_ context.Context, userID, paymentID string, status domain.PaymentStatus) (domain.Payment, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.upsertPaymentLocked(userID, paymentID, status)
}

func (m *Store) upsertPaymentLocked(userID, paymentID string, status domain.PaymentStatus) (domain.Payment, bool, error) {
	now := m.tick()
	cur, ok := m.payments[userID]
	if !ok {
		p := domain.Payment{ID: paymentID, UserID: userID, Status: status, CreatedAt: now, UpdatedAt: now}
		m.payments[userID] = p
		return p, true, nil
	}
	if cur.Status.GrantsAccess() && !status.GrantsAccess() && cur.ID != paymentID {
		return cur, false, nil
	}
	cur.ID = paymentID
	cur.Status = status
	cur.UpdatedAt = now
	m.payments[userID] = cur
	return cur, true, nil
}

func (m *Store) UpsertPendingPayment(_ context.Context, id, email string, status domain.PaymentStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.tick()
	cur, ok := m.pending[id]
	if !ok {
		m.pending[id] = domain.PendingPayment{ID: id, Email: email, Status: status, CreatedAt: now, UpdatedAt: now}
		return true, nil
	}
	if cur.ClaimedAt != nil || (cur.Status == domain.PaymentStatusPendingSignup && status != domain.PaymentStatusPendingSignup) {
		return false, nil
	}
	cur.Email = email
	cur.Status = status
	cur.UpdatedAt = now
	m.pending[id] = cur
	return true, nil
}

func (m *Store) ClaimPendingPayments(_ context.Context, userID, email string) ([]domain.ReconciledPayment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var rows []domain.PendingPayment
	for _, p := range m.pending {
		if p.Email == email && p.ClaimedAt == nil && p.Status == domain.PaymentStatusPendingSignup {
			rows = append(rows, p)
		}
	}
	if len(rows) == 0 {
		return nil, nil
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].CreatedAt.After(rows[j].CreatedAt) })

	now := m.tick()
	cur, ok := m.payments[userID]
	if !ok {
		cur = domain.Payment{UserID: userID, CreatedAt: now}
	}
	cur.ID = rows[0].ID
	cur.Status = domain.PaymentStatusActive
	cur.UpdatedAt = now
	m.payments[userID] = cur

	out := make([]domain.ReconciledPayment, 0, len(rows))
	for _, p := range rows {
		p.ClaimedBy = userID
		p.ClaimedAt = &now
		p.Status = domain.PaymentStatusActive
		m.pending[p.ID] = p
		out = append(out, domain.ReconciledPayment{PaymentID: p.ID, Email: email, UserID: userID, Status: "activated"})
	}
	return out, nil
}

func (m *Store) ListUnclaimedPending(context.Context) ([]domain.PendingPayment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.PendingPayment
	for _, p := range m.pending {
		if p.ClaimedAt == nil && p.Status == domain.PaymentStatusPendingSignup {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ListPayments lists user payments and unclaimed pending payments, newest
// first.
func (m *Store) ListPayments(_ context.Context, limit int) ([]domain.PaymentListItem, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.PaymentListItem{}
	for _, p := range m.payments {
		u := m.users[p.UserID]
		out = append(out, domain.PaymentListItem{PaymentID: p.ID, UserID: p.UserID, Email: u.Email, Name: u.Name, Status: p.Status, CreatedAt: p.CreatedAt})
	}
	for _, p := range m.pending {
		if p.ClaimedAt != nil {
			continue
		}
		out = append(out, domain.PaymentListItem{PaymentID: p.ID, Email: p.Email, Status: p.Status, CreatedAt: p.CreatedAt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Store) Stats(context.Context) (domain.AdminStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := domain.AdminStats{TotalUsers: len(m.users), TotalSudoUsers: len(m.sudo)}
	for _, u := range m.users {
		if u.IsAdmin {
			st.TotalAdminUsers++
		}
	}
	for _, p := range m.payments {
		switch {
		case p.Status.GrantsAccess():
			st.TotalPurchasedUsers++
		case p.Status == domain.PaymentStatusFailed || p.Status == domain.PaymentStatusCancelled:
			st.TotalFailedPayments++
		}
	}
	for _, p := range m.pending {
		if p.ClaimedAt == nil && p.Status == domain.PaymentStatusPendingSignup {
			st.TotalPendingSignup++
		}
	}
	return st, nil
}

func (m *Store) IsSudo(_ context.Context, email string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sudo[email]
	return ok, nil
}

func (m *Store) InsertSudo(_ context.Context, email string) (domain.SudoUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sudo[email]; ok {
		return domain.SudoUser{}, domain.ErrSudoExists
	}
	now := m.tick()
	su := domain.SudoUser{ID: m.nextID("sudo-"), Email: email, CreatedAt: now, UpdatedAt: now}
	m.sudo[email] = su
	return su, nil
}

func (m *Store) DeleteSudo(_ context.Context, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sudo[email]; !ok {
		return domain.ErrNotFound
	}
	delete(m.sudo, email)
	return nil
}

func (m *Store) ListSudo(context.Context) ([]domain.SudoUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.SudoUser, 0, len(m.sudo))
	for _, su := range m.sudo {
		out = append(out, su)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

func (m *Store) LoadSettings(context.Context) (domain.AppSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.settings == nil {
		return domain.DefaultAppSettings(), nil
	}
	return *m.settings, nil
}

func (m *Store) SaveSettings(_ context.Context, st domain.AppSettings) (domain.AppSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.tick()
	st.UpdatedAt = &now
	m.settings = &st
	return st, nil
}

func (m *Store) RecordWebhookEvent(_ context.Context, ev domain.WebhookEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[ev.WebhookID] = ev
	return nil
}

func (m *Store) ListWebhookEvents(_ context.Context, outcome string, _ int) ([]domain.WebhookEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.WebhookEvent
	for _, ev := range m.events {
		if outcome == "" || string(ev.Outcome) == outcome {
			out = append(out, ev)
		}
	}
	return out, nil
}

