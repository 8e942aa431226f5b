//go:build integration

package postgres

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"quackquery/internal/domain"
)

func startPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	req := tc.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "qq",
			"POSTGRES_PASSWORD": "qq",
			"POSTGRES_DB":       "quackquery",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
	c, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(ctx) })

	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	pool, err := Open(ctx, fmt.Sprintf("postgres://qq:qq@%s:%s/quackquery?sslmode=disable", host, port.Port()))
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, Migrate(ctx, pool))
	return pool
}

func TestStoresAgainstPostgres(t *testing.T) {
	pool := startPostgres(t)
	ctx := context.Background()

	users := NewUsersStore(pool)
	payments := NewPaymentsStore(pool)
	pending := NewPendingPaymentsStore(pool)
	sudo := NewSudoUsersStore(pool)
	settings := NewAppSettingsStore(pool)
	events := NewWebhookEventsStore(pool)

	t.Run("users normalise email and reject duplicates", func(t *testing.T) {
		u, err := users.CreateUser(ctx, " Duck@Example.com ", "Duck", "hash")
		require.NoError(t, err)
		assert.Equal(t, "duck@example.com", u.Email)

		_, err = users.CreateUser(ctx, "DUCK@example.com", "Other", "hash")
		require.ErrorIs(t, err, domain.ErrEmailTaken)

		got, err := users.GetUserByEmail(ctx, "duck@EXAMPLE.com")
		require.NoError(t, err)
		assert.Equal(t, u.ID, got.ID)
		assert.Equal(t, "hash", got.PasswordHash)

		_, err = users.GetUserByID(ctx, "u1")
		require.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("payment upsert keeps one row and never downgrades", func(t *testing.T) {
		u, err := users.CreateUser(ctx, "payer@example.com", "Payer", "")
		require.NoError(t, err)

		_, applied, err := payments.UpsertPayment(ctx, u.ID, "pay_checkout", domain.PaymentStatusPending)
		require.NoError(t, err)
		assert.True(t, applied)

		for i := 0; i < 3; i++ {
			p, applied, err := payments.UpsertPayment(ctx, u.ID, "pay_1", domain.PaymentStatusActive)
			require.NoError(t, err)
			assert.True(t, applied)
			assert.Equal(t, "pay_1", p.ID)
		}

		p, applied, err := payments.UpsertPayment(ctx, u.ID, "pay_old", domain.PaymentStatusFailed)
		require.NoError(t, err)
		assert.False(t, applied)
		assert.Equal(t, domain.PaymentStatusActive, p.Status)

		var n int
		require.NoError(t, pool.QueryRow(ctx, `SELECT count(*) FROM payments WHERE user_id = $1`, u.ID).Scan(&n))
		assert.Equal(t, 1, n)

		p, applied, err = payments.UpsertPayment(ctx, u.ID, "pay_1", domain.PaymentStatusCancelled)
		require.NoError(t, err)
		assert.True(t, applied, "a cancel of the granting payment must apply")
		assert.Equal(t, domain.PaymentStatusCancelled, p.Status)
	})

	t.Run("concurrent upserts converge on one row", func(t *testing.T) {
		u, err := users.CreateUser(ctx, "race@example.com", "Race", "")
		require.NoError(t, err)

		var wg sync.WaitGroup
		errs := make(chan error, 8)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _, err := payments.UpsertPayment(ctx, u.ID, "pay_race", domain.PaymentStatusActive)
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		latest, err := payments.LatestPaymentForUser(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.PaymentStatusActive, latest.Status)
	})

	t.Run("pending payments are claimed once", func(t *testing.T) {
		applied, err := pending.UpsertPendingPayment(ctx, "pay_pending", "Late@Example.com", domain.PaymentStatusPendingSignup)
		require.NoError(t, err)
		assert.True(t, applied)

		applied, err = pending.UpsertPendingPayment(ctx, "pay_pending", "late@example.com", domain.PaymentStatusFailed)
		require.NoError(t, err)
		assert.False(t, applied, "failure must not overwrite a completed pending payment")

		u, err := users.CreateUser(ctx, "late@example.com", "Late", "")
		require.NoError(t, err)

		claimed, err := pending.ClaimPendingPayments(ctx, u.ID, "LATE@example.com")
		require.NoError(t, err)
		require.Len(t, claimed, 1)
		assert.Equal(t, "pay_pending", claimed[0].PaymentID)

		again, err := pending.ClaimPendingPayments(ctx, u.ID, "late@example.com")
		require.NoError(t, err)
		assert.Empty(t, again)

		latest, err := payments.LatestPaymentForUser(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.PaymentStatusActive, latest.Status)
		assert.Equal(t, "pay_pending", latest.ID)
	})

	t.Run("sessions expire and are pruned", func(t *testing.T) {
		sessions := NewSessionsStore(pool)
		u, err := users.CreateUser(ctx, "session@example.com", "S", "")
		require.NoError(t, err)

		live, err := sessions.CreateSession(ctx, u.ID, time.Now().Add(time.Hour), "192.0.2.1", "test")
		require.NoError(t, err)
		dead, err := sessions.CreateSession(ctx, u.ID, time.Now().Add(-time.Hour), "", "")
		require.NoError(t, err)

		_, err = sessions.GetSession(ctx, live)
		require.NoError(t, err)
		_, err = sessions.GetSession(ctx, dead)
		require.ErrorIs(t, err, domain.ErrNotFound)

		n, err := sessions.DeleteExpired(ctx, time.Now())
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)

		require.NoError(t, sessions.RevokeSession(ctx, live, time.Now()))
		_, err = sessions.GetSession(ctx, live)
		require.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("first admin claim is single-shot", func(t *testing.T) {
		a, err := users.CreateUser(ctx, "admin-a@example.com", "A", "")
		require.NoError(t, err)
		b, err := users.CreateUser(ctx, "admin-b@example.com", "B", "")
		require.NoError(t, err)

		_, errA := users.ClaimFirstAdmin(ctx, a.ID)
		_, errB := users.ClaimFirstAdmin(ctx, b.ID)
		require.NoError(t, errA)
		require.ErrorIs(t, errB, domain.ErrAdminExists)

		n, err := users.CountAdmins(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("concurrent first admin claims elect one admin", func(t *testing.T) {
		_, err := pool.Exec(ctx, `UPDATE users SET is_admin = false`)
		require.NoError(t, err)

		const n = 8
		ids := make([]string, n)
		for i := range ids {
			u, err := users.CreateUser(ctx, fmt.Sprintf("claim-%d@example.com", i), "C", "")
			require.NoError(t, err)
			ids[i] = u.ID
		}

		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			winners int
		)
		for _, id := range ids {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				_, err := users.ClaimFirstAdmin(ctx, id)
				mu.Lock()
				defer mu.Unlock()
				if err == nil {
					winners++
					return
				}
				assert.ErrorIs(t, err, domain.ErrAdminExists)
			}(id)
		}
		wg.Wait()
		assert.Equal(t, 1, winners)

		count, err := users.CountAdmins(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("sudo allow-list", func(t *testing.T) {
		_, err := sudo.InsertSudo(ctx, "Sudo@X.com")
		require.NoError(t, err)
		_, err = sudo.InsertSudo(ctx, "sudo@x.com")
		require.ErrorIs(t, err, domain.ErrSudoExists)

		ok, err := sudo.IsSudo(ctx, "SUDO@x.com")
		require.NoError(t, err)
		assert.True(t, ok)

		row, err := sudo.GetSudoByEmail(ctx, "sudo@X.com")
		require.NoError(t, err)
		assert.Equal(t, "sudo@x.com", row.Email)

		require.NoError(t, sudo.DeleteSudo(ctx, "sudo@x.com"))
		require.ErrorIs(t, sudo.DeleteSudo(ctx, "sudo@x.com"), domain.ErrNotFound)
	})

	t.Run("settings default then persist", func(t *testing.T) {
		st, err := settings.LoadSettings(ctx)
		require.NoError(t, err)
		assert.Equal(t, domain.DefaultAppSettings(), st)

		st.Maintenance = true
		st.Announcements = []string{"v2 is out"}
		saved, err := settings.SaveSettings(ctx, st)
		require.NoError(t, err)
		require.NotNil(t, saved.UpdatedAt)

		got, err := settings.LoadSettings(ctx)
		require.NoError(t, err)
		require.NotNil(t, got.UpdatedAt)
		assert.True(t, got.Maintenance)
		assert.Equal(t, []string{"v2 is out"}, got.Announcements)
	})

	t.Run("webhook events", func(t *testing.T) {
		now := time.Now().UTC()
		ev := domain.WebhookEvent{
			WebhookID:  "msg_1",
			EventType:  "payment.completed",
			Outcome:    domain.OutcomeUnresolvable,
			Error:      domain.ErrUnresolvable.Error(),
			Payload:    []byte(`{"type":"payment.completed"}`),
			ReceivedAt: now,
		}
		require.NoError(t, events.RecordWebhookEvent(ctx, ev))
		require.NoError(t, events.RecordWebhookEvent(ctx, ev))

		list, err := events.ListWebhookEvents(ctx, string(domain.OutcomeUnresolvable), 10)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "msg_1", list[0].WebhookID)

		stats, err := payments.Stats(ctx)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, stats.TotalUsers, 1)
	})
}
