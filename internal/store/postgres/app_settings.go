package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"quackquery/internal/domain"
)

// AppSettingsStore persists the singleton settings row (id = 1).
type AppSettingsStore struct {
	pool *pgxpool.Pool
}

func NewAppSettingsStore(pool *pgxpool.Pool) *AppSettingsStore {
	return &AppSettingsStore{pool: pool}
}

// LoadSettings returns the stored settings, or the defaults when the row has
// never been saved.
func (s *AppSettingsStore) LoadSettings(ctx context.Context) (domain.AppSettings, error) {
	const q = `
		SELECT maintenance, download_enabled, max_free_downloads, announcements, updated_at
		FROM app_settings
		WHERE id = 1
	`
	var (
		st            domain.AppSettings
		announcements pgtype.FlatArray[string]
	)
	err := s.pool.QueryRow(ctx, q).Scan(&st.Maintenance, &st.DownloadEnabled, &st.MaxFreeDownloads, &announcements, &st.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.DefaultAppSettings(), nil
	}
	if err != nil {
		return domain.AppSettings{}, fmt.Errorf("load settings: %w", err)
	}
	st.Announcements = textArrayOrEmpty(announcements)
	return st, nil
}

func (s *AppSettingsStore) SaveSettings(ctx context.Context, st domain.AppSettings) (domain.AppSettings, error) {
	const q = `
		INSERT INTO app_settings (id, maintenance, download_enabled, max_free_downloads, announcements, updated_at)
		VALUES (1, $1, $2, $3, $4, now())
		ON CONFLICT (id) DO UPDATE SET
			maintenance = EXCLUDED.maintenance,
			download_enabled = EXCLUDED.download_enabled,
			max_free_downloads = EXCLUDED.max_free_downloads,
			announcements = EXCLUDED.announcements,
			updated_at = now()
		RETURNING updated_at
	`
	announcements := st.Announcements
	if announcements == nil {
		announcements = []string{}
	}
	err := s.pool.QueryRow(ctx, q,
		st.Maintenance,
		st.DownloadEnabled,
		st.MaxFreeDownloads,
		pgtype.FlatArray[string](announcements),
	).Scan(&st.UpdatedAt)
	if err != nil {
		return domain.AppSettings{}, fmt.Errorf("save settings: %w", err)
	}
	st.Announcements = announcements
	return st, nil
}
