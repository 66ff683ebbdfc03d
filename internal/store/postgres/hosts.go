package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"scheduling-service/internal/models"
)

const hostColumns = `id, slug, COALESCE(external_id, ''), name, email, timezone, plan`

func scanHost(row pgx.Row) (models.Host, error) {
	var h models.Host
	var plan string
	if err := row.Scan(&h.ID, &h.Slug, &h.ExternalID, &h.Name, &h.Email, &h.Timezone, &plan); err != nil {
		return models.Host{}, err
	}
	h.Plan = models.Plan(plan)
	return h, nil
}

func (s *Store) HostBySlug(ctx context.Context, slug string) (models.Host, error) {
	return s.host(ctx, `SELECT `+hostColumns+` FROM hosts WHERE slug=$1`, slug)
}

func (s *Store) HostByID(ctx context.Context, id string) (models.Host, error) {
	return s.host(ctx, `SELECT `+hostColumns+` FROM hosts WHERE id=$1`, id)
}

func (s *Store) HostByExternalID(ctx context.Context, externalID string) (models.Host, error) {
	return s.host(ctx, `SELECT `+hostColumns+` FROM hosts WHERE external_id=$1`, externalID)
}

// host loads a host together with its availability windows and connected
// calendar accounts.
func (s *Store) host(ctx context.Context, q string, arg string) (models.Host, error) {
	h, err := scanHost(s.pool.QueryRow(ctx, q, arg))
	if err != nil {
		return models.Host{}, notFound(err, "host")
	}
	if h.Windows, err = s.windows(ctx, h.ID); err != nil {
		return models.Host{}, err
	}
	if h.Accounts, err = s.accounts(ctx, h.ID); err != nil {
		return models.Host{}, err
	}
	return h, nil
}

func (s *Store) windows(ctx context.Context, hostID string) ([]models.AvailabilityWindow, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, start_at, end_at, recurrence
	      FROM availability_windows WHERE host_id=$1 ORDER BY start_at, id`, hostID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.AvailabilityWindow{}
	for rows.Next() {
		var w models.AvailabilityWindow
		if err := rows.Scan(&w.Key, &w.Start, &w.End, &w.Recurrence); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (s *Store) accounts(ctx context.Context, hostID string) ([]models.CalendarAccount, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, host_id, provider, email, calendar_id, token, is_default
	      FROM calendar_accounts WHERE host_id=$1 ORDER BY is_default DESC, created_at`, hostID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.CalendarAccount
	for rows.Next() {
		var a models.CalendarAccount
		if err := rows.Scan(&a.ID, &a.HostID, &a.Provider, &a.Email, &a.CalendarID, &a.Token, &a.IsDefault); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ReplaceAvailability deletes every window of the host and inserts windows in
// one transaction.
func (s *Store) ReplaceAvailability(ctx context.Context, hostID string, windows []models.AvailabilityWindow) ([]models.AvailabilityWindow, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM availability_windows WHERE host_id=$1`, hostID); err != nil {
		return nil, err
	}
	for _, w := range windows {
		_, err := tx.Exec(ctx, `INSERT INTO availability_windows (id, host_id, start_at, end_at, recurrence)
		      VALUES ($1,$2,$3,$4,$5)`, w.Key, hostID, w.Start.UTC(), w.End.UTC(), w.Recurrence)
		if err != nil {
			return nil, fmt.Errorf("insert window %s: %w", w.Key, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return windows, nil
}

func (s *Store) MeetingType(ctx context.Context, hostID, slug string) (models.MeetingType, error) {
	var mt models.MeetingType
	err := s.pool.QueryRow(ctx, `SELECT id, host_id, name, slug, duration_minutes, is_default
	      FROM meeting_types WHERE host_id=$1 AND slug=$2`, hostID, slug).
		Scan(&mt.ID, &mt.HostID, &mt.Name, &mt.Slug, &mt.DurationMinutes, &mt.IsDefault)
	if err != nil {
		return models.MeetingType{}, notFound(err, "meeting type")
	}
	return mt, nil
}

// SaveCalendarAccount upserts a connected account. The host's first account
// becomes its default.
func (s *Store) SaveCalendarAccount(ctx context.Context, a models.CalendarAccount) (models.CalendarAccount, error) {
	if a.CalendarID == "" {
		a.CalendarID = "primary"
	}
	if a.Provider == "" {
		a.Provider = "google"
	}
	err := s.pool.QueryRow(ctx, `INSERT INTO calendar_accounts (host_id, provider, email, calendar_id, token, is_default)
	      VALUES ($1, $2, $3, $4, $5, NOT EXISTS (SELECT 1 FROM calendar_accounts WHERE host_id=$1))
	      ON CONFLICT (host_id, provider, email)
	      DO UPDATE SET token=EXCLUDED.token, calendar_id=EXCLUDED.calendar_id, updated_at=now()
	      RETURNING id, is_default`,
		a.HostID, a.Provider, a.Email, a.CalendarID, a.Token,
	).Scan(&a.ID, &a.IsDefault)
	if err != nil {
		return models.CalendarAccount{}, err
	}
	return a, nil
}

// UpdateAccountToken stores refreshed credential material.
func (s *Store) UpdateAccountToken(ctx context.Context, accountID string, token []byte) error {
	_, err := s.pool.Exec(ctx, `UPDATE calendar_accounts SET token=$2, updated_at=$3 WHERE id=$1`,
		accountID, token, time.Now().UTC())
	return err
}
