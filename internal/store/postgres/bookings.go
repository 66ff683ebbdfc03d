package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"scheduling-service/internal/apperror"
	"scheduling-service/internal/interval"
	"scheduling-service/internal/models"
)

const bookingColumns = `id, host_id, COALESCE(meeting_type_id, ''), start_at, end_at, guest_name, guest_email,
	COALESCE(external_event_id, ''), COALESCE(external_meeting_link, ''), status, COALESCE(notes, ''), created_at`

func scanBooking(row pgx.Row) (models.Booking, error) {
	var b models.Booking
	var status string
	err := row.Scan(&b.ID, &b.HostID, &b.MeetingTypeID, &b.Start, &b.End, &b.GuestName, &b.GuestEmail,
		&b.ExternalEventID, &b.ExternalMeetingLink, &status, &b.Notes, &b.CreatedAt)
	b.Status = models.BookingStatus(status)
	return b, err
}

func collectBookings(rows pgx.Rows) ([]models.Booking, error) {
	defer rows.Close()
	out := []models.Booking{}
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *Store) BookingsInRange(ctx context.Context, hostID string, rng interval.Interval) ([]models.Booking, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+bookingColumns+`
	      FROM bookings
	      WHERE host_id=$1 AND status='confirmed' AND start_at < $3 AND end_at > $2
	      ORDER BY start_at`, hostID, rng.Start.UTC(), rng.End.UTC())
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

func (s *Store) CountBookingsInRange(ctx context.Context, hostID string, rng interval.Interval) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM bookings
	      WHERE host_id=$1 AND status='confirmed' AND start_at >= $2 AND start_at < $3`,
		hostID, rng.Start.UTC(), rng.End.UTC()).Scan(&n)
	return n, err
}

// CreateBooking inserts a confirmed booking while holding the host row lock,
// so concurrent commits for one host are serialized and the overlap check
// below cannot be raced. Bookings named in release are cancelled first, in
// the same transaction.
func (s *Store) CreateBooking(ctx context.Context, b models.Booking, release []string) (models.Booking, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return models.Booking{}, err
	}
	defer tx.Rollback(ctx)

	var locked string
	if err := tx.QueryRow(ctx, `SELECT id FROM hosts WHERE id=$1 FOR UPDATE`, b.HostID).Scan(&locked); err != nil {
		return models.Booking{}, notFound(err, "host")
	}

	if len(release) > 0 {
		_, err := tx.Exec(ctx, `UPDATE bookings SET status='cancelled'
		      WHERE host_id=$1 AND status='confirmed' AND id = ANY($2)`, b.HostID, release)
		if err != nil {
			return models.Booking{}, err
		}
	}

	var taken bool
	err = tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM bookings
	      WHERE host_id=$1 AND status='confirmed' AND start_at < $3 AND end_at > $2)`,
		b.HostID, b.Start.UTC(), b.End.UTC()).Scan(&taken)
	if err != nil {
		return models.Booking{}, err
	}
	if taken {
		return models.Booking{}, apperror.ErrSlotUnavailable
	}

	saved, err := scanBooking(tx.QueryRow(ctx, `INSERT INTO bookings
		(id, host_id, meeting_type_id, start_at, end_at, guest_name, guest_email,
		 external_event_id, external_meeting_link, status, notes, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		RETURNING `+bookingColumns,
		b.ID, b.HostID, nullable(b.MeetingTypeID), b.Start.UTC(), b.End.UTC(), b.GuestName, b.GuestEmail,
		nullable(b.ExternalEventID), nullable(b.ExternalMeetingLink), string(models.BookingConfirmed),
		nullable(b.Notes), b.CreatedAt.UTC(),
	))
	if err != nil {
		return models.Booking{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return models.Booking{}, err
	}
	return saved, nil
}

func (s *Store) Booking(ctx context.Context, id string) (models.Booking, error) {
	b, err := scanBooking(s.pool.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id=$1`, id))
	if err != nil {
		return models.Booking{}, notFound(err, "booking")
	}
	return b, nil
}

func (s *Store) ListBookings(ctx context.Context, hostID string, rng *interval.Interval) ([]models.Booking, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if rng != nil {
		rows, err = s.pool.Query(ctx, `SELECT `+bookingColumns+`
	          FROM bookings
	          WHERE host_id=$1 AND start_at >= $2 AND start_at < $3
	          ORDER BY start_at`, hostID, rng.Start.UTC(), rng.End.UTC())
	} else {
		rows, err = s.pool.Query(ctx, `SELECT `+bookingColumns+`
	          FROM bookings
	          WHERE host_id=$1
	          ORDER BY start_at`, hostID)
	}
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

func (s *Store) SetBookingStatus(ctx context.Context, id string, from, to models.BookingStatus) error {
	res, err := s.pool.Exec(ctx, `UPDATE bookings SET status=$3 WHERE id=$1 AND status=$2`, id, string(from), string(to))
	if err != nil {
		return err
	}
	if res.RowsAffected() > 0 {
		return nil
	}
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM bookings WHERE id=$1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return apperror.NotFound("booking not found")
	}
	return apperror.Conflict("booking is not " + string(from))
}

// UpcomingEventBookings lists confirmed bookings across hosts that overlap rng
// and carry an external calendar event.
func (s *Store) UpcomingEventBookings(ctx context.Context, rng interval.Interval) ([]models.Booking, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+bookingColumns+`
	      FROM bookings
	      WHERE status='confirmed' AND external_event_id IS NOT NULL
	        AND start_at < $2 AND end_at > $1
	      ORDER BY host_id, start_at`, rng.Start.UTC(), rng.End.UTC())
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}
