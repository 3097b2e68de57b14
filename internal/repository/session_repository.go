package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"cvbuilder/api/internal/models"
)

// PostgresStore persists sessions and events in the sessions and events tables.
type PostgresStore struct {
	pool *pgxpool.Pool
	opts Options
}

func NewPostgresStore(pool *pgxpool.Pool, opts Options) *PostgresStore {
	return &PostgresStore{pool: pool, opts: opts.withDefaults()}
}

func (r *PostgresStore) Kind() string { return "postgres" }

const sessionColumns = `
	id, ip, user_agent, country, city, device, browser, os, started_at, last_activity,
	current_step, max_step_reached, form_data, cv_data, profile_photo, payment_proof_url,
	payment_proof_data, advanced_data, payment_status, is_active, total_page_views, total_time_spent`

// UpsertSession runs as a single statement so concurrent patches to disjoint
// columns of the same row never overwrite each other.
func (r *PostgresStore) UpsertSession(ctx context.Context, id string, patch models.SessionPatch, info *models.RequestInfo) (models.Session, error) {
	const query = `
		INSERT INTO sessions (
			id, ip, user_agent, country, city, started_at, last_activity,
			current_step, max_step_reached, form_data, cv_data, profile_photo,
			payment_proof_url, payment_proof_data, advanced_data, payment_status,
			is_active, total_page_views, total_time_spent
		) VALUES (
			$1, $2, $3, $4, $5, NOW(), NOW(),
			COALESCE($6::int, 0), COALESCE($6::int, 0), $7::jsonb, $8::jsonb, $9::text,
			$10::text, $11::text, $12::jsonb, COALESCE($13::text, 'pending'),
			TRUE, 1, 0
		)
		ON CONFLICT (id) DO UPDATE SET
			current_step = COALESCE($6::int, sessions.current_step),
			max_step_reached = GREATEST(sessions.max_step_reached, COALESCE($6::int, sessions.max_step_reached)),
			form_data = CASE
				WHEN $7::jsonb IS NULL THEN sessions.form_data
				ELSE COALESCE(sessions.form_data, '{}'::jsonb) || $7::jsonb
			END,
			cv_data = COALESCE($8::jsonb, sessions.cv_data),
			profile_photo = COALESCE($9::text, sessions.profile_photo),
			payment_proof_url = COALESCE($10::text, sessions.payment_proof_url),
			payment_proof_data = COALESCE($11::text, sessions.payment_proof_data),
			advanced_data = COALESCE($12::jsonb, sessions.advanced_data),
			payment_status = COALESCE($13::text, sessions.payment_status),
			total_time_spent = sessions.total_time_spent + CASE
				WHEN NOW() - sessions.last_activity < make_interval(secs => $14::double precision)
				THEN GREATEST(EXTRACT(EPOCH FROM NOW() - sessions.last_activity)::int, 0)
				ELSE 0
			END,
			total_page_views = sessions.total_page_views + 1,
			last_activity = NOW()
		RETURNING ` + sessionColumns

	ip, userAgent, country, city := seedInfo(info)

	formData, err := encodeJSONMap(patch.FormData)
	if err != nil {
		return models.Session{}, err
	}

	var status *string
	if s := patch.EffectivePaymentStatus(); s != nil {
		v := string(*s)
		status = &v
	}

	row := r.pool.QueryRow(ctx, query,
		id,
		ip,
		userAgent,
		country,
		city,
		patch.CurrentStep,
		formData,
		nullableJSON(patch.CVData),
		patch.ProfilePhoto,
		patch.PaymentProofURL,
		patch.PaymentProofData,
		nullableJSON(patch.AdvancedData),
		status,
		r.opts.IdleTimeout.Seconds(),
	)

	session, err := scanSession(row)
	if err != nil {
		return models.Session{}, fmt.Errorf("upsert session: %w", err)
	}
	return session, nil
}

func (r *PostgresStore) GetSession(ctx context.Context, id string) (models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`

	session, err := scanSession(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Session{}, ErrSessionNotFound
		}
		return models.Session{}, err
	}
	return session, nil
}

func (r *PostgresStore) GetSessions(ctx context.Context, filter models.SessionFilter, limit, offset int) ([]models.Session, error) {
	where, args := buildSessionFilter(filter)
	args = append(args, limit, offset)

	query := fmt.Sprintf(`SELECT %s FROM sessions WHERE %s ORDER BY last_activity DESC, id ASC LIMIT $%d OFFSET $%d`,
		sessionColumns, where, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := []models.Session{}
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

func (r *PostgresStore) GetDashboardStats(ctx context.Context) (models.DashboardStats, error) {
	batch := &pgx.Batch{}
	batch.Queue(`SELECT COUNT(*) FROM sessions`)
	batch.Queue(`SELECT COUNT(*) FROM sessions WHERE is_active`)
	batch.Queue(`SELECT COUNT(*) FROM sessions WHERE max_step_reached >= $1`, r.opts.CompletedStep)
	batch.Queue(`SELECT COUNT(*) FROM sessions WHERE payment_status <> 'pending'`)
	batch.Queue(`SELECT COALESCE(AVG(total_time_spent), 0)::float8 FROM sessions`)
	batch.Queue(`SELECT max_step_reached, COUNT(*) FROM sessions GROUP BY max_step_reached`)

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	stats := models.DashboardStats{StepDropoffs: map[int]int{}}
	for _, dest := range []any{&stats.TotalSessions, &stats.ActiveSessions, &stats.CompletedForms, &stats.PaymentUploads, &stats.AvgTimeSpent} {
		if err := results.QueryRow().Scan(dest); err != nil {
			return models.DashboardStats{}, fmt.Errorf("dashboard aggregate: %w", err)
		}
	}

	rows, err := results.Query()
	if err != nil {
		return models.DashboardStats{}, fmt.Errorf("step dropoffs: %w", err)
	}
	for rows.Next() {
		var step, count int
		if err := rows.Scan(&step, &count); err != nil {
			rows.Close()
			return models.DashboardStats{}, err
		}
		stats.StepDropoffs[step] = count
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return models.DashboardStats{}, err
	}

	stats.Finalize()
	return stats, nil
}

func (r *PostgresStore) MarkSessionInactive(ctx context.Context, id string) error {
	const query = `UPDATE sessions SET is_active = FALSE WHERE id = $1`
	cmd, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (r *PostgresStore) MarkIdleSessionsInactive(ctx context.Context, cutoff time.Time) (int64, error) {
	const query = `UPDATE sessions SET is_active = FALSE WHERE is_active AND last_activity < $1`
	cmd, err := r.pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func buildSessionFilter(filter models.SessionFilter) (string, []any) {
	clauses := []string{"TRUE"}
	var args []any

	add := func(clause string, value any) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}

	if filter.StartDate != nil {
		add("started_at >= $%d", *filter.StartDate)
	}
	if filter.EndDate != nil {
		add("started_at <= $%d", *filter.EndDate)
	}
	if filter.Country != "" {
		add("country = $%d", filter.Country)
	}
	if filter.MinStep != nil {
		add("max_step_reached >= $%d", *filter.MinStep)
	}
	if filter.MaxStep != nil {
		add("max_step_reached <= $%d", *filter.MaxStep)
	}
	if filter.PaymentStatus != "" {
		add("payment_status = $%d", string(filter.PaymentStatus))
	}
	if filter.IsActive != nil {
		add("is_active = $%d", *filter.IsActive)
	}
	if filter.Search != "" {
		add("ip ILIKE $%d", "%"+escapeLike(filter.Search)+"%")
	}

	return strings.Join(clauses, " AND "), args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func scanSession(row pgx.Row) (models.Session, error) {
	var (
		session  models.Session
		formData []byte
		status   string
	)
	if err := row.Scan(
		&session.ID,
		&session.IP,
		&session.UserAgent,
		&session.Country,
		&session.City,
		&session.Device,
		&session.Browser,
		&session.OS,
		&session.StartedAt,
		&session.LastActivity,
		&session.CurrentStep,
		&session.MaxStepReached,
		&formData,
		&session.CVData,
		&session.ProfilePhoto,
		&session.PaymentProofURL,
		&session.PaymentProofData,
		&session.AdvancedData,
		&status,
		&session.IsActive,
		&session.TotalPageViews,
		&session.TotalTimeSpent,
	); err != nil {
		return models.Session{}, err
	}

	session.PaymentStatus = models.PaymentStatus(status)
	if len(formData) > 0 {
		if err := json.Unmarshal(formData, &session.FormData); err != nil {
			return models.Session{}, fmt.Errorf("decode form data: %w", err)
		}
	}
	return session, nil
}

func encodeJSONMap(m map[string]any) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode form data: %w", err)
	}
	return b, nil
}

func nullableJSON(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return nil
	}
	return raw
}
