package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/toolhive-sync-controller/internal/db/pgtypes"
	"github.com/stacklok/toolhive-sync-controller/internal/failures"
	"github.com/stacklok/toolhive-sync-controller/internal/otel"
	"github.com/stacklok/toolhive-sync-controller/internal/retries"
)

type postgresStore struct {
	pool   *pgxpool.Pool
	tracer trace.Tracer
}

var _ Store = (*postgresStore)(nil)

// PostgresOption configures a Postgres store.
type PostgresOption func(*postgresStore)

// WithTracer sets the tracer used to create spans for every query.
func WithTracer(tracer trace.Tracer) PostgresOption {
	return func(s *postgresStore) {
		s.tracer = tracer
	}
}

// NewPostgresStore returns a Store backed by the migrated schema in pool.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) Store {
	s := &postgresStore{pool: pool}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *postgresStore) startSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return otel.StartSpan(ctx, s.tracer, name, opts...)
}

func notFound(err error, format string, args ...any) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf(format+": %w", append(args, ErrNotFound)...)
	}
	return err
}

func (s *postgresStore) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			slog.WarnContext(ctx, "Failed to roll back transaction", "error", err)
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *postgresStore) UpsertWorkspace(ctx context.Context, w Workspace) (err error) {
	ctx, span := s.startSpan(ctx, "store.UpsertWorkspace", trace.WithAttributes(otel.AttrWorkspaceID.String(w.ID.String())))
	defer func() { otel.RecordError(span, err); span.End() }()

	_, err = s.pool.Exec(ctx, `
		INSERT INTO workspace (id, organization_id, name, tombstone)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET organization_id = EXCLUDED.organization_id, name = EXCLUDED.name, tombstone = EXCLUDED.tombstone`,
		w.ID, w.OrganizationID, w.Name, w.Tombstone)
	return err
}

func (s *postgresStore) GetWorkspaceForConnection(ctx context.Context, connectionID uuid.UUID) (_ *Workspace, err error) {
	ctx, span := s.startSpan(ctx, "store.GetWorkspaceForConnection",
		trace.WithAttributes(otel.AttrConnectionID.String(connectionID.String())))
	defer func() { otel.RecordError(span, err); span.End() }()

	var w Workspace
	err = s.pool.QueryRow(ctx, `
		SELECT w.id, w.organization_id, w.name, w.tombstone
		FROM workspace w JOIN connection c ON c.workspace_id = w.id
		WHERE c.id = $1`, connectionID).
		Scan(&w.ID, &w.OrganizationID, &w.Name, &w.Tombstone)
	if err != nil {
		return nil, notFound(err, "workspace for connection %s", connectionID)
	}
	return &w, nil
}

func (s *postgresStore) UpsertConnection(ctx context.Context, c Connection) (err error) {
	ctx, span := s.startSpan(ctx, "store.UpsertConnection",
		trace.WithAttributes(otel.AttrConnectionID.String(c.ID.String())))
	defer func() { otel.RecordError(span, err); span.End() }()

	if c.Status == "" {
		c.Status = ConnectionStatusActive
	}
	if c.Schedule.Type == "" {
		c.Schedule.Type = ScheduleTypeManual
	}
	interval := pgtypes.NewNullInterval()
	if c.Schedule.Interval > 0 {
		interval = pgtypes.NewInterval(c.Schedule.Interval)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO connection (
			id, workspace_id, name, status, status_reason, schedule_type, schedule_interval,
			cron_expression, cron_time_zone, source_id, destination_id,
			source_definition_id, destination_definition_id)
		VALUES ($1, $2, $3, $4::connection_status, NULLIF($5, ''), $6::schedule_type, $7,
			NULLIF($8, ''), NULLIF($9, ''), $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			workspace_id = EXCLUDED.workspace_id,
			name = EXCLUDED.name,
			status = EXCLUDED.status,
			status_reason = EXCLUDED.status_reason,
			schedule_type = EXCLUDED.schedule_type,
			schedule_interval = EXCLUDED.schedule_interval,
			cron_expression = EXCLUDED.cron_expression,
			cron_time_zone = EXCLUDED.cron_time_zone,
			source_id = EXCLUDED.source_id,
			destination_id = EXCLUDED.destination_id,
			source_definition_id = EXCLUDED.source_definition_id,
			destination_definition_id = EXCLUDED.destination_definition_id,
			updated_at = NOW()`,
		c.ID, c.WorkspaceID, c.Name, string(c.Status), c.StatusReason, string(c.Schedule.Type), interval,
		c.Schedule.CronExpression, c.Schedule.CronTimeZone, c.SourceID, c.DestinationID,
		c.SourceDefinitionID, c.DestinationDefinitionID)
	return err
}

func (s *postgresStore) GetConnection(ctx context.Context, connectionID uuid.UUID) (_ *Connection, err error) {
	ctx, span := s.startSpan(ctx, "store.GetConnection",
		trace.WithAttributes(otel.AttrConnectionID.String(connectionID.String())))
	defer func() { otel.RecordError(span, err); span.End() }()

	var (
		c                          Connection
		status, schedType          string
		reason, cronExpr, cronZone *string
		interval                   pgtypes.Interval
	)
	err = s.pool.QueryRow(ctx, `
		SELECT id, workspace_id, name, status::text, status_reason, schedule_type::text, schedule_interval,
			cron_expression, cron_time_zone, source_id, destination_id,
			source_definition_id, destination_definition_id, auto_disable_warned_at, updated_at
		FROM connection WHERE id = $1`, connectionID).
		Scan(&c.ID, &c.WorkspaceID, &c.Name, &status, &reason, &schedType, &interval,
			&cronExpr, &cronZone, &c.SourceID, &c.DestinationID,
			&c.SourceDefinitionID, &c.DestinationDefinitionID, &c.AutoDisableWarnedAt, &c.UpdatedAt)
	if err != nil {
		return nil, notFound(err, "connection %s", connectionID)
	}

	c.Status = ConnectionStatus(status)
	c.StatusReason = deref(reason)
	c.Schedule = Schedule{
		Type:           ScheduleType(schedType),
		Interval:       interval.DurationOr(0),
		CronExpression: deref(cronExpr),
		CronTimeZone:   deref(cronZone),
	}
	return &c, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (s *postgresStore) SetConnectionStatus(
	ctx context.Context, connectionID uuid.UUID, status ConnectionStatus, reason string,
) (err error) {
	ctx, span := s.startSpan(ctx, "store.SetConnectionStatus",
		trace.WithAttributes(otel.AttrConnectionID.String(connectionID.String())))
	defer func() { otel.RecordError(span, err); span.End() }()

	tag, err := s.pool.Exec(ctx, `
		UPDATE connection SET status = $2::connection_status, status_reason = NULLIF($3, ''), updated_at = NOW()
		WHERE id = $1`, connectionID, string(status), reason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("connection %s: %w", connectionID, ErrNotFound)
	}
	return nil
}

func (s *postgresStore) MarkAutoDisableWarning(ctx context.Context, connectionID uuid.UUID, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `UPDATE connection SET auto_disable_warned_at = $2 WHERE id = $1`, connectionID, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("connection %s: %w", connectionID, ErrNotFound)
	}
	return nil
}

func (s *postgresStore) CreateJob(ctx context.Context, req CreateJobRequest) (jobID int64, err error) {
	ctx, span := s.startSpan(ctx, "store.CreateJob",
		trace.WithAttributes(otel.AttrConnectionID.String(req.ConnectionID.String())))
	defer func() { otel.RecordError(span, err); span.End() }()

	err = s.withTx(ctx, func(tx pgx.Tx) error {
		// lock the connection so concurrent enqueues serialize
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT TRUE FROM connection WHERE id = $1 FOR UPDATE`, req.ConnectionID).
			Scan(&exists); err != nil {
			return notFound(err, "connection %s", req.ConnectionID)
		}

		err := tx.QueryRow(ctx, `
			SELECT id FROM job
			WHERE connection_id = $1 AND status IN ('pending', 'running', 'incomplete')`, req.ConnectionID).
			Scan(&jobID)
		if err == nil {
			return nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return err
		}

		if err := tx.QueryRow(ctx, `
			INSERT INTO job (connection_id, config_type, is_scheduled)
			VALUES ($1, $2::job_config_type, $3) RETURNING id`,
			req.ConnectionID, string(req.ConfigType), req.Scheduled).Scan(&jobID); err != nil {
			return err
		}

		for _, st := range req.ResetStreams {
			if _, err := tx.Exec(ctx, `
				INSERT INTO job_reset_stream (job_id, stream_namespace, stream_name) VALUES ($1, $2, $3)
				ON CONFLICT DO NOTHING`, jobID, st.Namespace, st.Name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to create job: %w", err)
	}
	span.SetAttributes(otel.AttrJobID.Int64(jobID))
	return jobID, nil
}

const jobColumns = `id, connection_id, config_type::text, status::text, is_scheduled,
	COALESCE(failure_reason, ''), created_at, updated_at, started_at`

func scanJob(row pgx.Row) (*Job, error) {
	var (
		j                  Job
		configType, status string
	)
	if err := row.Scan(&j.ID, &j.ConnectionID, &configType, &status, &j.IsScheduled,
		&j.FailureReason, &j.CreatedAt, &j.UpdatedAt, &j.StartedAt); err != nil {
		return nil, err
	}
	j.ConfigType = JobConfigType(configType)
	j.Status = JobStatus(status)
	return &j, nil
}

// hydrate loads the attempts and reset streams of a job.
func (s *postgresStore) hydrate(ctx context.Context, j *Job) error {
	rows, err := s.pool.Query(ctx, `
		SELECT attempt_number, status::text, failure_summary, records_committed, bytes_committed,
			created_at, updated_at, ended_at
		FROM attempt WHERE job_id = $1 ORDER BY attempt_number`, j.ID)
	if err != nil {
		return err
	}
	attempts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Attempt, error) {
		var (
			a       Attempt
			status  string
			summary []byte
		)
		if err := row.Scan(&a.Number, &status, &summary, &a.RecordsCommitted, &a.BytesCommitted,
			&a.CreatedAt, &a.UpdatedAt, &a.EndedAt); err != nil {
			return a, err
		}
		a.JobID = j.ID
		a.Status = AttemptStatus(status)
		if len(summary) > 0 {
			a.FailureSummary = &failures.Summary{}
			if err := json.Unmarshal(summary, a.FailureSummary); err != nil {
				return a, fmt.Errorf("failed to decode failure summary: %w", err)
			}
		}
		return a, nil
	})
	if err != nil {
		return err
	}
	j.Attempts = attempts

	rows, err = s.pool.Query(ctx, `
		SELECT stream_namespace, stream_name FROM job_reset_stream
		WHERE job_id = $1 ORDER BY stream_namespace, stream_name`, j.ID)
	if err != nil {
		return err
	}
	streams, err := pgx.CollectRows(rows, pgx.RowToStructByPos[StreamDescriptor])
	if err != nil {
		return err
	}
	j.ResetStreams = streams
	return nil
}

func (s *postgresStore) getJob(ctx context.Context, query string, args ...any) (*Job, error) {
	j, err := scanJob(s.pool.QueryRow(ctx, query, args...))
	if err != nil {
		return nil, err
	}
	if err := s.hydrate(ctx, j); err != nil {
		return nil, err
	}
	return j, nil
}

func (s *postgresStore) GetJob(ctx context.Context, jobID int64) (_ *Job, err error) {
	ctx, span := s.startSpan(ctx, "store.GetJob", trace.WithAttributes(otel.AttrJobID.Int64(jobID)))
	defer func() { otel.RecordError(span, err); span.End() }()

	j, err := s.getJob(ctx, `SELECT `+jobColumns+` FROM job WHERE id = $1`, jobID)
	if err != nil {
		return nil, notFound(err, "job %d", jobID)
	}
	return j, nil
}

func (s *postgresStore) LastJob(ctx context.Context, connectionID uuid.UUID) (*Job, error) {
	j, err := s.getJob(ctx, `SELECT `+jobColumns+` FROM job WHERE connection_id = $1
		ORDER BY created_at DESC, id DESC LIMIT 1`, connectionID)
	if err != nil {
		return nil, notFound(err, "jobs for connection %s", connectionID)
	}
	return j, nil
}

func (s *postgresStore) FirstJob(ctx context.Context, connectionID uuid.UUID) (*Job, error) {
	j, err := s.getJob(ctx, `SELECT `+jobColumns+` FROM job WHERE connection_id = $1
		ORDER BY created_at ASC, id ASC LIMIT 1`, connectionID)
	if err != nil {
		return nil, notFound(err, "jobs for connection %s", connectionID)
	}
	return j, nil
}

func (s *postgresStore) listJobs(ctx context.Context, query string, args ...any) ([]Job, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	ptrs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*Job, error) {
		return scanJob(row)
	})
	if err != nil {
		return nil, err
	}

	jobs := make([]Job, 0, len(ptrs))
	for _, j := range ptrs {
		if err := s.hydrate(ctx, j); err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, nil
}

func (s *postgresStore) ListJobsSince(ctx context.Context, connectionID uuid.UUID, since time.Time) (_ []Job, err error) {
	ctx, span := s.startSpan(ctx, "store.ListJobsSince",
		trace.WithAttributes(otel.AttrConnectionID.String(connectionID.String())))
	defer func() { otel.RecordError(span, err); span.End() }()

	jobs, err := s.listJobs(ctx, `SELECT `+jobColumns+` FROM job
		WHERE connection_id = $1 AND created_at >= $2
		ORDER BY created_at DESC, id DESC`, connectionID, since)
	span.SetAttributes(otel.AttrResultCount.Int(len(jobs)))
	return jobs, err
}

func (s *postgresStore) ListNonTerminalJobs(ctx context.Context, connectionID uuid.UUID) ([]Job, error) {
	return s.listJobs(ctx, `SELECT `+jobColumns+` FROM job
		WHERE connection_id = $1 AND status IN ('pending', 'running', 'incomplete')
		ORDER BY created_at DESC, id DESC`, connectionID)
}

func (s *postgresStore) execJob(ctx context.Context, jobID int64, query string, args ...any) error {
	tag, err := s.pool.Exec(ctx, query, append([]any{jobID}, args...)...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("job %d: %w", jobID, ErrNotFound)
	}
	return nil
}

func (s *postgresStore) SetJobStarted(ctx context.Context, jobID int64, at time.Time) error {
	return s.execJob(ctx, jobID, `
		UPDATE job SET started_at = COALESCE(started_at, $2), updated_at = NOW() WHERE id = $1`, at)
}

func (s *postgresStore) SucceedJob(ctx context.Context, jobID int64, attemptNumber int) (err error) {
	ctx, span := s.startSpan(ctx, "store.SucceedJob", trace.WithAttributes(otel.AttrJobID.Int64(jobID)))
	defer func() { otel.RecordError(span, err); span.End() }()

	return s.withTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE attempt SET status = 'succeeded', updated_at = NOW(), ended_at = NOW()
			WHERE job_id = $1 AND attempt_number = $2`, jobID, attemptNumber)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("attempt %d of job %d: %w", attemptNumber, jobID, ErrNotFound)
		}
		_, err = tx.Exec(ctx, `UPDATE job SET status = 'succeeded', updated_at = NOW() WHERE id = $1`, jobID)
		return err
	})
}

func (s *postgresStore) FailJob(ctx context.Context, jobID int64, reason string) (err error) {
	ctx, span := s.startSpan(ctx, "store.FailJob", trace.WithAttributes(otel.AttrJobID.Int64(jobID)))
	defer func() { otel.RecordError(span, err); span.End() }()

	return s.execJob(ctx, jobID, `
		UPDATE job SET status = 'failed', failure_reason = $2, updated_at = NOW() WHERE id = $1`, reason)
}

func encodeSummary(summary *failures.Summary) ([]byte, error) {
	if summary == nil {
		return nil, nil
	}
	b, err := json.Marshal(summary)
	if err != nil {
		return nil, fmt.Errorf("failed to encode failure summary: %w", err)
	}
	return b, nil
}

func (s *postgresStore) CancelJob(ctx context.Context, jobID int64, attemptNumber int, summary *failures.Summary) (err error) {
	ctx, span := s.startSpan(ctx, "store.CancelJob", trace.WithAttributes(otel.AttrJobID.Int64(jobID)))
	defer func() { otel.RecordError(span, err); span.End() }()

	encoded, err := encodeSummary(summary)
	if err != nil {
		return err
	}
	return s.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			UPDATE attempt SET status = 'failed', failure_summary = $3::jsonb, updated_at = NOW(), ended_at = NOW()
			WHERE job_id = $1 AND attempt_number = $2`, jobID, attemptNumber, encoded); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `UPDATE job SET status = 'cancelled', updated_at = NOW() WHERE id = $1`, jobID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("job %d: %w", jobID, ErrNotFound)
		}
		return nil
	})
}

func (s *postgresStore) CreateAttempt(ctx context.Context, jobID int64) (number int, err error) {
	ctx, span := s.startSpan(ctx, "store.CreateAttempt", trace.WithAttributes(otel.AttrJobID.Int64(jobID)))
	defer func() { otel.RecordError(span, err); span.End() }()

	err = s.withTx(ctx, func(tx pgx.Tx) error {
		var status string
		if err := tx.QueryRow(ctx, `SELECT status::text FROM job WHERE id = $1 FOR UPDATE`, jobID).
			Scan(&status); err != nil {
			return notFound(err, "job %d", jobID)
		}
		if JobStatus(status).IsTerminal() {
			return fmt.Errorf("job %d is %s, cannot create an attempt", jobID, status)
		}

		if err := tx.QueryRow(ctx, `
			INSERT INTO attempt (job_id, attempt_number)
			SELECT $1, COUNT(*) FROM attempt WHERE job_id = $1
			RETURNING attempt_number`, jobID).Scan(&number); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `UPDATE job SET status = 'running', updated_at = NOW() WHERE id = $1`, jobID)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to create attempt: %w", err)
	}
	span.SetAttributes(otel.AttrAttemptNumber.Int(number))
	return number, nil
}

func (s *postgresStore) FailAttempt(ctx context.Context, jobID int64, attemptNumber int, summary *failures.Summary) (err error) {
	ctx, span := s.startSpan(ctx, "store.FailAttempt", trace.WithAttributes(
		otel.AttrJobID.Int64(jobID), otel.AttrAttemptNumber.Int(attemptNumber)))
	defer func() { otel.RecordError(span, err); span.End() }()

	encoded, err := encodeSummary(summary)
	if err != nil {
		return err
	}
	return s.withTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE attempt SET status = 'failed', failure_summary = $3::jsonb, updated_at = NOW(), ended_at = NOW()
			WHERE job_id = $1 AND attempt_number = $2`, jobID, attemptNumber, encoded)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("attempt %d of job %d: %w", attemptNumber, jobID, ErrNotFound)
		}
		_, err = tx.Exec(ctx, `
			UPDATE job SET status = 'incomplete', updated_at = NOW()
			WHERE id = $1 AND status IN ('pending', 'running', 'incomplete')`, jobID)
		return err
	})
}

func (s *postgresStore) SetAttemptStats(ctx context.Context, jobID int64, attemptNumber int, records, bytes int64) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE attempt SET records_committed = $3, bytes_committed = $4, updated_at = NOW()
		WHERE job_id = $1 AND attempt_number = $2`, jobID, attemptNumber, records, bytes)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("attempt %d of job %d: %w", attemptNumber, jobID, ErrNotFound)
	}
	return nil
}

func (s *postgresStore) GetRetryState(ctx context.Context, jobID int64) (*retries.State, error) {
	var st retries.State
	err := s.pool.QueryRow(ctx, `
		SELECT successive_complete_failures, total_complete_failures,
			successive_partial_failures, total_partial_failures
		FROM retry_state WHERE job_id = $1`, jobID).
		Scan(&st.SuccessiveCompleteFailures, &st.TotalCompleteFailures,
			&st.SuccessivePartialFailures, &st.TotalPartialFailures)
	if err != nil {
		return nil, notFound(err, "retry state for job %d", jobID)
	}
	return &st, nil
}

func (s *postgresStore) PutRetryState(ctx context.Context, jobID int64, connectionID uuid.UUID, st retries.State) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO retry_state (job_id, connection_id, successive_complete_failures, total_complete_failures,
			successive_partial_failures, total_partial_failures)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (job_id) DO UPDATE SET
			successive_complete_failures = EXCLUDED.successive_complete_failures,
			total_complete_failures = EXCLUDED.total_complete_failures,
			successive_partial_failures = EXCLUDED.successive_partial_failures,
			total_partial_failures = EXCLUDED.total_partial_failures,
			updated_at = NOW()`,
		jobID, connectionID, st.SuccessiveCompleteFailures, st.TotalCompleteFailures,
		st.SuccessivePartialFailures, st.TotalPartialFailures)
	return err
}

func (s *postgresStore) AddStreamResets(ctx context.Context, connectionID uuid.UUID, streams []StreamDescriptor) error {
	batch := &pgx.Batch{}
	for _, st := range streams {
		batch.Queue(`
			INSERT INTO stream_reset (connection_id, stream_namespace, stream_name) VALUES ($1, $2, $3)
			ON CONFLICT DO NOTHING`, connectionID, st.Namespace, st.Name)
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to add stream resets for connection %s: %w", connectionID, err)
	}
	return nil
}

func (s *postgresStore) ListStreamResets(ctx context.Context, connectionID uuid.UUID) ([]StreamDescriptor, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT stream_namespace, stream_name FROM stream_reset
		WHERE connection_id = $1 ORDER BY created_at, stream_namespace, stream_name`, connectionID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[StreamDescriptor])
}

func (s *postgresStore) DeleteStreamResets(ctx context.Context, connectionID uuid.UUID, streams []StreamDescriptor) error {
	batch := &pgx.Batch{}
	for _, st := range streams {
		batch.Queue(`
			DELETE FROM stream_reset WHERE connection_id = $1 AND stream_namespace = $2 AND stream_name = $3`,
			connectionID, st.Namespace, st.Name)
	}
	return s.pool.SendBatch(ctx, batch).Close()
}
