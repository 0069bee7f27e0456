package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/rendis/flowrun/internal/credentials"
	"github.com/rendis/flowrun/pkg/schema"
)

// LibSQLStore implements Store on libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database. dbPath is a file URI, e.g.
// "file:/path/to/flowrun.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Some PRAGMAs return rows, so they go through QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// Vacuum runs VACUUM on the database.
func (s *LibSQLStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// --- Credentials ---

func (s *LibSQLStore) PutCredential(ctx context.Context, c *credentials.Credential) error {
	if c == nil || c.ID == "" || c.UserID == "" {
		return schema.NewError(schema.ErrCodeValidation, "credential id and user id are required")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO credentials (id, user_id, app_id, is_valid, encrypted_data, created_at) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET user_id=excluded.user_id, app_id=excluded.app_id,
		 is_valid=excluded.is_valid, encrypted_data=excluded.encrypted_data`,
		c.ID, c.UserID, nullStr(c.AppID), boolInt(c.IsValid), c.EncryptedData, timeOrNow(c.CreatedAt),
	)
	if err != nil {
		return storeError("put credential", err)
	}
	return nil
}

// GetByID returns (nil, nil) when no credential has that id.
func (s *LibSQLStore) GetByID(ctx context.Context, id string) (*credentials.Credential, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, app_id, is_valid, encrypted_data, created_at FROM credentials WHERE id = ?`, id)
	c, err := scanCredential(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *LibSQLStore) SetCredentialValidity(ctx context.Context, id string, valid bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE credentials SET is_valid = ? WHERE id = ?`, boolInt(valid), id)
	if err != nil {
		return storeError("update credential", err)
	}
	return checkRowsAffected(res, "credential", id)
}

// ListCredentials returns the credentials of userID ordered by id; an empty
// userID lists all of them.
func (s *LibSQLStore) ListCredentials(ctx context.Context, userID string) ([]*credentials.Credential, error) {
	query := `SELECT id, user_id, app_id, is_valid, encrypted_data, created_at FROM credentials`
	var args []any
	if userID != "" {
		query += ` WHERE user_id = ?`
		args = append(args, userID)
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeError("list credentials", err)
	}
	defer rows.Close()

	var out []*credentials.Credential
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *LibSQLStore) DeleteCredential(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM credentials WHERE id = ?`, id)
	if err != nil {
		return storeError("delete credential", err)
	}
	return checkRowsAffected(res, "credential", id)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCredential(row scanner) (*credentials.Credential, error) {
	c := &credentials.Credential{}
	var appID sql.NullString
	if err := row.Scan(&c.ID, &c.UserID, &appID, &c.IsValid, &c.EncryptedData, &c.CreatedAt); err != nil {
		return nil, err
	}
	c.AppID = appID.String
	return c, nil
}

// --- Runs ---

// SaveRun writes a run and its trace in one transaction, replacing any
// previous copy of the same run.
func (s *LibSQLStore) SaveRun(ctx context.Context, run *RunRecord) error {
	if run == nil || run.ID == "" || run.Result == nil {
		return schema.NewError(schema.ErrCodeValidation, "run id and result are required")
	}
	output, err := json.Marshal(run.Result.OutputData)
	if err != nil {
		return fmt.Errorf("marshal run output: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeError("begin save run", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM node_executions WHERE run_id = ?`, run.ID); err != nil {
		return storeError("clear node executions", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs (id, user_id, trigger_id, status, error, output, started_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET status=excluded.status, error=excluded.error,
		 output=excluded.output, completed_at=excluded.completed_at`,
		run.ID, run.UserID, nullStr(run.TriggerID), string(run.Status), nullStr(run.Error),
		string(output), timeOrNow(run.StartedAt), nullTime(run.CompletedAt),
	); err != nil {
		return storeError("insert run", err)
	}

	for i, rec := range run.Result.NodeExecutions {
		input, err := nullableJSON(rec.InputData)
		if err != nil {
			return fmt.Errorf("marshal input of %s: %w", rec.NodeID, err)
		}
		out, err := nullableJSON(rec.OutputData)
		if err != nil {
			return fmt.Errorf("marshal output of %s: %w", rec.NodeID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO node_executions (run_id, seq, node_id, node_name, status, input, output, error, started_at, completed_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, i, rec.NodeID, nullStr(rec.NodeName), string(rec.Status), input, out, nullStr(rec.Error),
			rec.StartedAt, rec.CompletedAt,
		); err != nil {
			return storeError("insert node execution", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return storeError("commit save run", err)
	}
	return nil
}

// GetRun loads a run with its full trace.
func (s *LibSQLStore) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	var output sql.NullString
	run, err := scanRun(s.db.QueryRowContext(ctx,
		`SELECT id, user_id, trigger_id, status, error, output, started_at, completed_at FROM runs WHERE id = ?`, id,
	), &output)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storeNotFound("run", id)
	}
	if err != nil {
		return nil, err
	}

	result := &schema.RunResult{RunID: run.ID, Status: run.Status, NodeExecutions: []schema.NodeExecutionRecord{}}
	if output.Valid && output.String != "" {
		if err := json.Unmarshal([]byte(output.String), &result.OutputData); err != nil {
			return nil, fmt.Errorf("unmarshal run output: %w", err)
		}
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT node_id, node_name, status, input, output, error, started_at, completed_at
		 FROM node_executions WHERE run_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, storeError("load node executions", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			rec                       schema.NodeExecutionRecord
			name, input, out, errText sql.NullString
			status                    string
		)
		if err := rows.Scan(&rec.NodeID, &name, &status, &input, &out, &errText, &rec.StartedAt, &rec.CompletedAt); err != nil {
			return nil, err
		}
		rec.NodeName = name.String
		rec.Status = schema.NodeStatus(status)
		rec.Error = errText.String
		if rec.InputData, err = jsonOrNil(input); err != nil {
			return nil, err
		}
		if rec.OutputData, err = jsonOrNil(out); err != nil {
			return nil, err
		}
		result.NodeExecutions = append(result.NodeExecutions, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	run.Result = result
	return run, nil
}

// ListRuns returns run summaries, newest first. Result is left nil.
func (s *LibSQLStore) ListRuns(ctx context.Context, filter RunFilter) ([]*RunRecord, error) {
	query := `SELECT id, user_id, trigger_id, status, error, output, started_at, completed_at FROM runs`
	var where []string
	var args []any

	if filter.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Since != nil {
		where = append(where, "started_at >= ?")
		args = append(args, *filter.Since)
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY started_at DESC, id"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeError("list runs", err)
	}
	defer rows.Close()

	var runs []*RunRecord
	for rows.Next() {
		var output sql.NullString
		run, err := scanRun(rows, &output)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func scanRun(row scanner, output *sql.NullString) (*RunRecord, error) {
	run := &RunRecord{}
	var (
		triggerID, errText sql.NullString
		status             string
		completedAt        sql.NullTime
	)
	if err := row.Scan(&run.ID, &run.UserID, &triggerID, &status, &errText, output, &run.StartedAt, &completedAt); err != nil {
		return nil, err
	}
	run.TriggerID = triggerID.String
	run.Status = schema.RunStatus(status)
	run.Error = errText.String
	if completedAt.Valid {
		run.CompletedAt = &completedAt.Time
	}
	return run, nil
}

// --- Helpers ---

func storeNotFound(resource, id string) *schema.FlowError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

func storeError(op string, err error) *schema.FlowError {
	return schema.NewErrorf(schema.ErrCodeStore, "%s: %v", op, err).WithCause(err)
}

func checkRowsAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storeNotFound(resource, id)
	}
	return nil
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// nullableJSON encodes v for a TEXT column; nil stays NULL.
func nullableJSON(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func jsonOrNil(ns sql.NullString) (any, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal([]byte(ns.String), &v); err != nil {
		return nil, fmt.Errorf("unmarshal stored json: %w", err)
	}
	return v, nil
}
