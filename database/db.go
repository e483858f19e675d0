package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ibroh-tech/Omonat-bot/models"
	"github.com/ibroh-tech/Omonat-bot/period"
	_ "github.com/mattn/go-sqlite3"
)

// ErrNoRegion is returned by SaveAnswer when the user has no region record in
// the current period.
var ErrNoRegion = errors.New("no region selected for the current period")

// DB handles all database operations. Every query is scoped to the current
// period, computed from the clock at call time.
type DB struct {
	conn  *sql.DB
	clock period.Clock
	loc   *time.Location
}

// Option configures a DB.
type Option func(*DB)

// WithClock sets the clock used for timestamps and period bucketing.
func WithClock(c period.Clock) Option {
	return func(db *DB) { db.clock = c }
}

// WithLocation sets the location in which calendar months are computed.
func WithLocation(loc *time.Location) Option {
	return func(db *DB) { db.loc = loc }
}

// New opens the database at dbPath and initializes tables.
// Use ":memory:" for an in-memory database.
func New(dbPath string, opts ...Option) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// One connection serializes writers and gives every caller
	// read-your-writes. It also keeps a ":memory:" database alive.
	conn.SetMaxOpenConns(1)

	if err = conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err = createTables(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	db := &DB{conn: conn, clock: period.Real(), loc: time.UTC}
	for _, opt := range opts {
		opt(db)
	}
	return db, nil
}

func dsn(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate"
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// Period returns the key of the current period.
func (db *DB) Period() string {
	return period.Current(db.clock, db.loc)
}

// createTables creates the necessary tables if they don't exist
func createTables(conn *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS answers (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			question_index INTEGER NOT NULL,
			question_text TEXT NOT NULL,
			answer_text TEXT NOT NULL,
			region TEXT NOT NULL,
			subregion TEXT,
			period TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_answers_user_question_period
			ON answers (user_id, question_index, period)`,
		`CREATE INDEX IF NOT EXISTS idx_answers_period
			ON answers (period, user_id)`,
		`CREATE TABLE IF NOT EXISTS user_regions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			region TEXT NOT NULL,
			subregion TEXT,
			period TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_user_regions_user_period
			ON user_regions (user_id, period, created_at)`,
	}
	for _, stmt := range stmts {
		if _, err := conn.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// SaveAnswer replaces the user's answer to question qIndex in the current
// period. The current region is read and the old answer swapped for the new
// one in a single transaction, so a failure leaves the previous state intact.
// It returns ErrNoRegion if the user has not selected a region this period.
func (db *DB) SaveAnswer(ctx context.Context, userID int64, qIndex int, qText, answer string) (models.Answer, error) {
	now := db.clock.Now()
	p := period.Key(now, db.loc)

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return models.Answer{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	region, ok, err := currentRegion(ctx, tx, userID, p)
	if err != nil {
		return models.Answer{}, err
	}
	if !ok {
		return models.Answer{}, ErrNoRegion
	}

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM answers WHERE user_id = ? AND question_index = ? AND period = ?",
		userID, qIndex, p,
	); err != nil {
		return models.Answer{}, fmt.Errorf("delete previous answer: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO answers (user_id, question_index, question_text, answer_text, region, subregion, period, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		userID, qIndex, qText, answer, region.Region, nullable(region.Subregion), p, now.Unix(),
	); err != nil {
		return models.Answer{}, fmt.Errorf("insert answer: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return models.Answer{}, fmt.Errorf("commit: %w", err)
	}

	return models.Answer{
		UserID:        userID,
		QuestionIndex: qIndex,
		QuestionText:  qText,
		AnswerText:    answer,
		Region:        region.Region,
		Subregion:     region.Subregion,
		Period:        p,
		CreatedAt:     time.Unix(now.Unix(), 0),
	}, nil
}

// DeleteAnswer removes the user's answer to question qIndex in the current
// period. Deleting a missing answer is not an error.
func (db *DB) DeleteAnswer(ctx context.Context, userID int64, qIndex int) error {
	_, err := db.conn.ExecContext(ctx,
		"DELETE FROM answers WHERE user_id = ? AND question_index = ? AND period = ?",
		userID, qIndex, db.Period(),
	)
	return err
}

// AnsweredCount returns the number of distinct questions the user answered in
// the current period.
func (db *DB) AnsweredCount(ctx context.Context, userID int64) (int, error) {
	var count int
	err := db.conn.QueryRowContext(ctx,
		"SELECT COUNT(DISTINCT question_index) FROM answers WHERE user_id = ? AND period = ?",
		userID, db.Period(),
	).Scan(&count)
	return count, err
}

// Answers returns the user's answers in the current period ordered by question.
func (db *DB) Answers(ctx context.Context, userID int64) ([]models.Answer, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT question_index, question_text, answer_text, region, subregion, period, created_at
		FROM answers
		WHERE user_id = ? AND period = ?
		ORDER BY question_index`,
		userID, db.Period())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []models.Answer
	for rows.Next() {
		var (
			a         models.Answer
			subregion sql.NullString
			createdAt int64
		)
		if err := rows.Scan(&a.QuestionIndex, &a.QuestionText, &a.AnswerText, &a.Region, &subregion, &a.Period, &createdAt); err != nil {
			return nil, err
		}
		a.UserID = userID
		a.Subregion = subregion.String
		a.CreatedAt = time.Unix(createdAt, 0)
		result = append(result, a)
	}
	return result, rows.Err()
}

// SaveRegion records a region selection. An empty subregion marks a leaf region.
func (db *DB) SaveRegion(ctx context.Context, userID int64, region, subregion string) error {
	now := db.clock.Now()
	_, err := db.conn.ExecContext(ctx,
		"INSERT INTO user_regions (user_id, region, subregion, period, created_at) VALUES (?, ?, ?, ?, ?)",
		userID, region, nullable(subregion), period.Key(now, db.loc), now.Unix(),
	)
	return err
}

// CurrentRegion returns the most recent region record of the current period.
// The boolean is false when the user has none.
func (db *DB) CurrentRegion(ctx context.Context, userID int64) (models.RegionRecord, bool, error) {
	return currentRegion(ctx, db.conn, userID, db.Period())
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func currentRegion(ctx context.Context, q queryer, userID int64, p string) (models.RegionRecord, bool, error) {
	var (
		r         = models.RegionRecord{UserID: userID, Period: p}
		subregion sql.NullString
		createdAt int64
	)
	err := q.QueryRowContext(ctx, `
		SELECT region, subregion, created_at
		FROM user_regions
		WHERE user_id = ? AND period = ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1`,
		userID, p,
	).Scan(&r.Region, &subregion, &createdAt)

	if err == sql.ErrNoRows {
		return models.RegionRecord{}, false, nil
	}
	if err != nil {
		return models.RegionRecord{}, false, fmt.Errorf("current region: %w", err)
	}

	r.Subregion = subregion.String
	r.CreatedAt = time.Unix(createdAt, 0)
	return r, true, nil
}

// UsersWithPartialProgress returns users who answered at least one but fewer
// than total questions in the current period.
func (db *DB) UsersWithPartialProgress(ctx context.Context, total int) ([]int64, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT user_id
		FROM answers
		WHERE period = ?
		GROUP BY user_id
		HAVING COUNT(DISTINCT question_index) > 0 AND COUNT(DISTINCT question_index) < ?
		ORDER BY user_id`,
		db.Period(), total)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []int64
	for rows.Next() {
		var userID int64
		if err := rows.Scan(&userID); err != nil {
			return nil, err
		}
		users = append(users, userID)
	}
	return users, rows.Err()
}

// ResetCurrentMonth deletes the user's answers and region records of the
// current period.
func (db *DB) ResetCurrentMonth(ctx context.Context, userID int64) error {
	p := db.Period()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM answers WHERE user_id = ? AND period = ?", userID, p); err != nil {
		return fmt.Errorf("delete answers: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM user_regions WHERE user_id = ? AND period = ?", userID, p); err != nil {
		return fmt.Errorf("delete regions: %w", err)
	}
	return tx.Commit()
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
