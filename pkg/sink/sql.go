package sink

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/phenomenon0/puntaiq/core"
	"github.com/phenomenon0/puntaiq/pkg/accumulator"
	"github.com/phenomenon0/puntaiq/pkg/predict"
)

// SQL drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS predictions (
		sport             TEXT NOT NULL,
		match_id          TEXT NOT NULL,
		id                TEXT NOT NULL,
		home_team         TEXT NOT NULL,
		away_team         TEXT NOT NULL,
		league            TEXT NOT NULL,
		start_time        TEXT NOT NULL,
		predicted_outcome TEXT NOT NULL,
		confidence        DOUBLE PRECISION NOT NULL,
		is_premium        INTEGER NOT NULL,
		payload           TEXT NOT NULL,
		updated_at        TEXT NOT NULL,
		PRIMARY KEY (sport, match_id)
	)`,
	`CREATE TABLE IF NOT EXISTS accumulators (
		bucket     TEXT NOT NULL,
		id         TEXT NOT NULL,
		position   INTEGER NOT NULL,
		size       INTEGER NOT NULL,
		tier       TEXT NOT NULL,
		total_odds DOUBLE PRECISION NOT NULL,
		confidence DOUBLE PRECISION NOT NULL,
		is_premium INTEGER NOT NULL,
		payload    TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (bucket, id)
	)`,
	`CREATE TABLE IF NOT EXISTS notifications (
		title    TEXT NOT NULL,
		body     TEXT NOT NULL,
		user_ids TEXT NOT NULL,
		data     TEXT NOT NULL,
		sent_at  TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_predictions_start_time ON predictions(start_time)`,
}

// SQLStore keeps the latest batch in SQLite or PostgreSQL. Predictions are
// upserted per match; the accumulator catalog is replaced as a whole.
type SQLStore struct {
	db     *sql.DB
	driver string
	now    func() time.Time
}

var _ Sink = (*SQLStore)(nil)

// OpenSQL opens the database and creates the schema. For SQLite the dsn is
// a file path.
func OpenSQL(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("sql sink: dsn is required")
	}

	switch driver {
	case DriverSQLite:
		dsn += "?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)"
	case DriverPostgres:
	default:
		return nil, fmt.Errorf("sql sink: unsupported driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", driver)
	}
	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "ping %s", driver)
	}

	s := &SQLStore{db: db, driver: driver, now: time.Now}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "init schema")
	}
	return s, nil
}

func (s *SQLStore) initSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// SetClock overrides the clock used for updated_at columns.
func (s *SQLStore) SetClock(now func() time.Time) {
	s.now = now
}

// rebind rewrites ? placeholders for drivers that number them.
func (s *SQLStore) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// StorePredictions upserts the predictions of one sport.
func (s *SQLStore) StorePredictions(ctx context.Context, sport core.Sport, preds []predict.Prediction) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, s.rebind(`
		INSERT INTO predictions (
			sport, match_id, id, home_team, away_team, league, start_time,
			predicted_outcome, confidence, is_premium, payload, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (sport, match_id) DO UPDATE SET
			id = EXCLUDED.id,
			home_team = EXCLUDED.home_team,
			away_team = EXCLUDED.away_team,
			league = EXCLUDED.league,
			start_time = EXCLUDED.start_time,
			predicted_outcome = EXCLUDED.predicted_outcome,
			confidence = EXCLUDED.confidence,
			is_premium = EXCLUDED.is_premium,
			payload = EXCLUDED.payload,
			updated_at = EXCLUDED.updated_at`))
	if err != nil {
		return errors.Wrap(err, "prepare prediction upsert")
	}
	defer stmt.Close()

	updated := formatTime(s.now())
	for _, p := range preds {
		payload, err := json.Marshal(p)
		if err != nil {
			return errors.Wrapf(err, "encode prediction %s", p.MatchID)
		}
		if _, err := stmt.ExecContext(ctx,
			string(sport), p.MatchID, p.ID, p.HomeTeam, p.AwayTeam, p.League, formatTime(p.StartTime),
			p.PredictedOutcome, p.Confidence, boolInt(p.IsPremium), string(payload), updated,
		); err != nil {
			return errors.Wrapf(err, "upsert prediction %s", p.MatchID)
		}
	}
	return errors.Wrap(tx.Commit(), "commit predictions")
}

// StoreAccumulators replaces the stored catalog.
func (s *SQLStore) StoreAccumulators(ctx context.Context, buckets map[string][]accumulator.Accumulator) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM accumulators`); err != nil {
		return errors.Wrap(err, "clear accumulators")
	}

	stmt, err := tx.PrepareContext(ctx, s.rebind(`
		INSERT INTO accumulators (
			bucket, id, position, size, tier, total_odds, confidence, is_premium, payload, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`))
	if err != nil {
		return errors.Wrap(err, "prepare accumulator insert")
	}
	defer stmt.Close()

	updated := formatTime(s.now())
	for _, bucket := range bucketNames(buckets) {
		for i, acc := range buckets[bucket] {
			payload, err := json.Marshal(acc)
			if err != nil {
				return errors.Wrapf(err, "encode accumulator %s", acc.ID)
			}
			if _, err := stmt.ExecContext(ctx,
				bucket, acc.ID, i, acc.Size, acc.Tier.Key(), acc.TotalOdds, acc.Confidence,
				boolInt(acc.IsPremium), string(payload), updated,
			); err != nil {
				return errors.Wrapf(err, "insert accumulator %s/%s", bucket, acc.ID)
			}
		}
	}
	return errors.Wrap(tx.Commit(), "commit accumulators")
}

// Notify records a notification for the given users.
func (s *SQLStore) Notify(ctx context.Context, userIDs []string, title, body string, data map[string]string) error {
	users, err := json.Marshal(userIDs)
	if err != nil {
		return err
	}
	if data == nil {
		data = map[string]string{}
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO notifications (title, body, user_ids, data, sent_at) VALUES (?, ?, ?, ?, ?)`),
		title, body, string(users), string(payload), formatTime(s.now()))
	return errors.Wrap(err, "insert notification")
}

// Predictions returns the stored predictions of a sport ordered by kick-off.
func (s *SQLStore) Predictions(ctx context.Context, sport core.Sport) ([]predict.Prediction, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT payload FROM predictions WHERE sport = ? ORDER BY start_time, match_id`), string(sport))
	if err != nil {
		return nil, errors.Wrap(err, "query predictions")
	}
	defer rows.Close()

	var out []predict.Prediction
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, errors.Wrap(err, "scan prediction")
		}
		var p predict.Prediction
		if err := json.Unmarshal([]byte(payload), &p); err != nil {
			return nil, errors.Wrap(err, "decode prediction")
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Accumulators returns the stored catalog.
func (s *SQLStore) Accumulators(ctx context.Context) (map[string][]accumulator.Accumulator, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT bucket, payload FROM accumulators ORDER BY bucket, position`)
	if err != nil {
		return nil, errors.Wrap(err, "query accumulators")
	}
	defer rows.Close()

	out := make(map[string][]accumulator.Accumulator)
	for rows.Next() {
		var bucket, payload string
		if err := rows.Scan(&bucket, &payload); err != nil {
			return nil, errors.Wrap(err, "scan accumulator")
		}
		var acc accumulator.Accumulator
		if err := json.Unmarshal([]byte(payload), &acc); err != nil {
			return nil, errors.Wrap(err, "decode accumulator")
		}
		out[bucket] = append(out[bucket], acc)
	}
	return out, rows.Err()
}

// NotificationCount returns the number of recorded notifications.
func (s *SQLStore) NotificationCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notifications`).Scan(&n)
	return n, errors.Wrap(err, "count notifications")
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
