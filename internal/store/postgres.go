package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Mohsinsiddi/w3deploy/internal/records"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// querier is the part of *pgxpool.Pool the store uses.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresStore keeps each record as one jsonb document. Merges use the
// jsonb || operator so only the patched top-level keys change.
type PostgresStore struct {
	db    querier
	close func()
}

// OpenPostgres connects a pool to dsn.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return &PostgresStore{db: pool, close: pool.Close}, nil
}

func newPostgresStore(db querier) *PostgresStore {
	return &PostgresStore{db: db, close: func() {}}
}

const (
	sqlGetUser = `SELECT data FROM user_records WHERE wallet = $1`

	sqlMergeUser = `
		INSERT INTO user_records (wallet, data, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (wallet) DO UPDATE
		SET data = user_records.data || EXCLUDED.data, updated_at = now()`

	sqlAllUsers = `SELECT wallet, data FROM user_records`

	sqlGetReferral = `SELECT data FROM referrals WHERE fid = $1`

	sqlPutReferral = `
		INSERT INTO referrals (fid, data, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (fid) DO UPDATE
		SET data = EXCLUDED.data, updated_at = now()`
)

func (s *PostgresStore) Get(ctx context.Context, wallet string) (*records.UserRecord, error) {
	var data []byte
	err := s.db.QueryRow(ctx, sqlGetUser, records.NormalizeWallet(wallet)).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return &records.UserRecord{}, nil
	}
	if err != nil {
		return nil, err
	}
	var rec records.UserRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decoding record: %w", err)
	}
	return &rec, nil
}

func (s *PostgresStore) Merge(ctx context.Context, wallet string, p records.Patch) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, sqlMergeUser, records.NormalizeWallet(wallet), data)
	return err
}

func (s *PostgresStore) All(ctx context.Context) (map[string]*records.UserRecord, error) {
	rows, err := s.db.Query(ctx, sqlAllUsers)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]*records.UserRecord)
	for rows.Next() {
		var (
			wallet string
			data   []byte
		)
		if err := rows.Scan(&wallet, &data); err != nil {
			return nil, err
		}
		var rec records.UserRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("decoding record for %s: %w", wallet, err)
		}
		out[wallet] = &rec
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetReferral(ctx context.Context, fid string) (*records.ReferralRecord, error) {
	var data []byte
	err := s.db.QueryRow(ctx, sqlGetReferral, fid).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec records.ReferralRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decoding referral: %w", err)
	}
	return &rec, nil
}

func (s *PostgresStore) PutReferral(ctx context.Context, rec *records.ReferralRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, sqlPutReferral, rec.FID, data)
	return err
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.close()
	return nil
}
