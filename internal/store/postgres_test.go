package store

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/Mohsinsiddi/w3deploy/internal/records"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDB emulates the three statements PostgresStore issues, including the
// top-level jsonb || merge.
type fakeDB struct {
	mu        sync.Mutex
	users     map[string]map[string]json.RawMessage
	referrals map[string][]byte
	execs     []string
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		users:     make(map[string]map[string]json.RawMessage),
		referrals: make(map[string][]byte),
	}
}

func (db *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.execs = append(db.execs, sql)

	key := args[0].(string)
	data := args[1].([]byte)
	switch sql {
	case sqlMergeUser:
		var patch map[string]json.RawMessage
		if err := json.Unmarshal(data, &patch); err != nil {
			return pgconn.CommandTag{}, err
		}
		doc := db.users[key]
		if doc == nil {
			doc = make(map[string]json.RawMessage)
		}
		for k, v := range patch {
			doc[k] = v
		}
		db.users[key] = doc
	case sqlPutReferral:
		db.referrals[key] = append([]byte(nil), data...)
	default:
		return pgconn.CommandTag{}, errors.New("unexpected statement")
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (db *fakeDB) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	db.mu.Lock()
	defer db.mu.Unlock()
	key := args[0].(string)
	switch sql {
	case sqlGetUser:
		doc, ok := db.users[key]
		if !ok {
			return fakeRow{err: pgx.ErrNoRows}
		}
		b, _ := json.Marshal(doc)
		return fakeRow{values: []any{b}}
	case sqlGetReferral:
		b, ok := db.referrals[key]
		if !ok {
			return fakeRow{err: pgx.ErrNoRows}
		}
		return fakeRow{values: []any{b}}
	}
	return fakeRow{err: errors.New("unexpected query")}
}

func (db *fakeDB) Query(_ context.Context, sql string, _ ...any) (pgx.Rows, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if sql != sqlAllUsers {
		return nil, errors.New("unexpected query")
	}
	wallets := make([]string, 0, len(db.users))
	for w := range db.users {
		wallets = append(wallets, w)
	}
	sort.Strings(wallets)
	rows := &fakeRows{}
	for _, w := range wallets {
		b, _ := json.Marshal(db.users[w])
		rows.rows = append(rows.rows, []any{w, b})
	}
	return rows, nil
}

type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	return assign(dest, r.values)
}

type fakeRows struct {
	rows [][]any
	i    int
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.NewCommandTag("SELECT") }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeRows) Next() bool {
	r.i++
	return r.i <= len(r.rows)
}

func (r *fakeRows) Scan(dest ...any) error { return assign(dest, r.rows[r.i-1]) }

func (r *fakeRows) Values() ([]any, error) { return r.rows[r.i-1], nil }

func assign(dest, values []any) error {
	if len(dest) != len(values) {
		return errors.New("column count mismatch")
	}
	for i, v := range values {
		switch d := dest[i].(type) {
		case *string:
			*d = v.(string)
		case *[]byte:
			*d = v.([]byte)
		default:
			return errors.New("unsupported scan target")
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Postgres-specific behaviour
// ---------------------------------------------------------------------------

func TestPostgresMergeSendsOnlyPatchedKeys(t *testing.T) {
	db := newFakeDB()
	s := newPostgresStore(db)

	require.NoError(t, s.Merge(ctx, walletA, recordsPatchClicks(5)))
	require.Len(t, db.execs, 1)
	assert.Equal(t, sqlMergeUser, db.execs[0])

	doc := db.users["0xabc0000000000000000000000000000000000001"]
	assert.Equal(t, json.RawMessage("5"), doc["clicks"])
	assert.NotContains(t, doc, "contracts")
}

func TestPostgresQueryErrorPropagates(t *testing.T) {
	s := newPostgresStore(failingDB{})
	_, err := s.Get(ctx, walletA)
	assert.Error(t, err)
	_, err = s.All(ctx)
	assert.Error(t, err)
}

type failingDB struct{}

func (failingDB) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, errors.New("connection refused")
}

func (failingDB) QueryRow(context.Context, string, ...any) pgx.Row {
	return fakeRow{err: errors.New("connection refused")}
}

func (failingDB) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("connection refused")
}

func recordsPatchClicks(n int) records.Patch {
	return records.Patch{Clicks: &n}
}
