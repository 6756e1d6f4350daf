package dictionary

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/datafire-practice/patient-registry-backend/internal/platform/db"
	"github.com/datafire-practice/patient-registry-backend/pkg/pagination"
)

// replaceLockID serialises Replace across every instance sharing the database.
const replaceLockID int64 = 0x6d6b623130

var sortColumns = map[string]string{
	"code": "code",
	"name": "name",
}

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) db.DBTX {
	return db.Conn(ctx, r.pool)
}

func (r *repoPG) GetByCode(ctx context.Context, code string) (*Entry, error) {
	var e Entry
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT code, name FROM dictionary_entry WHERE code = $1`, code).
		Scan(&e.Code, &e.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("dictionary get: %w", err)
	}
	return &e, nil
}

func (r *repoPG) ListAll(ctx context.Context) ([]Entry, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT code, name FROM dictionary_entry ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("dictionary list: %w", err)
	}
	entries, err := pgx.CollectRows(rows, pgx.RowToStructByName[Entry])
	if err != nil {
		return nil, fmt.Errorf("dictionary list: %w", err)
	}
	return entries, nil
}

func (r *repoPG) Search(ctx context.Context, query string, p pagination.Params) ([]Entry, int, error) {
	where := ""
	var args []any
	if q := strings.TrimSpace(query); q != "" {
		where = ` WHERE code ILIKE $1 OR name ILIKE $1`
		args = append(args, "%"+escapeLike(q)+"%")
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM dictionary_entry`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("dictionary search count: %w", err)
	}
	if total == 0 {
		return nil, 0, nil
	}

	sql := fmt.Sprintf(`SELECT code, name FROM dictionary_entry%s %s %s`,
		where, p.OrderBy(sortColumns, "code"), p.SQL())
	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("dictionary search: %w", err)
	}
	entries, err := pgx.CollectRows(rows, pgx.RowToStructByName[Entry])
	if err != nil {
		return nil, 0, fmt.Errorf("dictionary search: %w", err)
	}
	return entries, total, nil
}

// Replace clears the table and bulk-loads entries in one transaction, so
// readers on other connections see either the old set or the new one.
func (r *repoPG) Replace(ctx context.Context, entries []Entry) (int, error) {
	var written int64
	err := db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		q := r.conn(ctx)
		if _, err := q.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, replaceLockID); err != nil {
			return fmt.Errorf("lock: %w", err)
		}
		if _, err := q.Exec(ctx, `DELETE FROM dictionary_entry`); err != nil {
			return fmt.Errorf("clear: %w", err)
		}
		n, err := q.CopyFrom(ctx,
			pgx.Identifier{"dictionary_entry"},
			[]string{"code", "name"},
			pgx.CopyFromSlice(len(entries), func(i int) ([]any, error) {
				return []any{entries[i].Code, entries[i].Name}, nil
			}),
		)
		if err != nil {
			return fmt.Errorf("copy: %w", err)
		}
		written = n
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("dictionary replace: %w", err)
	}
	return int(written), nil
}

func (r *repoPG) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM dictionary_entry`).Scan(&n); err != nil {
		return 0, fmt.Errorf("dictionary count: %w", err)
	}
	return n, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
