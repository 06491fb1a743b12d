package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/morezero/serene/pkg/resource"
)

const repoLogPrefix = "db:repository"

// uniqueViolation is the Postgres SQLSTATE for a duplicate key.
const uniqueViolation = "23505"

const recordColumns = `resource, id, body, revision, created, modified`

// Repository is a resource.Store backed by the resources table.
type Repository struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

var _ resource.Store = (*Repository)(nil)

// NewRepository creates a new Repository with the given connection pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{
		pool: pool,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// List returns one page of matching documents ordered by creation time, then
// id, together with the total number of matches. Filter keys are dotted paths
// into the body; a backslash escapes a literal dot.
func (r *Repository) List(ctx context.Context, params resource.ListParams) ([]resource.Record, int, error) {
	where, args := listFilter(params)

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*)::int FROM resources WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("%s - List count failed: %w", repoLogPrefix, err)
	}

	query := `SELECT ` + recordColumns + ` FROM resources WHERE ` + where + ` ORDER BY created, id`
	if params.Limit > 0 {
		args = append(args, params.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}
	args = append(args, params.Offset)
	query += fmt.Sprintf(` OFFSET $%d`, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("%s - List query failed: %w", repoLogPrefix, err)
	}
	defer rows.Close()

	items := []resource.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("%s - List rows failed: %w", repoLogPrefix, err)
	}
	return items, total, nil
}

// Get returns one document.
func (r *Repository) Get(ctx context.Context, res, id string) (*resource.Record, error) {
	slog.Debug(fmt.Sprintf("%s - Get %s/%s", repoLogPrefix, res, id))
	row := r.pool.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM resources WHERE resource = $1 AND id = $2`, res, id)
	return scanRecord(row)
}

// Create inserts a new document at revision 1.
func (r *Repository) Create(ctx context.Context, res, id string, body []byte) (*resource.Record, error) {
	now := r.now()
	row := r.pool.QueryRow(ctx,
		`INSERT INTO resources (resource, id, body, revision, created, modified)
		 VALUES ($1, $2, $3::jsonb, 1, $4, $4)
		 RETURNING `+recordColumns,
		res, id, string(body), now)

	rec, err := scanRecord(row)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return nil, resource.ErrConflict
	}
	if err != nil {
		return nil, err
	}
	slog.Info(fmt.Sprintf("%s - Created %s/%s", repoLogPrefix, res, id))
	return rec, nil
}

// Update merges the top-level fields of patch into the stored body.
func (r *Repository) Update(ctx context.Context, res, id string, patch []byte) (*resource.Record, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE resources
		 SET body = body || $3::jsonb, revision = revision + 1, modified = $4
		 WHERE resource = $1 AND id = $2
		 RETURNING `+recordColumns,
		res, id, string(patch), r.now())
	return scanRecord(row)
}

// Replace overwrites the stored body.
func (r *Repository) Replace(ctx context.Context, res, id string, body []byte) (*resource.Record, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE resources
		 SET body = $3::jsonb, revision = revision + 1, modified = $4
		 WHERE resource = $1 AND id = $2
		 RETURNING `+recordColumns,
		res, id, string(body), r.now())
	return scanRecord(row)
}

// Delete removes a document.
func (r *Repository) Delete(ctx context.Context, res, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM resources WHERE resource = $1 AND id = $2`, res, id)
	if err != nil {
		return fmt.Errorf("%s - Delete failed: %w", repoLogPrefix, err)
	}
	if tag.RowsAffected() == 0 {
		return resource.ErrNotFound
	}
	slog.Info(fmt.Sprintf("%s - Deleted %s/%s", repoLogPrefix, res, id))
	return nil
}

// listFilter builds the WHERE clause shared by the count and page queries.
// Keys are sorted so equal params produce equal SQL.
func listFilter(params resource.ListParams) (string, []any) {
	args := []any{params.Resource}
	clauses := []string{`resource = $1`}

	keys := make([]string, 0, len(params.Filter))
	for k := range params.Filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		args = append(args, splitPath(k), params.Filter[k])
		clauses = append(clauses, fmt.Sprintf(`body #>> $%d::text[] = $%d`, len(args)-1, len(args)))
	}
	return strings.Join(clauses, ` AND `), args
}

// splitPath splits a dotted path into its segments, honoring `\.` and `\\`.
func splitPath(p string) []string {
	var (
		parts []string
		cur   strings.Builder
	)
	for i := 0; i < len(p); i++ {
		switch {
		case p[i] == '\\' && i+1 < len(p):
			i++
			cur.WriteByte(p[i])
		case p[i] == '.':
			parts = append(parts, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(p[i])
		}
	}
	return append(parts, cur.String())
}

func scanRecord(row pgx.Row) (*resource.Record, error) {
	var (
		rec  resource.Record
		body []byte
	)
	err := row.Scan(&rec.Resource, &rec.ID, &body, &rec.Revision, &rec.Created, &rec.Modified)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, resource.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%s - scan record failed: %w", repoLogPrefix, err)
	}
	rec.Body = body
	rec.Created = rec.Created.UTC()
	rec.Modified = rec.Modified.UTC()
	return &rec, nil
}
