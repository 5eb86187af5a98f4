package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/atinyakov/consultdesk/internal/models"
)

// PostgresContentRepository stores records of every collection in one
// table with JSONB fields.
type PostgresContentRepository struct {
	// DB is the database handle for executing queries.
	DB *sql.DB
}

// NewPostgresContentRepository creates a repository on top of db.
func NewPostgresContentRepository(db *sql.DB) *PostgresContentRepository {
	return &PostgresContentRepository{DB: db}
}

const recordColumns = `id, author_id, fields, created_at, updated_at`

func scanRecord(row rowScanner) (*models.Record, error) {
	var (
		rec    models.Record
		author sql.NullInt64
		raw    []byte
	)
	err := row.Scan(&rec.ID, &author, &raw, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if author.Valid {
		id := author.Int64
		rec.AuthorID = &id
	}
	if err := json.Unmarshal(raw, &rec.Fields); err != nil {
		return nil, fmt.Errorf("decode fields of record %d: %w", rec.ID, err)
	}
	if rec.Fields == nil {
		rec.Fields = map[string]any{}
	}
	return &rec, nil
}

// builtinOrder maps sortable columns; any other name sorts by that field.
var builtinOrder = map[string]string{
	"id":         "id",
	"created_at": "created_at",
	"updated_at": "updated_at",
}

// List returns records of a collection. Ordering names are expected to be
// validated by the caller.
func (r *PostgresContentRepository) List(ctx context.Context, c models.Collection, q models.ListQuery) ([]models.Record, error) {
	var b strings.Builder
	args := []any{string(c)}
	b.WriteString(`SELECT ` + recordColumns + ` FROM records WHERE collection = $1`)

	if q.AuthorID != nil {
		args = append(args, *q.AuthorID)
		fmt.Fprintf(&b, ` AND author_id = $%d`, len(args))
	}

	field, dir := strings.TrimPrefix(q.Ordering, "-"), "ASC"
	if strings.HasPrefix(q.Ordering, "-") {
		dir = "DESC"
	}
	switch col, ok := builtinOrder[field]; {
	case field == "":
		b.WriteString(` ORDER BY created_at DESC, id DESC`)
	case ok:
		fmt.Fprintf(&b, ` ORDER BY %s %s, id %s`, col, dir, dir)
	default:
		args = append(args, field)
		fmt.Fprintf(&b, ` ORDER BY fields->>$%d %s, id %s`, len(args), dir, dir)
	}

	if q.Limit > 0 {
		args = append(args, q.Limit)
		fmt.Fprintf(&b, ` LIMIT $%d`, len(args))
	}
	if q.Offset > 0 {
		args = append(args, q.Offset)
		fmt.Fprintf(&b, ` OFFSET $%d`, len(args))
	}

	rows, err := r.DB.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", c, err)
	}
	defer rows.Close()

	records := []models.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list %s: %w", c, err)
	}
	return records, nil
}

// Get returns one record or models.ErrNotFound.
func (r *PostgresContentRepository) Get(ctx context.Context, c models.Collection, id int64) (*models.Record, error) {
	return scanRecord(r.DB.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM records WHERE collection = $1 AND id = $2`,
		string(c), id,
	))
}

// Create inserts a record. authorID is nil for anonymous submissions.
func (r *PostgresContentRepository) Create(ctx context.Context, c models.Collection, authorID *int64, fields map[string]any) (*models.Record, error) {
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("encode fields: %w", err)
	}
	var author sql.NullInt64
	if authorID != nil {
		author = sql.NullInt64{Int64: *authorID, Valid: true}
	}

	rec, err := scanRecord(r.DB.QueryRowContext(ctx, `
		INSERT INTO records (collection, author_id, fields)
		VALUES ($1, $2, $3)
		RETURNING `+recordColumns,
		string(c), author, raw,
	))
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", c, err)
	}
	return rec, nil
}

// Update merges patch into the stored fields. Keys set to null are removed.
func (r *PostgresContentRepository) Update(ctx context.Context, c models.Collection, id int64, patch map[string]any) (*models.Record, error) {
	raw, err := json.Marshal(patch)
	if err != nil {
		return nil, fmt.Errorf("encode patch: %w", err)
	}

	rec, err := scanRecord(r.DB.QueryRowContext(ctx, `
		UPDATE records
		   SET fields = jsonb_strip_nulls(fields || $3::jsonb),
		       updated_at = now()
		 WHERE collection = $1 AND id = $2
		RETURNING `+recordColumns,
		string(c), id, raw,
	))
	if err != nil {
		return nil, fmt.Errorf("update %s/%d: %w", c, id, err)
	}
	return rec, nil
}

// Delete removes a record or returns models.ErrNotFound.
func (r *PostgresContentRepository) Delete(ctx context.Context, c models.Collection, id int64) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM records WHERE collection = $1 AND id = $2`, string(c), id)
	if err != nil {
		return fmt.Errorf("delete %s/%d: %w", c, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete %s/%d: %w", c, id, err)
	}
	if n == 0 {
		return models.ErrNotFound
	}
	return nil
}
