// Package repository implements data persistence for relayed file records.
// Repositories support both PostgreSQL and MySQL; consuming a record is a row-locked delete.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/sealdrop/internal/database"
	apperrors "github.com/allisson/sealdrop/internal/errors"
	filesDomain "github.com/allisson/sealdrop/internal/files/domain"
)

// PostgreSQLFileRepository implements File persistence for PostgreSQL databases.
type PostgreSQLFileRepository struct {
	db *sql.DB
}

// Create inserts a new file record.
func (p *PostgreSQLFileRepository) Create(ctx context.Context, file *filesDomain.File) error {
	querier := database.GetTx(ctx, p.db)

	query := `INSERT INTO files (id, display_name, extension, storage_ref, access_gate, size, created_at) 
			  VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := querier.ExecContext(
		ctx,
		query,
		file.ID,
		file.DisplayName,
		file.Extension,
		file.StorageRef,
		file.AccessGate,
		file.Size,
		file.CreatedAt,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to create file")
	}
	return nil
}

// GetByID retrieves a file record without locking it.
func (p *PostgreSQLFileRepository) GetByID(ctx context.Context, id uuid.UUID) (*filesDomain.File, error) {
	query := `SELECT id, display_name, extension, storage_ref, access_gate, size, created_at 
			  FROM files 
			  WHERE id = $1`

	return p.get(ctx, query, id)
}

// GetForUpdate retrieves a file record and locks its row until the surrounding transaction ends.
// Concurrent consumers of the same id serialize here; the loser observes ErrFileNotFound.
func (p *PostgreSQLFileRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*filesDomain.File, error) {
	query := `SELECT id, display_name, extension, storage_ref, access_gate, size, created_at 
			  FROM files 
			  WHERE id = $1 
			  FOR UPDATE`

	return p.get(ctx, query, id)
}

func (p *PostgreSQLFileRepository) get(ctx context.Context, query string, id uuid.UUID) (*filesDomain.File, error) {
	querier := database.GetTx(ctx, p.db)

	var file filesDomain.File
	err := querier.QueryRowContext(ctx, query, id).Scan(
		&file.ID,
		&file.DisplayName,
		&file.Extension,
		&file.StorageRef,
		&file.AccessGate,
		&file.Size,
		&file.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, filesDomain.ErrFileNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get file")
	}

	file.CreatedAt = file.CreatedAt.UTC()
	return &file, nil
}

// Delete removes a file record. It returns ErrFileNotFound when no row was removed.
func (p *PostgreSQLFileRepository) Delete(ctx context.Context, id uuid.UUID) error {
	querier := database.GetTx(ctx, p.db)

	result, err := querier.ExecContext(ctx, `DELETE FROM files WHERE id = $1`, id)
	if err != nil {
		return apperrors.Wrap(err, "failed to delete file")
	}

	return checkDeleted(result)
}

// CountExpired returns how many records were created before cutoff.
func (p *PostgreSQLFileRepository) CountExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	querier := database.GetTx(ctx, p.db)

	var count int64
	err := querier.QueryRowContext(ctx, `SELECT COUNT(*) FROM files WHERE created_at < $1`, cutoff).Scan(&count)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to count expired files")
	}
	return count, nil
}

// ListExpired locks and returns up to limit records created before cutoff, oldest first.
// Rows locked by an in-flight retrieval are skipped.
func (p *PostgreSQLFileRepository) ListExpired(
	ctx context.Context,
	cutoff time.Time,
	limit int,
) ([]*filesDomain.File, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT id, display_name, extension, storage_ref, access_gate, size, created_at 
			  FROM files 
			  WHERE created_at < $1 
			  ORDER BY created_at ASC 
			  LIMIT $2 
			  FOR UPDATE SKIP LOCKED`

	rows, err := querier.QueryContext(ctx, query, cutoff, limit)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list expired files")
	}
	defer rows.Close() //nolint:errcheck

	var files []*filesDomain.File
	for rows.Next() {
		var file filesDomain.File
		err := rows.Scan(
			&file.ID,
			&file.DisplayName,
			&file.Extension,
			&file.StorageRef,
			&file.AccessGate,
			&file.Size,
			&file.CreatedAt,
		)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan file")
		}
		file.CreatedAt = file.CreatedAt.UTC()
		files = append(files, &file)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate files")
	}

	return files, nil
}

// NewPostgreSQLFileRepository creates a new PostgreSQL File repository instance.
func NewPostgreSQLFileRepository(db *sql.DB) *PostgreSQLFileRepository {
	return &PostgreSQLFileRepository{db: db}
}

func checkDeleted(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrap(err, "failed to read affected rows")
	}
	if affected == 0 {
		return filesDomain.ErrFileNotFound
	}
	return nil
}
