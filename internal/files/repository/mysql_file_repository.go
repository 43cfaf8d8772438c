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

// MySQLFileRepository implements File persistence for MySQL databases.
// Identifiers are stored as BINARY(16).
type MySQLFileRepository struct {
	db *sql.DB
}

// Create inserts a new file record.
func (m *MySQLFileRepository) Create(ctx context.Context, file *filesDomain.File) error {
	querier := database.GetTx(ctx, m.db)

	id, err := file.ID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal file id")
	}

	query := `INSERT INTO files (id, display_name, extension, storage_ref, access_gate, size, created_at) 
			  VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err = querier.ExecContext(
		ctx,
		query,
		id,
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
func (m *MySQLFileRepository) GetByID(ctx context.Context, id uuid.UUID) (*filesDomain.File, error) {
	query := `SELECT id, display_name, extension, storage_ref, access_gate, size, created_at 
			  FROM files 
			  WHERE id = ?`

	return m.get(ctx, query, id)
}

// GetForUpdate retrieves a file record and locks its row until the surrounding transaction ends.
func (m *MySQLFileRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*filesDomain.File, error) {
	query := `SELECT id, display_name, extension, storage_ref, access_gate, size, created_at 
			  FROM files 
			  WHERE id = ? 
			  FOR UPDATE`

	return m.get(ctx, query, id)
}

func (m *MySQLFileRepository) get(ctx context.Context, query string, id uuid.UUID) (*filesDomain.File, error) {
	querier := database.GetTx(ctx, m.db)

	idBytes, err := id.MarshalBinary()
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to marshal file id")
	}

	file, err := scanFile(querier.QueryRowContext(ctx, query, idBytes))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, filesDomain.ErrFileNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get file")
	}
	return file, nil
}

// Delete removes a file record. It returns ErrFileNotFound when no row was removed.
func (m *MySQLFileRepository) Delete(ctx context.Context, id uuid.UUID) error {
	querier := database.GetTx(ctx, m.db)

	idBytes, err := id.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal file id")
	}

	result, err := querier.ExecContext(ctx, `DELETE FROM files WHERE id = ?`, idBytes)
	if err != nil {
		return apperrors.Wrap(err, "failed to delete file")
	}

	return checkDeleted(result)
}

// CountExpired returns how many records were created before cutoff.
func (m *MySQLFileRepository) CountExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	querier := database.GetTx(ctx, m.db)

	var count int64
	err := querier.QueryRowContext(ctx, `SELECT COUNT(*) FROM files WHERE created_at < ?`, cutoff).Scan(&count)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to count expired files")
	}
	return count, nil
}

// ListExpired locks and returns up to limit records created before cutoff, oldest first.
// Rows locked by an in-flight retrieval are skipped.
func (m *MySQLFileRepository) ListExpired(
	ctx context.Context,
	cutoff time.Time,
	limit int,
) ([]*filesDomain.File, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT id, display_name, extension, storage_ref, access_gate, size, created_at 
			  FROM files 
			  WHERE created_at < ? 
			  ORDER BY created_at ASC 
			  LIMIT ? 
			  FOR UPDATE SKIP LOCKED`

	rows, err := querier.QueryContext(ctx, query, cutoff, limit)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list expired files")
	}
	defer rows.Close() //nolint:errcheck

	var files []*filesDomain.File
	for rows.Next() {
		file, err := scanFile(rows)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan file")
		}
		files = append(files, file)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate files")
	}

	return files, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFile(row rowScanner) (*filesDomain.File, error) {
	var file filesDomain.File
	var idBytes []byte

	err := row.Scan(
		&idBytes,
		&file.DisplayName,
		&file.Extension,
		&file.StorageRef,
		&file.AccessGate,
		&file.Size,
		&file.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := file.ID.UnmarshalBinary(idBytes); err != nil {
		return nil, err
	}

	file.CreatedAt = file.CreatedAt.UTC()
	return &file, nil
}

// NewMySQLFileRepository creates a new MySQL File repository instance.
func NewMySQLFileRepository(db *sql.DB) *MySQLFileRepository {
	return &MySQLFileRepository{db: db}
}
