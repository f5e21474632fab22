package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jitrc/MailSweep/internal/models"
)

// ErrFolderNotFound is returned when a requested folder cannot be found.
var ErrFolderNotFound = errors.New("folder not found")

// Gmail exposes the full mailbox through one special folder; every label is
// just another view onto it. Names seen in the wild, compared lowercase.
var allMailNames = []string{"[gmail]/all mail", "[google mail]/all mail"}

// UpsertFolder inserts or updates a folder keyed by (account_id, name) and
// populates its ID.
func UpsertFolder(ctx context.Context, pool *pgxpool.Pool, folder *models.Folder) error {
	err := pool.QueryRow(ctx, `
		INSERT INTO folders (account_id, name, uid_validity, message_count, total_size_bytes, last_scanned_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (account_id, name) DO UPDATE SET
			uid_validity = EXCLUDED.uid_validity,
			message_count = EXCLUDED.message_count,
			total_size_bytes = EXCLUDED.total_size_bytes,
			last_scanned_at = EXCLUDED.last_scanned_at
		RETURNING id
	`,
		folder.AccountID,
		folder.Name,
		folder.UIDValidity,
		folder.MessageCount,
		folder.TotalSizeBytes,
		folder.LastScannedAt,
	).Scan(&folder.ID)

	if err != nil {
		return fmt.Errorf("failed to upsert folder: %w", err)
	}

	return nil
}

// GetFoldersByAccount returns all folders for an account, largest first.
func GetFoldersByAccount(ctx context.Context, pool *pgxpool.Pool, accountID int64) ([]*models.Folder, error) {
	rows, err := pool.Query(ctx, `
		SELECT id, account_id, name, uid_validity, message_count, total_size_bytes, last_scanned_at
		FROM folders
		WHERE account_id = $1
		ORDER BY total_size_bytes DESC
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to get folders: %w", err)
	}
	defer rows.Close()

	var folders []*models.Folder
	for rows.Next() {
		var folder models.Folder
		if err := rows.Scan(
			&folder.ID,
			&folder.AccountID,
			&folder.Name,
			&folder.UIDValidity,
			&folder.MessageCount,
			&folder.TotalSizeBytes,
			&folder.LastScannedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan folder: %w", err)
		}
		folders = append(folders, &folder)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating folders: %w", err)
	}

	return folders, nil
}

// GetFolderByID returns the folder with the given ID.
func GetFolderByID(ctx context.Context, pool *pgxpool.Pool, folderID int64) (*models.Folder, error) {
	var folder models.Folder

	err := pool.QueryRow(ctx, `
		SELECT id, account_id, name, uid_validity, message_count, total_size_bytes, last_scanned_at
		FROM folders
		WHERE id = $1
	`, folderID).Scan(
		&folder.ID,
		&folder.AccountID,
		&folder.Name,
		&folder.UIDValidity,
		&folder.MessageCount,
		&folder.TotalSizeBytes,
		&folder.LastScannedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrFolderNotFound
		}
		return nil, fmt.Errorf("failed to get folder: %w", err)
	}

	return &folder, nil
}

// GetFolderByName returns the folder with the given name within an account.
func GetFolderByName(ctx context.Context, pool *pgxpool.Pool, accountID int64, name string) (*models.Folder, error) {
	var folder models.Folder

	err := pool.QueryRow(ctx, `
		SELECT id, account_id, name, uid_validity, message_count, total_size_bytes, last_scanned_at
		FROM folders
		WHERE account_id = $1 AND name = $2
	`, accountID, name).Scan(
		&folder.ID,
		&folder.AccountID,
		&folder.Name,
		&folder.UIDValidity,
		&folder.MessageCount,
		&folder.TotalSizeBytes,
		&folder.LastScannedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrFolderNotFound
		}
		return nil, fmt.Errorf("failed to get folder: %w", err)
	}

	return &folder, nil
}

// FindAllMailFolder returns the Gmail "All Mail" folder for an account, or
// ErrFolderNotFound for non-Gmail accounts.
func FindAllMailFolder(ctx context.Context, pool *pgxpool.Pool, accountID int64) (*models.Folder, error) {
	folders, err := GetFoldersByAccount(ctx, pool, accountID)
	if err != nil {
		return nil, err
	}

	for _, folder := range folders {
		for _, name := range allMailNames {
			if strings.ToLower(folder.Name) == name {
				return folder, nil
			}
		}
	}

	return nil, ErrFolderNotFound
}

// InvalidateFolder drops all cached messages for a folder and resets its
// metadata. Used when the server reports a changed UIDVALIDITY, which makes
// every cached UID meaningless.
func InvalidateFolder(ctx context.Context, pool *pgxpool.Pool, folderID int64) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM messages WHERE folder_id = $1`, folderID); err != nil {
		return fmt.Errorf("failed to delete cached messages: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE folders
		SET uid_validity = 0, message_count = 0, total_size_bytes = 0, last_scanned_at = NULL
		WHERE id = $1
	`, folderID); err != nil {
		return fmt.Errorf("failed to reset folder: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit invalidation: %w", err)
	}

	return nil
}

// UpdateFolderStats recomputes message_count and total_size_bytes from the
// messages table.
func UpdateFolderStats(ctx context.Context, pool *pgxpool.Pool, folderID int64) error {
	_, err := pool.Exec(ctx, `
		UPDATE folders SET
			message_count    = (SELECT COUNT(*) FROM messages WHERE folder_id = folders.id),
			total_size_bytes = (SELECT COALESCE(SUM(size_bytes), 0) FROM messages WHERE folder_id = folders.id)
		WHERE id = $1
	`, folderID)

	if err != nil {
		return fmt.Errorf("failed to update folder stats: %w", err)
	}

	return nil
}
