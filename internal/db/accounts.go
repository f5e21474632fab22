package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jitrc/MailSweep/internal/models"
)

// ErrAccountNotFound is returned when a requested account cannot be found.
var ErrAccountNotFound = errors.New("account not found")

// UpsertAccount inserts or updates an account keyed by (host, username)
// and populates its ID and CreatedAt.
func UpsertAccount(ctx context.Context, pool *pgxpool.Pool, account *models.Account) error {
	err := pool.QueryRow(ctx, `
		INSERT INTO accounts (display_name, host, port, username, auth_mode, use_tls)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (host, username) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			port = EXCLUDED.port,
			auth_mode = EXCLUDED.auth_mode,
			use_tls = EXCLUDED.use_tls
		RETURNING id, created_at
	`,
		account.DisplayName,
		account.Host,
		account.Port,
		account.Username,
		account.AuthMode,
		account.UseTLS,
	).Scan(&account.ID, &account.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to upsert account: %w", err)
	}

	return nil
}

// GetAccountByID returns the account with the given ID.
func GetAccountByID(ctx context.Context, pool *pgxpool.Pool, accountID int64) (*models.Account, error) {
	var account models.Account

	err := pool.QueryRow(ctx, `
		SELECT id, display_name, host, port, username, auth_mode, use_tls, created_at
		FROM accounts
		WHERE id = $1
	`, accountID).Scan(
		&account.ID,
		&account.DisplayName,
		&account.Host,
		&account.Port,
		&account.Username,
		&account.AuthMode,
		&account.UseTLS,
		&account.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	return &account, nil
}

// GetAllAccounts returns all accounts ordered by display name.
func GetAllAccounts(ctx context.Context, pool *pgxpool.Pool) ([]*models.Account, error) {
	rows, err := pool.Query(ctx, `
		SELECT id, display_name, host, port, username, auth_mode, use_tls, created_at
		FROM accounts
		ORDER BY display_name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*models.Account
	for rows.Next() {
		var account models.Account
		if err := rows.Scan(
			&account.ID,
			&account.DisplayName,
			&account.Host,
			&account.Port,
			&account.Username,
			&account.AuthMode,
			&account.UseTLS,
			&account.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, &account)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}

	return accounts, nil
}

// DeleteAccount removes an account and, via cascade, its folders and messages.
func DeleteAccount(ctx context.Context, pool *pgxpool.Pool, accountID int64) error {
	if _, err := pool.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, accountID); err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	return nil
}
