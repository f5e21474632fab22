package db

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jitrc/MailSweep/internal/models"
)

func strPtr(s string) *string { return &s }

func timePtr(t time.Time) *time.Time { return &t }

// testDate returns a fixed instant with microsecond precision so values
// survive the round trip through timestamptz unchanged.
func testDate(day int) time.Time {
	return time.Date(2024, 3, day, 12, 0, 0, 0, time.UTC)
}

func seedAccount(t *testing.T, ctx context.Context, pool *pgxpool.Pool) *models.Account {
	t.Helper()

	account := &models.Account{
		DisplayName: "Test Account",
		Host:        "imap.example.com",
		Port:        993,
		Username:    "user@example.com",
		AuthMode:    "password",
		UseTLS:      true,
	}
	if err := UpsertAccount(ctx, pool, account); err != nil {
		t.Fatalf("UpsertAccount failed: %v", err)
	}
	return account
}

func seedFolder(t *testing.T, ctx context.Context, pool *pgxpool.Pool, accountID int64, name string) *models.Folder {
	t.Helper()

	folder := &models.Folder{
		AccountID:   accountID,
		Name:        name,
		UIDValidity: 1,
	}
	if err := UpsertFolder(ctx, pool, folder); err != nil {
		t.Fatalf("UpsertFolder failed: %v", err)
	}
	return folder
}

func seedMessages(t *testing.T, ctx context.Context, pool *pgxpool.Pool, messages ...*models.Message) {
	t.Helper()

	if err := BatchUpsertMessages(ctx, pool, messages); err != nil {
		t.Fatalf("BatchUpsertMessages failed: %v", err)
	}
}
