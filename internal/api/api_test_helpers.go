package api

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/jitrc/MailSweep/internal/config"
	"github.com/jitrc/MailSweep/internal/db"
	"github.com/jitrc/MailSweep/internal/models"
)

func strPtr(s string) *string { return &s }

func timePtr(t time.Time) *time.Time { return &t }

func formatID(id int64) string { return strconv.FormatInt(id, 10) }

func testConfig() *config.Config {
	return &config.Config{
		ScanBatchSize:  500,
		UnlabelledMode: config.ModeNoThread,
		DetachedRatio:  1.5,
	}
}

// seedReportData builds one account with an All Mail mirror and two labels,
// plus messages covering every report: a message labelled twice (duplicate),
// one only in All Mail (unlabelled), and a detached original/copy pair.
func seedReportData(t *testing.T, pool *pgxpool.Pool) (accountID int64, folderIDs map[string]int64) {
	t.Helper()
	ctx := context.Background()

	account := &models.Account{
		DisplayName: "Test Account",
		Host:        "imap.example.com",
		Port:        993,
		Username:    "user@example.com",
		AuthMode:    "password",
		UseTLS:      true,
	}
	require.NoError(t, db.UpsertAccount(ctx, pool, account))

	folderIDs = make(map[string]int64)
	for _, name := range []string{"[Gmail]/All Mail", "INBOX", "Work"} {
		folder := &models.Folder{AccountID: account.ID, Name: name, UIDValidity: 1}
		require.NoError(t, db.UpsertFolder(ctx, pool, folder))
		folderIDs[name] = folder.ID
	}

	labelledDate := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	lonelyDate := time.Date(2024, 3, 2, 12, 0, 0, 0, time.UTC)
	reportDate := time.Date(2024, 3, 3, 12, 0, 0, 0, time.UTC)

	labelled := func(folderID, uid int64) *models.Message {
		return &models.Message{
			FolderID:  folderID,
			UID:       uid,
			MessageID: "<labelled@example.com>",
			FromAddr:  strPtr("Alice <alice@example.com>"),
			Subject:   strPtr("Labelled twice"),
			Date:      timePtr(labelledDate),
			SizeBytes: 2000,
		}
	}

	messages := []*models.Message{
		labelled(folderIDs["[Gmail]/All Mail"], 1),
		labelled(folderIDs["INBOX"], 11),
		labelled(folderIDs["Work"], 21),
		{
			FolderID:  folderIDs["[Gmail]/All Mail"],
			UID:       2,
			MessageID: "<lonely@example.com>",
			FromAddr:  strPtr("Bob <bob@example.com>"),
			Subject:   strPtr("Only in All Mail"),
			Date:      timePtr(lonelyDate),
			SizeBytes: 50000,
		},
		// A detach replacement keeps the original's Message-ID, so the
		// surviving original and the stripped copy share one.
		{
			FolderID:        folderIDs["INBOX"],
			UID:             13,
			MessageID:       "<report@example.com>",
			FromAddr:        strPtr("Boss <boss@example.com>"),
			Subject:         strPtr("Quarterly report"),
			Date:            timePtr(reportDate),
			SizeBytes:       90000,
			HasAttachment:   true,
			AttachmentNames: []string{"report.pdf"},
		},
		{
			FolderID:  folderIDs["INBOX"],
			UID:       14,
			MessageID: "<report@example.com>",
			FromAddr:  strPtr("Boss <boss@example.com>"),
			Subject:   strPtr("Quarterly report"),
			Date:      timePtr(reportDate),
			SizeBytes: 3000,
		},
	}
	require.NoError(t, db.BatchUpsertMessages(ctx, pool, messages))

	for _, folderID := range folderIDs {
		require.NoError(t, db.UpdateFolderStats(ctx, pool, folderID))
	}

	return account.ID, folderIDs
}
