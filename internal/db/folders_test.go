package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jitrc/MailSweep/internal/models"
	"github.com/jitrc/MailSweep/internal/testutil"
	"github.com/stretchr/testify/assert"
)

func TestUpsertFolder(t *testing.T) {
	pool := testutil.NewTestDB(t)
	defer pool.Close()

	ctx := context.Background()

	account := seedAccount(t, ctx, pool)

	folder := &models.Folder{
		AccountID:   account.ID,
		Name:        "INBOX",
		UIDValidity: 42,
	}
	err := UpsertFolder(ctx, pool, folder)
	assert.NoError(t, err)
	assert.NotZero(t, folder.ID)

	// Same account+name updates instead of inserting.
	firstID := folder.ID
	folder.UIDValidity = 43
	err = UpsertFolder(ctx, pool, folder)
	assert.NoError(t, err)
	assert.Equal(t, firstID, folder.ID)

	retrieved, err := GetFolderByName(ctx, pool, account.ID, "INBOX")
	assert.NoError(t, err)
	assert.Equal(t, int64(43), retrieved.UIDValidity)

	_, err = GetFolderByName(ctx, pool, account.ID, "Missing")
	assert.True(t, errors.Is(err, ErrFolderNotFound))
}

func TestGetFoldersByAccountOrder(t *testing.T) {
	pool := testutil.NewTestDB(t)
	defer pool.Close()

	ctx := context.Background()

	account := seedAccount(t, ctx, pool)
	small := seedFolder(t, ctx, pool, account.ID, "Small")
	big := seedFolder(t, ctx, pool, account.ID, "Big")

	seedMessages(t, ctx, pool,
		&models.Message{FolderID: small.ID, UID: 1, SizeBytes: 10},
		&models.Message{FolderID: big.ID, UID: 1, SizeBytes: 5000},
	)
	assert.NoError(t, UpdateFolderStats(ctx, pool, small.ID))
	assert.NoError(t, UpdateFolderStats(ctx, pool, big.ID))

	folders, err := GetFoldersByAccount(ctx, pool, account.ID)
	assert.NoError(t, err)
	assert.Len(t, folders, 2)
	// Largest folder first.
	assert.Equal(t, "Big", folders[0].Name)
	assert.Equal(t, int64(5000), folders[0].TotalSizeBytes)
	assert.Equal(t, 1, folders[0].MessageCount)
}

func TestFindAllMailFolder(t *testing.T) {
	pool := testutil.NewTestDB(t)
	defer pool.Close()

	ctx := context.Background()

	account := seedAccount(t, ctx, pool)
	seedFolder(t, ctx, pool, account.ID, "INBOX")

	// Not a Gmail account yet.
	_, err := FindAllMailFolder(ctx, pool, account.ID)
	assert.True(t, errors.Is(err, ErrFolderNotFound))

	// Matching is case-insensitive.
	allMail := seedFolder(t, ctx, pool, account.ID, "[Gmail]/All Mail")
	found, err := FindAllMailFolder(ctx, pool, account.ID)
	assert.NoError(t, err)
	assert.Equal(t, allMail.ID, found.ID)
}

func TestInvalidateFolder(t *testing.T) {
	pool := testutil.NewTestDB(t)
	defer pool.Close()

	ctx := context.Background()

	account := seedAccount(t, ctx, pool)
	folder := seedFolder(t, ctx, pool, account.ID, "INBOX")
	seedMessages(t, ctx, pool,
		&models.Message{FolderID: folder.ID, UID: 1, SizeBytes: 100},
		&models.Message{FolderID: folder.ID, UID: 2, SizeBytes: 200},
	)
	assert.NoError(t, UpdateFolderStats(ctx, pool, folder.ID))

	err := InvalidateFolder(ctx, pool, folder.ID)
	assert.NoError(t, err)

	uids, err := GetCachedUIDs(ctx, pool, folder.ID)
	assert.NoError(t, err)
	assert.Empty(t, uids)

	retrieved, err := GetFolderByID(ctx, pool, folder.ID)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), retrieved.UIDValidity)
	assert.Equal(t, 0, retrieved.MessageCount)
	assert.Equal(t, int64(0), retrieved.TotalSizeBytes)
	assert.Nil(t, retrieved.LastScannedAt)
}

func TestUpdateFolderStats(t *testing.T) {
	pool := testutil.NewTestDB(t)
	defer pool.Close()

	ctx := context.Background()

	account := seedAccount(t, ctx, pool)
	folder := seedFolder(t, ctx, pool, account.ID, "INBOX")
	seedMessages(t, ctx, pool,
		&models.Message{FolderID: folder.ID, UID: 1, SizeBytes: 100},
		&models.Message{FolderID: folder.ID, UID: 2, SizeBytes: 250},
	)

	err := UpdateFolderStats(ctx, pool, folder.ID)
	assert.NoError(t, err)

	retrieved, err := GetFolderByID(ctx, pool, folder.ID)
	assert.NoError(t, err)
	assert.Equal(t, 2, retrieved.MessageCount)
	assert.Equal(t, int64(350), retrieved.TotalSizeBytes)

	// Stats follow deletions back down.
	assert.NoError(t, DeleteMessagesByUID(ctx, pool, folder.ID, []int64{1, 2}))
	assert.NoError(t, UpdateFolderStats(ctx, pool, folder.ID))

	retrieved, err = GetFolderByID(ctx, pool, folder.ID)
	assert.NoError(t, err)
	assert.Equal(t, 0, retrieved.MessageCount)
	assert.Equal(t, int64(0), retrieved.TotalSizeBytes)
}
