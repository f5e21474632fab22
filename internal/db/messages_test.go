package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jitrc/MailSweep/internal/models"
	"github.com/jitrc/MailSweep/internal/testutil"
	"github.com/stretchr/testify/assert"
)

func TestBatchUpsertMessages(t *testing.T) {
	pool := testutil.NewTestDB(t)
	defer pool.Close()

	ctx := context.Background()

	account := seedAccount(t, ctx, pool)
	folder := seedFolder(t, ctx, pool, account.ID, "INBOX")

	date := testDate(1)
	messages := []*models.Message{
		{
			FolderID:        folder.ID,
			UID:             100,
			MessageID:       "<a@example.com>",
			FromAddr:        strPtr("Alice <alice@example.com>"),
			ToAddr:          strPtr("Bob <bob@example.com>"),
			Subject:         strPtr("Hello"),
			Date:            timePtr(date),
			SizeBytes:       2048,
			HasAttachment:   true,
			AttachmentNames: []string{"report.pdf"},
			Flags:           []string{"\\Seen"},
		},
		{
			FolderID:  folder.ID,
			UID:       101,
			SizeBytes: 512,
		},
	}

	err := BatchUpsertMessages(ctx, pool, messages)
	assert.NoError(t, err)

	uids, err := GetCachedUIDs(ctx, pool, folder.ID)
	assert.NoError(t, err)
	assert.Len(t, uids, 2)
	_, ok := uids[100]
	assert.True(t, ok)

	// Re-upserting the same UID updates instead of duplicating.
	messages[0].Subject = strPtr("Hello again")
	messages[0].Flags = []string{"\\Seen", "\\Flagged"}
	err = BatchUpsertMessages(ctx, pool, messages[:1])
	assert.NoError(t, err)

	uids, err = GetCachedUIDs(ctx, pool, folder.ID)
	assert.NoError(t, err)
	assert.Len(t, uids, 2)

	copies, err := GetMessageCopies(ctx, pool, messages[0])
	assert.NoError(t, err)
	assert.Len(t, copies, 1)
	assert.Equal(t, "Hello again", *copies[0].Subject)
	assert.Equal(t, []string{"\\Seen", "\\Flagged"}, copies[0].Flags)
	assert.Equal(t, "INBOX", copies[0].FolderName)
	assert.True(t, copies[0].Date.Equal(date))

	// Headerless message survives with nil fields intact.
	bare, err := GetMessageByID(ctx, pool, copies[0].ID)
	assert.NoError(t, err)
	assert.NotNil(t, bare)

	emptyBatch := BatchUpsertMessages(ctx, pool, nil)
	assert.NoError(t, emptyBatch)
}

func TestDeleteMessagesByUID(t *testing.T) {
	pool := testutil.NewTestDB(t)
	defer pool.Close()

	ctx := context.Background()

	account := seedAccount(t, ctx, pool)
	folder := seedFolder(t, ctx, pool, account.ID, "INBOX")
	other := seedFolder(t, ctx, pool, account.ID, "Archive")

	seedMessages(t, ctx, pool,
		&models.Message{FolderID: folder.ID, UID: 1, SizeBytes: 10},
		&models.Message{FolderID: folder.ID, UID: 2, SizeBytes: 20},
		&models.Message{FolderID: folder.ID, UID: 3, SizeBytes: 30},
		&models.Message{FolderID: other.ID, UID: 1, SizeBytes: 40},
	)

	err := DeleteMessagesByUID(ctx, pool, folder.ID, []int64{1, 3})
	assert.NoError(t, err)

	uids, err := GetCachedUIDs(ctx, pool, folder.ID)
	assert.NoError(t, err)
	assert.Len(t, uids, 1)
	_, ok := uids[2]
	assert.True(t, ok)

	// Deletes are scoped to the folder.
	otherUIDs, err := GetCachedUIDs(ctx, pool, other.ID)
	assert.NoError(t, err)
	assert.Len(t, otherUIDs, 1)

	// Empty UID list is a no-op.
	assert.NoError(t, DeleteMessagesByUID(ctx, pool, folder.ID, nil))
}

func TestGetMessagesByUIDs(t *testing.T) {
	pool := testutil.NewTestDB(t)
	defer pool.Close()

	ctx := context.Background()

	account := seedAccount(t, ctx, pool)
	folder := seedFolder(t, ctx, pool, account.ID, "INBOX")
	other := seedFolder(t, ctx, pool, account.ID, "Archive")

	seedMessages(t, ctx, pool,
		&models.Message{FolderID: folder.ID, UID: 5, Subject: strPtr("five"), SizeBytes: 10},
		&models.Message{FolderID: folder.ID, UID: 7, Subject: strPtr("seven"), SizeBytes: 20},
		&models.Message{FolderID: other.ID, UID: 5, Subject: strPtr("elsewhere"), SizeBytes: 30},
	)

	messages, err := GetMessagesByUIDs(ctx, pool, folder.ID, []int64{7, 5, 999})
	assert.NoError(t, err)
	assert.Len(t, messages, 2)
	assert.Equal(t, int64(5), messages[0].UID)
	assert.Equal(t, "INBOX", messages[0].FolderName)
	assert.Equal(t, int64(7), messages[1].UID)

	messages, err = GetMessagesByUIDs(ctx, pool, folder.ID, nil)
	assert.NoError(t, err)
	assert.Empty(t, messages)
}

func TestGetMessageByIDNotFound(t *testing.T) {
	pool := testutil.NewTestDB(t)
	defer pool.Close()

	ctx := context.Background()

	_, err := GetMessageByID(ctx, pool, 99999)
	assert.Error(t, err)
	assert.True(t, errors.Is(err, ErrMessageNotFound))
}

func TestGetMessageCopiesByTuple(t *testing.T) {
	pool := testutil.NewTestDB(t)
	defer pool.Close()

	ctx := context.Background()

	account := seedAccount(t, ctx, pool)
	inbox := seedFolder(t, ctx, pool, account.ID, "INBOX")
	archive := seedFolder(t, ctx, pool, account.ID, "Archive")

	date := testDate(2)

	// Two copies without Message-ID sharing the identity tuple, plus one
	// near miss whose subject is absent rather than equal.
	seedMessages(t, ctx, pool,
		&models.Message{FolderID: inbox.ID, UID: 1, FromAddr: strPtr("a@x.com"), Subject: strPtr("Hi"), Date: timePtr(date), SizeBytes: 100},
		&models.Message{FolderID: archive.ID, UID: 1, FromAddr: strPtr("a@x.com"), Subject: strPtr("Hi"), Date: timePtr(date), SizeBytes: 100},
		&models.Message{FolderID: archive.ID, UID: 2, FromAddr: strPtr("a@x.com"), Date: timePtr(date), SizeBytes: 100},
	)

	probe := &models.Message{FromAddr: strPtr("a@x.com"), Subject: strPtr("Hi"), Date: timePtr(date), SizeBytes: 100}
	copies, err := GetMessageCopies(ctx, pool, probe)
	assert.NoError(t, err)
	assert.Len(t, copies, 2)

	// A missing subject matches only another missing subject.
	probe.Subject = nil
	copies, err = GetMessageCopies(ctx, pool, probe)
	assert.NoError(t, err)
	assert.Len(t, copies, 1)
	assert.Equal(t, int64(2), copies[0].UID)
}

func TestGetFoldersForMessage(t *testing.T) {
	pool := testutil.NewTestDB(t)
	defer pool.Close()

	ctx := context.Background()

	account := seedAccount(t, ctx, pool)
	inbox := seedFolder(t, ctx, pool, account.ID, "INBOX")
	work := seedFolder(t, ctx, pool, account.ID, "Work")
	archive := seedFolder(t, ctx, pool, account.ID, "Archive")

	seedMessages(t, ctx, pool,
		&models.Message{FolderID: inbox.ID, UID: 1, MessageID: "<m1@x.com>", ThreadID: 77, SizeBytes: 10},
		&models.Message{FolderID: work.ID, UID: 1, MessageID: "<m1@x.com>", ThreadID: 77, SizeBytes: 10},
		&models.Message{FolderID: archive.ID, UID: 1, MessageID: "<m2@x.com>", ThreadID: 77, SizeBytes: 20},
	)

	probe := &models.Message{MessageID: "<m1@x.com>", ThreadID: 77}

	names, err := GetFoldersForMessage(ctx, pool, probe, false)
	assert.NoError(t, err)
	assert.Equal(t, []string{"INBOX", "Work"}, names)

	// Thread mode pulls in folders holding any message of the thread.
	names, err = GetFoldersForMessage(ctx, pool, probe, true)
	assert.NoError(t, err)
	assert.Equal(t, []string{"Archive", "INBOX", "Work"}, names)
}
