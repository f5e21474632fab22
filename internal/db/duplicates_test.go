package db

import (
	"context"
	"testing"

	"github.com/jitrc/MailSweep/internal/models"
	"github.com/jitrc/MailSweep/internal/testutil"
	"github.com/stretchr/testify/assert"
)

func TestFindCrossLabelDuplicates(t *testing.T) {
	pool := testutil.NewTestDB(t)
	defer pool.Close()

	ctx := context.Background()

	account := seedAccount(t, ctx, pool)
	inbox := seedFolder(t, ctx, pool, account.ID, "INBOX")
	work := seedFolder(t, ctx, pool, account.ID, "Work")
	archive := seedFolder(t, ctx, pool, account.ID, "Archive")
	allMail := seedFolder(t, ctx, pool, account.ID, "[Gmail]/All Mail")

	d1 := testDate(1)
	d2 := testDate(2)

	seedMessages(t, ctx, pool,
		// Message-ID group across two folders, sizes differ slightly.
		&models.Message{FolderID: inbox.ID, UID: 1, MessageID: "<dup@x.com>", SizeBytes: 100},
		&models.Message{FolderID: work.ID, UID: 1, MessageID: "<dup@x.com>", SizeBytes: 120},
		// Identity-tuple group across three folders.
		&models.Message{FolderID: inbox.ID, UID: 2, FromAddr: strPtr("eve@x.com"), Subject: strPtr("Pics"), Date: timePtr(d1), SizeBytes: 500},
		&models.Message{FolderID: work.ID, UID: 2, FromAddr: strPtr("eve@x.com"), Subject: strPtr("Pics"), Date: timePtr(d1), SizeBytes: 500},
		&models.Message{FolderID: archive.ID, UID: 1, FromAddr: strPtr("eve@x.com"), Subject: strPtr("Pics"), Date: timePtr(d1), SizeBytes: 500},
		// Tuple group whose from and subject are absent on both copies.
		&models.Message{FolderID: inbox.ID, UID: 3, Date: timePtr(d2), SizeBytes: 300},
		&models.Message{FolderID: work.ID, UID: 3, Date: timePtr(d2), SizeBytes: 300},
		// Two copies inside one folder are not cross-label duplicates.
		&models.Message{FolderID: inbox.ID, UID: 4, MessageID: "<same@x.com>", SizeBytes: 50},
		&models.Message{FolderID: inbox.ID, UID: 5, MessageID: "<same@x.com>", SizeBytes: 50},
		// Second copy lives only in a skipped folder.
		&models.Message{FolderID: inbox.ID, UID: 6, MessageID: "<skip@x.com>", SizeBytes: 70},
		&models.Message{FolderID: allMail.ID, UID: 1, MessageID: "<skip@x.com>", SizeBytes: 70},
	)

	report, err := FindCrossLabelDuplicates(ctx, pool, account.ID, []int64{allMail.ID})
	assert.NoError(t, err)
	assert.Len(t, report.Messages, 7)
	assert.Equal(t, 3, report.GroupCount)
	// 120 + 2*500 + 300 reclaimable beyond the smallest copy of each group.
	assert.Equal(t, int64(120+1000+300), report.DuplicateBytes)

	for _, m := range report.Messages {
		if m.MessageID == "<dup@x.com>" {
			assert.Equal(t, "2 labels", m.Tag)
		}
		if m.Subject != nil && *m.Subject == "Pics" {
			assert.Equal(t, "3 labels", m.Tag)
		}
	}

	// Without the skip list the All Mail copy makes a fourth group.
	report, err = FindCrossLabelDuplicates(ctx, pool, account.ID, nil)
	assert.NoError(t, err)
	assert.Equal(t, 4, report.GroupCount)
	assert.Equal(t, int64(120+1000+300+70), report.DuplicateBytes)
}

func TestFindDetachedOriginals(t *testing.T) {
	pool := testutil.NewTestDB(t)
	defer pool.Close()

	ctx := context.Background()

	account := seedAccount(t, ctx, pool)
	inbox := seedFolder(t, ctx, pool, account.ID, "INBOX")
	allMail := seedFolder(t, ctx, pool, account.ID, "[Gmail]/All Mail")

	d1 := testDate(1)
	d2 := testDate(2)
	d3 := testDate(3)
	d4 := testDate(4)

	seedMessages(t, ctx, pool,
		// A detached pair: the original is 1.6x the stripped copy.
		&models.Message{FolderID: inbox.ID, UID: 1, FromAddr: strPtr("alice@x.com"), Subject: strPtr("Report"), Date: timePtr(d1), SizeBytes: 1000},
		&models.Message{FolderID: inbox.ID, UID: 2, FromAddr: strPtr("alice@x.com"), Subject: strPtr("Report"), Date: timePtr(d1), SizeBytes: 1600, HasAttachment: true},
		// Exactly at the ratio is not enough.
		&models.Message{FolderID: inbox.ID, UID: 3, FromAddr: strPtr("bob@x.com"), Subject: strPtr("Slides"), Date: timePtr(d2), SizeBytes: 1000},
		&models.Message{FolderID: inbox.ID, UID: 4, FromAddr: strPtr("bob@x.com"), Subject: strPtr("Slides"), Date: timePtr(d2), SizeBytes: 1500},
		// Pairs inside Gmail's virtual folders are ignored.
		&models.Message{FolderID: allMail.ID, UID: 1, FromAddr: strPtr("carol@x.com"), Subject: strPtr("Video"), Date: timePtr(d3), SizeBytes: 1000},
		&models.Message{FolderID: allMail.ID, UID: 2, FromAddr: strPtr("carol@x.com"), Subject: strPtr("Video"), Date: timePtr(d3), SizeBytes: 2000},
		// A missing subject never matches; pairing needs all three fields.
		&models.Message{FolderID: inbox.ID, UID: 5, FromAddr: strPtr("dave@x.com"), Date: timePtr(d4), SizeBytes: 1000},
		&models.Message{FolderID: inbox.ID, UID: 6, FromAddr: strPtr("dave@x.com"), Date: timePtr(d4), SizeBytes: 2000},
	)

	report, err := FindDetachedOriginals(ctx, pool, account.ID, 1.5)
	assert.NoError(t, err)
	assert.Len(t, report.Messages, 2)
	assert.Equal(t, 1, report.OriginalCount)
	assert.Equal(t, int64(1600), report.OriginalBytes)

	for _, m := range report.Messages {
		switch m.UID {
		case 1:
			assert.Equal(t, "Detached Copy", m.Tag)
		case 2:
			assert.Equal(t, "Original", m.Tag)
		default:
			t.Errorf("unexpected message uid %d in report", m.UID)
		}
	}
}
