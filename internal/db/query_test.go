package db

import (
	"context"
	"testing"

	"github.com/jitrc/MailSweep/internal/models"
	"github.com/jitrc/MailSweep/internal/testutil"
	"github.com/stretchr/testify/assert"
)

func TestQueryMessages(t *testing.T) {
	pool := testutil.NewTestDB(t)
	defer pool.Close()

	ctx := context.Background()

	account := seedAccount(t, ctx, pool)
	inbox := seedFolder(t, ctx, pool, account.ID, "INBOX")
	archive := seedFolder(t, ctx, pool, account.ID, "Archive")

	hasAttachment := true
	seedMessages(t, ctx, pool,
		&models.Message{FolderID: inbox.ID, UID: 1, FromAddr: strPtr("Alice <alice@example.com>"), ToAddr: strPtr("bob@example.com"), Subject: strPtr("Quarterly report"), Date: timePtr(testDate(1)), SizeBytes: 5000, HasAttachment: true},
		&models.Message{FolderID: inbox.ID, UID: 2, FromAddr: strPtr("carol@example.com"), ToAddr: strPtr("bob@example.com"), Subject: strPtr("Lunch?"), Date: timePtr(testDate(10)), SizeBytes: 300},
		&models.Message{FolderID: archive.ID, UID: 1, FromAddr: strPtr("alice@example.com"), Subject: strPtr("Old report"), Date: timePtr(testDate(20)), SizeBytes: 1200},
	)

	tests := []struct {
		name     string
		filter   MessageFilter
		wantUIDs map[string][]int64
	}{
		{
			name:     "no filter orders by size descending",
			filter:   MessageFilter{},
			wantUIDs: map[string][]int64{"INBOX": {1, 2}, "Archive": {1}},
		},
		{
			name:     "folder filter",
			filter:   MessageFilter{FolderIDs: []int64{archive.ID}},
			wantUIDs: map[string][]int64{"Archive": {1}},
		},
		{
			name:     "from is case-insensitive substring",
			filter:   MessageFilter{From: "ALICE"},
			wantUIDs: map[string][]int64{"INBOX": {1}, "Archive": {1}},
		},
		{
			name:     "subject substring",
			filter:   MessageFilter{Subject: "report"},
			wantUIDs: map[string][]int64{"INBOX": {1}, "Archive": {1}},
		},
		{
			name:     "size range",
			filter:   MessageFilter{SizeMin: 1000, SizeMax: 2000},
			wantUIDs: map[string][]int64{"Archive": {1}},
		},
		{
			name:     "date range",
			filter:   MessageFilter{DateFrom: testDate(5), DateTo: testDate(15)},
			wantUIDs: map[string][]int64{"INBOX": {2}},
		},
		{
			name:     "attachment flag",
			filter:   MessageFilter{HasAttachment: &hasAttachment},
			wantUIDs: map[string][]int64{"INBOX": {1}},
		},
		{
			name:     "combined filters",
			filter:   MessageFilter{From: "alice", SizeMin: 2000},
			wantUIDs: map[string][]int64{"INBOX": {1}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			messages, err := QueryMessages(ctx, pool, tt.filter)
			assert.NoError(t, err)

			got := make(map[string][]int64)
			for _, m := range messages {
				got[m.FolderName] = append(got[m.FolderName], m.UID)
			}
			want := 0
			for folder, uids := range tt.wantUIDs {
				assert.ElementsMatch(t, uids, got[folder], "folder %s", folder)
				want += len(uids)
			}
			assert.Len(t, messages, want)
		})
	}
}

func TestQueryMessagesOrderAndLimit(t *testing.T) {
	pool := testutil.NewTestDB(t)
	defer pool.Close()

	ctx := context.Background()

	account := seedAccount(t, ctx, pool)
	folder := seedFolder(t, ctx, pool, account.ID, "INBOX")
	seedMessages(t, ctx, pool,
		&models.Message{FolderID: folder.ID, UID: 1, Date: timePtr(testDate(3)), SizeBytes: 300},
		&models.Message{FolderID: folder.ID, UID: 2, Date: timePtr(testDate(1)), SizeBytes: 100},
		&models.Message{FolderID: folder.ID, UID: 3, Date: timePtr(testDate(2)), SizeBytes: 200},
	)

	messages, err := QueryMessages(ctx, pool, MessageFilter{OrderBy: "date ASC"})
	assert.NoError(t, err)
	assert.Equal(t, []int64{2, 3, 1}, []int64{messages[0].UID, messages[1].UID, messages[2].UID})

	// Unknown order clauses fall back to size descending.
	messages, err = QueryMessages(ctx, pool, MessageFilter{OrderBy: "uid; DROP TABLE messages"})
	assert.NoError(t, err)
	assert.Equal(t, []int64{1, 3, 2}, []int64{messages[0].UID, messages[1].UID, messages[2].UID})

	messages, err = QueryMessages(ctx, pool, MessageFilter{Limit: 2})
	assert.NoError(t, err)
	assert.Len(t, messages, 2)
}
