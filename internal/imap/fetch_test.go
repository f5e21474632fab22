package imap

import (
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-imap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jitrc/MailSweep/internal/testutil"
)

func TestFetchMetadata(t *testing.T) {
	t.Run("returns error for nil client", func(t *testing.T) {
		_, err := FetchMetadata(nil, []uint32{1}, false)
		assert.Error(t, err)
	})

	t.Run("empty uid list is a no-op", func(t *testing.T) {
		server := testutil.NewTestIMAPServer(t)
		t.Cleanup(server.Close)
		c, cleanup := server.Connect(t)
		t.Cleanup(cleanup)

		messages, err := FetchMetadata(c, nil, false)
		require.NoError(t, err)
		assert.Empty(t, messages)
	})

	t.Run("fetches envelope, size, and flags", func(t *testing.T) {
		server := testutil.NewTestIMAPServer(t)
		t.Cleanup(server.Close)

		sentAt := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
		uid1 := server.AddMessage(t, "INBOX", "<f1@example.com>", "Quarterly report", "alice@x.com", "bob@x.com", sentAt)
		uid2 := server.AddMessage(t, "INBOX", "<f2@example.com>", "Re: Quarterly report", "bob@x.com", "alice@x.com", sentAt.Add(time.Hour))

		c, cleanup := server.Connect(t)
		t.Cleanup(cleanup)
		_, err := SelectFolder(c, "INBOX", true)
		require.NoError(t, err)

		messages, err := FetchMetadata(c, []uint32{uid1, uid2}, false)
		require.NoError(t, err)
		require.Len(t, messages, 2)

		bySubject := make(map[string]*imap.Message)
		for _, msg := range messages {
			require.NotNil(t, msg.Envelope)
			bySubject[msg.Envelope.Subject] = msg
		}

		first := bySubject["Quarterly report"]
		require.NotNil(t, first, "first message not fetched")
		assert.Equal(t, uid1, first.Uid)
		assert.Equal(t, "<f1@example.com>", first.Envelope.MessageId)
		assert.NotZero(t, first.Size)
		assert.Contains(t, first.Flags, imap.SeenFlag)

		second := bySubject["Re: Quarterly report"]
		require.NotNil(t, second, "second message not fetched")
		assert.Equal(t, uid2, second.Uid)
	})
}

func TestFetchRawMessage(t *testing.T) {
	server := testutil.NewTestIMAPServer(t)
	t.Cleanup(server.Close)

	raw := strings.Join([]string{
		"From: alice@example.com",
		"To: bob@example.com",
		"Subject: Raw fetch",
		"Message-ID: <raw-1@example.com>",
		"",
		"The full body comes back byte for byte.",
		"",
	}, "\r\n")
	internalDate := time.Date(2024, 3, 2, 9, 30, 0, 0, time.UTC)
	uid := server.AppendRaw(t, "INBOX", raw, []string{imap.SeenFlag}, internalDate)

	c, cleanup := server.Connect(t)
	t.Cleanup(cleanup)
	_, err := SelectFolder(c, "INBOX", false)
	require.NoError(t, err)

	got, flags, gotDate, err := FetchRawMessage(c, uid)
	require.NoError(t, err)

	assert.Contains(t, string(got), "Subject: Raw fetch")
	assert.Contains(t, string(got), "The full body comes back byte for byte.")
	assert.Contains(t, flags, imap.SeenFlag)
	assert.WithinDuration(t, internalDate, gotDate, time.Minute)

	t.Run("errors on unknown uid", func(t *testing.T) {
		_, _, _, err := FetchRawMessage(c, 99999)
		assert.Error(t, err)
	})
}
