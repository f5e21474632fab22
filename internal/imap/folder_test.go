package imap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jitrc/MailSweep/internal/testutil"
)

func TestListFolders(t *testing.T) {
	t.Run("returns error for nil client", func(t *testing.T) {
		_, err := ListFolders(nil)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "client is nil")
	})

	t.Run("lists folders sorted by name", func(t *testing.T) {
		server := testutil.NewTestIMAPServer(t)
		t.Cleanup(server.Close)
		server.CreateFolder(t, "Work")
		server.CreateFolder(t, "Archive")

		c, cleanup := server.Connect(t)
		t.Cleanup(cleanup)

		folders, err := ListFolders(c)
		require.NoError(t, err)
		assert.Equal(t, []string{"Archive", "INBOX", "Work"}, folders)
	})
}

func TestSelectFolder(t *testing.T) {
	server := testutil.NewTestIMAPServer(t)
	t.Cleanup(server.Close)

	c, cleanup := server.Connect(t)
	t.Cleanup(cleanup)

	t.Run("returns status with UIDVALIDITY", func(t *testing.T) {
		status, err := SelectFolder(c, "INBOX", true)
		require.NoError(t, err)
		assert.Equal(t, "INBOX", status.Name)
		assert.NotZero(t, status.UidValidity)
	})

	t.Run("errors on unknown folder", func(t *testing.T) {
		_, err := SelectFolder(c, "NoSuchFolder", true)
		assert.Error(t, err)
	})

	t.Run("errors on nil client", func(t *testing.T) {
		_, err := SelectFolder(nil, "INBOX", true)
		assert.Error(t, err)
	})
}

func TestFindTrashFolder(t *testing.T) {
	tests := []struct {
		name     string
		folders  []string
		override string
		want     string
	}{
		{
			name:     "override wins",
			folders:  []string{"INBOX", "Trash"},
			override: "Custom/Bin",
			want:     "Custom/Bin",
		},
		{
			name:    "gmail trash",
			folders: []string{"INBOX", "[Gmail]/All Mail", "[Gmail]/Trash"},
			want:    "[Gmail]/Trash",
		},
		{
			name:    "plain trash case-insensitive",
			folders: []string{"INBOX", "TRASH"},
			want:    "TRASH",
		},
		{
			name:    "outlook deleted items",
			folders: []string{"INBOX", "Deleted Items"},
			want:    "Deleted Items",
		},
		{
			name:    "gmail trash preferred over plain",
			folders: []string{"Trash", "[Gmail]/Trash"},
			want:    "[Gmail]/Trash",
		},
		{
			name:    "no match",
			folders: []string{"INBOX", "Archive"},
			want:    "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FindTrashFolder(tt.folders, tt.override))
		})
	}
}
