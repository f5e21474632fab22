package imap

import (
	"fmt"
	"sort"
	"strings"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
)

// ListFolders lists all folders on the IMAP server, sorted by name.
func ListFolders(c *client.Client) ([]string, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}

	mailboxes := make(chan *imap.MailboxInfo, 10)
	done := make(chan error, 1)

	go func() {
		done <- c.List("", "*", mailboxes)
	}()

	var folders []string
	for m := range mailboxes {
		folders = append(folders, m.Name)
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to list folders: %w", err)
	}

	sort.Strings(folders)
	return folders, nil
}

// SelectFolder selects a folder and returns its status, including the
// UIDVALIDITY value the scan engine compares against the cache.
func SelectFolder(c *client.Client, name string, readOnly bool) (*imap.MailboxStatus, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}

	status, err := c.Select(name, readOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to select folder %s: %w", name, err)
	}

	return status, nil
}

// FindTrashFolder guesses the server's trash folder from a folder listing.
// An explicit override wins; otherwise the usual provider names are tried
// case-insensitively. Returns "" when nothing matches.
func FindTrashFolder(folders []string, override string) string {
	if override != "" {
		return override
	}

	candidates := []string{"[gmail]/trash", "[google mail]/trash", "trash", "deleted items", "deleted messages"}
	for _, candidate := range candidates {
		for _, name := range folders {
			if strings.ToLower(name) == candidate {
				return name
			}
		}
	}

	return ""
}
