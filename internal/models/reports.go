package models

import "time"

// TaggedMessage is a message joined with its folder name plus a short
// classifier tag ("Original", "Detached Copy", "3 labels").
type TaggedMessage struct {
	Message
	FolderName string `json:"folder_name"`
	Tag        string `json:"tag,omitempty"`
}

// DuplicateReport is the result of a cross-label duplicate search.
// DuplicateBytes counts every copy except the smallest one per group,
// i.e. the bytes that would be reclaimed by keeping one copy of each.
type DuplicateReport struct {
	Messages       []TaggedMessage `json:"messages"`
	GroupCount     int             `json:"group_count"`
	DuplicateBytes int64           `json:"duplicate_bytes"`
}

// DetachedReport pairs originals that still carry their attachments
// with the smaller stripped copies left behind by a detach operation.
type DetachedReport struct {
	Messages      []TaggedMessage `json:"messages"`
	OriginalCount int             `json:"original_count"`
	OriginalBytes int64           `json:"original_bytes"`
}

// FolderSummary is one row of the per-folder overview.
type FolderSummary struct {
	FolderID       int64      `json:"folder_id"`
	Name           string     `json:"name"`
	MessageCount   int        `json:"message_count"`
	TotalSizeBytes int64      `json:"total_size_bytes"`
	OldestDate     *time.Time `json:"oldest_date"`
	NewestDate     *time.Time `json:"newest_date"`
}

// AddrSummary aggregates messages per extracted email address. Display
// holds one raw header variant ("Alice <a@b.com>") for presentation.
type AddrSummary struct {
	Email          string  `json:"email"`
	Display        *string `json:"display"`
	MessageCount   int     `json:"message_count"`
	TotalSizeBytes int64   `json:"total_size_bytes"`
}

// CrossFolderSender is a sender whose mail is spread across several
// folders, a hint for misfiled messages.
type CrossFolderSender struct {
	Email        string `json:"email"`
	FolderCount  int    `json:"folder_count"`
	FolderCounts string `json:"folder_counts"`
	TotalCount   int    `json:"total_count"`
}
