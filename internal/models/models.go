package models

import "time"

// Account is an IMAP account whose folders are mirrored locally.
// Credentials are not persisted; they come from the environment.
type Account struct {
	ID          int64     `json:"id"`
	DisplayName string    `json:"display_name"`
	Host        string    `json:"host"`
	Port        int       `json:"port"`
	Username    string    `json:"username"`
	AuthMode    string    `json:"auth_mode"`
	UseTLS      bool      `json:"use_tls"`
	CreatedAt   time.Time `json:"created_at"`
}

// Folder is a mirrored IMAP folder. UIDValidity 0 means the folder has
// never been scanned or its cache was invalidated.
type Folder struct {
	ID             int64      `json:"id"`
	AccountID      int64      `json:"account_id"`
	Name           string     `json:"name"`
	UIDValidity    int64      `json:"uid_validity"`
	MessageCount   int        `json:"message_count"`
	TotalSizeBytes int64      `json:"total_size_bytes"`
	LastScannedAt  *time.Time `json:"last_scanned_at"`
}

// Message is the cached metadata for one message in one folder.
// FromAddr, ToAddr, Subject and Date are nil when the corresponding
// header was missing so that identity matching can distinguish "absent"
// from "empty". MessageID and InReplyTo use "" for missing instead;
// every equality join on them guards with != ''.
type Message struct {
	ID              int64      `json:"id"`
	FolderID        int64      `json:"folder_id"`
	UID             int64      `json:"uid"`
	MessageID       string     `json:"message_id"`
	InReplyTo       string     `json:"in_reply_to"`
	ThreadID        int64      `json:"thread_id"`
	FromAddr        *string    `json:"from_addr"`
	ToAddr          *string    `json:"to_addr"`
	Subject         *string    `json:"subject"`
	Date            *time.Time `json:"date"`
	SizeBytes       int64      `json:"size_bytes"`
	HasAttachment   bool       `json:"has_attachment"`
	AttachmentNames []string   `json:"attachment_names,omitempty"`
	Flags           []string   `json:"flags,omitempty"`
	CachedAt        time.Time  `json:"cached_at"`
}
