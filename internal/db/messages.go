package db

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jitrc/MailSweep/internal/models"
)

// ErrMessageNotFound is returned when a requested message cannot be found.
var ErrMessageNotFound = errors.New("message not found")

// taggedMessageColumns is the column list every query that returns messages
// with their folder name selects, in scanTaggedMessage order.
const taggedMessageColumns = `
	m.id, m.folder_id, m.uid, m.message_id, m.in_reply_to, m.thread_id,
	m.from_addr, m.to_addr, m.subject, m.date,
	m.size_bytes, m.has_attachment, m.attachment_names, m.flags, m.cached_at,
	f.name`

func scanTaggedMessage(rows pgx.Rows) (*models.TaggedMessage, error) {
	var msg models.TaggedMessage
	if err := rows.Scan(
		&msg.ID,
		&msg.FolderID,
		&msg.UID,
		&msg.MessageID,
		&msg.InReplyTo,
		&msg.ThreadID,
		&msg.FromAddr,
		&msg.ToAddr,
		&msg.Subject,
		&msg.Date,
		&msg.SizeBytes,
		&msg.HasAttachment,
		&msg.AttachmentNames,
		&msg.Flags,
		&msg.CachedAt,
		&msg.FolderName,
	); err != nil {
		return nil, err
	}
	return &msg, nil
}

func collectTaggedMessages(rows pgx.Rows) ([]models.TaggedMessage, error) {
	defer rows.Close()

	var messages []models.TaggedMessage
	for rows.Next() {
		msg, err := scanTaggedMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, *msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}

	return messages, nil
}

// BatchUpsertMessages saves a batch of messages in one transaction, keyed by
// (folder_id, uid). This is the scan worker's write path, so a batch is
// either fully persisted or not at all.
func BatchUpsertMessages(ctx context.Context, pool *pgxpool.Pool, messages []*models.Message) error {
	if len(messages) == 0 {
		return nil
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	stmt := `
		INSERT INTO messages (
			folder_id, uid, message_id, in_reply_to, thread_id,
			from_addr, to_addr, subject, date,
			size_bytes, has_attachment, attachment_names, flags, cached_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, now())
		ON CONFLICT (folder_id, uid) DO UPDATE SET
			message_id       = EXCLUDED.message_id,
			in_reply_to      = EXCLUDED.in_reply_to,
			thread_id        = EXCLUDED.thread_id,
			from_addr        = EXCLUDED.from_addr,
			to_addr          = EXCLUDED.to_addr,
			subject          = EXCLUDED.subject,
			date             = EXCLUDED.date,
			size_bytes       = EXCLUDED.size_bytes,
			has_attachment   = EXCLUDED.has_attachment,
			attachment_names = EXCLUDED.attachment_names,
			flags            = EXCLUDED.flags,
			cached_at        = EXCLUDED.cached_at
	`

	for _, m := range messages {
		attachmentNames := m.AttachmentNames
		if attachmentNames == nil {
			attachmentNames = []string{}
		}
		flags := m.Flags
		if flags == nil {
			flags = []string{}
		}

		if _, err := tx.Exec(ctx, stmt,
			m.FolderID,
			m.UID,
			m.MessageID,
			m.InReplyTo,
			m.ThreadID,
			m.FromAddr,
			m.ToAddr,
			m.Subject,
			m.Date,
			m.SizeBytes,
			m.HasAttachment,
			attachmentNames,
			flags,
		); err != nil {
			return fmt.Errorf("failed to upsert message uid %d: %w", m.UID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit message batch: %w", err)
	}

	return nil
}

// DeleteMessagesByUID removes cached messages the server no longer has.
func DeleteMessagesByUID(ctx context.Context, pool *pgxpool.Pool, folderID int64, uids []int64) error {
	if len(uids) == 0 {
		return nil
	}

	if _, err := pool.Exec(ctx, `
		DELETE FROM messages WHERE folder_id = $1 AND uid = ANY($2)
	`, folderID, uids); err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}

	return nil
}

// ReassignMessageFolder points cached messages at their new folder after a
// server-side move. The rows keep their source UIDs until the next scan of
// the destination folder replaces them.
func ReassignMessageFolder(ctx context.Context, pool *pgxpool.Pool, srcFolderID, dstFolderID int64, uids []int64) error {
	if len(uids) == 0 {
		return nil
	}

	if _, err := pool.Exec(ctx, `
		UPDATE messages SET folder_id = $1 WHERE folder_id = $2 AND uid = ANY($3)
	`, dstFolderID, srcFolderID, uids); err != nil {
		return fmt.Errorf("failed to reassign messages: %w", err)
	}

	return nil
}

// GetCachedUIDs returns the set of UIDs cached for a folder.
func GetCachedUIDs(ctx context.Context, pool *pgxpool.Pool, folderID int64) (map[int64]struct{}, error) {
	rows, err := pool.Query(ctx, `SELECT uid FROM messages WHERE folder_id = $1`, folderID)
	if err != nil {
		return nil, fmt.Errorf("failed to get cached UIDs: %w", err)
	}
	defer rows.Close()

	uids := make(map[int64]struct{})
	for rows.Next() {
		var uid int64
		if err := rows.Scan(&uid); err != nil {
			return nil, fmt.Errorf("failed to scan UID: %w", err)
		}
		uids[uid] = struct{}{}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating UIDs: %w", err)
	}

	return uids, nil
}

// GetMessageByID returns one cached message with its folder name.
func GetMessageByID(ctx context.Context, pool *pgxpool.Pool, messageID int64) (*models.TaggedMessage, error) {
	rows, err := pool.Query(ctx, `
		SELECT `+taggedMessageColumns+`
		FROM messages m
		JOIN folders f ON f.id = m.folder_id
		WHERE m.id = $1
	`, messageID)
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}

	messages, err := collectTaggedMessages(rows)
	if err != nil {
		return nil, err
	}
	if len(messages) == 0 {
		return nil, ErrMessageNotFound
	}

	return &messages[0], nil
}

// GetMessagesByIDs returns the cached messages with the given IDs, with
// their folder names, ordered by folder then UID.
func GetMessagesByIDs(ctx context.Context, pool *pgxpool.Pool, ids []int64) ([]models.TaggedMessage, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := pool.Query(ctx, `
		SELECT `+taggedMessageColumns+`
		FROM messages m
		JOIN folders f ON f.id = m.folder_id
		WHERE m.id = ANY($1)
		ORDER BY f.name, m.uid
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}

	return collectTaggedMessages(rows)
}

// GetMessagesByUIDs returns the cached messages with the given UIDs in one
// folder, in UID order. UIDs not in the cache are silently absent from the
// result.
func GetMessagesByUIDs(ctx context.Context, pool *pgxpool.Pool, folderID int64, uids []int64) ([]models.TaggedMessage, error) {
	if len(uids) == 0 {
		return nil, nil
	}

	rows, err := pool.Query(ctx, `
		SELECT `+taggedMessageColumns+`
		FROM messages m
		JOIN folders f ON f.id = m.folder_id
		WHERE m.folder_id = $1 AND m.uid = ANY($2)
		ORDER BY m.uid
	`, folderID, uids)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}

	return collectTaggedMessages(rows)
}

// GetMessageCopies returns every cached copy of the same physical message
// across folders. Matching follows the identity rules: Message-ID when the
// message has one, otherwise the identity tuple with missing fields matching
// only missing fields.
func GetMessageCopies(ctx context.Context, pool *pgxpool.Pool, msg *models.Message) ([]models.TaggedMessage, error) {
	var rows pgx.Rows
	var err error

	if msg.MessageID != "" {
		rows, err = pool.Query(ctx, `
			SELECT `+taggedMessageColumns+`
			FROM messages m
			JOIN folders f ON f.id = m.folder_id
			WHERE m.message_id = $1
			ORDER BY f.name
		`, msg.MessageID)
	} else {
		rows, err = pool.Query(ctx, `
			SELECT `+taggedMessageColumns+`
			FROM messages m
			JOIN folders f ON f.id = m.folder_id
			WHERE m.message_id = ''
			  AND m.from_addr  IS NOT DISTINCT FROM $1
			  AND m.subject    IS NOT DISTINCT FROM $2
			  AND m.date       IS NOT DISTINCT FROM $3
			  AND m.size_bytes = $4
			ORDER BY f.name
		`, msg.FromAddr, msg.Subject, msg.Date, msg.SizeBytes)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message copies: %w", err)
	}

	return collectTaggedMessages(rows)
}

// GetFoldersForMessage returns the names of all folders containing the same
// physical message. With includeThread, folders holding any message of the
// same provider thread are included as well.
func GetFoldersForMessage(ctx context.Context, pool *pgxpool.Pool, msg *models.Message, includeThread bool) ([]string, error) {
	copies, err := GetMessageCopies(ctx, pool, msg)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var names []string
	add := func(name string) {
		if _, ok := seen[name]; !ok {
			seen[name] = struct{}{}
			names = append(names, name)
		}
	}
	for _, c := range copies {
		add(c.FolderName)
	}

	if includeThread && msg.ThreadID != 0 {
		rows, err := pool.Query(ctx, `
			SELECT DISTINCT f.name
			FROM messages m
			JOIN folders f ON f.id = m.folder_id
			WHERE m.thread_id = $1
			ORDER BY f.name
		`, msg.ThreadID)
		if err != nil {
			return nil, fmt.Errorf("failed to get thread folders: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				return nil, fmt.Errorf("failed to scan folder name: %w", err)
			}
			add(name)
		}
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("error iterating thread folders: %w", err)
		}
	}

	sort.Strings(names)
	return names, nil
}
