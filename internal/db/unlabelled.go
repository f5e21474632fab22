package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jitrc/MailSweep/internal/config"
	"github.com/jitrc/MailSweep/internal/models"
)

// A message in All Mail is "unlabelled" when no labelled folder holds a copy
// of it. What counts as "a copy" depends on the mode:
//
//	no_thread:    the same physical message (Message-ID, else identity tuple)
//	in_reply_to:  the message itself, its parent, or a direct reply
//	gmail_thread: any message of the same provider thread (X-GM-THRID)
//
// Each mode falls back to the next-stricter rule for messages missing the
// header it keys on, so a message without a thread id is still matched by
// Message-ID, and one without a Message-ID by the identity tuple.

// unlabelledNotExists builds the no_thread fragment. otherIDs must already be
// registered with arg; the placeholder is reused across subqueries.
func unlabelledNotExists(otherParam string) string {
	return `(
		(m.message_id != '' AND NOT EXISTS (
			SELECT 1 FROM messages o
			WHERE o.folder_id = ANY(` + otherParam + `)
			  AND o.message_id = m.message_id
		))
		OR
		(m.message_id = '' AND NOT EXISTS (
			SELECT 1 FROM messages o
			WHERE o.folder_id = ANY(` + otherParam + `)
			  AND o.from_addr  IS NOT DISTINCT FROM m.from_addr
			  AND o.subject    IS NOT DISTINCT FROM m.subject
			  AND o.date       IS NOT DISTINCT FROM m.date
			  AND o.size_bytes = m.size_bytes
		))
	)`
}

// unlabelledNotExistsReply widens the Message-ID branch to the reply chain:
// a labelled parent (o.message_id = m.in_reply_to) or a labelled direct
// reply (o.in_reply_to = m.message_id) also keeps the message labelled.
func unlabelledNotExistsReply(otherParam string) string {
	return `(
		(m.message_id != '' AND NOT EXISTS (
			SELECT 1 FROM messages o
			WHERE o.folder_id = ANY(` + otherParam + `)
			  AND (
				o.message_id = m.message_id
				OR (m.in_reply_to != '' AND o.message_id = m.in_reply_to)
				OR (o.in_reply_to != '' AND o.in_reply_to = m.message_id)
			  )
		))
		OR
		(m.message_id = '' AND NOT EXISTS (
			SELECT 1 FROM messages o
			WHERE o.folder_id = ANY(` + otherParam + `)
			  AND o.from_addr  IS NOT DISTINCT FROM m.from_addr
			  AND o.subject    IS NOT DISTINCT FROM m.subject
			  AND o.date       IS NOT DISTINCT FROM m.date
			  AND o.size_bytes = m.size_bytes
		))
	)`
}

// unlabelledNotExistsThread keys on the provider thread id and falls back to
// the no_thread rule for messages without one.
func unlabelledNotExistsThread(otherParam string) string {
	return `(
		(m.thread_id != 0 AND NOT EXISTS (
			SELECT 1 FROM messages o
			WHERE o.folder_id = ANY(` + otherParam + `)
			  AND o.thread_id = m.thread_id
		))
		OR
		(m.thread_id = 0 AND ` + unlabelledNotExists(otherParam) + `)
	)`
}

func unlabelledFragment(mode, otherParam string) string {
	switch mode {
	case config.ModeInReplyTo:
		return unlabelledNotExistsReply(otherParam)
	case config.ModeGmailThread:
		return unlabelledNotExistsThread(otherParam)
	default:
		return unlabelledNotExists(otherParam)
	}
}

// GetUnlabelledStats returns the count and total size of messages that exist
// only in the All Mail folder. With no other folders to compare against,
// every All Mail message counts as unlabelled.
func GetUnlabelledStats(ctx context.Context, pool *pgxpool.Pool, allMailFolderID int64, otherFolderIDs []int64, mode string) (int64, int64, error) {
	var count, totalSize int64

	if len(otherFolderIDs) == 0 {
		err := pool.QueryRow(ctx, `
			SELECT COUNT(*), COALESCE(SUM(size_bytes), 0)
			FROM messages WHERE folder_id = $1
		`, allMailFolderID).Scan(&count, &totalSize)
		if err != nil {
			return 0, 0, fmt.Errorf("failed to get unlabelled stats: %w", err)
		}
		return count, totalSize, nil
	}

	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	allMailParam := arg(allMailFolderID)
	otherParam := arg(otherFolderIDs)

	sql := fmt.Sprintf(`
		SELECT COUNT(*), COALESCE(SUM(m.size_bytes), 0)
		FROM messages m
		WHERE m.folder_id = %s AND %s
	`, allMailParam, unlabelledFragment(mode, otherParam))

	if err := pool.QueryRow(ctx, sql, args...).Scan(&count, &totalSize); err != nil {
		return 0, 0, fmt.Errorf("failed to get unlabelled stats: %w", err)
	}

	return count, totalSize, nil
}

// QueryUnlabelledMessages returns the All Mail messages that no labelled
// folder holds a copy of, further narrowed by filter.
func QueryUnlabelledMessages(ctx context.Context, pool *pgxpool.Pool, allMailFolderID int64, otherFolderIDs []int64, mode string, filter MessageFilter) ([]models.TaggedMessage, error) {
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	where := []string{fmt.Sprintf("m.folder_id = %s", arg(allMailFolderID))}

	if len(otherFolderIDs) > 0 {
		where = append(where, unlabelledFragment(mode, arg(otherFolderIDs)))
	}

	// The folder is pinned to All Mail; a folder filter would conflict.
	filter.FolderIDs = nil
	where = append(where, filter.clauses(arg)...)

	sql := fmt.Sprintf(`
		SELECT %s
		FROM messages m
		JOIN folders f ON f.id = m.folder_id
		WHERE %s
		ORDER BY m.%s
		LIMIT %s
	`, taggedMessageColumns, strings.Join(where, " AND "), filter.orderBy(), arg(filter.limit()))

	rows, err := pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query unlabelled messages: %w", err)
	}

	return collectTaggedMessages(rows)
}
