package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jitrc/MailSweep/internal/identity"
	"github.com/jitrc/MailSweep/internal/models"
)

// FindCrossLabelDuplicates finds messages cached in two or more folders of
// an account. Messages with a Message-ID group by it; the rest group by the
// identity tuple, with missing fields matching only missing fields. Each
// returned message is tagged with its group's folder count ("3 labels").
// Folders in skipFolderIDs (typically All Mail and Trash) are ignored.
func FindCrossLabelDuplicates(ctx context.Context, pool *pgxpool.Pool, accountID int64, skipFolderIDs []int64) (*models.DuplicateReport, error) {
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	skipClause := ""
	accountParam := arg(accountID)
	if len(skipFolderIDs) > 0 {
		skipClause = fmt.Sprintf("AND f.id != ALL(%s)", arg(skipFolderIDs))
	}

	sql := fmt.Sprintf(`
		WITH eligible AS (
			SELECT m.id, m.folder_id, m.uid, m.message_id, m.in_reply_to, m.thread_id,
			       m.from_addr, m.to_addr, m.subject, m.date,
			       m.size_bytes, m.has_attachment, m.attachment_names, m.flags, m.cached_at,
			       f.name AS folder_name
			FROM messages m
			JOIN folders f ON f.id = m.folder_id
			WHERE f.account_id = %s %s
		),
		mid_groups AS (
			SELECT message_id, COUNT(DISTINCT folder_id) AS folder_cnt
			FROM eligible
			WHERE message_id != ''
			GROUP BY message_id
			HAVING COUNT(DISTINCT folder_id) >= 2
		),
		ident_groups AS (
			SELECT from_addr, subject, date, size_bytes,
			       COUNT(DISTINCT folder_id) AS folder_cnt
			FROM eligible
			WHERE message_id = ''
			GROUP BY from_addr, subject, date, size_bytes
			HAVING COUNT(DISTINCT folder_id) >= 2
		),
		tagged_mid AS (
			SELECT e.*, g.folder_cnt
			FROM eligible e
			JOIN mid_groups g ON g.message_id = e.message_id
		),
		tagged_ident AS (
			SELECT e.*, g.folder_cnt
			FROM eligible e
			JOIN ident_groups g
			  ON g.from_addr IS NOT DISTINCT FROM e.from_addr
			 AND g.subject   IS NOT DISTINCT FROM e.subject
			 AND g.date      IS NOT DISTINCT FROM e.date
			 AND g.size_bytes = e.size_bytes
			WHERE e.message_id = ''
		),
		combined AS (
			SELECT * FROM tagged_mid
			UNION ALL
			SELECT * FROM tagged_ident
		)
		SELECT id, folder_id, uid, message_id, in_reply_to, thread_id,
		       from_addr, to_addr, subject, date,
		       size_bytes, has_attachment, attachment_names, flags, cached_at,
		       folder_name, folder_cnt
		FROM combined
		ORDER BY size_bytes DESC, message_id, folder_name
	`, accountParam, skipClause)

	rows, err := pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to find duplicates: %w", err)
	}
	defer rows.Close()

	report := &models.DuplicateReport{}
	groupSizes := make(map[string][]int64)

	for rows.Next() {
		var msg models.TaggedMessage
		var folderCount int
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
			&folderCount,
		); err != nil {
			return nil, fmt.Errorf("failed to scan duplicate: %w", err)
		}

		msg.Tag = fmt.Sprintf("%d labels", folderCount)
		report.Messages = append(report.Messages, msg)

		key := identity.Key(&msg.Message)
		groupSizes[key] = append(groupSizes[key], msg.SizeBytes)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating duplicates: %w", err)
	}

	// Reclaimable bytes: every copy except the smallest one per group.
	report.GroupCount = len(groupSizes)
	for _, sizes := range groupSizes {
		var sum, min int64
		min = sizes[0]
		for _, s := range sizes {
			sum += s
			if s < min {
				min = s
			}
		}
		report.DuplicateBytes += sum - min
	}

	return report, nil
}

// FindDetachedOriginals finds messages whose attachment was detached but
// whose original copy still sits on the server. A pair shares sender,
// subject and date, with the original more than ratio times the copy's
// size. Gmail's virtual folders are excluded since All Mail would mirror
// every pair. Originals and copies are both returned so the caller can
// review a pair before deleting its original.
func FindDetachedOriginals(ctx context.Context, pool *pgxpool.Pool, accountID int64, ratio float64) (*models.DetachedReport, error) {
	sql := `
		WITH non_gmail AS (
			SELECT m.id, m.folder_id, m.uid, m.message_id, m.in_reply_to, m.thread_id,
			       m.from_addr, m.to_addr, m.subject, m.date,
			       m.size_bytes, m.has_attachment, m.attachment_names, m.flags, m.cached_at,
			       f.name AS folder_name
			FROM messages m
			JOIN folders f ON f.id = m.folder_id
			WHERE f.account_id = $1
			  AND LOWER(f.name) NOT LIKE '[gmail]/%'
			  AND LOWER(f.name) NOT LIKE '[google mail]/%'
		),
		pairs AS (
			SELECT a.id AS copy_id, b.id AS orig_id
			FROM non_gmail a
			JOIN non_gmail b
			  ON a.from_addr = b.from_addr
			 AND a.date = b.date
			 AND a.subject = b.subject
			 AND a.size_bytes < b.size_bytes
			 AND b.size_bytes > a.size_bytes * $2
		)
		SELECT DISTINCT n.id, n.folder_id, n.uid, n.message_id, n.in_reply_to, n.thread_id,
		       n.from_addr, n.to_addr, n.subject, n.date,
		       n.size_bytes, n.has_attachment, n.attachment_names, n.flags, n.cached_at,
		       n.folder_name,
		       CASE WHEN n.id IN (SELECT orig_id FROM pairs)
		            THEN 'Original'
		            ELSE 'Detached Copy'
		       END AS tag
		FROM (
			SELECT orig_id AS mid FROM pairs
			UNION
			SELECT copy_id AS mid FROM pairs
		) ids
		JOIN non_gmail n ON n.id = ids.mid
		ORDER BY n.from_addr, n.subject, n.date, n.size_bytes DESC
	`

	rows, err := pool.Query(ctx, sql, accountID, ratio)
	if err != nil {
		return nil, fmt.Errorf("failed to find detached originals: %w", err)
	}
	defer rows.Close()

	report := &models.DetachedReport{}
	for rows.Next() {
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
			&msg.Tag,
		); err != nil {
			return nil, fmt.Errorf("failed to scan detached pair: %w", err)
		}

		report.Messages = append(report.Messages, msg)
		if msg.Tag == "Original" {
			report.OriginalCount++
			report.OriginalBytes += msg.SizeBytes
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating detached pairs: %w", err)
	}

	return report, nil
}
