package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jitrc/MailSweep/internal/models"
)

const (
	addrSummaryLimit       = 1000
	crossFolderSenderLimit = 100
)

// addrEmailExpr extracts the bare address from a "Name <email>" header
// column. Values without angle brackets pass through lowercased.
func addrEmailExpr(col string) string {
	return fmt.Sprintf(`CASE WHEN POSITION('<' IN %[1]s) > 0
		THEN LOWER(SUBSTRING(%[1]s FROM POSITION('<' IN %[1]s) + 1
			FOR POSITION('>' IN %[1]s) - POSITION('<' IN %[1]s) - 1))
		ELSE LOWER(%[1]s) END`, col)
}

// GetSenderSummary aggregates messages per sender address, optionally
// restricted to a set of folders. "Alice <a@b.com>" and "A <a@b.com>"
// merge into one group keyed a@b.com; Display keeps one raw variant.
func GetSenderSummary(ctx context.Context, pool *pgxpool.Pool, folderIDs []int64) ([]models.AddrSummary, error) {
	return addrSummary(ctx, pool, "from_addr", folderIDs)
}

// GetReceiverSummary aggregates messages per receiver address with the
// same extraction as GetSenderSummary, applied to to_addr.
func GetReceiverSummary(ctx context.Context, pool *pgxpool.Pool, folderIDs []int64) ([]models.AddrSummary, error) {
	return addrSummary(ctx, pool, "to_addr", folderIDs)
}

func addrSummary(ctx context.Context, pool *pgxpool.Pool, col string, folderIDs []int64) ([]models.AddrSummary, error) {
	var args []interface{}
	filter := ""
	if len(folderIDs) > 0 {
		args = append(args, folderIDs)
		filter = fmt.Sprintf("WHERE folder_id = ANY($%d)", len(args))
	}

	sql := fmt.Sprintf(`
		SELECT COALESCE(%s, '') AS email,
		       MIN(%s) AS display,
		       COUNT(*) AS message_count,
		       SUM(size_bytes) AS total_size_bytes
		FROM messages
		%s
		GROUP BY email
		ORDER BY total_size_bytes DESC
		LIMIT %d
	`, addrEmailExpr(col), col, filter, addrSummaryLimit)

	rows, err := pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize %s: %w", col, err)
	}
	defer rows.Close()

	var summaries []models.AddrSummary
	for rows.Next() {
		var s models.AddrSummary
		if err := rows.Scan(&s.Email, &s.Display, &s.MessageCount, &s.TotalSizeBytes); err != nil {
			return nil, fmt.Errorf("failed to scan address summary: %w", err)
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating address summaries: %w", err)
	}

	return summaries, nil
}

// GetDedupTotalSize returns the cache's total size and message count
// after collapsing duplicates. Messages sharing a Message-ID count once;
// messages without one collapse on the identity tuple, where missing
// fields match only missing fields.
func GetDedupTotalSize(ctx context.Context, pool *pgxpool.Pool, folderIDs []int64) (int64, int64, error) {
	var args []interface{}
	filter := ""
	if len(folderIDs) > 0 {
		args = append(args, folderIDs)
		filter = fmt.Sprintf("AND folder_id = ANY($%d)", len(args))
	}

	sql := fmt.Sprintf(`
		SELECT COALESCE(SUM(size_bytes), 0), COUNT(*)
		FROM (
			SELECT size_bytes
			FROM messages
			WHERE message_id != '' %s
			GROUP BY message_id, size_bytes
			UNION ALL
			SELECT size_bytes
			FROM messages
			WHERE message_id = '' %s
			GROUP BY from_addr, subject, date, size_bytes
		) dedup
	`, filter, filter)

	var totalBytes, count int64
	if err := pool.QueryRow(ctx, sql, args...).Scan(&totalBytes, &count); err != nil {
		return 0, 0, fmt.Errorf("failed to compute deduplicated size: %w", err)
	}

	return totalBytes, count, nil
}

// GetFolderTreeSummary returns every folder of an account with its
// cached counts and the date range of its messages.
func GetFolderTreeSummary(ctx context.Context, pool *pgxpool.Pool, accountID int64) ([]models.FolderSummary, error) {
	rows, err := pool.Query(ctx, `
		SELECT f.id, f.name, f.message_count, f.total_size_bytes,
		       MIN(m.date) AS oldest_date, MAX(m.date) AS newest_date
		FROM folders f
		LEFT JOIN messages m ON m.folder_id = f.id
		WHERE f.account_id = $1
		GROUP BY f.id
		ORDER BY f.name
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize folders: %w", err)
	}
	defer rows.Close()

	var summaries []models.FolderSummary
	for rows.Next() {
		var s models.FolderSummary
		if err := rows.Scan(&s.FolderID, &s.Name, &s.MessageCount, &s.TotalSizeBytes, &s.OldestDate, &s.NewestDate); err != nil {
			return nil, fmt.Errorf("failed to scan folder summary: %w", err)
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating folder summaries: %w", err)
	}

	return summaries, nil
}

// GetCrossFolderSenders finds senders whose mail is spread across at
// least minFolders folders, a hint for misfiled messages. FolderCounts
// lists "name:count" pairs joined with commas.
func GetCrossFolderSenders(ctx context.Context, pool *pgxpool.Pool, accountID int64, minFolders int) ([]models.CrossFolderSender, error) {
	sql := fmt.Sprintf(`
		SELECT sub.email,
		       COUNT(DISTINCT f.name) AS folder_count,
		       string_agg(DISTINCT f.name || ':' || sub.cnt::text, ','
		                  ORDER BY f.name || ':' || sub.cnt::text) AS folder_counts,
		       SUM(sub.cnt) AS total_count
		FROM (
			SELECT COALESCE(%s, '') AS email,
			       m.folder_id,
			       COUNT(*) AS cnt
			FROM messages m
			JOIN folders f ON f.id = m.folder_id
			WHERE f.account_id = $1
			GROUP BY email, m.folder_id
		) sub
		JOIN folders f ON f.id = sub.folder_id
		GROUP BY sub.email
		HAVING COUNT(DISTINCT f.name) >= $2
		ORDER BY folder_count DESC, total_count DESC
		LIMIT %d
	`, addrEmailExpr("m.from_addr"), crossFolderSenderLimit)

	rows, err := pool.Query(ctx, sql, accountID, minFolders)
	if err != nil {
		return nil, fmt.Errorf("failed to find cross-folder senders: %w", err)
	}
	defer rows.Close()

	var senders []models.CrossFolderSender
	for rows.Next() {
		var s models.CrossFolderSender
		if err := rows.Scan(&s.Email, &s.FolderCount, &s.FolderCounts, &s.TotalCount); err != nil {
			return nil, fmt.Errorf("failed to scan cross-folder sender: %w", err)
		}
		senders = append(senders, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cross-folder senders: %w", err)
	}

	return senders, nil
}

// GetTopSendersPerFolder returns the heaviest senders of one folder,
// ordered by message count.
func GetTopSendersPerFolder(ctx context.Context, pool *pgxpool.Pool, folderID int64, limit int) ([]models.AddrSummary, error) {
	if limit <= 0 {
		limit = 5
	}

	sql := fmt.Sprintf(`
		SELECT COALESCE(%s, '') AS email,
		       MIN(from_addr) AS display,
		       COUNT(*) AS message_count,
		       SUM(size_bytes) AS total_size_bytes
		FROM messages
		WHERE folder_id = $1
		GROUP BY email
		ORDER BY message_count DESC
		LIMIT $2
	`, addrEmailExpr("from_addr"))

	rows, err := pool.Query(ctx, sql, folderID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to find top senders: %w", err)
	}
	defer rows.Close()

	var senders []models.AddrSummary
	for rows.Next() {
		var s models.AddrSummary
		if err := rows.Scan(&s.Email, &s.Display, &s.MessageCount, &s.TotalSizeBytes); err != nil {
			return nil, fmt.Errorf("failed to scan top sender: %w", err)
		}
		senders = append(senders, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating top senders: %w", err)
	}

	return senders, nil
}
