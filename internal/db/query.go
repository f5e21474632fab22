package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jitrc/MailSweep/internal/models"
)

// MessageFilter narrows a message query. Zero values mean "no filter".
type MessageFilter struct {
	FolderIDs     []int64
	From          string
	To            string
	Subject       string
	DateFrom      time.Time
	DateTo        time.Time
	SizeMin       int64
	SizeMax       int64
	HasAttachment *bool
	OrderBy       string
	Limit         int
}

const defaultQueryLimit = 5000

// allowedOrderBy whitelists ORDER BY clauses since they cannot be
// parameterized.
var allowedOrderBy = map[string]bool{
	"size_bytes DESC": true,
	"size_bytes ASC":  true,
	"date DESC":       true,
	"date ASC":        true,
	"from_addr ASC":   true,
	"from_addr DESC":  true,
	"to_addr ASC":     true,
	"to_addr DESC":    true,
	"subject ASC":     true,
}

func (f MessageFilter) orderBy() string {
	if allowedOrderBy[f.OrderBy] {
		return f.OrderBy
	}
	return "size_bytes DESC"
}

func (f MessageFilter) limit() int {
	if f.Limit > 0 {
		return f.Limit
	}
	return defaultQueryLimit
}

// clauses appends the filter's WHERE fragments, registering parameters
// through arg.
func (f MessageFilter) clauses(arg func(v interface{}) string) []string {
	var where []string

	if len(f.FolderIDs) > 0 {
		where = append(where, fmt.Sprintf("m.folder_id = ANY(%s)", arg(f.FolderIDs)))
	}
	if f.From != "" {
		where = append(where, fmt.Sprintf("LOWER(m.from_addr) LIKE %s", arg("%"+strings.ToLower(f.From)+"%")))
	}
	if f.To != "" {
		where = append(where, fmt.Sprintf("LOWER(m.to_addr) LIKE %s", arg("%"+strings.ToLower(f.To)+"%")))
	}
	if f.Subject != "" {
		where = append(where, fmt.Sprintf("LOWER(m.subject) LIKE %s", arg("%"+strings.ToLower(f.Subject)+"%")))
	}
	if !f.DateFrom.IsZero() {
		where = append(where, fmt.Sprintf("m.date >= %s", arg(f.DateFrom)))
	}
	if !f.DateTo.IsZero() {
		where = append(where, fmt.Sprintf("m.date <= %s", arg(f.DateTo)))
	}
	if f.SizeMin > 0 {
		where = append(where, fmt.Sprintf("m.size_bytes >= %s", arg(f.SizeMin)))
	}
	if f.SizeMax > 0 {
		where = append(where, fmt.Sprintf("m.size_bytes <= %s", arg(f.SizeMax)))
	}
	if f.HasAttachment != nil {
		if *f.HasAttachment {
			where = append(where, "m.has_attachment")
		} else {
			where = append(where, "NOT m.has_attachment")
		}
	}

	return where
}

// QueryMessages returns cached messages matching the filter, joined with
// their folder names.
func QueryMessages(ctx context.Context, pool *pgxpool.Pool, filter MessageFilter) ([]models.TaggedMessage, error) {
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	where := filter.clauses(arg)
	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}

	sql := fmt.Sprintf(`
		SELECT %s
		FROM messages m
		JOIN folders f ON f.id = m.folder_id
		%s
		ORDER BY m.%s
		LIMIT %s
	`, taggedMessageColumns, whereClause, filter.orderBy(), arg(filter.limit()))

	rows, err := pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}

	return collectTaggedMessages(rows)
}
