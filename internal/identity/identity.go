// Package identity decides when two cached messages are the same
// physical message. Gmail labels expose one message as one copy per
// folder, so every cross-folder feature (duplicate detection,
// unlabelled detection, copy listing) needs a shared notion of
// message identity.
//
// A message with a Message-ID header is identified by that header
// alone. A message without one falls back to the identity tuple
// (from_addr, subject, date, size_bytes) compared with ternary
// semantics: a missing field matches only a missing field. The SQL in
// the db package mirrors these rules with message_id != '' guards and
// IS NOT DISTINCT FROM comparisons.
package identity

import (
	"strconv"
	"strings"
	"time"

	"github.com/jitrc/MailSweep/internal/models"
)

// Field separator and nil marker for tuple keys. Neither occurs in
// header values, so keys cannot collide across present/absent fields.
const (
	keySep    = "\x1f"
	keyAbsent = "\x00"
)

// Key returns a stable grouping key for the message. Messages with
// equal keys are copies of the same physical message.
func Key(m *models.Message) string {
	if m.MessageID != "" {
		return "mid:" + m.MessageID
	}

	var b strings.Builder
	b.WriteString("tuple:")
	writeField(&b, m.FromAddr)
	b.WriteString(keySep)
	writeField(&b, m.Subject)
	b.WriteString(keySep)
	if m.Date != nil {
		b.WriteString(m.Date.UTC().Format(time.RFC3339Nano))
	} else {
		b.WriteString(keyAbsent)
	}
	b.WriteString(keySep)
	b.WriteString(strconv.FormatInt(m.SizeBytes, 10))
	return b.String()
}

// Match reports whether a and b are copies of the same physical
// message. When either side carries a Message-ID the headers must be
// equal; otherwise the identity tuples must match field by field,
// with nil matching only nil.
func Match(a, b *models.Message) bool {
	if a.MessageID != "" || b.MessageID != "" {
		return a.MessageID == b.MessageID
	}
	return equalStr(a.FromAddr, b.FromAddr) &&
		equalStr(a.Subject, b.Subject) &&
		equalTime(a.Date, b.Date) &&
		a.SizeBytes == b.SizeBytes
}

func writeField(b *strings.Builder, s *string) {
	if s == nil {
		b.WriteString(keyAbsent)
		return
	}
	b.WriteString(*s)
}

func equalStr(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func equalTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
