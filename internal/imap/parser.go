package imap

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-message/charset"
	"github.com/jitrc/MailSweep/internal/models"
)

func init() {
	// Decode RFC 2047 encoded words in ENVELOPE fields, including the
	// legacy charsets go-message knows about (iso-8859-*, windows-125*).
	imap.CharsetReader = charset.Reader
}

const maxBodyStructureDepth = 20

// ParseMessage converts a fetched IMAP message to the cache model.
// Envelope fields that are absent stay nil so identity matching can tell
// a missing header from an empty one.
func ParseMessage(imapMsg *imap.Message, folderID int64) (*models.Message, error) {
	if imapMsg == nil {
		return nil, fmt.Errorf("imap message is nil")
	}
	if imapMsg.Uid == 0 {
		return nil, fmt.Errorf("imap message has no UID")
	}

	msg := &models.Message{
		FolderID:  folderID,
		UID:       int64(imapMsg.Uid),
		ThreadID:  ParseThreadID(imapMsg),
		SizeBytes: int64(imapMsg.Size),
		Flags:     append([]string(nil), imapMsg.Flags...),
	}

	if env := imapMsg.Envelope; env != nil {
		msg.MessageID = env.MessageId
		msg.InReplyTo = env.InReplyTo

		if from := formatAddress(firstAddress(env.From)); from != "" {
			msg.FromAddr = &from
		}
		if to := formatAddress(firstAddress(env.To)); to != "" {
			msg.ToAddr = &to
		}
		if env.Subject != "" {
			subject := env.Subject
			msg.Subject = &subject
		}
		if !env.Date.IsZero() {
			date := env.Date
			msg.Date = &date
		}
	}

	msg.HasAttachment, msg.AttachmentNames = parseBodyStructure(imapMsg.BodyStructure, 0)

	return msg, nil
}

// ParseThreadID extracts Gmail's X-GM-THRID from the fetch response.
// Returns 0 when the item is missing or unreadable.
func ParseThreadID(imapMsg *imap.Message) int64 {
	v, ok := imapMsg.Items[FetchItemThreadID]
	if !ok || v == nil {
		return 0
	}

	switch id := v.(type) {
	case string:
		n, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			return 0
		}
		return n
	case imap.RawString:
		n, err := strconv.ParseInt(string(id), 10, 64)
		if err != nil {
			return 0
		}
		return n
	case uint32:
		return int64(id)
	case uint64:
		return int64(id)
	case int64:
		return id
	}

	return 0
}

// formatAddress formats an IMAP address to a string.
func formatAddress(address *imap.Address) string {
	if address == nil {
		return ""
	}

	if address.MailboxName == "" && address.HostName == "" {
		return ""
	}

	if address.PersonalName != "" {
		return fmt.Sprintf("%s <%s@%s>", address.PersonalName, address.MailboxName, address.HostName)
	}

	return fmt.Sprintf("%s@%s", address.MailboxName, address.HostName)
}

// firstAddress returns the first address of an envelope list, or nil.
func firstAddress(addresses []*imap.Address) *imap.Address {
	if len(addresses) == 0 {
		return nil
	}
	return addresses[0]
}

// parseBodyStructure walks the BODYSTRUCTURE tree and collects attachment
// names. A part counts as an attachment when its disposition says so, or
// when an application/image part carries an explicit filename. Unnamed
// attachments are reported as "type/subtype".
func parseBodyStructure(bs *imap.BodyStructure, depth int) (bool, []string) {
	if bs == nil || depth > maxBodyStructureDepth {
		return false, nil
	}

	if len(bs.Parts) > 0 {
		hasAttachment := false
		var names []string
		for _, part := range bs.Parts {
			partHas, partNames := parseBodyStructure(part, depth+1)
			hasAttachment = hasAttachment || partHas
			names = append(names, partNames...)
		}
		return hasAttachment, names
	}

	filename, _ := bs.Filename()
	disposition := strings.ToLower(bs.Disposition)
	mainType := strings.ToLower(bs.MIMEType)
	subType := strings.ToLower(bs.MIMESubType)

	isAttachment := strings.Contains(disposition, "attachment")
	if !isAttachment && filename != "" {
		if mainType == "application" || mainType == "image" {
			isAttachment = true
		}
	}

	if !isAttachment {
		return false, nil
	}
	if filename == "" {
		filename = mainType + "/" + subType
	}
	return true, []string{filename}
}
