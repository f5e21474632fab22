package imap

import (
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
)

// FetchItemThreadID is Gmail's thread id fetch item, available when the
// server advertises X-GM-EXT-1.
const FetchItemThreadID imap.FetchItem = "X-GM-THRID"

// FetchMetadata fetches scan metadata (envelope, size, body structure,
// flags) for the given UIDs. With withThreadID the Gmail thread id is
// requested as well; servers without the extension would reject it.
func FetchMetadata(c *client.Client, uids []uint32, withThreadID bool) ([]*imap.Message, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}

	if len(uids) == 0 {
		return []*imap.Message{}, nil
	}

	seqSet := new(imap.SeqSet)
	for _, uid := range uids {
		seqSet.AddNum(uid)
	}

	items := []imap.FetchItem{
		imap.FetchEnvelope,
		imap.FetchRFC822Size,
		imap.FetchBodyStructure,
		imap.FetchFlags,
		imap.FetchUid,
	}
	if withThreadID {
		items = append(items, FetchItemThreadID)
	}

	messages := make(chan *imap.Message, len(uids))
	done := make(chan error, 1)

	go func() {
		done <- c.UidFetch(seqSet, items, messages)
	}()

	var result []*imap.Message
	for msg := range messages {
		result = append(result, msg)
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}

	return result, nil
}

// FetchRawMessage fetches the full RFC 2822 bytes of one message along
// with its flags and internal date, which the detach flow needs to
// re-append the stripped copy faithfully.
func FetchRawMessage(c *client.Client, uid uint32) ([]byte, []string, time.Time, error) {
	if c == nil {
		return nil, nil, time.Time{}, fmt.Errorf("client is nil")
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uid)

	section := &imap.BodySectionName{}
	items := []imap.FetchItem{
		section.FetchItem(),
		imap.FetchFlags,
		imap.FetchInternalDate,
		imap.FetchUid,
	}

	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)

	go func() {
		done <- c.UidFetch(seqSet, items, messages)
	}()

	msg := <-messages
	if err := <-done; err != nil {
		return nil, nil, time.Time{}, fmt.Errorf("failed to fetch message: %w", err)
	}
	if msg == nil {
		return nil, nil, time.Time{}, fmt.Errorf("server did not return message %d", uid)
	}

	body := msg.GetBody(section)
	if body == nil {
		return nil, nil, time.Time{}, fmt.Errorf("server did not return body for message %d", uid)
	}

	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, nil, time.Time{}, fmt.Errorf("failed to read message body: %w", err)
	}

	return raw, msg.Flags, msg.InternalDate, nil
}
