package imap

import (
	"testing"
	"time"

	"github.com/emersion/go-imap"
)

func TestFormatAddress(t *testing.T) {
	t.Run("formats address with personal name", func(t *testing.T) {
		address := &imap.Address{
			PersonalName: "John Doe",
			MailboxName:  "john",
			HostName:     "example.com",
		}

		result := formatAddress(address)
		expected := "John Doe <john@example.com>"
		if result != expected {
			t.Errorf("Expected %s, got %s", expected, result)
		}
	})

	t.Run("formats address without personal name", func(t *testing.T) {
		address := &imap.Address{
			MailboxName: "jane",
			HostName:    "example.com",
		}

		result := formatAddress(address)
		expected := "jane@example.com"
		if result != expected {
			t.Errorf("Expected %s, got %s", expected, result)
		}
	})

	t.Run("returns empty string for nil address", func(t *testing.T) {
		result := formatAddress(nil)
		if result != "" {
			t.Errorf("Expected empty string, got %s", result)
		}
	})

	t.Run("returns empty string for empty address", func(t *testing.T) {
		address := &imap.Address{}
		result := formatAddress(address)
		if result != "" {
			t.Errorf("Expected empty string, got %s", result)
		}
	})
}

func TestParseThreadID(t *testing.T) {
	tests := []struct {
		name  string
		items map[imap.FetchItem]interface{}
		want  int64
	}{
		{
			name:  "string value",
			items: map[imap.FetchItem]interface{}{FetchItemThreadID: "1234567890"},
			want:  1234567890,
		},
		{
			name:  "raw string value",
			items: map[imap.FetchItem]interface{}{FetchItemThreadID: imap.RawString("42")},
			want:  42,
		},
		{
			name:  "numeric value",
			items: map[imap.FetchItem]interface{}{FetchItemThreadID: uint64(99)},
			want:  99,
		},
		{
			name:  "missing item",
			items: map[imap.FetchItem]interface{}{},
			want:  0,
		},
		{
			name:  "unparsable value",
			items: map[imap.FetchItem]interface{}{FetchItemThreadID: "not-a-number"},
			want:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := &imap.Message{Items: tt.items}
			if got := ParseThreadID(msg); got != tt.want {
				t.Errorf("Expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestParseMessage(t *testing.T) {
	t.Run("parses message with full envelope", func(t *testing.T) {
		now := time.Now()
		imapMsg := &imap.Message{
			Uid:   100,
			Size:  2048,
			Flags: []string{imap.SeenFlag, imap.FlaggedFlag},
			Envelope: &imap.Envelope{
				MessageId: "<msg-123@example.com>",
				InReplyTo: "<msg-122@example.com>",
				From: []*imap.Address{
					{
						PersonalName: "Sender",
						MailboxName:  "sender",
						HostName:     "example.com",
					},
				},
				To: []*imap.Address{
					{
						MailboxName: "recipient",
						HostName:    "example.com",
					},
				},
				Subject: "Test Subject",
				Date:    now,
			},
		}

		msg, err := ParseMessage(imapMsg, 7)
		if err != nil {
			t.Fatalf("ParseMessage failed: %v", err)
		}

		if msg.FolderID != 7 {
			t.Errorf("Expected FolderID 7, got %d", msg.FolderID)
		}
		if msg.UID != 100 {
			t.Errorf("Expected UID 100, got %d", msg.UID)
		}
		if msg.SizeBytes != 2048 {
			t.Errorf("Expected SizeBytes 2048, got %d", msg.SizeBytes)
		}
		if msg.MessageID != "<msg-123@example.com>" {
			t.Errorf("Expected MessageID '<msg-123@example.com>', got %s", msg.MessageID)
		}
		if msg.InReplyTo != "<msg-122@example.com>" {
			t.Errorf("Expected InReplyTo '<msg-122@example.com>', got %s", msg.InReplyTo)
		}
		if msg.FromAddr == nil || *msg.FromAddr != "Sender <sender@example.com>" {
			t.Errorf("Expected FromAddr 'Sender <sender@example.com>', got %v", msg.FromAddr)
		}
		if msg.ToAddr == nil || *msg.ToAddr != "recipient@example.com" {
			t.Errorf("Expected ToAddr 'recipient@example.com', got %v", msg.ToAddr)
		}
		if msg.Subject == nil || *msg.Subject != "Test Subject" {
			t.Errorf("Expected Subject 'Test Subject', got %v", msg.Subject)
		}
		if msg.Date == nil || !msg.Date.Equal(now) {
			t.Error("Expected Date to match envelope date")
		}
		if len(msg.Flags) != 2 {
			t.Errorf("Expected 2 flags, got %d", len(msg.Flags))
		}
	})

	t.Run("missing envelope fields stay nil", func(t *testing.T) {
		imapMsg := &imap.Message{
			Uid:      200,
			Envelope: &imap.Envelope{},
		}

		msg, err := ParseMessage(imapMsg, 1)
		if err != nil {
			t.Fatalf("ParseMessage failed: %v", err)
		}

		if msg.FromAddr != nil {
			t.Errorf("Expected nil FromAddr, got %v", *msg.FromAddr)
		}
		if msg.ToAddr != nil {
			t.Errorf("Expected nil ToAddr, got %v", *msg.ToAddr)
		}
		if msg.Subject != nil {
			t.Errorf("Expected nil Subject, got %v", *msg.Subject)
		}
		if msg.Date != nil {
			t.Errorf("Expected nil Date, got %v", *msg.Date)
		}
		if msg.MessageID != "" {
			t.Errorf("Expected empty MessageID, got %s", msg.MessageID)
		}
	})

	t.Run("handles message without envelope", func(t *testing.T) {
		imapMsg := &imap.Message{
			Uid: 300,
		}

		msg, err := ParseMessage(imapMsg, 1)
		if err != nil {
			t.Fatalf("ParseMessage failed: %v", err)
		}
		if msg.UID != 300 {
			t.Errorf("Expected UID 300, got %d", msg.UID)
		}
		if msg.Subject != nil {
			t.Error("Expected nil Subject")
		}
	})

	t.Run("handles nil message", func(t *testing.T) {
		_, err := ParseMessage(nil, 1)
		if err == nil {
			t.Error("Expected error for nil message")
		}
	})

	t.Run("rejects message without UID", func(t *testing.T) {
		_, err := ParseMessage(&imap.Message{}, 1)
		if err == nil {
			t.Error("Expected error for message without UID")
		}
	})

	t.Run("detects attachments from body structure", func(t *testing.T) {
		imapMsg := &imap.Message{
			Uid: 400,
			BodyStructure: &imap.BodyStructure{
				MIMEType:    "multipart",
				MIMESubType: "mixed",
				Parts: []*imap.BodyStructure{
					{
						MIMEType:    "text",
						MIMESubType: "plain",
					},
					{
						MIMEType:    "application",
						MIMESubType: "pdf",
						Disposition: "attachment",
						DispositionParams: map[string]string{
							"filename": "test.pdf",
						},
					},
				},
			},
		}

		msg, err := ParseMessage(imapMsg, 1)
		if err != nil {
			t.Fatalf("ParseMessage failed: %v", err)
		}

		if !msg.HasAttachment {
			t.Error("Expected HasAttachment to be true")
		}
		if len(msg.AttachmentNames) != 1 || msg.AttachmentNames[0] != "test.pdf" {
			t.Errorf("Expected attachment names [test.pdf], got %v", msg.AttachmentNames)
		}
	})
}

func TestParseBodyStructure(t *testing.T) {
	t.Run("nil structure", func(t *testing.T) {
		has, names := parseBodyStructure(nil, 0)
		if has || names != nil {
			t.Errorf("Expected no attachments, got %v %v", has, names)
		}
	})

	t.Run("plain text has no attachments", func(t *testing.T) {
		bs := &imap.BodyStructure{MIMEType: "text", MIMESubType: "plain"}
		has, _ := parseBodyStructure(bs, 0)
		if has {
			t.Error("Expected no attachments")
		}
	})

	t.Run("walks all sibling parts", func(t *testing.T) {
		// The attachment is the last sibling; a walk that stops at the
		// first child would miss it.
		bs := &imap.BodyStructure{
			MIMEType:    "multipart",
			MIMESubType: "mixed",
			Parts: []*imap.BodyStructure{
				{MIMEType: "text", MIMESubType: "plain"},
				{MIMEType: "text", MIMESubType: "html"},
				{
					MIMEType:    "application",
					MIMESubType: "zip",
					Disposition: "attachment",
					DispositionParams: map[string]string{
						"filename": "archive.zip",
					},
				},
			},
		}

		has, names := parseBodyStructure(bs, 0)
		if !has {
			t.Error("Expected attachment to be found")
		}
		if len(names) != 1 || names[0] != "archive.zip" {
			t.Errorf("Expected [archive.zip], got %v", names)
		}
	})

	t.Run("named image without attachment disposition", func(t *testing.T) {
		bs := &imap.BodyStructure{
			MIMEType:    "image",
			MIMESubType: "png",
			Params:      map[string]string{"name": "logo.png"},
			Disposition: "inline",
		}

		has, names := parseBodyStructure(bs, 0)
		if !has {
			t.Error("Expected named image to count as attachment")
		}
		if len(names) != 1 || names[0] != "logo.png" {
			t.Errorf("Expected [logo.png], got %v", names)
		}
	})

	t.Run("unnamed attachment falls back to content type", func(t *testing.T) {
		bs := &imap.BodyStructure{
			MIMEType:    "application",
			MIMESubType: "octet-stream",
			Disposition: "attachment",
		}

		has, names := parseBodyStructure(bs, 0)
		if !has {
			t.Error("Expected attachment")
		}
		if len(names) != 1 || names[0] != "application/octet-stream" {
			t.Errorf("Expected [application/octet-stream], got %v", names)
		}
	})

	t.Run("nested multiparts are walked", func(t *testing.T) {
		bs := &imap.BodyStructure{
			MIMEType:    "multipart",
			MIMESubType: "mixed",
			Parts: []*imap.BodyStructure{
				{
					MIMEType:    "multipart",
					MIMESubType: "related",
					Parts: []*imap.BodyStructure{
						{MIMEType: "text", MIMESubType: "html"},
						{
							MIMEType:    "image",
							MIMESubType: "jpeg",
							Params:      map[string]string{"name": "photo.jpg"},
						},
					},
				},
			},
		}

		has, names := parseBodyStructure(bs, 0)
		if !has {
			t.Error("Expected attachment in nested part")
		}
		if len(names) != 1 || names[0] != "photo.jpg" {
			t.Errorf("Expected [photo.jpg], got %v", names)
		}
	})

	t.Run("stops at depth limit", func(t *testing.T) {
		leaf := &imap.BodyStructure{
			MIMEType:    "application",
			MIMESubType: "pdf",
			Disposition: "attachment",
		}
		bs := leaf
		for i := 0; i < 25; i++ {
			bs = &imap.BodyStructure{
				MIMEType:    "multipart",
				MIMESubType: "mixed",
				Parts:       []*imap.BodyStructure{bs},
			}
		}

		has, _ := parseBodyStructure(bs, 0)
		if has {
			t.Error("Expected walk to stop before the deeply nested attachment")
		}
	})
}
