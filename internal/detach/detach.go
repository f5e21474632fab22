// Package detach strips attachments out of raw RFC 2822 messages, saving
// each one to disk and substituting a text placeholder so the message stays
// well-formed for re-upload.
package detach

import (
	"bytes"
	"fmt"
	"log"
	"math"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/jhillyerd/enmime"
)

// DetachedHeader is the audit header added to every processed message.
const DetachedHeader = "X-MailSweep-Detached"

const maxPartDepth = 20

// StripAttachments parses raw as a MIME message, saves every attachment
// under saveDir, and replaces each attachment part with a placeholder that
// records the original name, size, and local path. Returns the re-encoded
// message and the saved filenames, in tree order.
func StripAttachments(raw []byte, saveDir string, uid int64) ([]byte, []string, error) {
	root, err := enmime.ReadParts(bytes.NewReader(raw))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse message: %w", err)
	}

	var saved []string
	var saveErr error
	walkParts(root, 0, func(part *enmime.Part) {
		if saveErr != nil || part.FirstChild != nil || !isAttachmentPart(part) {
			return
		}

		filename := safeFilename(part.FileName, uid, len(saved))
		dest := filepath.Join(saveDir, filename)

		size, err := savePart(part, dest)
		if err != nil {
			saveErr = err
			return
		}
		saved = append(saved, filename)

		replaceWithPlaceholder(part, filename, dest, size)
	})
	if saveErr != nil {
		return nil, nil, saveErr
	}

	timestamp := time.Now().UTC().Format(time.RFC3339)
	root.Header.Add(DetachedHeader, fmt.Sprintf("Detached %d attachment(s) at %s", len(saved), timestamp))

	var buf bytes.Buffer
	if err := root.Encode(&buf); err != nil {
		return nil, nil, fmt.Errorf("failed to encode cleaned message: %w", err)
	}

	return buf.Bytes(), saved, nil
}

// GetAttachmentInfo scans raw message bytes for attachments. Fallback for
// when no BODYSTRUCTURE fetch response is available.
func GetAttachmentInfo(raw []byte) (bool, []string) {
	root, err := enmime.ReadParts(bytes.NewReader(raw))
	if err != nil {
		log.Printf("Warning: Failed to parse message for attachment info: %v", err)
		return false, nil
	}

	var names []string
	walkParts(root, 0, func(part *enmime.Part) {
		if part.FirstChild != nil || !isAttachmentPart(part) {
			return
		}
		name := part.FileName
		if name == "" {
			name = "unnamed"
		}
		names = append(names, name)
	})

	return len(names) > 0, names
}

func walkParts(part *enmime.Part, depth int, fn func(*enmime.Part)) {
	if part == nil {
		return
	}
	if depth > maxPartDepth {
		log.Printf("Warning: MIME tree too deep at depth %d, stopping", depth)
		return
	}
	fn(part)
	for child := part.FirstChild; child != nil; child = child.NextSibling {
		walkParts(child, depth+1, fn)
	}
}

// isAttachmentPart reports whether a leaf part should be detached: an
// explicit attachment disposition, or a named application/image part.
func isAttachmentPart(part *enmime.Part) bool {
	if strings.Contains(strings.ToLower(part.Disposition), "attachment") {
		return true
	}
	contentType := strings.ToLower(part.ContentType)
	if part.FileName != "" &&
		(strings.HasPrefix(contentType, "application/") || strings.HasPrefix(contentType, "image/")) {
		return true
	}
	return false
}

// savePart writes a part's decoded content to dest. Returns the size in bytes.
func savePart(part *enmime.Part, dest string) (int, error) {
	if part.Content == nil {
		log.Printf("Warning: Empty payload for part, skipping save to %s", dest)
		return 0, nil
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return 0, fmt.Errorf("failed to create save directory: %w", err)
	}
	if err := os.WriteFile(dest, part.Content, 0o644); err != nil {
		return 0, fmt.Errorf("failed to save attachment: %w", err)
	}

	log.Printf("Saved attachment: %s (%d bytes)", dest, len(part.Content))
	return len(part.Content), nil
}

// replaceWithPlaceholder rewrites an attachment part as an inline text/plain
// note recording the original filename, size, and local save path.
func replaceWithPlaceholder(part *enmime.Part, name, localPath string, size int) {
	placeholder := fmt.Sprintf(
		"[Attachment detached by MailSweep]\nOriginal file: %s\nSize: %s\nSaved to: %s\n",
		name, HumanSize(int64(size)), localPath,
	)

	// Stale headers would otherwise survive re-encoding.
	part.Header.Del("Content-Type")
	part.Header.Del("Content-Transfer-Encoding")
	part.Header.Del("Content-Disposition")

	part.ContentType = "text/plain"
	part.ContentTypeParams = map[string]string{}
	part.Charset = "utf-8"
	part.Disposition = "inline"
	part.FileName = name + ".txt"
	part.Content = []byte(placeholder)
}

// safeFilename derives a filesystem-safe name for an attachment, prefixed
// with the message UID and part index so concurrent saves never collide.
// Path separators, traversal sequences, and non-printable characters are
// stripped.
func safeFilename(name string, uid int64, idx int) string {
	if name == "" {
		name = fmt.Sprintf("attachment_%d_%d", uid, idx)
	}

	name = path.Base(strings.ReplaceAll(name, "\\", "/"))

	var b strings.Builder
	for _, r := range name {
		if unicode.IsPrint(r) && !strings.ContainsRune(`/\:*?"<>|`, r) {
			b.WriteRune(r)
		}
	}
	name = strings.Trim(b.String(), ". ")
	if name == "" {
		name = fmt.Sprintf("attachment_%d_%d", uid, idx)
	}

	return fmt.Sprintf("%d_%d_%s", uid, idx, name)
}

// HumanSize formats a byte count like "2.3 MB".
func HumanSize(n int64) string {
	value := float64(n)
	for _, unit := range []string{"", "K", "M", "G", "T", "P", "E", "Z"} {
		if math.Abs(value) < 1024.0 {
			if unit == "" {
				return fmt.Sprintf("%d B", int64(value))
			}
			return fmt.Sprintf("%.1f %sB", value, unit)
		}
		value /= 1024.0
	}
	return fmt.Sprintf("%.1f YB", value)
}
