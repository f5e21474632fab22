package imap

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/emersion/go-imap"
	move "github.com/emersion/go-imap-move"
	uidplus "github.com/emersion/go-imap-uidplus"
	imapclient "github.com/emersion/go-imap/client"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jitrc/MailSweep/internal/db"
	"github.com/jitrc/MailSweep/internal/detach"
)

// MoveRequest is one message to move between folders.
type MoveRequest struct {
	UID       int64
	SrcFolder string
	DstFolder string
}

// MessageRef identifies one cached message for a destructive operation.
type MessageRef struct {
	UID        int64
	FolderID   int64
	FolderName string
	Subject    string
}

// DetachResult reports the attachments saved for one message.
type DetachResult struct {
	UID        int64
	FolderID   int64
	FolderName string
	SavedFiles []string
}

// Ops executes destructive mailbox operations over a single connection,
// keeping the local cache in step with what succeeded. Per-message and
// per-group failures are logged and skipped; the counts returned cover
// only what actually happened on the server.
type Ops struct {
	Client *imapclient.Client
	Pool   *pgxpool.Pool

	// Progress receives per-step notifications. May be nil.
	Progress func(done, total int, status string)
}

func (o *Ops) progress(done, total int, status string) {
	if o.Progress != nil {
		o.Progress(done, total, status)
	}
}

// MoveMessages moves messages between folders, grouped by source folder to
// minimize SELECT switches. Servers without MOVE (RFC 6851) get the
// copy+delete+expunge fallback. Returns how many messages were moved.
func (o *Ops) MoveMessages(ctx context.Context, accountID int64, moves []MoveRequest) (int, error) {
	if len(moves) == 0 {
		return 0, nil
	}

	total := len(moves)
	done := 0
	moved := 0
	mover := move.NewClient(o.Client)

	bySrc := make(map[string][]MoveRequest)
	var srcOrder []string
	for _, m := range moves {
		if _, ok := bySrc[m.SrcFolder]; !ok {
			srcOrder = append(srcOrder, m.SrcFolder)
		}
		bySrc[m.SrcFolder] = append(bySrc[m.SrcFolder], m)
	}

	for _, srcFolder := range srcOrder {
		if ctx.Err() != nil {
			return moved, ctx.Err()
		}
		ops := bySrc[srcFolder]

		if _, err := SelectFolder(o.Client, srcFolder, false); err != nil {
			log.Printf("Warning: Cannot select folder %s: %v", srcFolder, err)
			done += len(ops)
			continue
		}

		byDst := make(map[string][]int64)
		var dstOrder []string
		for _, op := range ops {
			if _, ok := byDst[op.DstFolder]; !ok {
				dstOrder = append(dstOrder, op.DstFolder)
			}
			byDst[op.DstFolder] = append(byDst[op.DstFolder], op.UID)
		}

		for _, dstFolder := range dstOrder {
			if ctx.Err() != nil {
				return moved, ctx.Err()
			}
			uids := byDst[dstFolder]

			o.progress(done, total, fmt.Sprintf("Moving to %s...", dstFolder))

			if err := mover.UidMoveWithFallback(uidSeqSet(uids), dstFolder); err != nil {
				log.Printf("Warning: Move failed %s -> %s: %v", srcFolder, dstFolder, err)
			} else {
				o.updateCacheAfterMove(ctx, accountID, srcFolder, dstFolder, uids)
				moved += len(uids)
				log.Printf("Moved %d message(s) from %s to %s", len(uids), srcFolder, dstFolder)
			}

			done += len(uids)
			o.progress(done, total, fmt.Sprintf("Moved %d/%d", done, total))
		}
	}

	return moved, nil
}

// updateCacheAfterMove repoints the cached rows at the destination folder
// and recomputes both folders' stats. Best effort: the next scan reconciles
// anything this misses.
func (o *Ops) updateCacheAfterMove(ctx context.Context, accountID int64, srcFolder, dstFolder string, uids []int64) {
	src, err := db.GetFolderByName(ctx, o.Pool, accountID, srcFolder)
	if err != nil {
		log.Printf("Warning: Cache update after move failed: %v", err)
		return
	}
	dst, err := db.GetFolderByName(ctx, o.Pool, accountID, dstFolder)
	if err != nil {
		log.Printf("Warning: Cache update after move failed: %v", err)
		return
	}

	if err := db.ReassignMessageFolder(ctx, o.Pool, src.ID, dst.ID, uids); err != nil {
		log.Printf("Warning: Cache update after move failed: %v", err)
		return
	}
	for _, folderID := range []int64{src.ID, dst.ID} {
		if err := db.UpdateFolderStats(ctx, o.Pool, folderID); err != nil {
			log.Printf("Warning: Failed to update folder stats: %v", err)
		}
	}
}

// DeleteToTrash deletes messages the Gmail-safe way: copy to the trash
// folder first (skipped for messages already there), then flag \Deleted and
// expunge. An empty trashFolder skips the copy step entirely. Returns how
// many messages were deleted.
func (o *Ops) DeleteToTrash(ctx context.Context, messages []MessageRef, trashFolder string) (int, error) {
	return o.removeMessages(ctx, messages, trashFolder, "Deleting")
}

// RemoveLabel expunges messages from their folders without a trash copy.
// Meant for cross-label duplicates: the message still exists under its
// other labels, so removing this copy loses nothing.
func (o *Ops) RemoveLabel(ctx context.Context, messages []MessageRef) (int, error) {
	return o.removeMessages(ctx, messages, "", "Removing")
}

func (o *Ops) removeMessages(ctx context.Context, messages []MessageRef, trashFolder, verb string) (int, error) {
	if len(messages) == 0 {
		return 0, nil
	}

	total := len(messages)
	done := 0
	removed := 0

	uplus := uidplus.NewClient(o.Client)
	supportsUIDPlus, err := uplus.SupportUidPlus()
	if err != nil {
		supportsUIDPlus = false
	}

	byFolder, folderOrder := groupByFolder(messages)
	processed := make(map[int64][]int64)

	for _, folderName := range folderOrder {
		if ctx.Err() != nil {
			o.flushRemoved(ctx, processed)
			return removed, ctx.Err()
		}
		refs := byFolder[folderName]

		if _, err := SelectFolder(o.Client, folderName, false); err != nil {
			log.Printf("Warning: Cannot select folder %s: %v", folderName, err)
			done += len(refs)
			continue
		}

		for _, ref := range refs {
			if ctx.Err() != nil {
				o.flushRemoved(ctx, processed)
				return removed, ctx.Err()
			}

			o.progress(done, total, fmt.Sprintf("%s %s...", verb, truncate(ref.Subject, 40)))

			if err := o.removeOne(uplus, supportsUIDPlus, ref, trashFolder); err != nil {
				log.Printf("Warning: Failed to remove UID %d from %s: %v", ref.UID, ref.FolderName, err)
			} else {
				processed[ref.FolderID] = append(processed[ref.FolderID], ref.UID)
				removed++
			}

			done++
			o.progress(done, total, fmt.Sprintf("Processed %d/%d", done, total))
		}
	}

	o.flushRemoved(ctx, processed)
	return removed, nil
}

// removeOne runs the copy/flag/expunge sequence for a single message in the
// currently selected folder. The trash copy comes first so a failure partway
// through never loses the only copy.
func (o *Ops) removeOne(uplus *uidplus.Client, supportsUIDPlus bool, ref MessageRef, trashFolder string) error {
	seqSet := uidSeqSet([]int64{ref.UID})

	if trashFolder != "" && ref.FolderName != trashFolder {
		if err := o.Client.UidCopy(seqSet, trashFolder); err != nil {
			return fmt.Errorf("failed to copy to %s: %w", trashFolder, err)
		}
		log.Printf("Copied UID %d from %s to %s", ref.UID, ref.FolderName, trashFolder)
	}

	if err := o.flagDeleted(seqSet); err != nil {
		return err
	}

	if !supportsUIDPlus {
		log.Printf("Warning: UID EXPUNGE not supported for UID %d in %s, message flagged but not expunged",
			ref.UID, ref.FolderName)
		return nil
	}
	if err := uplus.UidExpunge(seqSet, nil); err != nil {
		return fmt.Errorf("failed to expunge: %w", err)
	}

	return nil
}

// flushRemoved drops the removed UIDs from the cache and recomputes stats
// for every touched folder.
func (o *Ops) flushRemoved(ctx context.Context, processed map[int64][]int64) {
	for folderID, uids := range processed {
		if err := db.DeleteMessagesByUID(ctx, o.Pool, folderID, uids); err != nil {
			log.Printf("Warning: Cache update after remove failed: %v", err)
			continue
		}
		if err := db.UpdateFolderStats(ctx, o.Pool, folderID); err != nil {
			log.Printf("Warning: Failed to update folder stats: %v", err)
		}
	}
}

// DetachAttachments rewrites messages in place on the server: fetch the full
// body, strip attachments to saveDir, append the cleaned message with the
// original flags and internal date, then flag the original \Deleted and
// expunge it. Messages without attachments are left untouched. Each replaced
// message is dropped from the cache; the next scan picks up the replacement
// under its new UID.
//
// With replaceOnServer false the attachments are saved but the mailbox is
// not modified.
func (o *Ops) DetachAttachments(ctx context.Context, messages []MessageRef, saveDir string, replaceOnServer bool) ([]DetachResult, error) {
	if len(messages) == 0 {
		return nil, nil
	}

	total := len(messages)
	done := 0
	var results []DetachResult

	uplus := uidplus.NewClient(o.Client)
	supportsUIDPlus, err := uplus.SupportUidPlus()
	if err != nil {
		supportsUIDPlus = false
	}

	byFolder, folderOrder := groupByFolder(messages)
	replaced := make(map[int64][]int64)

	for _, folderName := range folderOrder {
		if ctx.Err() != nil {
			o.flushRemoved(ctx, replaced)
			return results, ctx.Err()
		}
		refs := byFolder[folderName]

		if _, err := SelectFolder(o.Client, folderName, false); err != nil {
			log.Printf("Warning: Cannot select folder %s: %v", folderName, err)
			continue
		}

		for _, ref := range refs {
			if ctx.Err() != nil {
				o.flushRemoved(ctx, replaced)
				return results, ctx.Err()
			}

			o.progress(done, total, fmt.Sprintf("Detaching attachments from %s...", truncate(ref.Subject, 40)))

			saved, err := o.detachOne(uplus, supportsUIDPlus, ref, saveDir, replaceOnServer)
			if err != nil {
				log.Printf("Warning: Failed to detach UID %d in %s: %v", ref.UID, ref.FolderName, err)
				done++
				continue
			}

			if len(saved) == 0 {
				log.Printf("No attachments found in UID %d", ref.UID)
				done++
				o.progress(done, total, fmt.Sprintf("No attachments in UID %d", ref.UID))
				continue
			}

			results = append(results, DetachResult{
				UID:        ref.UID,
				FolderID:   ref.FolderID,
				FolderName: ref.FolderName,
				SavedFiles: saved,
			})
			if replaceOnServer {
				replaced[ref.FolderID] = append(replaced[ref.FolderID], ref.UID)
			}

			done++
			o.progress(done, total, fmt.Sprintf("Detached %d/%d", done, total))
		}
	}

	o.flushRemoved(ctx, replaced)
	return results, nil
}

func (o *Ops) detachOne(uplus *uidplus.Client, supportsUIDPlus bool, ref MessageRef, saveDir string, replaceOnServer bool) ([]string, error) {
	raw, flags, internalDate, err := FetchRawMessage(o.Client, uint32(ref.UID))
	if err != nil {
		return nil, err
	}

	subject := ref.Subject
	if subject == "" {
		subject = "no_subject"
	}
	subdir := filepath.Join(saveDir, slug(ref.FolderName), fmt.Sprintf("%d_%s", ref.UID, truncate(slug(subject), 60)))

	cleaned, saved, err := detach.StripAttachments(raw, subdir, ref.UID)
	if err != nil {
		return nil, err
	}
	if len(saved) == 0 || !replaceOnServer {
		return saved, nil
	}

	appendFlags := make([]string, 0, len(flags))
	for _, flag := range flags {
		if flag != imap.RecentFlag {
			appendFlags = append(appendFlags, flag)
		}
	}

	log.Printf("APPEND stripped message to %s (orig UID %d, %d -> %d bytes)",
		ref.FolderName, ref.UID, len(raw), len(cleaned))
	if err := o.Client.Append(ref.FolderName, appendFlags, internalDate, bytes.NewBuffer(cleaned)); err != nil {
		return nil, fmt.Errorf("failed to append cleaned message: %w", err)
	}

	seqSet := uidSeqSet([]int64{ref.UID})
	if err := o.flagDeleted(seqSet); err != nil {
		return nil, err
	}

	if supportsUIDPlus {
		if err := uplus.UidExpunge(seqSet, nil); err != nil {
			return nil, fmt.Errorf("failed to expunge: %w", err)
		}
	} else if err := o.Client.Expunge(nil); err != nil {
		return nil, fmt.Errorf("failed to expunge: %w", err)
	}

	return saved, nil
}

func (o *Ops) flagDeleted(seqSet *imap.SeqSet) error {
	item := imap.FormatFlagsOp(imap.AddFlags, true)
	if err := o.Client.UidStore(seqSet, item, []interface{}{imap.DeletedFlag}, nil); err != nil {
		return fmt.Errorf("failed to flag deleted: %w", err)
	}
	return nil
}

func uidSeqSet(uids []int64) *imap.SeqSet {
	seqSet := new(imap.SeqSet)
	for _, uid := range uids {
		seqSet.AddNum(uint32(uid))
	}
	return seqSet
}

func groupByFolder(messages []MessageRef) (map[string][]MessageRef, []string) {
	byFolder := make(map[string][]MessageRef)
	var order []string
	for _, m := range messages {
		if _, ok := byFolder[m.FolderName]; !ok {
			order = append(order, m.FolderName)
		}
		byFolder[m.FolderName] = append(byFolder[m.FolderName], m)
	}
	return byFolder, order
}

// slug converts text to a safe filesystem path segment.
func slug(text string) string {
	var b strings.Builder
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' || r == '-' || r == '_' || r == '.' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return strings.TrimSpace(b.String())
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
