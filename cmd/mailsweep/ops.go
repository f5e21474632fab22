package main

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"
	flag "github.com/spf13/pflag"

	"github.com/jitrc/MailSweep/internal/db"
	"github.com/jitrc/MailSweep/internal/imap"
)

func moveMain(args []string) {
	cmd := flag.NewFlagSet("move", flag.ExitOnError)
	from := cmd.String("from", "", "source folder")
	to := cmd.String("to", "", "destination folder")
	uids := cmd.Int64Slice("uids", nil, "message UIDs in the source folder")
	cmd.Parse(args)

	if *from == "" || *to == "" {
		log.Fatalf("move: --from and --to are required")
	}

	ctx := context.Background()
	cfg, pool := openCache(ctx)
	defer db.CloseConnection(pool)

	account := resolveAccount(ctx, cfg, pool)
	refs, err := loadRefs(ctx, pool, account.ID, *from, *uids)
	if err != nil {
		log.Fatalf("move: %v", err)
	}

	c := connectIMAP(cfg)
	defer imap.Logout(c)

	ops := &imap.Ops{Client: c, Pool: pool, Progress: printProgress}

	moves := make([]imap.MoveRequest, 0, len(refs))
	for _, ref := range refs {
		moves = append(moves, imap.MoveRequest{UID: ref.UID, SrcFolder: *from, DstFolder: *to})
	}

	moved, err := ops.MoveMessages(ctx, account.ID, moves)
	if err != nil {
		log.Fatalf("move: %v", err)
	}
	fmt.Printf("\nMoved %d message(s) from %s to %s\n", moved, *from, *to)
}

func deleteMain(args []string) {
	cmd := flag.NewFlagSet("delete", flag.ExitOnError)
	folderName := cmd.String("folder", "", "folder holding the messages")
	uids := cmd.Int64Slice("uids", nil, "message UIDs to delete")
	trash := cmd.String("trash", "", "trash folder (default: auto-detect)")
	cmd.Parse(args)

	ctx := context.Background()
	cfg, pool := openCache(ctx)
	defer db.CloseConnection(pool)

	account := resolveAccount(ctx, cfg, pool)
	refs, err := loadRefs(ctx, pool, account.ID, *folderName, *uids)
	if err != nil {
		log.Fatalf("delete: %v", err)
	}

	c := connectIMAP(cfg)
	defer imap.Logout(c)

	folders, err := imap.ListFolders(c)
	if err != nil {
		log.Fatalf("delete: %v", err)
	}
	override := *trash
	if override == "" {
		override = cfg.TrashFolder
	}
	trashFolder := imap.FindTrashFolder(folders, override)
	if trashFolder == "" {
		log.Fatalf("delete: no trash folder found on the server; pass --trash")
	}

	ops := &imap.Ops{Client: c, Pool: pool, Progress: printProgress}

	removed, err := ops.DeleteToTrash(ctx, refs, trashFolder)
	if err != nil {
		log.Fatalf("delete: %v", err)
	}
	fmt.Printf("\nDeleted %d message(s) from %s to %s\n", removed, *folderName, trashFolder)
}

func removeLabelMain(args []string) {
	cmd := flag.NewFlagSet("remove-label", flag.ExitOnError)
	folderName := cmd.String("folder", "", "folder (label) holding the copies")
	uids := cmd.Int64Slice("uids", nil, "message UIDs to remove from the folder")
	cmd.Parse(args)

	ctx := context.Background()
	cfg, pool := openCache(ctx)
	defer db.CloseConnection(pool)

	account := resolveAccount(ctx, cfg, pool)
	refs, err := loadRefs(ctx, pool, account.ID, *folderName, *uids)
	if err != nil {
		log.Fatalf("remove-label: %v", err)
	}

	c := connectIMAP(cfg)
	defer imap.Logout(c)

	ops := &imap.Ops{Client: c, Pool: pool, Progress: printProgress}

	removed, err := ops.RemoveLabel(ctx, refs)
	if err != nil {
		log.Fatalf("remove-label: %v", err)
	}
	fmt.Printf("\nRemoved %d message(s) from %s\n", removed, *folderName)
}

func detachMain(args []string) {
	cmd := flag.NewFlagSet("detach", flag.ExitOnError)
	folderName := cmd.String("folder", "", "folder holding the messages")
	uids := cmd.Int64Slice("uids", nil, "message UIDs to detach attachments from")
	out := cmd.String("out", "", "directory for saved attachments (default: config)")
	keep := cmd.Bool("keep-original", false, "save attachments without touching the server copy")
	cmd.Parse(args)

	ctx := context.Background()
	cfg, pool := openCache(ctx)
	defer db.CloseConnection(pool)

	account := resolveAccount(ctx, cfg, pool)
	refs, err := loadRefs(ctx, pool, account.ID, *folderName, *uids)
	if err != nil {
		log.Fatalf("detach: %v", err)
	}

	saveDir := *out
	if saveDir == "" {
		saveDir = cfg.AttachmentDir
	}

	c := connectIMAP(cfg)
	defer imap.Logout(c)

	ops := &imap.Ops{Client: c, Pool: pool, Progress: printProgress}

	results, err := ops.DetachAttachments(ctx, refs, saveDir, !*keep)
	if err != nil {
		log.Fatalf("detach: %v", err)
	}

	fmt.Println()
	saved := 0
	for _, res := range results {
		saved += len(res.SavedFiles)
		for _, name := range res.SavedFiles {
			fmt.Printf("  %s (uid %d)\n", name, res.UID)
		}
	}
	fmt.Printf("Saved %d attachment(s) from %d message(s) under %s\n", saved, len(results), saveDir)
}

// loadRefs resolves --folder/--uids to cached message refs. Every UID must
// be in the cache: operations run off cache state, so a stale cache means
// the user should rescan before deleting anything.
func loadRefs(ctx context.Context, pool *pgxpool.Pool, accountID int64, folderName string, uids []int64) ([]imap.MessageRef, error) {
	if folderName == "" {
		return nil, fmt.Errorf("--folder is required")
	}
	if len(uids) == 0 {
		return nil, fmt.Errorf("--uids is required")
	}

	folder, err := db.GetFolderByName(ctx, pool, accountID, folderName)
	if errors.Is(err, db.ErrFolderNotFound) {
		return nil, fmt.Errorf("folder %s is not in the cache; run a scan first", folderName)
	}
	if err != nil {
		return nil, err
	}

	messages, err := db.GetMessagesByUIDs(ctx, pool, folder.ID, uids)
	if err != nil {
		return nil, err
	}
	if len(messages) != len(uids) {
		return nil, fmt.Errorf("only %d of %d UIDs are cached for %s; rescan and retry",
			len(messages), len(uids), folderName)
	}

	refs := make([]imap.MessageRef, 0, len(messages))
	for _, m := range messages {
		refs = append(refs, imap.MessageRef{
			UID:        m.UID,
			FolderID:   m.FolderID,
			FolderName: m.FolderName,
			Subject:    strValue(m.Subject),
		})
	}
	return refs, nil
}

func printProgress(done, total int, status string) {
	fmt.Printf("  [%d/%d] %s\r", done, total, status)
}
