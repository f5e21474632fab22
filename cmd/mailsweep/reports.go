package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/jackc/pgx/v5/pgxpool"
	flag "github.com/spf13/pflag"

	"github.com/jitrc/MailSweep/internal/config"
	"github.com/jitrc/MailSweep/internal/db"
	"github.com/jitrc/MailSweep/internal/models"
)

func unlabelledMain(args []string) {
	cmd := flag.NewFlagSet("unlabelled", flag.ExitOnError)
	mode := cmd.String("mode", "", "matching mode: no_thread, in_reply_to or gmail_thread (default: config)")
	archive := cmd.String("archive", "", "archive folder holding every message (default: auto-detect)")
	limit := cmd.Int("limit", 50, "max messages to print")
	cmd.Parse(args)

	ctx := context.Background()
	cfg, pool := openCache(ctx)
	defer db.CloseConnection(pool)

	account := cacheAccount(ctx, cfg, pool)

	if *mode == "" {
		*mode = cfg.UnlabelledMode
	}
	switch *mode {
	case config.ModeNoThread, config.ModeInReplyTo, config.ModeGmailThread:
	default:
		log.Fatalf("unlabelled: unknown mode %q", *mode)
	}

	var allMail *models.Folder
	var err error
	if *archive != "" {
		allMail, err = db.GetFolderByName(ctx, pool, account.ID, *archive)
	} else {
		allMail, err = db.FindAllMailFolder(ctx, pool, account.ID)
	}
	if errors.Is(err, db.ErrFolderNotFound) {
		log.Fatalf("unlabelled: no archive folder in the cache; run a scan first or pass --archive")
	}
	if err != nil {
		log.Fatalf("unlabelled: %v", err)
	}

	folders, err := db.GetFoldersByAccount(ctx, pool, account.ID)
	if err != nil {
		log.Fatalf("unlabelled: %v", err)
	}
	var otherIDs []int64
	for _, f := range folders {
		if f.ID != allMail.ID {
			otherIDs = append(otherIDs, f.ID)
		}
	}

	count, size, err := db.GetUnlabelledStats(ctx, pool, allMail.ID, otherIDs, *mode)
	if err != nil {
		log.Fatalf("unlabelled: %v", err)
	}

	fmt.Printf("%d unlabelled message(s) in %s, %s (mode %s)\n",
		count, allMail.Name, humanSize(size), *mode)
	if count == 0 {
		return
	}

	messages, err := db.QueryUnlabelledMessages(ctx, pool, allMail.ID, otherIDs, *mode,
		db.MessageFilter{OrderBy: "size_bytes DESC", Limit: *limit})
	if err != nil {
		log.Fatalf("unlabelled: %v", err)
	}
	printMessages(messages)
}

func duplicatesMain(args []string) {
	cmd := flag.NewFlagSet("duplicates", flag.ExitOnError)
	cmd.Parse(args)

	ctx := context.Background()
	cfg, pool := openCache(ctx)
	defer db.CloseConnection(pool)

	account := cacheAccount(ctx, cfg, pool)

	// The archive folder holds a copy of everything, so it would make
	// every message a duplicate.
	var skipIDs []int64
	allMail, err := db.FindAllMailFolder(ctx, pool, account.ID)
	switch {
	case err == nil:
		skipIDs = append(skipIDs, allMail.ID)
	case errors.Is(err, db.ErrFolderNotFound):
	default:
		log.Fatalf("duplicates: %v", err)
	}

	report, err := db.FindCrossLabelDuplicates(ctx, pool, account.ID, skipIDs)
	if err != nil {
		log.Fatalf("duplicates: %v", err)
	}

	fmt.Printf("%d duplicate group(s), %s reclaimable\n",
		report.GroupCount, humanSize(report.DuplicateBytes))
	printMessages(report.Messages)
}

func detachedMain(args []string) {
	cmd := flag.NewFlagSet("detached", flag.ExitOnError)
	ratio := cmd.Float64("ratio", 0, "size ratio above which a pair qualifies (default: config)")
	cmd.Parse(args)

	ctx := context.Background()
	cfg, pool := openCache(ctx)
	defer db.CloseConnection(pool)

	account := cacheAccount(ctx, cfg, pool)

	if *ratio == 0 {
		*ratio = cfg.DetachedRatio
	}
	if *ratio <= 1.0 {
		log.Fatalf("detached: ratio must be greater than 1.0")
	}

	report, err := db.FindDetachedOriginals(ctx, pool, account.ID, *ratio)
	if err != nil {
		log.Fatalf("detached: %v", err)
	}

	fmt.Printf("%d original(s) still carrying attachments, %s\n",
		report.OriginalCount, humanSize(report.OriginalBytes))
	printMessages(report.Messages)
}

func summaryMain(args []string) {
	cmd := flag.NewFlagSet("summary", flag.ExitOnError)
	top := cmd.Int("top", 10, "how many senders to list")
	folder := cmd.String("folder", "", "list the top senders of one folder instead")
	cross := cmd.Int("cross", 0, "list senders spread across at least this many folders instead")
	cmd.Parse(args)

	ctx := context.Background()
	cfg, pool := openCache(ctx)
	defer db.CloseConnection(pool)

	account := cacheAccount(ctx, cfg, pool)

	if *folder != "" {
		folderSummary(ctx, pool, account.ID, *folder, *top)
		return
	}
	if *cross > 0 {
		crossSummary(ctx, pool, account.ID, *cross)
		return
	}

	folders, err := db.GetFolderTreeSummary(ctx, pool, account.ID)
	if err != nil {
		log.Fatalf("summary: %v", err)
	}
	if len(folders) == 0 {
		fmt.Println("Nothing cached yet; run a scan first.")
		return
	}

	sort.Slice(folders, func(i, j int) bool {
		return folders[i].TotalSizeBytes > folders[j].TotalSizeBytes
	})

	folderIDs := make([]int64, 0, len(folders))
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "FOLDER\tMESSAGES\tSIZE\tOLDEST\tNEWEST\n")
	var total int64
	for _, f := range folders {
		folderIDs = append(folderIDs, f.FolderID)
		total += f.TotalSizeBytes
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n",
			f.Name, f.MessageCount, humanSize(f.TotalSizeBytes),
			formatDate(f.OldestDate), formatDate(f.NewestDate))
	}
	fmt.Fprintf(w, "TOTAL\t\t%s\t\t\n", humanSize(total))
	w.Flush()

	dedupSize, dedupCount, err := db.GetDedupTotalSize(ctx, pool, folderIDs)
	if err != nil {
		log.Fatalf("summary: %v", err)
	}
	fmt.Printf("\nDeduplicated: %d unique message(s), %s\n", dedupCount, humanSize(dedupSize))

	senders, err := db.GetSenderSummary(ctx, pool, folderIDs)
	if err != nil {
		log.Fatalf("summary: %v", err)
	}
	if *top > 0 && len(senders) > *top {
		senders = senders[:*top]
	}
	if len(senders) == 0 {
		return
	}

	fmt.Println()
	printSenders(senders)
}

// folderSummary prints the heaviest senders of a single folder.
func folderSummary(ctx context.Context, pool *pgxpool.Pool, accountID int64, name string, top int) {
	folder, err := db.GetFolderByName(ctx, pool, accountID, name)
	if errors.Is(err, db.ErrFolderNotFound) {
		log.Fatalf("summary: folder %q is not in the cache; run a scan first", name)
	}
	if err != nil {
		log.Fatalf("summary: %v", err)
	}

	senders, err := db.GetTopSendersPerFolder(ctx, pool, folder.ID, top)
	if err != nil {
		log.Fatalf("summary: %v", err)
	}
	if len(senders) == 0 {
		fmt.Printf("No messages cached for %s.\n", folder.Name)
		return
	}

	fmt.Printf("Top senders in %s:\n", folder.Name)
	printSenders(senders)
}

// crossSummary prints senders whose mail is scattered over minFolders or
// more folders.
func crossSummary(ctx context.Context, pool *pgxpool.Pool, accountID int64, minFolders int) {
	senders, err := db.GetCrossFolderSenders(ctx, pool, accountID, minFolders)
	if err != nil {
		log.Fatalf("summary: %v", err)
	}
	if len(senders) == 0 {
		fmt.Printf("No sender appears in %d or more folders.\n", minFolders)
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "SENDER\tFOLDERS\tMESSAGES\tSPREAD\n")
	for _, s := range senders {
		fmt.Fprintf(w, "%s\t%d\t%d\t%s\n",
			truncate(s.Email, 48), s.FolderCount, s.TotalCount, truncate(s.FolderCounts, 64))
	}
	w.Flush()
}

func printSenders(senders []models.AddrSummary) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "SENDER\tMESSAGES\tSIZE\n")
	for _, s := range senders {
		display := s.Email
		if s.Display != nil && *s.Display != "" {
			display = *s.Display
		}
		fmt.Fprintf(w, "%s\t%d\t%s\n", truncate(display, 48), s.MessageCount, humanSize(s.TotalSizeBytes))
	}
	w.Flush()
}

// printMessages renders cached messages in query order.
func printMessages(messages []models.TaggedMessage) {
	if len(messages) == 0 {
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "UID\tFOLDER\tDATE\tFROM\tSUBJECT\tSIZE\tTAG\n")
	for _, m := range messages {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			m.UID,
			truncate(m.FolderName, 24),
			formatDate(m.Date),
			truncate(strValue(m.FromAddr), 32),
			truncate(strValue(m.Subject), 48),
			humanSize(m.SizeBytes),
			m.Tag)
	}
	w.Flush()
}
