package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"text/tabwriter"

	flag "github.com/spf13/pflag"

	"github.com/jitrc/MailSweep/internal/db"
	"github.com/jitrc/MailSweep/internal/imap"
	"github.com/jitrc/MailSweep/internal/models"
)

func scanMain(args []string) {
	cmd := flag.NewFlagSet("scan", flag.ExitOnError)
	folders := cmd.StringSlice("folders", nil, "comma-separated folders to scan (default: all)")
	allFolders := cmd.Bool("all-folders", false, "scan every folder on the server")
	cmd.Parse(args)

	ctx := context.Background()
	cfg, pool := openCache(ctx)
	defer db.CloseConnection(pool)

	account := resolveAccount(ctx, cfg, pool)

	c := connectIMAP(cfg)
	defer imap.Logout(c)

	names := *folders
	if *allFolders || len(names) == 0 {
		listed, err := imap.ListFolders(c)
		if err != nil {
			log.Fatalf("scan: %v", err)
		}
		names = listed
	}

	folderRows := make([]*models.Folder, 0, len(names))
	for _, name := range names {
		folder, err := db.GetFolderByName(ctx, pool, account.ID, name)
		if errors.Is(err, db.ErrFolderNotFound) {
			folder = &models.Folder{AccountID: account.ID, Name: name}
			err = db.UpsertFolder(ctx, pool, folder)
		}
		if err != nil {
			log.Fatalf("scan: failed to prepare folder %s: %v", name, err)
		}
		folderRows = append(folderRows, folder)
	}

	fmt.Printf("Scanning %d folder(s) on %s\n", len(folderRows), cfg.GetIMAPAddress())

	// Ctrl-C cancels at the next batch or folder boundary.
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	var results []*models.Folder
	scanner := &imap.Scanner{
		Client:           c,
		Pool:             pool,
		BatchSize:        cfg.ScanBatchSize,
		UseGmailThreadID: imap.SupportsGmailExtensions(c),
		Events: func(event models.ScanEvent) {
			switch event.Type {
			case models.ScanEventBatchDone:
				fmt.Printf("  [%s] %d/%d\r", event.Folder, event.Done, event.Total)
			case models.ScanEventFolderDone:
				if event.Stats != nil {
					fmt.Printf("  [%s] %d messages, %s\n",
						event.Folder, event.Stats.MessageCount, humanSize(event.Stats.TotalSizeBytes))
					results = append(results, event.Stats)
				}
			case models.ScanEventError:
				fmt.Printf("  [%s] error: %s\n", event.Folder, event.Error)
			}
		},
	}

	err := scanner.Run(ctx, folderRows)
	switch {
	case errors.Is(err, imap.ErrScanCancelled):
		fmt.Println("\nScan cancelled")
	case err != nil:
		log.Fatalf("scan: %v", err)
	}

	printScanSummary(results)
}

// printScanSummary renders the per-folder totals, largest first.
func printScanSummary(folders []*models.Folder) {
	if len(folders) == 0 {
		return
	}
	sort.Slice(folders, func(i, j int) bool {
		return folders[i].TotalSizeBytes > folders[j].TotalSizeBytes
	})

	fmt.Println()
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "FOLDER\tMESSAGES\tSIZE\n")
	var total int64
	for _, f := range folders {
		fmt.Fprintf(w, "%s\t%d\t%s\n", f.Name, f.MessageCount, humanSize(f.TotalSizeBytes))
		total += f.TotalSizeBytes
	}
	fmt.Fprintf(w, "TOTAL\t\t%s\n", humanSize(total))
	w.Flush()
}
