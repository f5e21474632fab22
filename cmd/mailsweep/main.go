package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	imapclient "github.com/emersion/go-imap/client"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jitrc/MailSweep/internal/config"
	"github.com/jitrc/MailSweep/internal/db"
	"github.com/jitrc/MailSweep/internal/imap"
	"github.com/jitrc/MailSweep/internal/models"
)

func main() {
	log.SetFlags(0)
	if len(os.Args) < 2 {
		usage()
		return
	}
	switch os.Args[1] {
	case "scan":
		scanMain(os.Args[2:])
	case "serve":
		serveMain(os.Args[2:])
	case "unlabelled":
		unlabelledMain(os.Args[2:])
	case "duplicates":
		duplicatesMain(os.Args[2:])
	case "detached":
		detachedMain(os.Args[2:])
	case "detach":
		detachMain(os.Args[2:])
	case "move":
		moveMain(os.Args[2:])
	case "delete":
		deleteMain(os.Args[2:])
	case "remove-label":
		removeLabelMain(os.Args[2:])
	case "summary":
		summaryMain(os.Args[2:])
	case "help", "-h", "--help":
		usage()
	default:
		usage()
	}
}

func usage() {
	log.Println("Usage: mailsweep <command> [options]")
	log.Println("Commands:")
	log.Println("  scan          mirror folders into the local cache (--folders a,b | --all-folders)")
	log.Println("  serve         run the HTTP API and WebSocket server (--port)")
	log.Println("  unlabelled    archive messages filed nowhere else (--mode, --archive, --limit)")
	log.Println("  duplicates    copies of one message spread across folders")
	log.Println("  detached      originals still carrying detached attachments (--ratio)")
	log.Println("  summary       folder sizes and top senders (--top, --folder, --cross)")
	log.Println("  move          move messages between folders (--from, --to, --uids)")
	log.Println("  delete        delete messages via the trash folder (--folder, --uids, --trash)")
	log.Println("  remove-label  expunge one label's copy of messages (--folder, --uids)")
	log.Println("  detach        strip attachments to disk (--folder, --uids, --out)")
	log.Println()
	log.Println("Configuration comes from MAILSWEEP_* environment variables (or a .env file).")
}

// openCache loads the config, connects to Postgres and applies migrations.
// Every command starts here; wiring failures are fatal.
func openCache(ctx context.Context) (*config.Config, *pgxpool.Pool) {
	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	pool, err := db.NewConnection(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	if err := db.RunMigrations(ctx, pool); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	return cfg, pool
}

// resolveAccount upserts the account row for the configured IMAP identity.
// Commands that talk to the server use this.
func resolveAccount(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) *models.Account {
	if err := cfg.RequireIMAP(); err != nil {
		log.Fatalf("%v", err)
	}

	account := &models.Account{
		DisplayName: fmt.Sprintf("%s@%s", cfg.IMAPUsername, cfg.IMAPHost),
		Host:        cfg.IMAPHost,
		Port:        cfg.IMAPPort,
		Username:    cfg.IMAPUsername,
		AuthMode:    "password",
		UseTLS:      cfg.IMAPUseTLS,
	}
	if err := db.UpsertAccount(ctx, pool, account); err != nil {
		log.Fatalf("Failed to upsert account: %v", err)
	}

	return account
}

// cacheAccount finds the account the report commands should read. The
// configured IMAP identity wins when it matches a cached account;
// otherwise a lone cached account is used so reports work without
// credentials in the environment.
func cacheAccount(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) *models.Account {
	accounts, err := db.GetAllAccounts(ctx, pool)
	if err != nil {
		log.Fatalf("Failed to list accounts: %v", err)
	}
	if len(accounts) == 0 {
		log.Fatalf("No accounts in the cache; run a scan first")
	}

	for _, account := range accounts {
		if account.Host == cfg.IMAPHost && account.Username == cfg.IMAPUsername {
			return account
		}
	}
	if len(accounts) == 1 {
		return accounts[0]
	}

	log.Fatalf("Multiple accounts in the cache; set MAILSWEEP_IMAP_HOST and MAILSWEEP_IMAP_USERNAME to pick one")
	return nil
}

// connectIMAP opens and authenticates the configured IMAP connection.
func connectIMAP(cfg *config.Config) *imapclient.Client {
	if err := cfg.RequireIMAP(); err != nil {
		log.Fatalf("%v", err)
	}

	c, err := imap.ConnectToIMAP(cfg.GetIMAPAddress(), cfg.IMAPUseTLS)
	if err != nil {
		log.Fatalf("Failed to connect to %s: %v", cfg.GetIMAPAddress(), err)
	}
	if err := imap.Login(c, cfg.IMAPUsername, cfg.IMAPPassword); err != nil {
		log.Fatalf("Failed to log in as %s: %v", cfg.IMAPUsername, err)
	}

	return c
}

func humanSize(n int64) string {
	size := float64(n)
	for _, unit := range []string{"", "K", "M", "G", "T"} {
		if size < 1024.0 {
			if unit == "" {
				return fmt.Sprintf("%d B", n)
			}
			return fmt.Sprintf("%.1f %sB", size, unit)
		}
		size /= 1024.0
	}
	return fmt.Sprintf("%.1f PB", size)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func strValue(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02 15:04")
}
