// Command test-server runs a self-contained MailSweep stack for manual
// testing and E2E runs: a throwaway Postgres container, an in-process IMAP
// server seeded with a Gmail-shaped mailbox, and the HTTP API on top.
package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/jitrc/MailSweep/internal/api"
	"github.com/jitrc/MailSweep/internal/config"
	"github.com/jitrc/MailSweep/internal/db"
	"github.com/jitrc/MailSweep/internal/detach"
	"github.com/jitrc/MailSweep/internal/imap"
	"github.com/jitrc/MailSweep/internal/models"
	"github.com/jitrc/MailSweep/internal/testutil"
	ws "github.com/jitrc/MailSweep/internal/websocket"
)

func main() {
	ctx := context.Background()

	// Start test IMAP server
	imapServer, err := startIMAPServer()
	if err != nil {
		log.Fatalf("Failed to start IMAP server: %v", err)
	}
	defer imapServer.Close()

	// Seed a Gmail-shaped mailbox into the IMAP server
	if err := seedMailbox(imapServer); err != nil {
		log.Fatalf("Failed to seed mailbox: %v", err)
	}

	// Setup environment variables so config picks up the test servers
	if err := setupTestEnvironment(imapServer); err != nil {
		log.Fatalf("Failed to setup test environment: %v", err)
	}

	// Start Postgres database
	postgresContainer, connStr, err := startPostgres(ctx)
	if err != nil {
		log.Fatalf("Failed to start Postgres: %v", err)
	}
	defer func() {
		if err := postgresContainer.Terminate(ctx); err != nil {
			log.Printf("Failed to terminate Postgres container: %v", err)
		}
	}()

	// Setup database connection and run migrations
	cfg, pool, err := setupDatabase(ctx, connStr)
	if err != nil {
		log.Fatalf("Failed to setup database: %v", err)
	}
	defer pool.Close()

	// Register the account and mirror the mailbox into the cache
	account, err := seedAccount(ctx, pool, cfg)
	if err != nil {
		log.Fatalf("Failed to seed account: %v", err)
	}

	if err := initialScan(ctx, pool, cfg, account.ID); err != nil {
		log.Printf("Warning: Initial scan failed: %v", err)
	}

	// Start HTTP server
	if err := startHTTPServer(cfg, pool, account.ID, imapServer); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

// startIMAPServer starts the in-process test IMAP server.
func startIMAPServer() (*testutil.TestIMAPServer, error) {
	log.Println("Starting test IMAP server...")
	imapServer, err := testutil.NewTestIMAPServerForE2E()
	if err != nil {
		return nil, fmt.Errorf("failed to start test IMAP server: %w", err)
	}
	log.Printf("Test IMAP server started on %s", imapServer.Address)
	return imapServer, nil
}

// setupTestEnvironment points the MailSweep config at the test servers.
func setupTestEnvironment(imapServer *testutil.TestIMAPServer) error {
	host, port, err := net.SplitHostPort(imapServer.Address)
	if err != nil {
		return fmt.Errorf("failed to split IMAP address: %w", err)
	}

	vars := map[string]string{
		"MAILSWEEP_ENV":           "test",
		"MAILSWEEP_DB_PASSWORD":   "mailsweep",
		"MAILSWEEP_IMAP_HOST":     host,
		"MAILSWEEP_IMAP_PORT":     port,
		"MAILSWEEP_IMAP_USERNAME": imapServer.Username(),
		"MAILSWEEP_IMAP_PASSWORD": imapServer.Password(),
		"MAILSWEEP_IMAP_TLS":      "false",
	}
	for key, value := range vars {
		if err := os.Setenv(key, value); err != nil {
			return fmt.Errorf("failed to set %s: %w", key, err)
		}
	}

	return nil
}

// startPostgres starts a test Postgres database using testcontainers.
func startPostgres(ctx context.Context) (testcontainers.Container, string, error) {
	log.Println("Starting test Postgres database...")
	postgresContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("mailsweep_test"),
		postgres.WithUsername("mailsweep"),
		postgres.WithPassword("mailsweep"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		return nil, "", fmt.Errorf("failed to start Postgres container: %w", err)
	}

	connStr, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return nil, "", fmt.Errorf("failed to get connection string: %w", err)
	}

	log.Println("Test Postgres database started")
	return postgresContainer, connStr, nil
}

// setupDatabase creates a database connection pool and runs migrations.
func setupDatabase(ctx context.Context, connStr string) (*config.Config, *pgxpool.Pool, error) {
	cfg, err := config.NewConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	poolConfig.MaxConns = 25
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := testutil.RunMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Println("Successfully connected to database and ran migrations")
	return cfg, pool, nil
}

// seedAccount registers the test IMAP account in the cache.
func seedAccount(ctx context.Context, pool *pgxpool.Pool, cfg *config.Config) (*models.Account, error) {
	account := &models.Account{
		DisplayName: fmt.Sprintf("%s@%s", cfg.IMAPUsername, cfg.IMAPHost),
		Host:        cfg.IMAPHost,
		Port:        cfg.IMAPPort,
		Username:    cfg.IMAPUsername,
		AuthMode:    "password",
		UseTLS:      cfg.IMAPUseTLS,
	}
	if err := db.UpsertAccount(ctx, pool, account); err != nil {
		return nil, fmt.Errorf("failed to upsert account: %w", err)
	}
	return account, nil
}

// initialScan mirrors every folder once so the API starts with data.
func initialScan(ctx context.Context, pool *pgxpool.Pool, cfg *config.Config, accountID int64) error {
	c, err := imap.ConnectToIMAP(cfg.GetIMAPAddress(), cfg.IMAPUseTLS)
	if err != nil {
		return fmt.Errorf("failed to connect to IMAP server: %w", err)
	}
	defer imap.Logout(c)

	if err := imap.Login(c, cfg.IMAPUsername, cfg.IMAPPassword); err != nil {
		return fmt.Errorf("failed to login: %w", err)
	}

	names, err := imap.ListFolders(c)
	if err != nil {
		return fmt.Errorf("failed to list folders: %w", err)
	}

	folders := make([]*models.Folder, 0, len(names))
	for _, name := range names {
		folder := &models.Folder{AccountID: accountID, Name: name}
		if err := db.UpsertFolder(ctx, pool, folder); err != nil {
			return fmt.Errorf("failed to upsert folder %s: %w", name, err)
		}
		folders = append(folders, folder)
	}

	scanner := &imap.Scanner{
		Client:           c,
		Pool:             pool,
		BatchSize:        cfg.ScanBatchSize,
		UseGmailThreadID: imap.SupportsGmailExtensions(c),
		Events: func(event models.ScanEvent) {
			switch event.Type {
			case models.ScanEventFolderDone:
				if event.Stats != nil {
					log.Printf("Scanned %s: %d message(s)", event.Folder, event.Stats.MessageCount)
				}
			case models.ScanEventError:
				log.Printf("Scan error in %s: %s", event.Folder, event.Error)
			}
		},
	}
	return scanner.Run(ctx, folders)
}

// startHTTPServer starts the HTTP server and waits for shutdown signals.
func startHTTPServer(cfg *config.Config, dbPool *pgxpool.Pool, accountID int64, imapServer *testutil.TestIMAPServer) error {
	server := newServer(cfg, dbPool, accountID)
	address := ":" + cfg.Port

	log.Printf("MailSweep test server starting on %s", address)
	log.Printf("Test IMAP server: %s (username: %s, password: %s)", imapServer.Address, imapServer.Username(), imapServer.Password())
	log.Println("Server ready for E2E tests. Press Ctrl+C to stop.")

	serverErr := make(chan error, 1)
	go func() {
		if err := http.ListenAndServe(address, server); err != nil {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Printf("Received signal %v, shutting down...", sig)
		return nil
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	}
}

// newServer wires the same routes as the serve command.
func newServer(cfg *config.Config, pool *pgxpool.Pool, accountID int64) http.Handler {
	wsHub := ws.NewHub(10)

	scanHandler := api.NewScanHandler(pool, cfg, wsHub, accountID)
	foldersHandler := api.NewFoldersHandler(pool, accountID)
	messagesHandler := api.NewMessagesHandler(pool, accountID)
	unlabelledHandler := api.NewUnlabelledHandler(pool, cfg, accountID)
	duplicatesHandler := api.NewDuplicatesHandler(pool, cfg, accountID)
	summaryHandler := api.NewSummaryHandler(pool, accountID)
	wsHandler := api.NewWebSocketHandler(wsHub)

	mux := http.NewServeMux()

	mux.HandleFunc("/", handleRoot)

	mux.HandleFunc("/api/v1/scan", scanHandler.StartScan)
	mux.HandleFunc("/api/v1/scan/cancel", scanHandler.CancelScan)
	mux.HandleFunc("/api/v1/scan/status", scanHandler.ScanStatus)
	mux.HandleFunc("/api/v1/folders", foldersHandler.GetFolders)
	mux.HandleFunc("/api/v1/messages", messagesHandler.GetMessages)
	mux.HandleFunc("/api/v1/messages/copies", messagesHandler.GetCopies)
	mux.HandleFunc("/api/v1/unlabelled", unlabelledHandler.GetUnlabelled)
	mux.HandleFunc("/api/v1/duplicates", duplicatesHandler.GetDuplicates)
	mux.HandleFunc("/api/v1/detached", duplicatesHandler.GetDetached)
	mux.HandleFunc("/api/v1/summary/senders", summaryHandler.GetSenders)
	mux.HandleFunc("/api/v1/summary/receivers", summaryHandler.GetReceivers)
	mux.HandleFunc("/api/v1/ws", wsHandler.Handle)

	return mux
}

func handleRoot(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "MailSweep test server is running")
}

// seedMailbox fills the IMAP server with messages that light up every
// report: a cross-label duplicate, an unlabelled message, an attachment,
// and a detached original next to its stripped copy.
func seedMailbox(imapServer *testutil.TestIMAPServer) error {
	for _, name := range []string{"[Gmail]/All Mail", "Work", "Receipts", "Trash"} {
		if err := imapServer.CreateFolderForE2E(name); err != nil {
			return fmt.Errorf("failed to create folder %s: %w", name, err)
		}
	}

	now := time.Now().UTC().Truncate(time.Second)
	standupAt := now.Add(-48 * time.Hour)
	invoiceAt := now.Add(-24 * time.Hour)
	mediaAt := now.Add(-72 * time.Hour)
	digestAt := now.Add(-12 * time.Hour)

	// In Gmail terms every message lives in All Mail plus zero or more
	// label folders. The digest has no label, so it only shows up there.
	standup := buildMessage("<standup-w34@example.com>", "Team standup notes",
		"Alice Chen <alice@example.com>", "team@example.com", standupAt,
		"Highlights from this week's standups.")
	invoice := buildAttachmentMessage("<invoice-0451@example.com>", "Quarterly invoice",
		"Billing <billing@example.com>", "user@example.com", invoiceAt, 30)
	mediaFull := buildAttachmentMessage("<media-kit@example.com>", "Media kit",
		"Marketing <marketing@example.com>", "user@example.com", mediaAt, 45)
	mediaStripped := buildStrippedMessage("<media-kit@example.com>", "Media kit",
		"Marketing <marketing@example.com>", "user@example.com", mediaAt)
	digest := buildMessage("<weekly-digest-34@example.com>", "Weekly digest",
		"Newsroom <news@example.com>", "user@example.com", digestAt,
		"Stories you may have missed this week.")

	seeds := []struct {
		folder string
		raw    string
	}{
		{"INBOX", standup},
		{"Work", standup},
		{"[Gmail]/All Mail", standup},
		{"Receipts", invoice},
		{"[Gmail]/All Mail", invoice},
		{"INBOX", mediaFull},
		{"INBOX", mediaStripped},
		{"[Gmail]/All Mail", mediaFull},
		{"[Gmail]/All Mail", mediaStripped},
		{"[Gmail]/All Mail", digest},
	}
	for _, seed := range seeds {
		if _, err := imapServer.AppendRawForE2E(seed.folder, seed.raw, nil, now); err != nil {
			return fmt.Errorf("failed to seed %s: %w", seed.folder, err)
		}
	}

	return nil
}

// buildMessage renders a plain single-part message.
func buildMessage(messageID, subject, from, to string, sentAt time.Time, body string) string {
	lines := []string{
		"Message-ID: " + messageID,
		"Date: " + sentAt.Format(time.RFC1123Z),
		"From: " + from,
		"To: " + to,
		"Subject: " + subject,
		"Content-Type: text/plain; charset=utf-8",
		"",
		body,
		"",
	}
	return strings.Join(lines, "\r\n")
}

// buildStrippedMessage renders what a message looks like after the detach
// engine ran on it: placeholder body, audit header, original Message-ID.
func buildStrippedMessage(messageID, subject, from, to string, sentAt time.Time) string {
	stamp := time.Now().UTC().Format(time.RFC3339)
	lines := []string{
		"Message-ID: " + messageID,
		"Date: " + sentAt.Format(time.RFC1123Z),
		"From: " + from,
		"To: " + to,
		"Subject: " + subject,
		detach.DetachedHeader + ": Detached 1 attachment(s) at " + stamp,
		"Content-Type: text/plain; charset=utf-8",
		"",
		"[Attachment removed: media-kit.pdf]",
		"",
	}
	return strings.Join(lines, "\r\n")
}

// buildAttachmentMessage renders a multipart message carrying a base64 PDF
// attachment of roughly sizeKB kilobytes.
func buildAttachmentMessage(messageID, subject, from, to string, sentAt time.Time, sizeKB int) string {
	// 60 base64 characters per line, about 17 lines per KB of encoded text.
	const fillerLine = "QUJDREVGR0hJSktMTU5PUFFSU1RVVldYWVpBQkNERUZHSElKS0xNTk9QUVJT"
	filler := make([]string, 0, sizeKB*17)
	for i := 0; i < sizeKB*17; i++ {
		filler = append(filler, fillerLine)
	}

	lines := []string{
		"Message-ID: " + messageID,
		"Date: " + sentAt.Format(time.RFC1123Z),
		"From: " + from,
		"To: " + to,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		`Content-Type: multipart/mixed; boundary="mixed42"`,
		"",
		"--mixed42",
		"Content-Type: text/plain; charset=utf-8",
		"",
		"See the attached file.",
		"--mixed42",
		`Content-Type: application/pdf; name="document.pdf"`,
		`Content-Disposition: attachment; filename="document.pdf"`,
		"Content-Transfer-Encoding: base64",
		"",
	}
	lines = append(lines, filler...)
	lines = append(lines, "--mixed42--", "")
	return strings.Join(lines, "\r\n")
}
