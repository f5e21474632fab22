package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	flag "github.com/spf13/pflag"

	"github.com/jitrc/MailSweep/internal/api"
	"github.com/jitrc/MailSweep/internal/config"
	"github.com/jitrc/MailSweep/internal/db"
	ws "github.com/jitrc/MailSweep/internal/websocket"
)

func serveMain(args []string) {
	cmd := flag.NewFlagSet("serve", flag.ExitOnError)
	port := cmd.String("port", "", "listen port (default: PORT or 8080)")
	cmd.Parse(args)

	ctx := context.Background()
	cfg, pool := openCache(ctx)
	defer db.CloseConnection(pool)

	if *port != "" {
		cfg.Port = *port
	}

	account := resolveAccount(ctx, cfg, pool)

	server := newServer(cfg, pool, account.ID)

	address := ":" + cfg.Port
	log.Printf("MailSweep server starting on %s (environment: %s, account: %s)",
		address, cfg.Environment, account.DisplayName)

	if err := http.ListenAndServe(address, server); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}

// newServer creates and returns the HTTP handler for the MailSweep API.
// All handlers serve the one configured account; scans started over the
// API broadcast their progress to every WebSocket client.
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
	_, _ = fmt.Fprintf(w, "MailSweep API is running")
}
