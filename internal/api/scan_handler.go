package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"sync"

	"github.com/emersion/go-imap/client"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jitrc/MailSweep/internal/config"
	"github.com/jitrc/MailSweep/internal/db"
	"github.com/jitrc/MailSweep/internal/imap"
	"github.com/jitrc/MailSweep/internal/models"
	ws "github.com/jitrc/MailSweep/internal/websocket"
)

// ScanHandler starts and cancels scan runs. At most one run is active at
// a time; every scan event is broadcast as JSON through the hub so all
// connected clients see the same progress.
type ScanHandler struct {
	pool      *pgxpool.Pool
	cfg       *config.Config
	hub       *ws.Hub
	accountID int64

	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool
	runID   string
}

// NewScanHandler creates a new ScanHandler instance.
func NewScanHandler(pool *pgxpool.Pool, cfg *config.Config, hub *ws.Hub, accountID int64) *ScanHandler {
	return &ScanHandler{pool: pool, cfg: cfg, hub: hub, accountID: accountID}
}

type scanRequest struct {
	// Folders to scan; empty means every folder on the server.
	Folders []string `json:"folders"`
}

// StartScan kicks off a scan in the background and returns immediately.
func (h *ScanHandler) StartScan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req scanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		writeError(w, http.StatusConflict, "A scan is already running")
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	runID := uuid.New().String()
	h.running = true
	h.cancel = cancel
	h.runID = runID
	h.mu.Unlock()

	go h.runScan(ctx, cancel, runID, req.Folders)

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started", "run_id": runID})
}

// CancelScan requests cancellation of the active run. The run stops at
// the next batch or folder boundary and emits a cancelled event.
func (h *ScanHandler) CancelScan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.running || h.cancel == nil {
		writeError(w, http.StatusConflict, "No scan is running")
		return
	}

	h.cancel()
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelling"})
}

type scanStatusResponse struct {
	Running bool `json:"running"`
	// RunID names the most recent run, empty before the first one.
	RunID string `json:"run_id"`
}

// ScanStatus reports whether a run is active and which run it is.
func (h *ScanHandler) ScanStatus(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	status := scanStatusResponse{Running: h.running, RunID: h.runID}
	h.mu.Unlock()

	writeJSON(w, http.StatusOK, status)
}

func (h *ScanHandler) runScan(ctx context.Context, cancel context.CancelFunc, runID string, folderNames []string) {
	defer func() {
		cancel()
		h.mu.Lock()
		h.running = false
		h.cancel = nil
		h.mu.Unlock()
	}()

	// Stamp every event with the run ID so clients can correlate
	// interleaved status polls with the stream.
	emit := func(event models.ScanEvent) {
		event.RunID = runID
		h.broadcast(event)
	}

	c, err := imap.ConnectToIMAP(h.cfg.GetIMAPAddress(), h.cfg.IMAPUseTLS)
	if err != nil {
		log.Printf("ScanHandler: Failed to connect: %v", err)
		emit(models.ScanEvent{Type: models.ScanEventError, Error: err.Error()})
		return
	}
	defer imap.Logout(c)

	if err := imap.Login(c, h.cfg.IMAPUsername, h.cfg.IMAPPassword); err != nil {
		log.Printf("ScanHandler: Failed to log in: %v", err)
		emit(models.ScanEvent{Type: models.ScanEventError, Error: err.Error()})
		return
	}

	folders, err := h.prepareFolders(ctx, c, folderNames)
	if err != nil {
		log.Printf("ScanHandler: Failed to prepare folders: %v", err)
		emit(models.ScanEvent{Type: models.ScanEventError, Error: err.Error()})
		return
	}

	scanner := &imap.Scanner{
		Client:           c,
		Pool:             h.pool,
		BatchSize:        h.cfg.ScanBatchSize,
		UseGmailThreadID: imap.SupportsGmailExtensions(c),
		Events:           emit,
	}

	if err := scanner.Run(ctx, folders); err != nil {
		log.Printf("ScanHandler: Scan ended: %v", err)
	}
}

// prepareFolders resolves the requested folder names to cache rows,
// creating rows for folders seen for the first time. An empty request
// means every folder the server reports.
func (h *ScanHandler) prepareFolders(ctx context.Context, c *client.Client, names []string) ([]*models.Folder, error) {
	if len(names) == 0 {
		listed, err := imap.ListFolders(c)
		if err != nil {
			return nil, err
		}
		names = listed
	}

	folders := make([]*models.Folder, 0, len(names))
	for _, name := range names {
		folder, err := db.GetFolderByName(ctx, h.pool, h.accountID, name)
		if errors.Is(err, db.ErrFolderNotFound) {
			folder = &models.Folder{AccountID: h.accountID, Name: name}
			err = db.UpsertFolder(ctx, h.pool, folder)
		}
		if err != nil {
			return nil, err
		}
		folders = append(folders, folder)
	}
	return folders, nil
}

func (h *ScanHandler) broadcast(event models.ScanEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("ScanHandler: Failed to marshal scan event: %v", err)
		return
	}
	h.hub.Send(payload)
}
