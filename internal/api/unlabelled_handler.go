package api

import (
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jitrc/MailSweep/internal/config"
	"github.com/jitrc/MailSweep/internal/db"
)

// UnlabelledHandler finds messages that live only in the provider's
// All Mail folder, i.e. carry no label.
type UnlabelledHandler struct {
	pool      *pgxpool.Pool
	cfg       *config.Config
	accountID int64
}

// NewUnlabelledHandler creates a new UnlabelledHandler instance.
func NewUnlabelledHandler(pool *pgxpool.Pool, cfg *config.Config, accountID int64) *UnlabelledHandler {
	return &UnlabelledHandler{pool: pool, cfg: cfg, accountID: accountID}
}

// GetUnlabelled returns unlabelled messages plus their aggregate stats.
// The mode query parameter picks the match rule (no_thread, in_reply_to,
// gmail_thread); the configured default applies when it is absent.
func (h *UnlabelledHandler) GetUnlabelled(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	mode := r.URL.Query().Get("mode")
	if mode == "" {
		mode = h.cfg.UnlabelledMode
	}
	switch mode {
	case config.ModeNoThread, config.ModeInReplyTo, config.ModeGmailThread:
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Unknown mode %q", mode))
		return
	}

	allMail, err := db.FindAllMailFolder(ctx, h.pool, h.accountID)
	if err != nil {
		if errors.Is(err, db.ErrFolderNotFound) {
			writeError(w, http.StatusNotFound, "No All Mail folder in the cache; run a scan first")
			return
		}
		log.Printf("UnlabelledHandler: Failed to find All Mail folder: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	folders, err := db.GetFoldersByAccount(ctx, h.pool, h.accountID)
	if err != nil {
		log.Printf("UnlabelledHandler: Failed to list folders: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	otherIDs := make([]int64, 0, len(folders))
	for _, f := range folders {
		if f.ID != allMail.ID {
			otherIDs = append(otherIDs, f.ID)
		}
	}

	count, totalSize, err := db.GetUnlabelledStats(ctx, h.pool, allMail.ID, otherIDs, mode)
	if err != nil {
		log.Printf("UnlabelledHandler: Failed to compute unlabelled stats: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	messages, err := db.QueryUnlabelledMessages(ctx, h.pool, allMail.ID, otherIDs, mode, db.MessageFilter{
		OrderBy: "size_bytes DESC",
		Limit:   ParseLimitParam(r, 500),
	})
	if err != nil {
		log.Printf("UnlabelledHandler: Failed to query unlabelled messages: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"mode":             mode,
		"folder":           allMail.Name,
		"count":            count,
		"total_size_bytes": totalSize,
		"messages":         messages,
	})
}
