package api

import (
	"errors"
	"log"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jitrc/MailSweep/internal/config"
	"github.com/jitrc/MailSweep/internal/db"
)

// DuplicatesHandler serves the two duplicate reports: messages filed
// under several labels, and detach leftovers next to their originals.
type DuplicatesHandler struct {
	pool      *pgxpool.Pool
	cfg       *config.Config
	accountID int64
}

// NewDuplicatesHandler creates a new DuplicatesHandler instance.
func NewDuplicatesHandler(pool *pgxpool.Pool, cfg *config.Config, accountID int64) *DuplicatesHandler {
	return &DuplicatesHandler{pool: pool, cfg: cfg, accountID: accountID}
}

// GetDuplicates returns messages that exist under more than one label.
// The All Mail folder is skipped when present since it mirrors everything
// and would turn every labelled message into a duplicate.
func (h *DuplicatesHandler) GetDuplicates(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var skipIDs []int64
	allMail, err := db.FindAllMailFolder(ctx, h.pool, h.accountID)
	switch {
	case err == nil:
		skipIDs = append(skipIDs, allMail.ID)
	case errors.Is(err, db.ErrFolderNotFound):
	default:
		log.Printf("DuplicatesHandler: Failed to find All Mail folder: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	skipIDs = append(skipIDs, ParseIDListParam(r, "skip_folder_ids")...)

	report, err := db.FindCrossLabelDuplicates(ctx, h.pool, h.accountID, skipIDs)
	if err != nil {
		log.Printf("DuplicatesHandler: Failed to find duplicates: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// GetDetached returns pairs of an original message and a stripped copy
// left behind by attachment detaching. The ratio query parameter tunes
// how much larger the original must be to count.
func (h *DuplicatesHandler) GetDetached(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	ratio := ParseFloatParam(r, "ratio", h.cfg.DetachedRatio)
	if ratio <= 1.0 {
		writeError(w, http.StatusBadRequest, "ratio must be greater than 1.0")
		return
	}

	report, err := db.FindDetachedOriginals(ctx, h.pool, h.accountID, ratio)
	if err != nil {
		log.Printf("DuplicatesHandler: Failed to find detached originals: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, report)
}
