package api

import (
	"context"
	"log"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jitrc/MailSweep/internal/db"
	"github.com/jitrc/MailSweep/internal/models"
)

// SummaryHandler serves per-correspondent aggregates.
type SummaryHandler struct {
	pool      *pgxpool.Pool
	accountID int64
}

// NewSummaryHandler creates a new SummaryHandler instance.
func NewSummaryHandler(pool *pgxpool.Pool, accountID int64) *SummaryHandler {
	return &SummaryHandler{pool: pool, accountID: accountID}
}

// GetSenders returns senders ranked by total cached size. folder_ids
// narrows the aggregation; limit caps the row count (default 100).
func (h *SummaryHandler) GetSenders(w http.ResponseWriter, r *http.Request) {
	h.getAddrSummary(w, r, db.GetSenderSummary)
}

// GetReceivers is GetSenders for the To side, useful on Sent folders.
func (h *SummaryHandler) GetReceivers(w http.ResponseWriter, r *http.Request) {
	h.getAddrSummary(w, r, db.GetReceiverSummary)
}

func (h *SummaryHandler) getAddrSummary(
	w http.ResponseWriter,
	r *http.Request,
	query func(ctx context.Context, pool *pgxpool.Pool, folderIDs []int64) ([]models.AddrSummary, error),
) {
	ctx := r.Context()

	folderIDs := ParseIDListParam(r, "folder_ids")
	if len(folderIDs) == 0 {
		folders, err := db.GetFoldersByAccount(ctx, h.pool, h.accountID)
		if err != nil {
			log.Printf("SummaryHandler: Failed to list folders: %v", err)
			writeError(w, http.StatusInternalServerError, "Internal server error")
			return
		}
		for _, f := range folders {
			folderIDs = append(folderIDs, f.ID)
		}
		if len(folderIDs) == 0 {
			writeJSON(w, http.StatusOK, map[string]interface{}{"rows": []models.AddrSummary{}})
			return
		}
	}

	rows, err := query(ctx, h.pool, folderIDs)
	if err != nil {
		log.Printf("SummaryHandler: Failed to aggregate addresses: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	if limit := ParseLimitParam(r, 100); len(rows) > limit {
		rows = rows[:limit]
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"rows": rows})
}
