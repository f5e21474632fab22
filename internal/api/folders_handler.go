package api

import (
	"log"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jitrc/MailSweep/internal/db"
)

// FoldersHandler serves the per-folder overview from the cache.
type FoldersHandler struct {
	pool      *pgxpool.Pool
	accountID int64
}

// NewFoldersHandler creates a new FoldersHandler instance.
func NewFoldersHandler(pool *pgxpool.Pool, accountID int64) *FoldersHandler {
	return &FoldersHandler{pool: pool, accountID: accountID}
}

// GetFolders returns message counts, total sizes and date ranges per folder.
// The numbers come from the local cache, so they reflect the last scan, not
// the live server state.
func (h *FoldersHandler) GetFolders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	folders, err := db.GetFolderTreeSummary(ctx, h.pool, h.accountID)
	if err != nil {
		log.Printf("FoldersHandler: Failed to load folder summary: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	folderIDs := make([]int64, 0, len(folders))
	for _, f := range folders {
		folderIDs = append(folderIDs, f.FolderID)
	}

	var dedupSize, dedupCount int64
	if len(folderIDs) > 0 {
		dedupSize, dedupCount, err = db.GetDedupTotalSize(ctx, h.pool, folderIDs)
		if err != nil {
			log.Printf("FoldersHandler: Failed to compute dedup size: %v", err)
			writeError(w, http.StatusInternalServerError, "Internal server error")
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"folders":          folders,
		"dedup_size_bytes": dedupSize,
		"dedup_count":      dedupCount,
	})
}
