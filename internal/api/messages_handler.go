package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jitrc/MailSweep/internal/db"
)

// MessagesHandler serves the cached message table: filtered browsing plus
// the copy listing for a single message.
type MessagesHandler struct {
	pool      *pgxpool.Pool
	accountID int64
}

// NewMessagesHandler creates a new MessagesHandler instance.
func NewMessagesHandler(pool *pgxpool.Pool, accountID int64) *MessagesHandler {
	return &MessagesHandler{pool: pool, accountID: accountID}
}

// GetMessages returns cached messages. With an ids parameter it returns
// exactly those rows; otherwise it filters the account's messages by from,
// to, subject, date_from, date_to (YYYY-MM-DD), size_min, size_max,
// has_attachment, order_by, limit and folder_ids.
func (h *MessagesHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if ids := ParseIDListParam(r, "ids"); len(ids) > 0 {
		messages, err := db.GetMessagesByIDs(ctx, h.pool, ids)
		if err != nil {
			log.Printf("MessagesHandler: Failed to get messages by IDs: %v", err)
			writeError(w, http.StatusInternalServerError, "Internal server error")
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"count":    len(messages),
			"messages": messages,
		})
		return
	}

	filter, err := h.buildFilter(ctx, r)
	if err != nil {
		log.Printf("MessagesHandler: Failed to build filter: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if len(filter.FolderIDs) == 0 {
		// Nothing scanned yet; an unscoped query would cross accounts.
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"count":    0,
			"messages": []struct{}{},
		})
		return
	}

	messages, err := db.QueryMessages(ctx, h.pool, filter)
	if err != nil {
		log.Printf("MessagesHandler: Failed to query messages: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":    len(messages),
		"messages": messages,
	})
}

// GetCopies lists every cached copy of one message and the folders those
// copies live in. With include_thread=true (the default) folders holding
// other messages of the same provider thread count as well.
func (h *MessagesHandler) GetCopies(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := strconv.ParseInt(r.URL.Query().Get("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "id parameter is required")
		return
	}

	includeThread := true
	if v := r.URL.Query().Get("include_thread"); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			includeThread = parsed
		}
	}

	message, err := db.GetMessageByID(ctx, h.pool, id)
	if err != nil {
		if errors.Is(err, db.ErrMessageNotFound) {
			writeError(w, http.StatusNotFound, "Message not found")
			return
		}
		log.Printf("MessagesHandler: Failed to get message: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	copies, err := db.GetMessageCopies(ctx, h.pool, &message.Message)
	if err != nil {
		log.Printf("MessagesHandler: Failed to get message copies: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	folders, err := db.GetFoldersForMessage(ctx, h.pool, &message.Message, includeThread)
	if err != nil {
		log.Printf("MessagesHandler: Failed to get folders for message: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": message,
		"copies":  copies,
		"folders": folders,
	})
}

func (h *MessagesHandler) buildFilter(ctx context.Context, r *http.Request) (db.MessageFilter, error) {
	q := r.URL.Query()

	filter := db.MessageFilter{
		From:    q.Get("from"),
		To:      q.Get("to"),
		Subject: q.Get("subject"),
		OrderBy: q.Get("order_by"),
		Limit:   ParseLimitParam(r, 500),
	}

	filter.FolderIDs = ParseIDListParam(r, "folder_ids")
	if len(filter.FolderIDs) == 0 {
		folders, err := db.GetFoldersByAccount(ctx, h.pool, h.accountID)
		if err != nil {
			return filter, err
		}
		for _, f := range folders {
			filter.FolderIDs = append(filter.FolderIDs, f.ID)
		}
	}

	if v := q.Get("date_from"); v != "" {
		if parsed, err := time.Parse("2006-01-02", v); err == nil {
			filter.DateFrom = parsed
		}
	}
	if v := q.Get("date_to"); v != "" {
		if parsed, err := time.Parse("2006-01-02", v); err == nil {
			filter.DateTo = parsed
		}
	}
	if v := q.Get("size_min"); v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
			filter.SizeMin = parsed
		}
	}
	if v := q.Get("size_max"); v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
			filter.SizeMax = parsed
		}
	}
	if v := q.Get("has_attachment"); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			filter.HasAttachment = &parsed
		}
	}

	return filter, nil
}
