package api

import (
	"errors"
	"net/http"

	"github.com/sungwon/mail-scheduler/internal/storage"
)

// ListInboxHandler handles GET /api/v1/inbox. Inbound rows exist only for
// replies matched to a sent request by the reconciliation poller.
func ListInboxHandler(store storage.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		messages, err := store.ListInboundMessages(r.Context())
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to list inbox")
			return
		}
		if messages == nil {
			messages = []storage.InboundMessage{}
		}
		respondJSON(w, http.StatusOK, messages)
	}
}

// GetInboxMessageHandler handles GET /api/v1/inbox/{id}.
func GetInboxMessageHandler(store storage.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid message id")
			return
		}

		msg, err := store.GetInboundMessage(r.Context(), id)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				respondError(w, http.StatusNotFound, "message not found")
				return
			}
			respondError(w, http.StatusInternalServerError, "failed to load message")
			return
		}
		respondJSON(w, http.StatusOK, msg)
	}
}
