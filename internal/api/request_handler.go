package api

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/sungwon/mail-scheduler/internal/blobstore"
	"github.com/sungwon/mail-scheduler/internal/storage"
)

// Enqueuer registers newly created requests with the due-time queue. The
// delivery engine implements it.
type Enqueuer interface {
	Enqueue(requestID int64, fireAt time.Time)
}

// attachmentPayload is a base64-encoded attachment carried inline in the
// create-request JSON body.
type attachmentPayload struct {
	Filename string `json:"filename"`
	Content  string `json:"content"` // base64
}

// sendRequestRequest is the JSON body for scheduling a send.
type sendRequestRequest struct {
	AccountID        int64              `json:"account_id"`
	Recipient        string             `json:"recipient"`
	Subject          string             `json:"subject"`
	Body             string             `json:"body"`
	FireAt           time.Time          `json:"fire_at"`
	ReplyToInboundID int64              `json:"reply_to_inbound_id,omitempty"`
	Attachment       *attachmentPayload `json:"attachment,omitempty"`
}

// CreateSendRequestHandler handles POST /api/v1/requests. It persists the
// request, stores any inline attachment in the blob store, and pushes the
// request onto the due-time queue.
func CreateSendRequestHandler(store storage.Store, blobs blobstore.Store, enqueuer Enqueuer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req sendRequestRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		var errs []string
		if req.AccountID == 0 {
			errs = append(errs, "account_id is required")
		}
		if req.Recipient == "" {
			errs = append(errs, "recipient is required")
		}
		if req.Subject == "" {
			errs = append(errs, "subject is required")
		}
		if req.FireAt.IsZero() {
			errs = append(errs, "fire_at is required")
		}
		if len(errs) > 0 {
			respondValidationErrors(w, errs)
			return
		}

		if _, err := store.GetAccount(r.Context(), req.AccountID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				respondError(w, http.StatusBadRequest, "account does not exist")
				return
			}
			respondError(w, http.StatusInternalServerError, "failed to load account")
			return
		}

		// Replying to an inbound message threads the new send under the
		// original conversation.
		inReplyTo := ""
		if req.ReplyToInboundID != 0 {
			inbound, err := store.GetInboundMessage(r.Context(), req.ReplyToInboundID)
			if err != nil {
				if errors.Is(err, storage.ErrNotFound) {
					respondError(w, http.StatusBadRequest, "reply_to_inbound_id does not exist")
					return
				}
				respondError(w, http.StatusInternalServerError, "failed to load inbound message")
				return
			}
			inReplyTo = inbound.MessageID
		}

		attachmentKey := ""
		if req.Attachment != nil {
			content, err := base64.StdEncoding.DecodeString(req.Attachment.Content)
			if err != nil {
				respondError(w, http.StatusBadRequest, "attachment content is not valid base64")
				return
			}
			attachmentKey = blobstore.NewKey(req.Attachment.Filename)
			if err := blobs.Put(r.Context(), attachmentKey, content); err != nil {
				respondError(w, http.StatusInternalServerError, "failed to store attachment")
				return
			}
		}

		created, err := store.CreateSendRequest(r.Context(), storage.CreateSendRequestParams{
			AccountID:     req.AccountID,
			Recipient:     req.Recipient,
			Subject:       req.Subject,
			Body:          req.Body,
			AttachmentKey: attachmentKey,
			InReplyTo:     inReplyTo,
			FireAt:        req.FireAt,
		})
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to create request")
			return
		}

		enqueuer.Enqueue(created.ID, created.FireAt)
		respondJSON(w, http.StatusCreated, created)
	}
}

// ListSendRequestsHandler handles GET /api/v1/requests.
func ListSendRequestsHandler(store storage.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requests, err := store.ListSendRequests(r.Context())
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to list requests")
			return
		}
		if requests == nil {
			requests = []storage.SendRequest{}
		}
		respondJSON(w, http.StatusOK, requests)
	}
}

// GetSendRequestHandler handles GET /api/v1/requests/{id}.
func GetSendRequestHandler(store storage.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid request id")
			return
		}

		req, err := store.GetSendRequest(r.Context(), id)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				respondError(w, http.StatusNotFound, "request not found")
				return
			}
			respondError(w, http.StatusInternalServerError, "failed to load request")
			return
		}
		respondJSON(w, http.StatusOK, req)
	}
}

// DeleteSendRequestHandler handles DELETE /api/v1/requests/{id}. Deleting
// is safe while a queue entry exists: the dispatch worker re-validates
// existence before sending and discards entries for deleted requests.
func DeleteSendRequestHandler(store storage.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid request id")
			return
		}

		if err := store.DeleteSendRequest(r.Context(), id); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				respondError(w, http.StatusNotFound, "request not found")
				return
			}
			respondError(w, http.StatusInternalServerError, "failed to delete request")
			return
		}
		respondJSON(w, http.StatusNoContent, nil)
	}
}
