package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sungwon/mail-scheduler/internal/storage"
)

// accountRequest is the JSON body for creating an account. The password is
// the provider app password used for SMTP submission and IMAP reads.
type accountRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// accountResponse is the JSON response for an account. The password is
// never returned.
type accountResponse struct {
	ID        int64                 `json:"id"`
	Name      string                `json:"name"`
	Email     string                `json:"email"`
	CreatedAt time.Time             `json:"created_at"`
	Stats     *storage.AccountStats `json:"stats,omitempty"`
}

func toAccountResponse(a storage.Account, stats *storage.AccountStats) accountResponse {
	return accountResponse{
		ID:        a.ID,
		Name:      a.Name,
		Email:     a.Email,
		CreatedAt: a.CreatedAt,
		Stats:     stats,
	}
}

// idParam parses the {id} URL parameter.
func idParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

// CreateAccountHandler handles POST /api/v1/accounts.
func CreateAccountHandler(store storage.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req accountRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		var errs []string
		if req.Name == "" {
			errs = append(errs, "name is required")
		}
		if req.Email == "" {
			errs = append(errs, "email is required")
		}
		if req.Password == "" {
			errs = append(errs, "password is required")
		}
		if len(errs) > 0 {
			respondValidationErrors(w, errs)
			return
		}

		account, err := store.CreateAccount(r.Context(), storage.CreateAccountParams{
			Name:     req.Name,
			Email:    req.Email,
			Password: req.Password,
		})
		if err != nil {
			respondError(w, http.StatusConflict, "account with this email already exists")
			return
		}

		respondJSON(w, http.StatusCreated, toAccountResponse(account, nil))
	}
}

// ListAccountsHandler handles GET /api/v1/accounts. The response carries
// per-account send/reply totals for dashboard display.
func ListAccountsHandler(store storage.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accounts, err := store.ListAccounts(r.Context())
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to list accounts")
			return
		}

		responses := make([]accountResponse, 0, len(accounts))
		for _, a := range accounts {
			stats, err := store.AccountStats(r.Context(), a.ID)
			if err != nil {
				respondError(w, http.StatusInternalServerError, "failed to load account stats")
				return
			}
			responses = append(responses, toAccountResponse(a, &stats))
		}

		respondJSON(w, http.StatusOK, responses)
	}
}

// DeleteAccountHandler handles DELETE /api/v1/accounts/{id}. Deleting an
// account cascades to its send requests and inbound messages.
func DeleteAccountHandler(store storage.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid account id")
			return
		}

		if err := store.DeleteAccount(r.Context(), id); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				respondError(w, http.StatusNotFound, "account not found")
				return
			}
			respondError(w, http.StatusInternalServerError, "failed to delete account")
			return
		}

		respondJSON(w, http.StatusNoContent, nil)
	}
}
