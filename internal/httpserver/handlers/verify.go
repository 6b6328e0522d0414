package handlers

import (
	"net/http"

	"github.com/MrSnakeDoc/snaps/internal/domain"
	"github.com/MrSnakeDoc/snaps/internal/httpserver/deps"
	"github.com/MrSnakeDoc/snaps/internal/logger"
)

const (
	msgVerified     = "snaps verified, thank you"
	msgInvalidLink  = "invalid or already used verification link"
	msgInvalidToken = "invalid verification key"
)

type messageResponse struct {
	Message string `json:"message"`
}

// Verify handles GET /verify?id=&key=. Neither the key nor the full query is logged.
func Verify(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		id := q.Get("id")

		result, err := d.Verifier.Verify(r.Context(), id, q.Get("key"))
		if err != nil {
			d.Logger.Error("verification failed",
				logger.String("submission_id", id),
				logger.Error(err))
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		switch result {
		case domain.VerifySuccess:
			writeJSON(w, http.StatusOK, messageResponse{Message: msgVerified})
		case domain.VerifyInvalidToken:
			writeError(w, http.StatusBadRequest, msgInvalidToken)
		default:
			writeError(w, http.StatusBadRequest, msgInvalidLink)
		}
	}
}
