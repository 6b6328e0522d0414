package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/MrSnakeDoc/snaps/internal/domain"
	"github.com/MrSnakeDoc/snaps/internal/httpserver/deps"
	"github.com/MrSnakeDoc/snaps/internal/logger"
	"github.com/MrSnakeDoc/snaps/internal/snaps"
)

const maxSnapBody = 64 << 10

type snapRequest struct {
	URL   string          `json:"url"`
	Snaps json.RawMessage `json:"snaps"`
	Email string          `json:"email"`
}

type snapCreatedResponse struct {
	ID           string    `json:"id"`
	URL          string    `json:"url"`
	CanonicalURL string    `json:"canonicalUrl"`
	Snaps        int       `json:"snaps"`
	Email        string    `json:"email"`
	CreatedAt    time.Time `json:"createdAt"`
}

type snapCountResponse struct {
	URL   string `json:"url"`
	Snaps int64  `json:"snaps"`
}

// snapsText accepts 5 or "5". Anything else is passed through verbatim so
// that the submitter reports it as an invalid weight.
func snapsText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if _, err := strconv.Atoi(n.String()); err == nil {
			return n.String()
		}
	}
	return string(raw)
}

// SubmitSnap handles POST /snap.
func SubmitSnap(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req snapRequest
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSnapBody))
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}

		sub, err := d.Submitter.Submit(r.Context(), snaps.SubmitInput{
			URL:   req.URL,
			Snaps: snapsText(req.Snaps),
			Email: req.Email,
		})
		if err != nil {
			if errors.Is(err, domain.ErrValidation) {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			d.Logger.Error("submission failed", logger.Error(err))
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		writeJSON(w, http.StatusCreated, snapCreatedResponse{
			ID:           sub.ID,
			URL:          sub.RawURL,
			CanonicalURL: sub.CanonicalURL,
			Snaps:        sub.Weight,
			Email:        sub.Email,
			CreatedAt:    sub.CreatedAt,
		})
	}
}

// GetSnaps handles GET /snap?url=.
func GetSnaps(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		canonical, n, err := d.Counter.Count(r.Context(), r.URL.Query().Get("url"))
		if err != nil {
			if errors.Is(err, domain.ErrValidation) {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			d.Logger.Error("count failed", logger.String("url", canonical), logger.Error(err))
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		writeJSON(w, http.StatusOK, snapCountResponse{URL: canonical, Snaps: n})
	}
}
