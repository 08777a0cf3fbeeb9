package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"
)

func HandleMine(w http.ResponseWriter, r *http.Request, svc Service) {
	block, err := svc.Mine(r.Context())
	if err != nil {
		zerolog.Ctx(r.Context()).Warn().Err(err).Msg("Mining aborted")
		if r.Context().Err() != nil {
			writeError(w, r, http.StatusServiceUnavailable, errors.New("mining cancelled"))
			return
		}
		writeError(w, r, http.StatusInternalServerError, fmt.Errorf("mining failed: %w", err))
		return
	}

	writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"message":       "New Block Forged",
		"index":         block.Index,
		"timestamp":     block.Timestamp,
		"transactions":  block.Transactions,
		"proof":         block.Proof,
		"previous_hash": block.PreviousHash,
	})
}
