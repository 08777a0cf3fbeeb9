package handlers

import (
	"fmt"
	"net/http"

	"github.com/rs/zerolog"
)

func HandleNewTransaction(w http.ResponseWriter, r *http.Request, svc Service) {
	log := zerolog.Ctx(r.Context())

	var req TransactionRequest
	if err := decodeRequest(r, &req); err != nil {
		log.Debug().Err(err).Msg("Rejected transaction request")
		writeError(w, r, http.StatusBadRequest, err)
		return
	}

	index := svc.SubmitTransaction(*req.Sender, *req.Recipient, *req.Amount)
	log.Debug().Str("sender", *req.Sender).Str("recipient", *req.Recipient).Float64("amount", *req.Amount).
		Int64("block", index).Msg("Transaction queued")

	writeJSON(w, r, http.StatusCreated, map[string]interface{}{
		"message": fmt.Sprintf("Transaction will be added to Block %d", index),
		"index":   index,
	})
}

func HandlePendingTransactions(w http.ResponseWriter, r *http.Request, svc Service) {
	pending := svc.Pending()
	writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"transactions": pending,
		"count":        len(pending),
	})
}
