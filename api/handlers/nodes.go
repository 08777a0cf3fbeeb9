package handlers

import (
	"net/http"

	"github.com/rs/zerolog"
)

func HandleRegisterNodes(w http.ResponseWriter, r *http.Request, svc Service) {
	log := zerolog.Ctx(r.Context())

	var req RegisterPeersRequest
	if err := decodeRequest(r, &req); err != nil {
		log.Debug().Err(err).Msg("Rejected peer registration")
		writeError(w, r, http.StatusBadRequest, &MalformedRequestError{Reason: "please supply a valid list of nodes"})
		return
	}

	peers, err := svc.RegisterPeers(req.Nodes)
	if err != nil {
		log.Debug().Err(err).Msg("Rejected peer address")
		writeError(w, r, http.StatusBadRequest, &MalformedRequestError{Reason: err.Error()})
		return
	}

	writeJSON(w, r, http.StatusCreated, map[string]interface{}{
		"message":     "New nodes have been added",
		"total_nodes": peers,
	})
}

func HandleListNodes(w http.ResponseWriter, r *http.Request, svc Service) {
	writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"nodes": svc.Peers(),
	})
}

func HandleResolve(w http.ResponseWriter, r *http.Request, svc Service) {
	replaced, chain := svc.Resolve(r.Context())

	message := "Our chain is authoritative"
	if replaced {
		message = "Our chain was replaced"
	}
	writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"message":  message,
		"replaced": replaced,
		"chain":    chain,
		"length":   len(chain),
	})
}
