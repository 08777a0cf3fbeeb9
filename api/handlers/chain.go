package handlers

import (
	"net/http"

	"powchain/p2p"
)

func HandleChain(w http.ResponseWriter, r *http.Request, svc Service) {
	chain, length := svc.Chain()
	writeJSON(w, r, http.StatusOK, p2p.ChainResponse{
		Chain:  chain,
		Length: length,
	})
}
