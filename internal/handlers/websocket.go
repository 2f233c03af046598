package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
)

// WebSocket upgrades /ws/{clientID} and hands the connection to the
// notifier.
func (h *Handlers) WebSocket(w http.ResponseWriter, r *http.Request) {
	if h.notifier == nil {
		writeText(w, http.StatusServiceUnavailable, "Notifications are disabled")
		return
	}
	h.notifier.ServeWS(w, r, mux.Vars(r)["clientID"])
}
