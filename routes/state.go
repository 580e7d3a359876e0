package routes

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/victorjacobs/go-comfoconnect/entry"
	"github.com/victorjacobs/go-comfoconnect/homeassistant"
	"go.uber.org/zap"
)

// Runtimes lists the loaded entries.
type Runtimes interface {
	Runtimes() []*entry.Runtime
}

type entryState struct {
	EntryID   string                       `json:"entry_id"`
	UUID      string                       `json:"uuid"`
	Host      string                       `json:"host"`
	Connected bool                         `json:"connected"`
	Gateway   homeassistant.Device         `json:"gateway"`
	Unit      homeassistant.Device         `json:"unit"`
	Entities  map[string]map[string]string `json:"entities"`
}

type stateResponse struct {
	Entries       []entryState `json:"entries"`
	LastRefreshed time.Time    `json:"last_refreshed"`
}

func State(m Runtimes, logger *zap.SugaredLogger) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		resp := stateResponse{
			Entries:       []entryState{},
			LastRefreshed: time.Now(),
		}

		for _, rt := range m.Runtimes() {
			resp.Entries = append(resp.Entries, entryState{
				EntryID:   rt.Entry.EntryID,
				UUID:      rt.Entry.UUID,
				Host:      rt.Entry.Host,
				Connected: rt.Connected(),
				Gateway:   rt.Gateway,
				Unit:      rt.Unit,
				Entities:  rt.Platform.States(),
			})
		}

		writeJSON(w, http.StatusOK, resp, logger)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any, logger *zap.SugaredLogger) {
	marshaled, err := json.Marshal(v)
	if err != nil {
		logger.Errorf("error marshaling: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(marshaled)
}

func writeError(w http.ResponseWriter, status int, err error, logger *zap.SugaredLogger) {
	writeJSON(w, status, map[string]string{"error": err.Error()}, logger)
}
