package routes

import (
	"context"
	"errors"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/victorjacobs/go-comfoconnect/entry"
	"github.com/victorjacobs/go-comfoconnect/store"
	"go.uber.org/zap"
)

type EntryStore interface {
	List(ctx context.Context) ([]store.Entry, error)
}

// EntryManager changes loaded entries.
type EntryManager interface {
	Runtimes
	Reload(ctx context.Context, entryID string) error
	Remove(ctx context.Context, entryID string) error
}

func ListEntries(s EntryStore, logger *zap.SugaredLogger) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		entries, err := s.List(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err, logger)
			return
		}
		if entries == nil {
			entries = []store.Entry{}
		}
		writeJSON(w, http.StatusOK, entries, logger)
	}
}

func ReloadEntry(m EntryManager, logger *zap.SugaredLogger) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		id := ps.ByName("id")
		if err := m.Reload(r.Context(), id); err != nil {
			logger.Warnf("Reloading %v failed: %v", id, err)
			writeError(w, statusFor(err), err, logger)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func RemoveEntry(m EntryManager, logger *zap.SugaredLogger) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		id := ps.ByName("id")
		if err := m.Remove(r.Context(), id); err != nil {
			logger.Warnf("Removing %v failed: %v", id, err)
			writeError(w, statusFor(err), err, logger)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, entry.ErrAuthFailed):
		return http.StatusUnauthorized
	case errors.Is(err, entry.ErrNotReady):
		return http.StatusServiceUnavailable
	case errors.Is(err, entry.ErrAlreadyLoaded):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// Router wires the HTTP API.
func Router(m EntryManager, s EntryStore, logger *zap.SugaredLogger) *httprouter.Router {
	router := httprouter.New()
	router.GET("/state", State(m, logger))
	router.GET("/entries", ListEntries(s, logger))
	router.POST("/entries/:id/reload", ReloadEntry(m, logger))
	router.DELETE("/entries/:id", RemoveEntry(m, logger))
	return router
}
