package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/hashtags/hashtag-timeline/internal/mediacache"
	"github.com/hashtags/hashtag-timeline/internal/metrics"
	"github.com/hashtags/hashtag-timeline/internal/monitoring"
	"github.com/hashtags/hashtag-timeline/internal/timeline"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

type api struct {
	timeline  *timeline.Timeline
	media     *mediacache.Cache
	ingestion *monitoring.Service
	clock     clockwork.Clock
}

func (a *api) routes(registry *prometheus.Registry) *mux.Router {
	router := mux.NewRouter()
	router.Use(metrics.NewHTTPMetrics(registry).Middleware())

	router.HandleFunc("/health", a.healthCheckHandler).Methods("GET")
	router.HandleFunc("/status", a.statusHandler).Methods("GET")
	router.HandleFunc("/timeline", a.timelineHandler).Methods("GET")
	router.HandleFunc("/media/{id:[0-9]+}", a.mediaHandler).Methods("GET")
	router.HandleFunc("/media/{id:[0-9]+}/refresh", a.refreshMediaHandler).Methods("POST")
	router.Handle("/metrics", metrics.Handler(registry)).Methods("GET")

	return router
}

func (a *api) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	health := "healthy"
	if a.ingestion.State() == monitoring.Stopped {
		status = http.StatusServiceUnavailable
		health = "stopped"
	}
	writeJSON(w, status, map[string]string{
		"status":    health,
		"state":     a.ingestion.State().String(),
		"timestamp": a.clock.Now().Format(time.RFC3339),
	})
}

func (a *api) statusHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(a.ingestion.GetMetrics()))
}

func (a *api) timelineHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, timeline.Present(a.timeline.Entries(), a.clock.Now()))
}

func (a *api) mediaHandler(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	entry, ok := a.timeline.Lookup(id)
	if !ok {
		http.NotFound(w, r)
		return
	}
	media, err := a.media.Get(entry.ImageURL)
	if errors.Is(err, mediacache.ErrUnknownMedia) {
		// Entry still shown but its media was dropped, download it again
		if err := a.timeline.RefreshMedia(r.Context(), id); err != nil {
			logrus.WithError(err).WithField("id", id).Warn("Failed to reload media")
		}
		media, err = a.media.Get(entry.ImageURL)
	}
	if err != nil {
		http.NotFound(w, r)
		return
	}

	contentType := media.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.WriteHeader(http.StatusOK)
	w.Write(media.Data)
}

func (a *api) refreshMediaHandler(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	if err := a.timeline.RefreshMedia(r.Context(), id); err != nil {
		if errors.Is(err, timeline.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "refreshed": true})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
