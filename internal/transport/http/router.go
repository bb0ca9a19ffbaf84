package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"exam-practice-service/internal/app"
	"exam-practice-service/internal/domain"
	"github.com/gorilla/mux"
)

type categoryInfo struct {
	ID   domain.Category `json:"id"`
	Name string          `json:"name"`
}

// NewRouter wires the websocket endpoint and the read-only REST routes.
func NewRouter(service *app.ExamService) *mux.Router {
	ws := NewWSHandler(service)
	r := mux.NewRouter()

	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	r.HandleFunc("/ws", ws.ServeWS)

	r.HandleFunc("/categories", func(w http.ResponseWriter, r *http.Request) {
		out := make([]categoryInfo, 0, len(domain.Categories))
		for _, c := range domain.Categories {
			out = append(out, categoryInfo{ID: c, Name: c.Name()})
		}
		writeJSON(w, http.StatusOK, out)
	}).Methods(http.MethodGet)

	r.HandleFunc("/users/{userID}/results", func(w http.ResponseWriter, r *http.Request) {
		limit := 0
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				writeJSON(w, http.StatusBadRequest, errorPayload{Message: "invalid limit"})
				return
			}
			limit = n
		}
		history, err := service.History(r.Context(), mux.Vars(r)["userID"], limit)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, history)
	}).Methods(http.MethodGet)

	r.HandleFunc("/users/{userID}/progress/{category}", func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		state, err := service.Progress(r.Context(), vars["userID"], vars["category"])
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, state)
	}).Methods(http.MethodGet)

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrUnknownCategory):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrSessionNotFound):
		status = http.StatusNotFound
	default:
		log.Printf("request failed: %v", err)
	}
	writeJSON(w, status, errorPayload{Message: err.Error()})
}
