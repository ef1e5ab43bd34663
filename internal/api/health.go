package api

import (
	"net/http"

	"lattice/internal/store"
)

type HealthHandler struct {
	db *store.DB
}

func NewHealthHandler(db *store.DB) *HealthHandler {
	return &HealthHandler{db: db}
}

func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	dbStatus := "ok"
	status := http.StatusOK

	if err := h.db.Ping(); err != nil {
		dbStatus = "error"
		status = http.StatusServiceUnavailable
	}

	result := "ok"
	if status != http.StatusOK {
		result = "degraded"
	}

	writeJSON(w, status, map[string]any{
		"status": result,
		"checks": map[string]string{
			"database": dbStatus,
		},
	})
}
