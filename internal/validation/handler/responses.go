package handler

import (
	"triplecheck/internal/validation/models"
	"triplecheck/internal/validation/service"
)

// RecentResponse lists stored reports, newest first.
type RecentResponse struct {
	Reports []*models.Report `json:"reports"`
}

// StatusResponse is the dashboard view of the engine.
type StatusResponse struct {
	Stats     service.Stats `json:"stats"`
	DataTypes []string      `json:"dataTypes"`
	Fallback  string        `json:"fallbackType"`
}
