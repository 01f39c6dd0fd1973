package report

import (
	"time"

	"github.com/google/uuid"
)

const (
	StatusOpen     = "open"
	StatusResolved = "resolved"
)

type Report struct {
	ID         uuid.UUID  `json:"id"`
	ReporterID uuid.UUID  `json:"reporter_id"`
	TargetID   uuid.UUID  `json:"target_id"`
	Category   string     `json:"category"`
	Reason     string     `json:"reason"`
	Priority   string     `json:"priority"`
	Status     string     `json:"status"`
	ResolvedBy *uuid.UUID `json:"resolved_by,omitempty"`
	Resolution *string    `json:"resolution,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

type CreateRequest struct {
	TargetID string `json:"target_id" validate:"required,uuid"`
	Category string `json:"category" validate:"required,oneof=spam harassment inappropriate other"`
	Reason   string `json:"reason" validate:"required"`
	Priority string `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
}

type ResolveRequest struct {
	Resolution string `json:"resolution" validate:"required"`
}
