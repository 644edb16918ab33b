package model

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

func formatBool(b bool) string {
	return strconv.FormatBool(b)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatUUIDPtr(id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return id.String()
}
