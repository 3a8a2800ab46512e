package models

import (
	"time"

	"github.com/iudanet/pidash/pkg/api"
)

// Sample is a persisted metrics sample
type Sample struct {
	Timestamp time.Time
	Point     api.HistoryPoint
}
