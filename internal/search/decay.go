package search

import (
	"time"

	"github.com/Aman-CERP/noterag/internal/config"
)

// timeDecay weights a result by the age of its note. Recently touched
// notes get a boost, stale notes a penalty, everything between stays
// neutral. A zero time means the age is unknown and stays neutral.
func timeDecay(modifiedAt time.Time, now time.Time, cfg config.TimeDecayConfig) float64 {
	if modifiedAt.IsZero() {
		return 1.0
	}

	age := now.Sub(modifiedAt)

	if age < time.Duration(cfg.RecentMonths)*30*24*time.Hour {
		return cfg.RecentBoost
	}
	if age > time.Duration(cfg.OldYears)*365*24*time.Hour {
		return cfg.OldPenalty
	}
	return 1.0
}
