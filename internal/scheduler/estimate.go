package scheduler

import (
	"time"

	"github.com/narworks/muhasebe-asistani-sub000/internal/config"
)

const (
	// PerEntityCost is the fixed time of one login, CAPTCHA, extraction and
	// logout.
	PerEntityCost = 45 * time.Second
	// SafetyMarginPercent inflates every estimate.
	SafetyMarginPercent = 20
)

// Pacing is the part of the scan configuration that drives its duration.
type Pacing struct {
	DelayMin      time.Duration
	DelayMax      time.Duration
	BatchSize     int
	BatchPauseMin time.Duration
	BatchPauseMax time.Duration
}

// PacingFromConfig extracts the pacing from the service configuration.
func PacingFromConfig(cfg *config.Config) Pacing {
	return Pacing{
		DelayMin:      cfg.DelayMin,
		DelayMax:      cfg.DelayMax,
		BatchSize:     cfg.BatchSize,
		BatchPauseMin: cfg.BatchPauseMin,
		BatchPauseMax: cfg.BatchPauseMax,
	}
}

// EstimateDuration returns the expected length of a scan over entityCount
// entities in whole minutes, margin included. Zero entities take no time.
func EstimateDuration(entityCount int, p Pacing) int {
	if entityCount <= 0 {
		return 0
	}
	batch := max(p.BatchSize, 1)
	gaps := time.Duration(entityCount - 1)

	total := time.Duration(entityCount)*PerEntityCost +
		gaps*((p.DelayMin+p.DelayMax)/2) +
		(gaps/time.Duration(batch))*((p.BatchPauseMin+p.BatchPauseMax)/2)

	minutes := int((total + time.Minute - 1) / time.Minute)
	return (minutes*(100+SafetyMarginPercent) + 99) / 100
}
