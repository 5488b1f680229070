package pipeline

import (
	"testing"
	"time"
)

func TestRateHandlesZeroDenominator(t *testing.T) {
	if got := rate(5, 0); got != 0 {
		t.Errorf("rate(5, 0) = %v, want 0", got)
	}
}

func TestRateComputesPercentage(t *testing.T) {
	if got := rate(3, 12); got != 25.0 {
		t.Errorf("rate(3, 12) = %v, want 25.0", got)
	}
}

func TestRateRoundsToOneDecimal(t *testing.T) {
	if got := rate(1, 3); got != 33.3 {
		t.Errorf("rate(1, 3) = %v, want 33.3", got)
	}
}

func TestBuildBatchLogDerivesRates(t *testing.T) {
	now := time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC)
	start := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)

	stats := Stats{
		L1RawCount:       120,
		L1DedupCount:     100,
		L2PassedCount:    20,
		L3RelevantCount:  5,
		FiguresExtracted: 12,
		Errors:           []string{"L1: timeout"},
	}

	log := buildBatchLog(now, start, end, stats, 90*time.Second)

	if log.ExecutionDate != "2026-07-31" {
		t.Errorf("ExecutionDate = %q, want 2026-07-31", log.ExecutionDate)
	}
	if log.L2PassRate != 20.0 {
		t.Errorf("L2PassRate = %v, want 20.0", log.L2PassRate)
	}
	if log.L3RelevanceRate != 25.0 {
		t.Errorf("L3RelevanceRate = %v, want 25.0", log.L3RelevanceRate)
	}
	if log.ProcessingTimeSec != 90 {
		t.Errorf("ProcessingTimeSec = %d, want 90", log.ProcessingTimeSec)
	}
	if len(log.Errors) != 1 || log.Errors[0] != "L1: timeout" {
		t.Errorf("Errors = %v, want [\"L1: timeout\"]", log.Errors)
	}
}

func TestBuildBatchLogZeroInputYieldsZeroRates(t *testing.T) {
	now := time.Now().UTC()
	log := buildBatchLog(now, now, now, Stats{}, time.Second)
	if log.L2PassRate != 0 || log.L3RelevanceRate != 0 {
		t.Error("expected zero rates when there is no input at all")
	}
}
