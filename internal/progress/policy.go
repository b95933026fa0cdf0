package progress

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Policy holds the tracking constants shared by the telemetry probes and the
// lesson progress engine. Defaults match production; a YAML file can override
// individual values without touching the algorithms.
type Policy struct {
	// CompleteThreshold is the watched/duration ratio at which a video lesson
	// counts as completed. Intentionally below 1.0 to tolerate player-reported
	// rounding at end of stream.
	CompleteThreshold float64 `yaml:"complete_threshold"`
	// FinalizeEpsilonSec widens the "reached the end" test on finalize.
	FinalizeEpsilonSec float64 `yaml:"finalize_epsilon_sec"`
	// MinSecondsPerPage is the dwell time a document page needs before the
	// reader may advance past it.
	MinSecondsPerPage float64 `yaml:"min_seconds_per_page"`
	// MaxForwardSkipSec is the forward jump allowed before a seek violation.
	MaxForwardSkipSec float64 `yaml:"max_forward_skip_sec"`
	// JitterSec absorbs player position noise on top of MaxForwardSkipSec and
	// before a backward jump is treated as a rewind.
	JitterSec float64 `yaml:"jitter_sec"`
	// RateTolerance is the allowed deviation from 1x playback.
	RateTolerance float64 `yaml:"rate_tolerance"`
}

func DefaultPolicy() Policy {
	return Policy{
		CompleteThreshold:  0.98,
		FinalizeEpsilonSec: 1.0,
		MinSecondsPerPage:  30,
		MaxForwardSkipSec:  2,
		JitterSec:          1.25,
		RateTolerance:      0.01,
	}
}

// LoadPolicy reads a YAML policy file over the defaults. An empty path
// returns the defaults unchanged.
func LoadPolicy(path string) (Policy, error) {
	p := DefaultPolicy()
	if path == "" {
		return p, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("read policy file: %w", err)
	}
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return p, fmt.Errorf("parse policy file: %w", err)
	}
	if p.CompleteThreshold <= 0 || p.CompleteThreshold > 1 {
		return p, fmt.Errorf("complete_threshold out of range: %v", p.CompleteThreshold)
	}
	if p.MinSecondsPerPage < 0 || p.FinalizeEpsilonSec < 0 {
		return p, fmt.Errorf("negative duration in policy file")
	}
	return p, nil
}
