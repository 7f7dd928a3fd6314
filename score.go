package syncagent

import "math"

// ScoreConfig holds the weights of the compliance score formula. The critical
// vulnerability weight is not pinned down by any authoritative source, so it
// is configuration rather than a constant.
type ScoreConfig struct {
	// CriticalWeight is the penalty per critical vulnerability.
	CriticalWeight int
	// HighWeight is the penalty per high vulnerability.
	HighWeight int
	// SCAShare, VulnShare and ControlShare blend the three partial scores.
	// They should sum to 1.
	SCAShare     float64
	VulnShare    float64
	ControlShare float64
}

// DefaultScoreConfig returns the standard weighting: half configuration
// assessment, 30% vulnerability exposure, 20% control posture.
func DefaultScoreConfig() ScoreConfig {
	return ScoreConfig{
		CriticalWeight: 25,
		HighWeight:     10,
		SCAShare:       0.5,
		VulnShare:      0.3,
		ControlShare:   0.2,
	}
}

// ScoreInput is everything the scorer needs from one agent record.
type ScoreInput struct {
	SCAScore      int
	CriticalCount int
	HighCount     int
	Controls      ControlPosture
}

// Score computes the 0-100 compliance score for one device. Pure function of
// its inputs; the vulnerability penalty saturates at 100.
func (c ScoreConfig) Score(in ScoreInput) int {
	penalty := in.CriticalCount*c.CriticalWeight + in.HighCount*c.HighWeight
	if penalty > 100 {
		penalty = 100
	}
	controlScore := 100 * float64(in.Controls.Satisfied()) / float64(ControlCount)

	raw := float64(in.SCAScore)*c.SCAShare +
		float64(100-penalty)*c.VulnShare +
		controlScore*c.ControlShare
	score := int(math.Round(raw))
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
