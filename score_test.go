package syncagent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScoreWorkedExample(t *testing.T) {
	// SCA 90, one high vulnerability, all controls satisfied:
	// 90*0.5 + (100-10)*0.3 + 100*0.2 = 45 + 27 + 20 = 92.
	got := DefaultScoreConfig().Score(ScoreInput{
		SCAScore:  90,
		HighCount: 1,
		Controls: ControlPosture{
			Antivirus: true, Firewall: true, DiskEncryption: true, PatchesUpToDate: true,
		},
	})
	assert.Equal(t, 92, got)
}

func TestScorePenaltySaturates(t *testing.T) {
	cfg := DefaultScoreConfig()
	moderate := cfg.Score(ScoreInput{SCAScore: 100, CriticalCount: 4})
	flooded := cfg.Score(ScoreInput{SCAScore: 100, CriticalCount: 400})
	assert.Equal(t, moderate, flooded, "penalty is capped at 100")
}

func TestScoreBounds(t *testing.T) {
	cfg := DefaultScoreConfig()
	cases := []ScoreInput{
		{},
		{SCAScore: 100, Controls: ControlPosture{Antivirus: true, Firewall: true, DiskEncryption: true, PatchesUpToDate: true}},
		{SCAScore: 0, CriticalCount: 50, HighCount: 50},
		{SCAScore: 37, CriticalCount: 1, HighCount: 3, Controls: ControlPosture{Firewall: true}},
	}
	for _, in := range cases {
		got := cfg.Score(in)
		assert.GreaterOrEqual(t, got, 0)
		assert.LessOrEqual(t, got, 100)
	}
}

func TestScoreControlShare(t *testing.T) {
	cfg := DefaultScoreConfig()
	none := cfg.Score(ScoreInput{SCAScore: 100})
	half := cfg.Score(ScoreInput{SCAScore: 100, Controls: ControlPosture{Antivirus: true, Firewall: true}})
	all := cfg.Score(ScoreInput{SCAScore: 100, Controls: ControlPosture{
		Antivirus: true, Firewall: true, DiskEncryption: true, PatchesUpToDate: true,
	}})
	assert.Equal(t, 80, none)
	assert.Equal(t, 90, half)
	assert.Equal(t, 100, all)
}

func TestScoreConfigurableCriticalWeight(t *testing.T) {
	cfg := DefaultScoreConfig()
	cfg.CriticalWeight = 50
	heavier := cfg.Score(ScoreInput{SCAScore: 90, CriticalCount: 1})
	cfg.CriticalWeight = 10
	lighter := cfg.Score(ScoreInput{SCAScore: 90, CriticalCount: 1})
	assert.Less(t, heavier, lighter)
}
