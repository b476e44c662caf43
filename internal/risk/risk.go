package risk

import "fmt"

type Level string

const (
	Negligible Level = "negligible"
	Low        Level = "low"
	Medium     Level = "medium"
	High       Level = "high"
	Critical   Level = "critical"
)

// Breakpoints shared with the risk registers and CAPA dashboards. Do not change.
const (
	criticalAt = 20
	highAt     = 15
	mediumAt   = 8
	lowAt      = 4
)

// Assessment is a classified probability/impact pair.
type Assessment struct {
	Probability int   `json:"probability"`
	Impact      int   `json:"impact"`
	Score       int   `json:"score"`
	Level       Level `json:"level"`
}

// Classify scores probability × impact, both on a 1..5 scale.
func Classify(probability, impact int) (Assessment, error) {
	if probability < 1 || probability > 5 {
		return Assessment{}, fmt.Errorf("probability must be 1..5, got %d", probability)
	}
	if impact < 1 || impact > 5 {
		return Assessment{}, fmt.Errorf("impact must be 1..5, got %d", impact)
	}
	score := probability * impact
	return Assessment{Probability: probability, Impact: impact, Score: score, Level: LevelFor(score)}, nil
}

func LevelFor(score int) Level {
	switch {
	case score >= criticalAt:
		return Critical
	case score >= highAt:
		return High
	case score >= mediumAt:
		return Medium
	case score >= lowAt:
		return Low
	}
	return Negligible
}

// Matrix returns the 5×5 grid indexed [probability-1][impact-1].
func Matrix() [5][5]Assessment {
	var m [5][5]Assessment
	for p := 1; p <= 5; p++ {
		for i := 1; i <= 5; i++ {
			m[p-1][i-1], _ = Classify(p, i)
		}
	}
	return m
}
