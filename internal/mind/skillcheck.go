package mind

import "github.com/doodlemind/doodle.ai/internal/models"

// Roller is the random source consumed by skill checks. *rand.Rand satisfies
// it; tests substitute scripted sequences.
type Roller interface {
	Intn(n int) int
}

// CheckOutcome classifies a skill-check roll.
type CheckOutcome int

const (
	OutcomeCriticalFailure CheckOutcome = iota
	OutcomeFailure
	OutcomeSuccess
	OutcomeCriticalSuccess
)

func (o CheckOutcome) String() string {
	switch o {
	case OutcomeCriticalFailure:
		return "CRITICAL_FAILURE"
	case OutcomeFailure:
		return "FAILURE"
	case OutcomeSuccess:
		return "SUCCESS"
	case OutcomeCriticalSuccess:
		return "CRITICAL_SUCCESS"
	default:
		return "UNKNOWN"
	}
}

// DefaultDifficulty is the standard target number for a flavor check.
const DefaultDifficulty = 8

// SkillCheck captures one two-die roll. The raw dice are kept alongside the
// modified total so criticals stay auditable.
type SkillCheck struct {
	PersonaID  string       `json:"personaId"`
	SkillName  string       `json:"skillName"`
	Difficulty int          `json:"difficulty"`
	Die1       int          `json:"die1"`
	Die2       int          `json:"die2"`
	Modifier   int          `json:"modifier"`
	Total      int          `json:"total"`
	Outcome    CheckOutcome `json:"outcome"`
}

// RollSkillCheck rolls 2d6 plus a level-derived modifier against the given
// difficulty. Double sixes and double ones are criticals decided by the raw
// dice alone, so the modifier can never buy or dodge one. The persona is
// never mutated; callers decide what to do with the outcome.
func RollSkillCheck(p models.Persona, difficulty int, rng Roller) SkillCheck {
	if difficulty <= 0 {
		difficulty = DefaultDifficulty
	}

	die1 := rng.Intn(6) + 1
	die2 := rng.Intn(6) + 1
	modifier := (p.Level - 1) * 2
	total := die1 + die2 + modifier

	var outcome CheckOutcome
	switch {
	case die1 == 6 && die2 == 6:
		outcome = OutcomeCriticalSuccess
	case die1 == 1 && die2 == 1:
		outcome = OutcomeCriticalFailure
	case total >= difficulty:
		outcome = OutcomeSuccess
	default:
		outcome = OutcomeFailure
	}

	return SkillCheck{
		PersonaID:  p.ID,
		SkillName:  p.SkillName,
		Difficulty: difficulty,
		Die1:       die1,
		Die2:       die2,
		Modifier:   modifier,
		Total:      total,
		Outcome:    outcome,
	}
}
