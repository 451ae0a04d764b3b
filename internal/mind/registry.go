package mind

import (
	"errors"
	"math/rand"
	"strings"

	"github.com/doodlemind/doodle.ai/internal/models"
)

var (
	ErrUnknownPersona     = errors.New("mind: unknown persona")
	ErrInsufficientEnergy = errors.New("mind: insufficient energy")
	ErrNotUnlocked        = errors.New("mind: persona not unlocked")
)

// BootstrapBonus is the energy grant that accompanies the one-time initial
// cabinet selection.
const BootstrapBonus = 300

// companionCount is the number of personas unlocked alongside the primary
// pick during bootstrap selection.
const companionCount = 3

// Registry holds the fixed persona roster and its per-session unlock and
// activation flags. It is not safe for concurrent use; the owning session
// context serializes access.
type Registry struct {
	personas map[string]*models.Persona
	order    []string
}

// NewRegistry builds a registry from a roster. The user sentinel id is
// skipped if present so it can never be unlocked or activated.
func NewRegistry(roster []models.Persona) *Registry {
	r := &Registry{personas: make(map[string]*models.Persona, len(roster))}
	for _, p := range roster {
		if p.ID == models.AuthorUser || p.ID == models.AuthorSystem {
			continue
		}
		persona := p
		r.personas[p.ID] = &persona
		r.order = append(r.order, p.ID)
	}
	return r
}

// Get returns a copy of the persona record.
func (r *Registry) Get(id string) (models.Persona, bool) {
	p, ok := r.personas[id]
	if !ok {
		return models.Persona{}, false
	}
	return *p, true
}

// All returns the roster in its stable catalog order.
func (r *Registry) All() []models.Persona {
	out := make([]models.Persona, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.personas[id])
	}
	return out
}

// Eligible returns the personas allowed to speak in conversation turns:
// unlocked and currently active.
func (r *Registry) Eligible() []models.Persona {
	out := make([]models.Persona, 0, len(r.order))
	for _, id := range r.order {
		if p := r.personas[id]; p.Unlocked && p.Active {
			out = append(out, *p)
		}
	}
	return out
}

// Unlock debits the persona's cost from the vector and marks it unlocked and
// active. Unlocking an already-unlocked persona is a no-op so retries can
// never double-charge.
func (r *Registry) Unlock(id string, v *TraitVector) error {
	p, ok := r.personas[id]
	if !ok {
		return ErrUnknownPersona
	}
	if p.Unlocked {
		return nil
	}
	if v.Energy < p.Cost {
		return ErrInsufficientEnergy
	}
	v.Energy -= p.Cost
	p.Unlocked = true
	p.Active = true
	return nil
}

// ToggleActive flips the activation flag of an unlocked persona. Deactivated
// personas keep their history but are excluded from future turns.
func (r *Registry) ToggleActive(id string) error {
	p, ok := r.personas[id]
	if !ok {
		return ErrUnknownPersona
	}
	if !p.Unlocked {
		return ErrNotUnlocked
	}
	p.Active = !p.Active
	return nil
}

// SetFlags restores persisted unlock/activation state. Active is forced off
// when the persona is not unlocked, preserving the active-implies-unlocked
// invariant against stale snapshots.
func (r *Registry) SetFlags(id string, unlocked, active bool) {
	p, ok := r.personas[id]
	if !ok {
		return
	}
	p.Unlocked = unlocked
	p.Active = active && unlocked
}

// BootstrapSelection unlocks the primary persona plus exactly three
// companions and credits the bootstrap energy bonus. The companion heuristic
// prefers the persona whose type code opposes the primary's on all four
// dimensions (the shadow); remaining slots are filled by uniform random
// sampling without replacement. Returns the unlocked ids, primary first.
func (r *Registry) BootstrapSelection(primaryID string, v *TraitVector, rng *rand.Rand) ([]string, error) {
	primary, ok := r.personas[primaryID]
	if !ok {
		return nil, ErrUnknownPersona
	}

	selected := []string{primaryID}
	taken := map[string]bool{primaryID: true}

	shadowCode := OppositeType(primary.TypeCode)
	for _, id := range r.order {
		if !taken[id] && r.personas[id].TypeCode == shadowCode {
			selected = append(selected, id)
			taken[id] = true
			break
		}
	}

	pool := make([]string, 0, len(r.order))
	for _, id := range r.order {
		if !taken[id] {
			pool = append(pool, id)
		}
	}
	rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	for _, id := range pool {
		if len(selected) >= 1+companionCount {
			break
		}
		selected = append(selected, id)
		taken[id] = true
	}

	for _, id := range selected {
		p := r.personas[id]
		p.Unlocked = true
		p.Active = true
	}
	v.Energy += BootstrapBonus

	return selected, nil
}

// OppositeType maps a 4-letter type code to its full complement, flipping
// every dimension letter. Characters outside the eight letters pass through
// unchanged.
func OppositeType(code string) string {
	flip := map[rune]rune{
		'E': 'I', 'I': 'E',
		'N': 'S', 'S': 'N',
		'T': 'F', 'F': 'T',
		'J': 'P', 'P': 'J',
	}
	return strings.Map(func(c rune) rune {
		if o, ok := flip[c]; ok {
			return o
		}
		return c
	}, strings.ToUpper(code))
}
