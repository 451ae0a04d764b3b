// Package mind implements the persona simulation core: the trait vector,
// the persona registry with its unlock economy, and the skill-check engine.
package mind

import "strings"

// UnresolvedType is reported by DominantType before any resonance has been
// recorded.
const UnresolvedType = "----"

// ResonanceReward is the energy granted per approved persona message.
const ResonanceReward = 20

// TraitVector accumulates per-dimension approval counters plus the user's
// spendable energy balance. Counters only ever grow; energy is earned by
// resonance and spent on unlocks.
type TraitVector struct {
	E int `json:"E"`
	I int `json:"I"`
	N int `json:"N"`
	S int `json:"S"`
	T int `json:"T"`
	F int `json:"F"`
	J int `json:"J"`
	P int `json:"P"`

	Energy int `json:"energy"`
}

// Apply reinforces every dimension letter present in the persona type code.
// Unknown letters are ignored so a malformed code cannot corrupt the vector.
func (v *TraitVector) Apply(typeCode string) {
	for _, letter := range strings.ToUpper(typeCode) {
		if c := v.counter(byte(letter)); c != nil {
			*c++
		}
	}
}

// Reinforce applies a persona's type code and credits the resonance reward.
func (v *TraitVector) Reinforce(typeCode string) {
	v.Apply(typeCode)
	v.Energy += ResonanceReward
}

// DominantType resolves each opposed dimension pair by majority count into a
// 4-letter label. Ties fall toward the second letter of each pair (I, N, F,
// P). An untouched vector yields UnresolvedType.
func (v TraitVector) DominantType() string {
	if v.E+v.I+v.N+v.S+v.T+v.F+v.J+v.P == 0 {
		return UnresolvedType
	}

	var b strings.Builder
	b.WriteByte(pick(v.E, v.I, 'E', 'I'))
	b.WriteByte(pick(v.S, v.N, 'S', 'N'))
	b.WriteByte(pick(v.T, v.F, 'T', 'F'))
	b.WriteByte(pick(v.J, v.P, 'J', 'P'))
	return b.String()
}

func pick(first, second int, a, b byte) byte {
	if first > second {
		return a
	}
	return b
}

func (v *TraitVector) counter(letter byte) *int {
	switch letter {
	case 'E':
		return &v.E
	case 'I':
		return &v.I
	case 'N':
		return &v.N
	case 'S':
		return &v.S
	case 'T':
		return &v.T
	case 'F':
		return &v.F
	case 'J':
		return &v.J
	case 'P':
		return &v.P
	default:
		return nil
	}
}
