package models

// Persona is one archetype of the user's inner cabinet. The roster is fixed
// at process start; only the Unlocked/Active flags change over a session.
type Persona struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Title       string `json:"title"`
	TypeCode    string `json:"typeCode"`
	SkillName   string `json:"skillName"`
	SkillEffect string `json:"skillEffect"`
	Level       int    `json:"level"`
	Exp         int    `json:"exp"`
	Cost        int    `json:"cost"`
	Unlocked    bool   `json:"unlocked"`
	Active      bool   `json:"active"`
}
