package mind

import "github.com/doodlemind/doodle.ai/internal/models"

// DefaultRoster returns the built-in sixteen-persona catalog, one archetype
// per type code. It is the fallback when the catalog table has not been
// seeded yet, and the source of truth for the seeding script.
func DefaultRoster() []models.Persona {
	return []models.Persona{
		{ID: "cypher", Name: "Cypher", Title: "The Cold Equation", TypeCode: "INTJ", SkillName: "Deep Logic", SkillEffect: "Dismantles an emotion into premises and conclusions", Level: 3, Cost: 260},
		{ID: "chrono", Name: "Chrono", Title: "The Idle Theorist", TypeCode: "INTP", SkillName: "Thought Spiral", SkillEffect: "Derails the topic into a recursive what-if", Level: 2, Cost: 180},
		{ID: "midas", Name: "Midas", Title: "The Profit Engine", TypeCode: "ENTJ", SkillName: "Leverage", SkillEffect: "Reframes the situation as a deal to be closed", Level: 3, Cost: 260},
		{ID: "pax", Name: "Pax", Title: "The Chaos Broker", TypeCode: "ENTP", SkillName: "Devil's Advocate", SkillEffect: "Argues the opposite just to watch the sparks", Level: 2, Cost: 180},
		{ID: "aether", Name: "Aether", Title: "The Pattern Seer", TypeCode: "INFJ", SkillName: "Oracle Glimpse", SkillEffect: "Names the feeling nobody had words for", Level: 2, Cost: 220},
		{ID: "nocturne", Name: "Nocturne", Title: "The Quiet Static", TypeCode: "INFP", SkillName: "Inner Echo", SkillEffect: "Replays the moment in softer light", Level: 1, Cost: 140},
		{ID: "aura", Name: "Aura", Title: "The Room Reader", TypeCode: "ENFJ", SkillName: "Harmonize", SkillEffect: "Pulls the whole cabinet back onto one page", Level: 2, Cost: 220},
		{ID: "eros", Name: "Eros", Title: "The Heavy Heart", TypeCode: "ENFP", SkillName: "Flare", SkillEffect: "Floods the channel with unfiltered feeling", Level: 1, Cost: 140},
		{ID: "justicar", Name: "Justicar", Title: "The Standing Order", TypeCode: "ISTJ", SkillName: "Protocol", SkillEffect: "Cites the rule that was just broken", Level: 2, Cost: 160},
		{ID: "haven", Name: "Haven", Title: "The Soft Wall", TypeCode: "ISFJ", SkillName: "Shelter", SkillEffect: "Absorbs the blow before it lands", Level: 1, Cost: 120},
		{ID: "sledge", Name: "Sledge", Title: "The Blunt Instrument", TypeCode: "ESTJ", SkillName: "Enforce", SkillEffect: "Ends the debate by decree", Level: 2, Cost: 160},
		{ID: "nurture", Name: "Nurture", Title: "The Warm Current", TypeCode: "ESFJ", SkillName: "Tend", SkillEffect: "Checks on everyone whether they like it or not", Level: 1, Cost: 120},
		{ID: "edge", Name: "Edge", Title: "The Steady Hand", TypeCode: "ISTP", SkillName: "Field Strip", SkillEffect: "Takes the problem apart without comment", Level: 2, Cost: 150},
		{ID: "dusk", Name: "Dusk", Title: "The Fading Sketch", TypeCode: "ISFP", SkillName: "Still Life", SkillEffect: "Finds the one beautiful detail in the mess", Level: 1, Cost: 130},
		{ID: "volt", Name: "Volt", Title: "The Live Wire", TypeCode: "ESTP", SkillName: "Overclock", SkillEffect: "Acts before the thought finishes forming", Level: 2, Cost: 150},
		{ID: "seraphina", Name: "Seraphina", Title: "The Center Stage", TypeCode: "ESFP", SkillName: "Spotlight", SkillEffect: "Makes the moment about the moment", Level: 1, Cost: 130},
	}
}
