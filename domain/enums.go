package domain

// Role attributes a chat turn to one side of the conversation.
type Role string

const (
	RoleUser      Role = "user"
	RoleCompanion Role = "companion"
)

// Mood selects the companion's conversational style.
type Mood string

const (
	MoodNormal   Mood = "normal"
	MoodClingy   Mood = "clingy"
	MoodCute     Mood = "cute"
	MoodTsundere Mood = "tsundere"
	MoodYandere  Mood = "yandere"
)

// AllMoods lists every selectable mood, restricted ones included.
var AllMoods = []Mood{MoodNormal, MoodClingy, MoodCute, MoodTsundere, MoodYandere}

// ParseMood validates a raw mood string.
func ParseMood(s string) (Mood, bool) {
	for _, m := range AllMoods {
		if string(m) == s {
			return m, true
		}
	}
	return "", false
}

// Restricted reports whether the mood requires a premium entitlement.
func (m Mood) Restricted() bool {
	return m == MoodTsundere || m == MoodYandere
}

// MemoryTier identifies a purchasable message-memory plan.
type MemoryTier string

const (
	MemoryTierBasic     MemoryTier = "basic"
	MemoryTierDeep      MemoryTier = "deep"
	MemoryTierUnlimited MemoryTier = "unlimited"
)

// ParseMemoryTier validates a raw tier string.
func ParseMemoryTier(s string) (MemoryTier, bool) {
	switch MemoryTier(s) {
	case MemoryTierBasic, MemoryTierDeep, MemoryTierUnlimited:
		return MemoryTier(s), true
	}
	return "", false
}
