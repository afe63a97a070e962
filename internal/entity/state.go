package entity

// Keys of the persistent update state. The record is an open JSON object:
// keys written by other versions are kept as-is.
const (
	StateUpdatedAt     = "updated_at"
	StateBranch        = "branch"
	StatePreviousHead  = "previous_head"
	StateLastKnownGood = "last_known_good"
	StateRolledBackAt  = "rolled_back_at"
	StateRolledBackTo  = "rolled_back_to"
)

type PersistentState map[string]any

// String returns the value stored under key when it is a string.
func (s PersistentState) String(key string) string {
	v, _ := s[key].(string)
	return v
}

func (s PersistentState) PreviousHead() string  { return s.String(StatePreviousHead) }
func (s PersistentState) LastKnownGood() string { return s.String(StateLastKnownGood) }
