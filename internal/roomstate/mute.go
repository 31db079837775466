package roomstate

import "sort"

// MuteSet is the set of user ids muted by an instructor.
type MuteSet struct {
	muted map[string]struct{}
}

func (m *MuteSet) Mute(userID string) bool {
	if m.muted == nil {
		m.muted = make(map[string]struct{})
	}
	if _, ok := m.muted[userID]; ok {
		return false
	}
	m.muted[userID] = struct{}{}
	return true
}

func (m *MuteSet) Unmute(userID string) bool {
	if _, ok := m.muted[userID]; !ok {
		return false
	}
	delete(m.muted, userID)
	return true
}

// MuteAll adds every id and reports whether the set changed.
func (m *MuteSet) MuteAll(userIDs []string) bool {
	changed := false
	for _, id := range userIDs {
		if m.Mute(id) {
			changed = true
		}
	}
	return changed
}

// UnmuteAll empties the set and reports whether it was non-empty.
func (m *MuteSet) UnmuteAll() bool {
	if len(m.muted) == 0 {
		return false
	}
	m.muted = nil
	return true
}

func (m *MuteSet) Contains(userID string) bool {
	_, ok := m.muted[userID]
	return ok
}

// List returns the muted ids sorted, never nil.
func (m *MuteSet) List() []string {
	ids := make([]string, 0, len(m.muted))
	for id := range m.muted {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
