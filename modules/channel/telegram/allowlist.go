package telegram

// AllowList restricts link submission by sender ID. An empty list allows
// everyone; relay media events are never subject to it.
type AllowList struct {
	users map[int64]struct{}
}

// NewAllowList builds an AllowList from the configured user IDs.
func NewAllowList(users []int64) *AllowList {
	m := make(map[int64]struct{}, len(users))
	for _, id := range users {
		m[id] = struct{}{}
	}
	return &AllowList{users: m}
}

// IsAllowed reports whether the sender may submit links.
func (a *AllowList) IsAllowed(senderID int64) bool {
	if len(a.users) == 0 {
		return true
	}
	_, ok := a.users[senderID]
	return ok
}
