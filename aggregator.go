package presencecount

import "github.com/samber/lo"

// Recompute counts the distinct user ids present anywhere in the state.
// Records without a user id are not counted.
func Recompute(state PresenceState) int {
	userIDs := lo.FilterMap(lo.Flatten(lo.Values(map[string][]PresenceRecord(state))), func(r PresenceRecord, _ int) (string, bool) {
		return r.UserID, r.UserID != ""
	})
	return len(lo.Uniq(userIDs))
}
