package domain

import "strings"

// keyDelimiter joins the two participant IDs of a conversation key. User
// IDs are ObjectID hex strings, so the delimiter can never occur inside
// an identity.
const keyDelimiter = ":"

// ConversationKey derives the canonical identifier for the unordered pair
// of participants. The two IDs are sorted lexicographically before
// joining, so ConversationKey(a, b) == ConversationKey(b, a).
func ConversationKey(a, b string) string {
	if strings.Compare(a, b) > 0 {
		a, b = b, a
	}
	return a + keyDelimiter + b
}

// ConversationParticipants splits a conversation key back into the two
// participant IDs. The second return is false for malformed keys.
func ConversationParticipants(key string) (string, string, bool) {
	a, b, ok := strings.Cut(key, keyDelimiter)
	if !ok || a == "" || b == "" {
		return "", "", false
	}
	return a, b, true
}
