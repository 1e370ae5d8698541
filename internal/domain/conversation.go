package domain

// ConversationKey identifies a conversation: an unordered user pair or a group.
type ConversationKey struct {
	UserA   string
	UserB   string
	GroupID string
}

// DirectConversation orders the pair so (a, b) and (b, a) give the same key.
func DirectConversation(a, b string) ConversationKey {
	if b < a {
		a, b = b, a
	}
	return ConversationKey{UserA: a, UserB: b}
}

func GroupConversation(groupID string) ConversationKey {
	return ConversationKey{GroupID: groupID}
}

func (k ConversationKey) IsGroup() bool { return k.GroupID != "" }

// Includes is only meaningful for direct conversations; group membership
// lives with the group collaborator.
func (k ConversationKey) Includes(userID string) bool {
	return !k.IsGroup() && (k.UserA == userID || k.UserB == userID)
}

func (k ConversationKey) String() string {
	if k.IsGroup() {
		return "group:" + k.GroupID
	}
	return "dm:" + k.UserA + ":" + k.UserB
}
