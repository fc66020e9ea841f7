// file: websocket/conversation.go
package websocket

import (
	"errors"
	"slices"
	"strings"
)

const participantSeparator = ":"

// ErrInvalidConversation means a conversation id is not in canonical form.
var ErrInvalidConversation = errors.New("invalid conversation id")

// ConversationID returns the room name for a set of participants: the distinct
// user ids, sorted and joined with ":". Order and duplicates do not matter.
func ConversationID(participants ...string) string {
	ids := make([]string, 0, len(participants))
	for _, p := range participants {
		if p = strings.TrimSpace(p); p != "" {
			ids = append(ids, p)
		}
	}
	slices.Sort(ids)
	return strings.Join(slices.Compact(ids), participantSeparator)
}

// Participants splits a conversation id into its user ids. Ids that are not
// exactly what ConversationID would produce for their members, or that name
// fewer than two people, are rejected.
func Participants(id string) ([]string, error) {
	ids := strings.Split(id, participantSeparator)
	if len(ids) < 2 || ConversationID(ids...) != id {
		return nil, ErrInvalidConversation
	}
	return ids, nil
}

// isParticipant reports whether userID belongs to the conversation.
func isParticipant(conversation, userID string) (bool, error) {
	ids, err := Participants(conversation)
	if err != nil {
		return false, err
	}
	return userID != "" && slices.Contains(ids, userID), nil
}
