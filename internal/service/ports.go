package service

import "context"

// Notifier delivers a text message to a group. Delivery is best effort.
type Notifier interface {
	Send(ctx context.Context, groupID, text string) error
}

// NicknameResolver maps user ids to display names for formatting. Ids it
// cannot resolve map to themselves.
type NicknameResolver interface {
	Resolve(ctx context.Context, groupID string, userIDs []string) map[string]string
}

// echoResolver returns ids unchanged.
type echoResolver struct{}

func (echoResolver) Resolve(_ context.Context, _ string, userIDs []string) map[string]string {
	out := make(map[string]string, len(userIDs))
	for _, id := range userIDs {
		out[id] = id
	}
	return out
}

func displayName(names map[string]string, userID string) string {
	if n, ok := names[userID]; ok && n != "" {
		return n
	}
	return userID
}
