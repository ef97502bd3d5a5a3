package service

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"pktracker/internal/model"
	"pktracker/internal/repository"
)

// MemberDirectory resolves display names from the names users had when they
// last issued a command, asking fallback for the ones never seen.
type MemberDirectory struct {
	members  *repository.MemberRepository
	fallback NicknameResolver
	log      zerolog.Logger
}

func NewMemberDirectory(members *repository.MemberRepository, fallback NicknameResolver, log zerolog.Logger) *MemberDirectory {
	if fallback == nil {
		fallback = echoResolver{}
	}
	return &MemberDirectory{members: members, fallback: fallback, log: log.With().Str("component", "members").Logger()}
}

// Remember records a user's current names in a group.
func (d *MemberDirectory) Remember(ctx context.Context, groupID, userID, displayName, username string) error {
	if groupID == "" || userID == "" {
		return invalidParam("group and user are required")
	}
	m := model.Member{
		GroupID:     groupID,
		UserID:      userID,
		DisplayName: strings.TrimSpace(displayName),
		Username:    strings.TrimSpace(username),
	}
	if err := d.members.Upsert(ctx, &m); err != nil {
		return storeErr("remember member", err)
	}
	return nil
}

func (d *MemberDirectory) Resolve(ctx context.Context, groupID string, userIDs []string) map[string]string {
	names, err := d.members.Names(ctx, groupID, userIDs)
	if err != nil {
		d.log.Warn().Err(err).Str("group", groupID).Msg("stored names unavailable")
		names = map[string]string{}
	}

	var missing []string
	for _, id := range userIDs {
		if _, ok := names[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		for id, name := range d.fallback.Resolve(ctx, groupID, missing) {
			names[id] = name
		}
	}
	for _, id := range userIDs {
		if names[id] == "" {
			names[id] = id
		}
	}
	return names
}
