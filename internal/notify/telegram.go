package notify

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// API is the part of *tgbotapi.BotAPI used for outbound messages and lookups.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetChatMember(config tgbotapi.GetChatMemberConfig) (tgbotapi.ChatMember, error)
}

const defaultRatePerSec = 20

// TelegramNotifier delivers group messages through the Bot API, throttled to
// stay under Telegram's flood limits.
type TelegramNotifier struct {
	api     API
	limiter *rate.Limiter
	log     zerolog.Logger
}

func NewTelegramNotifier(api API, ratePerSec int, log zerolog.Logger) *TelegramNotifier {
	if ratePerSec <= 0 {
		ratePerSec = defaultRatePerSec
	}
	return &TelegramNotifier{
		api:     api,
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec),
		log:     log.With().Str("component", "notifier").Logger(),
	}
}

// Send posts text to the chat identified by groupID.
func (n *TelegramNotifier) Send(ctx context.Context, groupID, text string) error {
	chatID, err := ParseChatID(groupID)
	if err != nil {
		return err
	}
	if err := n.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}
	if _, err := n.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		return fmt.Errorf("send message to %d: %w", chatID, err)
	}
	n.log.Debug().Int64("chat", chatID).Int("len", len(text)).Msg("message sent")
	return nil
}

// TelegramResolver looks up display names of chat members. Ids that fail to
// resolve are returned unchanged.
type TelegramResolver struct {
	api API
	log zerolog.Logger
}

func NewTelegramResolver(api API, log zerolog.Logger) *TelegramResolver {
	return &TelegramResolver{api: api, log: log.With().Str("component", "resolver").Logger()}
}

func (r *TelegramResolver) Resolve(ctx context.Context, groupID string, userIDs []string) map[string]string {
	out := make(map[string]string, len(userIDs))
	chatID, chatErr := ParseChatID(groupID)
	for _, id := range userIDs {
		out[id] = id
		if chatErr != nil || ctx.Err() != nil {
			continue
		}
		userID, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			continue
		}
		member, err := r.api.GetChatMember(tgbotapi.GetChatMemberConfig{
			ChatConfigWithUser: tgbotapi.ChatConfigWithUser{ChatID: chatID, UserID: userID},
		})
		if err != nil {
			r.log.Debug().Err(err).Int64("chat", chatID).Int64("user", userID).Msg("member lookup failed")
			continue
		}
		if name := DisplayName(member.User); name != "" {
			out[id] = name
		}
	}
	return out
}

// DisplayName prefers a user's full name over the username.
func DisplayName(u *tgbotapi.User) string {
	if u == nil {
		return ""
	}
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name != "" {
		return name
	}
	return u.UserName
}

// ParseChatID converts a stored group id back to a Telegram chat id.
func ParseChatID(groupID string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(groupID), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid chat id %q: %w", groupID, err)
	}
	return id, nil
}

// LogNotifier writes messages to the log instead of a chat. It backs dry runs.
type LogNotifier struct {
	Log zerolog.Logger
}

func (n LogNotifier) Send(_ context.Context, groupID, text string) error {
	n.Log.Info().Str("group", groupID).Str("text", text).Msg("dry-run message")
	return nil
}
