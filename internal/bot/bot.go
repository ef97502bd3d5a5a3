package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"pktracker/internal/notify"
	"pktracker/internal/service"
)

// API is the part of *tgbotapi.BotAPI the bot needs.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Services bundles what the command handlers call into.
type Services struct {
	Tasks    *service.TaskService
	Checkins *service.CheckinService
	Ranking  *service.RankingService
	Admins   *service.AdminService
	Members  *service.MemberDirectory
	Names    service.NicknameResolver
}

// Bot turns group chat commands into tracker operations.
type Bot struct {
	api API
	svc Services
	log zerolog.Logger
}

func New(api API, svc Services, log zerolog.Logger) *Bot {
	return &Bot{api: api, svc: svc, log: log.With().Str("component", "bot").Logger()}
}

// Start begins polling updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := b.api.GetUpdatesChan(updateConfig)

	b.log.Info().Msg("start polling updates")

	go func() {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
	}()

	for update := range updates {
		if update.Message == nil {
			continue
		}
		if err := b.handleMessage(ctx, update.Message); err != nil {
			b.log.Error().Err(err).Int64("chat", update.Message.Chat.ID).Msg("handle message")
		}
	}
	return ctx.Err()
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.From == nil || msg.Chat == nil || !msg.IsCommand() {
		return nil
	}
	if !msg.Chat.IsGroup() && !msg.Chat.IsSuperGroup() {
		return b.reply(msg, "请在群组中使用打卡命令。")
	}

	args := msg.CommandArguments()
	kind := Kind(strings.ToLower(msg.Command()))
	if (kind == KindAddAdmin || kind == KindRemoveAdmin) && strings.TrimSpace(args) == "" &&
		msg.ReplyToMessage != nil && msg.ReplyToMessage.From != nil {
		args = strconv.FormatInt(msg.ReplyToMessage.From.ID, 10)
	}

	req, err := Parse(msg.Command(), args)
	var unknown *UnknownCommandError
	if errors.As(err, &unknown) {
		return nil
	}
	if err != nil {
		return b.reply(msg, "❌ "+err.Error())
	}

	req.GroupID = strconv.FormatInt(msg.Chat.ID, 10)
	req.UserID = strconv.FormatInt(msg.From.ID, 10)
	req.UserName = notify.DisplayName(msg.From)
	if b.svc.Members != nil {
		if err := b.svc.Members.Remember(ctx, req.GroupID, req.UserID, req.UserName, msg.From.UserName); err != nil {
			b.log.Warn().Err(err).Str("user", req.UserID).Msg("remember member")
		}
	}

	b.log.Info().
		Str("group", req.GroupID).
		Str("user", req.UserID).
		Str("command", string(req.Kind)).
		Str("task", req.TaskName).
		Msg("command received")

	return b.reply(msg, b.Handle(ctx, req))
}

// Handle executes a parsed request and returns the reply text.
func (b *Bot) Handle(ctx context.Context, req Request) string {
	if IsAdminCommand(req.Kind) {
		ok, err := b.svc.Admins.IsAdmin(ctx, req.GroupID, req.UserID)
		if err != nil {
			return b.failure(req, err)
		}
		if !ok {
			return "⛔ 只有管理员可以使用此命令"
		}
	}

	text, err := b.dispatch(ctx, req)
	if err != nil {
		return b.failure(req, err)
	}
	return text
}

func (b *Bot) dispatch(ctx context.Context, req Request) (string, error) {
	switch req.Kind {
	case KindCheckin:
		res, err := b.svc.Checkins.Record(ctx, service.CheckinRequest{
			GroupID:  req.GroupID,
			UserID:   req.UserID,
			TaskName: req.TaskName,
			Content:  req.Content,
		})
		if err != nil {
			return "", err
		}
		return service.FormatCheckin(res), nil

	case KindRank:
		board, err := b.svc.Ranking.Leaderboard(ctx, req.GroupID, req.TaskName)
		if err != nil {
			return "", err
		}
		users := make([]string, 0, len(board.Entries))
		for _, e := range board.Entries {
			users = append(users, e.UserID)
		}
		return service.FormatLeaderboard(board, b.names(ctx, req.GroupID, users)), nil

	case KindMine:
		page := 1
		if len(req.Args) > 0 {
			page, _ = strconv.Atoi(req.Args[0])
		}
		detail, err := b.svc.Ranking.UserDetail(ctx, req.GroupID, req.UserID, page, service.DefaultPageSize)
		if err != nil {
			return "", err
		}
		who := req.UserName
		if who == "" {
			who = req.UserID
		}
		return service.FormatUserDetail(detail, who), nil

	case KindTasks:
		tasks, err := b.svc.Tasks.ListTasks(ctx, req.GroupID)
		if err != nil {
			return "", err
		}
		return service.FormatTaskList(tasks), nil

	case KindTask:
		detail, err := b.svc.Tasks.TaskDetail(ctx, req.GroupID, req.TaskName)
		if err != nil {
			return "", err
		}
		return service.FormatTaskDetail(detail), nil

	case KindNewTask:
		task, err := b.svc.Tasks.CreateTask(ctx, req.GroupID, req.TaskName)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("✅ 任务 [%s] 创建成功\n默认: 每日1次, 基础分1分", task.Name), nil

	case KindDeleteTask:
		if err := b.svc.Tasks.DeleteTask(ctx, req.GroupID, req.TaskName); err != nil {
			return "", err
		}
		return fmt.Sprintf("🗑 任务 [%s] 及其打卡记录已删除", req.TaskName), nil

	case KindFrequency:
		freq, _ := ParseFrequency(req.Args[0])
		task, err := b.svc.Tasks.SetFrequency(ctx, req.GroupID, req.TaskName, freq)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("✅ [%s] 打卡频率已设为%s", task.Name, service.FrequencyLabel(task.Frequency)), nil

	case KindLimit:
		n, _ := strconv.Atoi(req.Args[0])
		task, err := b.svc.Tasks.SetMaxCheckins(ctx, req.GroupID, req.TaskName, n)
		if err != nil {
			return "", err
		}
		if task.MaxCheckins == 0 {
			return fmt.Sprintf("✅ [%s] 已取消打卡次数限制", task.Name), nil
		}
		return fmt.Sprintf("✅ [%s] %s最多打卡%d次", task.Name, service.FrequencyLabel(task.Frequency), task.MaxCheckins), nil

	case KindScore:
		n, _ := strconv.Atoi(req.Args[0])
		task, err := b.svc.Tasks.SetBaseScore(ctx, req.GroupID, req.TaskName, n)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("✅ [%s] 基础分数已设为%d分", task.Name, task.BaseScore), nil

	case KindReward:
		category, _ := ParseCategory(req.Args[0])
		on, _ := parseSwitch(req.Args[1])
		var points *int
		if len(req.Args) > 2 {
			n, _ := strconv.Atoi(req.Args[2])
			points = &n
		}
		task, err := b.svc.Tasks.SetReward(ctx, req.GroupID, req.TaskName, category, on, points)
		if err != nil {
			return "", err
		}
		rule := task.Rule(category)
		if !rule.Enabled {
			return fmt.Sprintf("✅ [%s] 已关闭%s奖励", task.Name, service.CategoryLabel(category)), nil
		}
		return fmt.Sprintf("✅ [%s] 已开启%s奖励 (+%d分)", task.Name, service.CategoryLabel(category), rule.Reward), nil

	case KindRemind:
		text := strings.TrimSpace(strings.TrimPrefix(req.Content, req.Args[0]))
		task, err := b.svc.Tasks.SetReminder(ctx, req.GroupID, req.TaskName, req.Args[0], text)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("⏰ [%s] 将在每天 %s 提醒", task.Name, task.ReminderTime), nil

	case KindUnremind:
		task, err := b.svc.Tasks.ClearReminder(ctx, req.GroupID, req.TaskName)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("🔕 [%s] 提醒已取消", task.Name), nil

	case KindEnable, KindDisable:
		task, err := b.svc.Tasks.SetEnabled(ctx, req.GroupID, req.TaskName, req.Kind == KindEnable)
		if err != nil {
			return "", err
		}
		if task.Enabled {
			return fmt.Sprintf("✅ 任务 [%s] 已启用", task.Name), nil
		}
		return fmt.Sprintf("⏸ 任务 [%s] 已禁用", task.Name), nil

	case KindAdmins:
		list, err := b.svc.Admins.ListAdmins(ctx, req.GroupID)
		if err != nil {
			return "", err
		}
		ids := append(append([]string(nil), list.SuperAdmins...), list.Admins...)
		return service.FormatAdmins(list, b.names(ctx, req.GroupID, ids)), nil

	case KindAddAdmin:
		target := req.Args[0]
		if err := b.svc.Admins.AddAdmin(ctx, req.UserID, req.GroupID, target); err != nil {
			return "", err
		}
		return fmt.Sprintf("⭐ 已将 %s 设为管理员", b.name(ctx, req.GroupID, target)), nil

	case KindRemoveAdmin:
		target := req.Args[0]
		if err := b.svc.Admins.RemoveAdmin(ctx, req.UserID, req.GroupID, target); err != nil {
			return "", err
		}
		return fmt.Sprintf("已移除 %s 的管理员权限", b.name(ctx, req.GroupID, target)), nil

	case KindHelp:
		return helpText, nil
	}
	return "", fmt.Errorf("unhandled command %q", req.Kind)
}

// failure turns an error into the reply shown in the chat.
func (b *Bot) failure(req Request, err error) string {
	var quota *service.QuotaExceededError
	switch {
	case errors.As(err, &quota):
		return "❌ " + quota.Error()
	case errors.Is(err, service.ErrTaskDisabled):
		return fmt.Sprintf("❌ 任务 [%s] 已被禁用", req.TaskName)
	case errors.Is(err, service.ErrTaskNotFound):
		return fmt.Sprintf("❌ 任务 [%s] 不存在", req.TaskName)
	case errors.Is(err, service.ErrTaskExists):
		return fmt.Sprintf("❌ 任务 [%s] 已存在", req.TaskName)
	case errors.Is(err, service.ErrInvalidParameter):
		return "❌ 参数错误: " + strings.TrimPrefix(err.Error(), service.ErrInvalidParameter.Error()+": ")
	case errors.Is(err, service.ErrNoRecords):
		return "📭 暂无打卡记录"
	case errors.Is(err, service.ErrPermissionDenied):
		return "⛔ 权限不足"
	case errors.Is(err, service.ErrAlreadyAdmin):
		return "该用户已经是管理员"
	case errors.Is(err, service.ErrNotAdmin):
		return "该用户不是管理员"
	}
	b.log.Error().Err(err).
		Str("group", req.GroupID).
		Str("command", string(req.Kind)).
		Msg("command failed")
	return "⚠️ 服务暂时不可用, 请稍后再试"
}

func (b *Bot) names(ctx context.Context, groupID string, ids []string) map[string]string {
	if b.svc.Names == nil || len(ids) == 0 {
		out := make(map[string]string, len(ids))
		for _, id := range ids {
			out[id] = id
		}
		return out
	}
	return b.svc.Names.Resolve(ctx, groupID, ids)
}

func (b *Bot) name(ctx context.Context, groupID, id string) string {
	if n := b.names(ctx, groupID, []string{id})[id]; n != "" {
		return n
	}
	return id
}

func (b *Bot) reply(msg *tgbotapi.Message, text string) error {
	out := tgbotapi.NewMessage(msg.Chat.ID, text)
	out.ReplyToMessageID = msg.MessageID
	_, err := b.api.Send(out)
	return err
}

const helpText = `📖 打卡机器人使用说明
===================
/checkin <任务名> [内容] 打卡
/rank [任务名] 查看排行榜
/mine [页码] 查看我的打卡记录
/tasks 任务列表
/task <任务名> 任务详情

管理员命令:
/newtask <任务名> 创建任务
/deltask <任务名> 删除任务
/freq <任务名> <day|week|month> 设置频率
/limit <任务名> <次数> 设置每周期打卡上限 (0为不限)
/score <任务名> <分数> 设置基础分
/reward <任务名> <first|consecutive|week|month> <on|off> [分数] 设置奖励
/remind <任务名> <HH:MM> [内容] 设置提醒
/unremind <任务名> 取消提醒
/enable <任务名> / /disable <任务名> 启用或禁用任务
/admins 管理员列表
/addadmin <用户ID> / /rmadmin <用户ID> 管理管理员 (仅超级管理员)`
