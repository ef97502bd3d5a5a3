package service

import (
	"fmt"
	"strings"
	"time"

	"pktracker/internal/model"
)

const (
	divider      = "==================="
	timeLayout   = "2006-01-02 15:04:05"
	commandLabel = "/checkin"
)

var categoryLabels = map[model.BonusCategory]string{
	model.BonusBase:          "基础打卡",
	model.BonusFirst:         "首次打卡",
	model.BonusConsecutive:   "连续打卡",
	model.BonusWeekChampion:  "周冠军",
	model.BonusMonthChampion: "月冠军",
}

var frequencyLabels = map[model.Frequency]string{
	model.FrequencyDay:   "每日",
	model.FrequencyWeek:  "每周",
	model.FrequencyMonth: "每月",
}

// CategoryLabel is the display name of a bonus category.
func CategoryLabel(c model.BonusCategory) string {
	if l, ok := categoryLabels[c]; ok {
		return l
	}
	return string(c)
}

// FrequencyLabel is the display name of a frequency.
func FrequencyLabel(f model.Frequency) string {
	if l, ok := frequencyLabels[f]; ok {
		return l
	}
	return string(f)
}

func medal(rank int) string {
	switch rank {
	case 1:
		return "🥇"
	case 2:
		return "🥈"
	case 3:
		return "🥉"
	default:
		return "👑"
	}
}

// FormatCheckin renders the confirmation for a recorded check-in.
func FormatCheckin(res *CheckinResult) string {
	var sb strings.Builder
	sb.WriteString("✅ 打卡成功!\n")
	for _, c := range res.Breakdown.Categories() {
		sb.WriteString(fmt.Sprintf("🎯 %s: +%d分\n", CategoryLabel(c), res.Breakdown[c]))
	}
	sb.WriteString("━━━━━━━━━━\n")
	sb.WriteString(fmt.Sprintf("💫 总计: %d分", res.Breakdown.Total()))
	return sb.String()
}

// FormatReminder renders the scheduled reminder for a task.
func FormatReminder(task model.Task, checkedUsers int64) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("⏰ 任务提醒 [%s]\n%s\n\n", task.Name, divider))
	if text := strings.TrimSpace(task.ReminderText); text != "" {
		sb.WriteString(fmt.Sprintf("📝 %s\n\n", text))
	}
	sb.WriteString(fmt.Sprintf("🔸 今日已打卡: %d人\n", checkedUsers))
	sb.WriteString("\n💡 快来打卡啦~记得使用以下格式:\n")
	sb.WriteString(fmt.Sprintf("%s %s 打卡内容", commandLabel, task.Name))
	return sb.String()
}

// FormatLeaderboard renders a leaderboard with display names.
func FormatLeaderboard(board *Leaderboard, names map[string]string) string {
	title := "[全部任务]"
	if board.TaskName != "" {
		title = fmt.Sprintf("[%s]", board.TaskName)
	}
	if len(board.Entries) == 0 {
		return fmt.Sprintf("📊 %s 暂无打卡记录", title)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("📊 %s 排行榜 TOP %d\n%s\n", title, LeaderboardSize, divider))
	for i, e := range board.Entries {
		sb.WriteString(fmt.Sprintf("%s %d. %s\n", medal(i+1), i+1, displayName(names, e.UserID)))
		sb.WriteString(fmt.Sprintf("   总打卡: %d次 | 总积分: %d\n", e.Checkins, e.Points))
		if board.TaskName == "" && len(e.Tasks) > 0 {
			parts := make([]string, 0, len(e.Tasks))
			for _, ts := range e.Tasks {
				parts = append(parts, fmt.Sprintf("[%s]%d次/%d分", ts.TaskName, ts.Checkins, ts.Points))
			}
			sb.WriteString(fmt.Sprintf("   任务详情: %s\n", strings.Join(parts, " ")))
		}
		sb.WriteString(fmt.Sprintf("   最后打卡: %s\n", e.LastCheckin.Format(timeLayout)))
	}
	return strings.TrimRight(sb.String(), "\n")
}

// FormatUserDetail renders one page of a user's history.
func FormatUserDetail(detail *UserDetail, who string) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("📊 %s的打卡记录 (第%d/%d页)\n%s\n\n", who, detail.Page, detail.TotalPages, divider))
	for _, r := range detail.Records {
		sb.WriteString(fmt.Sprintf("[%s] %s (+%d分)\n", r.TaskName, r.CheckedInAt.Format(timeLayout), r.Points))
		if r.Content != "" {
			sb.WriteString(fmt.Sprintf("内容: %s\n", r.Content))
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

// FormatSettlement renders a champion announcement.
func FormatSettlement(res SettlementResult, winner string) string {
	scope, next := "本周", "下周"
	if res.Category == model.BonusMonthChampion {
		scope, next = "本月", "下月"
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("🎉 %s公告 [%s]\n%s\n\n", CategoryLabel(res.Category), res.TaskName, divider))
	sb.WriteString(fmt.Sprintf("👑 %s冠军: %s\n", scope, winner))
	sb.WriteString(fmt.Sprintf("📅 统计周期: %s ~ %s\n", res.Window.Start.Format("2006-01-02"), res.Window.End.Add(-time.Nanosecond).Format("2006-01-02")))
	sb.WriteString(fmt.Sprintf("📊 打卡次数: %d次\n", res.Checkins))
	sb.WriteString(fmt.Sprintf("🎁 奖励积分: %d分\n", res.Points))
	sb.WriteString(fmt.Sprintf("\n继续加油,%s等你来战！💪", next))
	return sb.String()
}

// FormatTaskList renders a group's tasks.
func FormatTaskList(tasks []model.Task) string {
	if len(tasks) == 0 {
		return "📋 当前群组暂无任务"
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("📋 任务列表\n%s\n", divider))
	for _, t := range tasks {
		status := "✅"
		if !t.Enabled {
			status = "❌"
		}
		sb.WriteString(fmt.Sprintf("%s [%s] %s | %s\n", status, t.Name, FrequencyLabel(t.Frequency), quotaText(t)))
	}
	return strings.TrimRight(sb.String(), "\n")
}

// FormatTaskDetail renders a task's settings and statistics.
func FormatTaskDetail(d *TaskDetail) string {
	t := d.Task
	rule := func(r model.RewardRule) string {
		if !r.Enabled {
			return "关闭"
		}
		return fmt.Sprintf("开启 (+%d分)", r.Reward)
	}
	status := "已启用 ✅"
	if !t.Enabled {
		status = "已禁用 ❌"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("📊 任务详情 [%s]\n%s\n\n", t.Name, divider))
	sb.WriteString(fmt.Sprintf("🔸 任务状态: %s\n\n", status))
	sb.WriteString("🔸 基本信息:\n")
	sb.WriteString(fmt.Sprintf("   - 打卡频率: %s\n", FrequencyLabel(t.Frequency)))
	sb.WriteString(fmt.Sprintf("   - 基础分数: %d分\n", t.BaseScore))
	sb.WriteString(fmt.Sprintf("   - 打卡限制: %s\n", quotaText(t)))
	if t.ReminderTime != "" {
		sb.WriteString(fmt.Sprintf("   - 提醒时间: %s\n", t.ReminderTime))
		if t.ReminderText != "" {
			sb.WriteString(fmt.Sprintf("   - 提醒内容: %s\n", t.ReminderText))
		}
	}
	sb.WriteString(fmt.Sprintf("   - 首次打卡: %s\n", rule(t.FirstCheckin)))
	sb.WriteString(fmt.Sprintf("   - 连续打卡: %s\n", rule(t.ConsecutiveCheckin)))
	sb.WriteString(fmt.Sprintf("   - 周冠军: %s\n", rule(t.WeeklyChampion)))
	sb.WriteString(fmt.Sprintf("   - 月冠军: %s\n\n", rule(t.MonthlyChampion)))
	sb.WriteString("🔸 统计信息:\n")
	sb.WriteString(fmt.Sprintf("   - 参与总人数: %d人\n", d.Stats.Participants))
	sb.WriteString(fmt.Sprintf("   - 总打卡次数: %d次\n", d.Stats.Checkins))
	sb.WriteString(fmt.Sprintf("   - 今日打卡人数: %d人\n", d.Stats.TodayUsers))
	if d.Stats.LastCheckin != nil {
		sb.WriteString(fmt.Sprintf("   - 最后打卡时间: %s\n", d.Stats.LastCheckin.Format(timeLayout)))
	}
	return strings.TrimRight(sb.String(), "\n")
}

// FormatAdmins renders the admin list of a group.
func FormatAdmins(list *AdminList, names map[string]string) string {
	if len(list.SuperAdmins) == 0 && len(list.Admins) == 0 {
		return "👥 当前群组暂无管理员"
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("👥 管理员列表\n%s", divider))
	for _, id := range list.SuperAdmins {
		sb.WriteString(fmt.Sprintf("\n👑 超级管理员: %s", displayName(names, id)))
	}
	for _, id := range list.Admins {
		sb.WriteString(fmt.Sprintf("\n⭐ 管理员: %s", displayName(names, id)))
	}
	return sb.String()
}

func quotaText(t model.Task) string {
	if t.MaxCheckins <= 0 {
		return "不限制打卡次数"
	}
	return fmt.Sprintf("%s最多打卡%d次", FrequencyLabel(t.Frequency), t.MaxCheckins)
}
