package bot

import (
	"fmt"
	"strconv"
	"strings"

	"pktracker/internal/model"
)

// Kind names a chat command.
type Kind string

const (
	KindCheckin     Kind = "checkin"
	KindRank        Kind = "rank"
	KindMine        Kind = "mine"
	KindTasks       Kind = "tasks"
	KindTask        Kind = "task"
	KindNewTask     Kind = "newtask"
	KindDeleteTask  Kind = "deltask"
	KindFrequency   Kind = "freq"
	KindLimit       Kind = "limit"
	KindScore       Kind = "score"
	KindReward      Kind = "reward"
	KindRemind      Kind = "remind"
	KindUnremind    Kind = "unremind"
	KindEnable      Kind = "enable"
	KindDisable     Kind = "disable"
	KindAdmins      Kind = "admins"
	KindAddAdmin    Kind = "addadmin"
	KindRemoveAdmin Kind = "rmadmin"
	KindHelp        Kind = "help"
)

// Request is a parsed chat command.
type Request struct {
	Kind     Kind
	GroupID  string
	UserID   string
	UserName string
	TaskName string
	// Args holds the arguments after the task name (or all of them for
	// commands without a task).
	Args []string
	// Content is the free text after the task name, whitespace preserved.
	Content string
}

type commandSpec struct {
	admin    bool
	needTask bool
	minArgs  int
	usage    string
}

var commands = map[Kind]commandSpec{
	KindCheckin:     {needTask: true, usage: "/checkin <任务名> [打卡内容]"},
	KindRank:        {usage: "/rank [任务名]"},
	KindMine:        {usage: "/mine [页码]"},
	KindTasks:       {usage: "/tasks"},
	KindTask:        {needTask: true, usage: "/task <任务名>"},
	KindNewTask:     {admin: true, needTask: true, usage: "/newtask <任务名>"},
	KindDeleteTask:  {admin: true, needTask: true, usage: "/deltask <任务名>"},
	KindFrequency:   {admin: true, needTask: true, minArgs: 1, usage: "/freq <任务名> <day|week|month>"},
	KindLimit:       {admin: true, needTask: true, minArgs: 1, usage: "/limit <任务名> <次数, 0为不限>"},
	KindScore:       {admin: true, needTask: true, minArgs: 1, usage: "/score <任务名> <分数>"},
	KindReward:      {admin: true, needTask: true, minArgs: 2, usage: "/reward <任务名> <first|consecutive|week|month> <on|off> [分数]"},
	KindRemind:      {admin: true, needTask: true, minArgs: 1, usage: "/remind <任务名> <HH:MM> [提醒内容]"},
	KindUnremind:    {admin: true, needTask: true, usage: "/unremind <任务名>"},
	KindEnable:      {admin: true, needTask: true, usage: "/enable <任务名>"},
	KindDisable:     {admin: true, needTask: true, usage: "/disable <任务名>"},
	KindAdmins:      {usage: "/admins"},
	KindAddAdmin:    {admin: true, minArgs: 1, usage: "/addadmin <用户ID> (或回复该用户的消息)"},
	KindRemoveAdmin: {admin: true, minArgs: 1, usage: "/rmadmin <用户ID> (或回复该用户的消息)"},
	KindHelp:        {usage: "/help"},
}

// UsageError reports a command invoked with missing or malformed arguments.
type UsageError struct {
	Usage  string
	Reason string
}

func (e *UsageError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s\n用法: %s", e.Reason, e.Usage)
	}
	return "用法: " + e.Usage
}

// UnknownCommandError is returned for commands the tracker does not handle.
type UnknownCommandError struct {
	Command string
}

func (e *UnknownCommandError) Error() string {
	return fmt.Sprintf("unknown command %q", e.Command)
}

// Parse builds a Request from a command name (without the slash) and its
// argument string.
func Parse(command, arguments string) (Request, error) {
	kind := Kind(strings.ToLower(strings.TrimSpace(command)))
	spec, ok := commands[kind]
	if !ok {
		return Request{}, &UnknownCommandError{Command: command}
	}
	req := Request{Kind: kind}

	rest := strings.TrimSpace(arguments)
	if spec.needTask {
		name, tail := splitFirst(rest)
		if name == "" {
			return Request{}, &UsageError{Usage: spec.usage, Reason: "缺少任务名"}
		}
		req.TaskName = name
		rest = tail
	} else if kind == KindRank {
		req.TaskName, rest = splitFirst(rest)
	}
	req.Content = rest
	req.Args = strings.Fields(rest)

	if len(req.Args) < spec.minArgs {
		return Request{}, &UsageError{Usage: spec.usage, Reason: "参数不足"}
	}
	return req, validateArgs(req, spec)
}

// IsAdminCommand reports whether kind needs group admin rights.
func IsAdminCommand(kind Kind) bool {
	return commands[kind].admin
}

func validateArgs(req Request, spec commandSpec) error {
	bad := func(reason string) error { return &UsageError{Usage: spec.usage, Reason: reason} }
	switch req.Kind {
	case KindMine:
		if len(req.Args) > 0 {
			if _, err := strconv.Atoi(req.Args[0]); err != nil {
				return bad("页码必须是数字")
			}
		}
	case KindFrequency:
		if _, ok := ParseFrequency(req.Args[0]); !ok {
			return bad("频率必须是 day、week 或 month")
		}
	case KindLimit, KindScore:
		if n, err := strconv.Atoi(req.Args[0]); err != nil || n < 0 {
			return bad("请输入非负整数")
		}
	case KindReward:
		if _, ok := ParseCategory(req.Args[0]); !ok {
			return bad("奖励类型必须是 first、consecutive、week 或 month")
		}
		if _, ok := parseSwitch(req.Args[1]); !ok {
			return bad("请使用 on 或 off")
		}
		if len(req.Args) > 2 {
			if n, err := strconv.Atoi(req.Args[2]); err != nil || n < 0 {
				return bad("分数必须是非负整数")
			}
		}
	}
	return nil
}

// ParseFrequency accepts the English names and their Chinese labels.
func ParseFrequency(s string) (model.Frequency, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "day", "daily", "每日", "日":
		return model.FrequencyDay, true
	case "week", "weekly", "每周", "周":
		return model.FrequencyWeek, true
	case "month", "monthly", "每月", "月":
		return model.FrequencyMonth, true
	}
	return "", false
}

// ParseCategory maps a reward rule name to its bonus category.
func ParseCategory(s string) (model.BonusCategory, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "first", "首次":
		return model.BonusFirst, true
	case "consecutive", "streak", "连续":
		return model.BonusConsecutive, true
	case "week", "weekly", "周冠军":
		return model.BonusWeekChampion, true
	case "month", "monthly", "月冠军":
		return model.BonusMonthChampion, true
	}
	return "", false
}

func parseSwitch(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "on", "enable", "开启", "1":
		return true, true
	case "off", "disable", "关闭", "0":
		return false, true
	}
	return false, false
}

func splitFirst(s string) (head, tail string) {
	s = strings.TrimSpace(s)
	i := strings.IndexFunc(s, func(r rune) bool { return r == ' ' || r == '\t' || r == '\n' })
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimSpace(s[i:])
}
