package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"support-chat-client/internal/admin"
	"support-chat-client/internal/model"
)

// consoleView is a command-oriented terminal front-end over the console
// state. Realtime updates print as they land; collections render on demand.
type consoleView struct {
	console *admin.Console
	in      io.Reader
	out     io.Writer

	mu       sync.Mutex
	rendered int
}

func newConsoleView(in io.Reader, out io.Writer) *consoleView {
	return &consoleView{in: in, out: out}
}

func (v *consoleView) printf(format string, args ...any) {
	v.mu.Lock()
	fmt.Fprintf(v.out, format+"\n", args...)
	v.mu.Unlock()
}

// onChange prints messages newly appended to the open conversation.
func (v *consoleView) onChange() {
	if v.console == nil {
		return
	}
	_, messages, ok := v.console.Current()
	if !ok {
		return
	}

	v.mu.Lock()
	if v.rendered > len(messages) {
		v.rendered = 0
	}
	fresh := messages[v.rendered:]
	v.rendered = len(messages)
	for _, m := range fresh {
		who := "user"
		if m.Sender == model.SenderAdmin {
			who = "you"
		}
		fmt.Fprintf(v.out, "[%s] %s\n", who, m.Content)
	}
	v.mu.Unlock()
}

func (v *consoleView) run(ctx context.Context) error {
	v.printf("* commands: list, search <q>, open <id>, reply <text>, close [reason], reopen <id>,")
	v.printf("*           notes <text>, analytics, users [role], ban/unban <id>, role <id> <role>,")
	v.printf("*           settings, set <field> <value>, save, refresh, quit")

	scanner := bufio.NewScanner(v.in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		cmd, rest, _ := strings.Cut(line, " ")
		rest = strings.TrimSpace(rest)

		switch cmd {
		case "quit":
			return nil

		case "refresh":
			v.report(v.console.Refresh(ctx))

		case "list":
			v.printChats("active", v.console.ActiveChats())
			v.printChats("closed", v.console.ClosedChats())

		case "search":
			v.printChats("match", v.console.Search(rest))

		case "open":
			if rest == "" {
				v.printf("* usage: open <id>")
				continue
			}
			v.mu.Lock()
			v.rendered = 0
			v.mu.Unlock()
			if err := v.console.Open(ctx, rest); err != nil {
				v.printf("* open failed: %v", err)
				continue
			}
			summary, messages, _ := v.console.Current()
			v.printf("* opened %s (%s, %d messages)", summary.ID, summary.Status, len(messages))
			v.mu.Lock()
			v.rendered = 0
			v.mu.Unlock()
			v.onChange()

		case "reply":
			v.report(v.console.Reply(rest))

		case "close":
			v.report(v.console.CloseCurrent(ctx, rest))

		case "reopen":
			if rest == "" {
				v.printf("* usage: reopen <id>")
				continue
			}
			v.report(v.console.Reopen(ctx, rest, ""))

		case "notes":
			v.report(v.console.SaveNotes(ctx, rest))

		case "analytics":
			a := v.console.Analytics()
			v.printf("active=%d closed=%d total=%d", a.ActiveCount, a.ClosedCount, a.TotalCount)

		case "users":
			users, err := v.console.Users(ctx, strings.ToUpper(rest))
			if err != nil {
				v.printf("* users failed: %v", err)
				continue
			}
			for _, u := range users {
				banned := ""
				if u.IsBanned {
					banned = " [banned]"
				}
				v.printf("%s  %-20s %s%s", u.ID, u.Name, u.Role, banned)
			}

		case "ban":
			v.report(v.console.SetUserBanned(ctx, rest, true))

		case "unban":
			v.report(v.console.SetUserBanned(ctx, rest, false))

		case "role":
			id, role, _ := strings.Cut(rest, " ")
			if id == "" || role == "" {
				v.printf("* usage: role <id> <role>")
				continue
			}
			v.report(v.console.SetUserRole(ctx, id, strings.ToUpper(role)))

		case "settings":
			s := v.console.Draft()
			v.printf("bubble: %q", s.Widget.BubbleText)
			v.printf("header: %q", s.Widget.HeaderText)
			v.printf("theme:  %s", s.Widget.ThemeColor)
			v.printf("hours:  %s", s.SupportHours)
			v.printf("maxlen: %d", s.MaxMessageLength)

		case "set":
			v.editSetting(ctx, rest)

		case "save":
			v.report(v.console.SaveSettings(ctx))

		default:
			v.printf("* unknown command %q", cmd)
		}
	}
	return scanner.Err()
}

// editSetting mutates the settings draft; theme changes apply immediately,
// everything else waits for save.
func (v *consoleView) editSetting(ctx context.Context, args string) {
	field, value, _ := strings.Cut(args, " ")
	value = strings.TrimSpace(value)
	if field == "" || value == "" {
		v.printf("* usage: set bubble|header|theme|hours|maxlen <value>")
		return
	}

	switch field {
	case "theme":
		v.report(v.console.SetThemeColor(ctx, value))
	case "bubble":
		v.console.EditDraft(func(s *model.Settings) { s.Widget.BubbleText = value })
	case "header":
		v.console.EditDraft(func(s *model.Settings) { s.Widget.HeaderText = value })
	case "hours":
		v.console.EditDraft(func(s *model.Settings) { s.SupportHours = value })
	case "maxlen":
		n, err := strconv.Atoi(value)
		if err != nil || n <= 0 {
			v.printf("* maxlen must be a positive number")
			return
		}
		v.console.EditDraft(func(s *model.Settings) { s.MaxMessageLength = n })
	default:
		v.printf("* unknown settings field %q", field)
	}
}

func (v *consoleView) printChats(label string, chats []model.ChatSummary) {
	v.printf("-- %s (%d)", label, len(chats))
	for _, chat := range chats {
		preview := chat.LastMessage
		if len(preview) > 40 {
			preview = preview[:40] + "..."
		}
		v.printf("%s  %-16s %-6s %s", chat.ID, chat.UserName, chat.Status, preview)
	}
}

func (v *consoleView) report(err error) {
	if err != nil {
		v.printf("* %v", err)
		return
	}
	v.printf("* ok")
}
