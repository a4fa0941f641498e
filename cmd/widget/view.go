package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"support-chat-client/internal/chat"
	"support-chat-client/internal/model"
)

// quickReplies are canned shortcuts, the terminal analogue of the widget's
// suggestion buttons.
var quickReplies = []string{
	"Hi, I need help with my order.",
	"I can't log into my account.",
	"Thanks, that solved it!",
}

// widgetView is a line-oriented front-end over the chat controller. Commands
// start with '/'; everything else is sent as a message.
type widgetView struct {
	ctrl *chat.Controller
	in   io.Reader
	out  io.Writer

	mu       sync.Mutex
	rendered int
}

func newWidgetView(in io.Reader, out io.Writer) *widgetView {
	return &widgetView{in: in, out: out}
}

func (v *widgetView) printf(format string, args ...any) {
	v.mu.Lock()
	fmt.Fprintf(v.out, format+"\n", args...)
	v.mu.Unlock()
}

// onChange renders messages appended since the last render. It runs on the
// channel's dispatch goroutine.
func (v *widgetView) onChange() {
	snap := v.ctrl.Snapshot()

	v.mu.Lock()
	if v.rendered > len(snap.Messages) {
		v.rendered = 0
	}
	fresh := snap.Messages[v.rendered:]
	v.rendered = len(snap.Messages)
	for _, m := range fresh {
		who := "you"
		if m.Sender == model.SenderAdmin {
			who = "support"
		}
		fmt.Fprintf(v.out, "[%s] %s\n", who, m.Content)
	}
	v.mu.Unlock()
}

func (v *widgetView) onNotice(n chat.Notice) {
	switch n.Kind {
	case chat.NoticeClosed:
		v.printf("* %s (use /new to start another conversation)", n.Message)
	case chat.NoticeBanned:
		v.printf("* %s", n.Message)
	case chat.NoticeError:
		v.printf("* error: %s", n.Message)
	case chat.NoticeDelivered:
		// Silent; delivery is implied by the echo.
	}
}

func (v *widgetView) run(ctx context.Context) error {
	scanner := bufio.NewScanner(v.in)

	restored, err := v.ctrl.Restore(ctx)
	if err != nil {
		v.printf("* could not restore previous conversation: %v", err)
	}
	if restored {
		v.printf("* conversation restored (status %s)", v.ctrl.Status())
	} else {
		if err := v.startConversation(ctx, scanner); err != nil {
			return err
		}
	}

	v.printf("* type a message, /1-/%d for quick replies, /close, /new or /quit", len(quickReplies))

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch {
		case line == "/quit":
			return nil

		case line == "/close":
			if err := v.ctrl.Close(ctx); err != nil {
				v.printf("* close failed: %v", err)
			} else {
				v.printf("* conversation closed")
			}

		case line == "/new":
			if err := v.ctrl.StartNew(); err != nil {
				v.printf("* reset failed: %v", err)
			}
			v.mu.Lock()
			v.rendered = 0
			v.mu.Unlock()
			if err := v.startConversation(ctx, scanner); err != nil {
				return err
			}

		case strings.HasPrefix(line, "/"):
			if reply, ok := v.quickReply(line); ok {
				v.send(reply)
			} else {
				v.printf("* unknown command %s", line)
			}

		default:
			v.send(line)
		}
	}
	return scanner.Err()
}

func (v *widgetView) startConversation(ctx context.Context, scanner *bufio.Scanner) error {
	v.printf("Your name:")
	if !scanner.Scan() {
		return scanner.Err()
	}
	name := strings.TrimSpace(scanner.Text())

	if err := v.ctrl.Start(ctx, name); err != nil {
		v.printf("* could not start conversation: %v", err)
		return nil
	}
	v.printf("* conversation started, an agent will be with you shortly")
	return nil
}

func (v *widgetView) quickReply(line string) (string, bool) {
	var n int
	if _, err := fmt.Sscanf(line, "/%d", &n); err != nil {
		return "", false
	}
	if n < 1 || n > len(quickReplies) {
		return "", false
	}
	return quickReplies[n-1], true
}

func (v *widgetView) send(content string) {
	if err := v.ctrl.Send(content); err != nil {
		if chat.HasCode(err, chat.ErrorCodeDisconnected) {
			v.printf("* offline, message not sent")
			return
		}
		v.printf("* send failed: %v", err)
	}
}
