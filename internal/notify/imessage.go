package notify

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

var (
	ErrNoRecipient  = errors.New("imessage: no recipient configured")
	ErrEmptyMessage = errors.New("imessage: empty message")
)

const sendTimeout = 30 * time.Second

// runFunc executes an AppleScript and returns its combined stderr on failure.
type runFunc func(ctx context.Context, script string) error

// IMessageSender drives Messages.app through osascript. macOS only.
type IMessageSender struct {
	recipient string
	account   string
	run       runFunc
}

// NewIMessageSender sends to recipient (phone or Apple ID). A non-empty
// account selects that signed-in Messages account instead of the first
// iMessage one.
func NewIMessageSender(recipient, account string) *IMessageSender {
	return &IMessageSender{
		recipient: recipient,
		account:   account,
		run:       runOSAScript,
	}
}

func (s *IMessageSender) Send(ctx context.Context, text string) error {
	if s.recipient == "" {
		return ErrNoRecipient
	}
	if text == "" {
		return ErrEmptyMessage
	}
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	return s.run(ctx, s.script(text))
}

func (s *IMessageSender) script(text string) string {
	service := "1st account whose service type = iMessage"
	if s.account != "" {
		service = fmt.Sprintf("account id \"%s\"", escapeAppleScript(s.account))
	}
	return fmt.Sprintf(`tell application "Messages"
    set targetService to %s
    set targetBuddy to participant "%s" of targetService
    send "%s" to targetBuddy
end tell`, service, escapeAppleScript(s.recipient), escapeAppleScript(text))
}

func escapeAppleScript(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `"`, `\"`)
}

func runOSAScript(ctx context.Context, script string) error {
	cmd := exec.CommandContext(ctx, "osascript", "-e", script)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("osascript: %w", ctx.Err())
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("osascript: %s: %w", msg, err)
		}
		return fmt.Errorf("osascript: %w", err)
	}
	return nil
}
