package ui

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

// NotificationSender delivers a desktop notification
type NotificationSender interface {
	Send(title, message string) error
}

// LinuxNotificationSender sends notifications on Linux using notify-send
type LinuxNotificationSender struct{}

func (l *LinuxNotificationSender) Send(title, message string) error {
	return exec.Command("notify-send", title, message).Run()
}

// MacOSNotificationSender sends notifications on macOS using osascript
type MacOSNotificationSender struct{}

func (m *MacOSNotificationSender) Send(title, message string) error {
	script := fmt.Sprintf(`display notification %q with title %q`, message, title)
	return exec.Command("osascript", "-e", script).Run()
}

// Notifier prints a message and mirrors it as a desktop notification
// where the platform supports one.
type Notifier struct {
	sender NotificationSender
}

// NewNotifier creates a Notifier for the current platform. With enabled
// false, messages are only printed.
func NewNotifier(enabled bool) *Notifier {
	if !enabled {
		return &Notifier{}
	}
	switch runtime.GOOS {
	case "linux":
		return &Notifier{sender: &LinuxNotificationSender{}}
	case "darwin":
		return &Notifier{sender: &MacOSNotificationSender{}}
	default:
		return &Notifier{}
	}
}

// NewNotifierWithSender creates a Notifier delivering through sender
func NewNotifierWithSender(sender NotificationSender) *Notifier {
	return &Notifier{sender: sender}
}

// SendSuccess reports a finished crawl
func (n *Notifier) SendSuccess(title, message string) {
	PrintSuccess(title + ": " + message)
	n.send(title, message)
}

// SendError reports a crawl that stopped early
func (n *Notifier) SendError(title, message string) {
	PrintError(title, message)
	n.send(title, message)
}

func (n *Notifier) send(title, message string) {
	if n.sender == nil {
		return
	}
	// notifications are best effort
	_ = n.sender.Send(title, strings.TrimSpace(message))
}

// CrawlMessage renders the notification body for a crawl summary
func CrawlMessage(s Summary) string {
	return fmt.Sprintf("%d video(s) downloaded from %d result(s) for %s", s.Downloaded, s.Fetched, s.Keywords)
}
