// Package notify shows native OS notifications for reminder messages when no
// richer surface is attached.
package notify

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"github.com/deskpal/deskpal/internal/logging"
)

// Send displays a native OS notification.
// Falls back silently if the notification system is unavailable.
func Send(title, body string) {
	// Sanitize inputs to prevent command injection
	title = sanitize(title)
	body = sanitize(body)

	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "darwin":
		script := fmt.Sprintf(`display notification %q with title %q`, body, title)
		cmd = exec.Command("osascript", "-e", script)

	case "linux":
		cmd = exec.Command("notify-send", title, body)

	case "windows":
		// PowerShell toast notification
		ps := fmt.Sprintf(`
[Windows.UI.Notifications.ToastNotificationManager, Windows.UI.Notifications, ContentType = WindowsRuntime] > $null
$template = [Windows.UI.Notifications.ToastNotificationManager]::GetTemplateContent([Windows.UI.Notifications.ToastTemplateType]::ToastText02)
$textNodes = $template.GetElementsByTagName('text')
$textNodes.Item(0).AppendChild($template.CreateTextNode('%s')) > $null
$textNodes.Item(1).AppendChild($template.CreateTextNode('%s')) > $null
$toast = [Windows.UI.Notifications.ToastNotification]::new($template)
[Windows.UI.Notifications.ToastNotificationManager]::CreateToastNotifier('Deskpal').Show($toast)
`, title, body)
		cmd = exec.Command("powershell", "-NoProfile", "-NonInteractive", "-Command", ps)

	default:
		return
	}

	if err := cmd.Run(); err != nil {
		logging.Warnf("failed to send notification: %v", err)
	}
}

// Titles keyed by reminder kind so the toast says what kind of nudge it is
// even before the body is read.
var kindTitles = map[string]string{
	"water":      "Time to hydrate",
	"meal":       "Meal time",
	"sitting":    "Stand up and stretch",
	"relax":      "Rest your eyes",
	"medication": "Medication reminder",
	"custom":     "Reminder",
	"chat":       "",
}

// SendKind shows a notification with a title appropriate for a reminder
// kind, attributed to the speaking character.
func SendKind(kind, characterName, body string) {
	title := kindTitles[kind]
	if title == "" {
		title = characterName
	} else if characterName != "" {
		title = characterName + " · " + title
	}
	Send(title, body)
}

// sanitize removes characters that could break shell quoting.
func sanitize(s string) string {
	s = strings.ReplaceAll(s, "\\", "")
	if len(s) > 256 {
		s = s[:256] + "..."
	}
	return s
}
