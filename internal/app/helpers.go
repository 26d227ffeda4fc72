package app

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

// ringBell writes the terminal bell character. The terminal decides
// whether that beeps, flashes, or does nothing.
func ringBell() tea.Msg {
	fmt.Print("\a")
	return nil
}

// openURL opens a notification's navigation target in the system
// browser. Site-relative paths are resolved against the configured web
// base URL.
func (m Model) openURL(url string) tea.Cmd {
	if url == "" {
		return nil
	}
	if strings.HasPrefix(url, "/") {
		url = strings.TrimRight(m.webBaseURL, "/") + url
	}

	return func() tea.Msg {
		var cmd *exec.Cmd
		switch runtime.GOOS {
		case "darwin":
			cmd = exec.Command("open", url)
		case "windows":
			cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
		default:
			cmd = exec.Command("xdg-open", url)
		}
		if err := cmd.Start(); err != nil {
			m.logger.WithError(err).WithField("url", url).Warn("opening browser failed")
		}
		return nil
	}
}
