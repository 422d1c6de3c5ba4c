package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/stegochat/stegochat/internal/transport"
)

// formatMessage renders one chat entry for the message view.
func formatMessage(m *transport.Message, selfID string) string {
	name := m.AuthorName
	color := "aqua"
	if m.AuthorUserID == selfID {
		color = "lime"
	}
	ts := shortTime(m.Timestamp)

	switch m.Kind {
	case transport.KindImage:
		return fmt.Sprintf("[gray]%s[-] [%s]%s[-]: [blue]%s[-]", ts, color, name, m.Content)
	default:
		return fmt.Sprintf("[gray]%s[-] [%s]%s[-]: %s", ts, color, name, m.Content)
	}
}

// formatNotice renders an ephemeral system notice with its timestamp.
func formatNotice(text, timestamp string) string {
	return fmt.Sprintf("[gray]%s · %s[-]", shortTime(timestamp), text)
}

// shortTime compresses an ISO timestamp to HH:MM:SS for display.
func shortTime(iso string) string {
	t, err := time.Parse(time.RFC3339, iso)
	if err != nil {
		// Not all server timestamps carry a zone suffix; fall back to
		// the raw tail of the string.
		if i := strings.IndexByte(iso, 'T'); i >= 0 && len(iso) >= i+9 {
			return iso[i+1 : i+9]
		}
		return iso
	}
	return t.Local().Format("15:04:05")
}
