package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/lanternchat/sdk-go/pkg/gateway"
	"github.com/lanternchat/sdk-go/pkg/models"
)

func userTag(u models.User) string {
	return fmt.Sprintf("%s#%04d", u.Username, u.Discriminator)
}

// formatMessage renders one message line. The timestamp comes from the ID.
func formatMessage(m *models.Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %s: %s",
		styleMuted.Render(m.ID.Timestamp().Local().Format("01-02 15:04")),
		styleMuted.Render(m.ID.String()),
		styleAuthor.Render(m.Author.Username),
		m.Content,
	)
	if m.EditedAt != nil {
		b.WriteString(styleMuted.Render(" (edited)"))
	}
	for _, a := range m.Attachments {
		fmt.Fprintf(&b, "\n    [file] %s (%s, %s)", a.Filename, humanBytes(a.Size), a.ID)
	}
	if len(m.Reactions) > 0 {
		parts := make([]string, 0, len(m.Reactions))
		for _, r := range m.Reactions {
			parts = append(parts, fmt.Sprintf("%s %d", r.Emote, r.Count))
		}
		b.WriteString("\n    " + strings.Join(parts, "  "))
	}
	return b.String()
}

// formatEvent renders a gateway event as a single summary line.
func formatEvent(msg gateway.ServerMsg) string {
	op := msg.ServerOp().String()
	var detail string
	switch ev := msg.(type) {
	case *gateway.Hello:
		detail = fmt.Sprintf("heartbeat every %s", time.Duration(ev.HeartbeatInterval)*time.Millisecond)
	case *gateway.HeartbeatAck:
		detail = "ack"
	case *gateway.Ready:
		detail = fmt.Sprintf("%s in %d parties", userTag(ev.User), len(ev.Parties))
	case *gateway.InvalidSession:
		detail = "session refused"
	case *gateway.PartyCreate:
		detail = fmt.Sprintf("%s (%s)", ev.Name, ev.ID)
	case *gateway.PartyUpdate:
		detail = fmt.Sprintf("%s (%s)", ev.Name, ev.ID)
	case *gateway.PartyDelete:
		detail = ev.ID.String()
	case *gateway.MessageCreate:
		detail = fmt.Sprintf("room=%s %s: %s", ev.RoomID, ev.Author.Username, truncate(ev.Content, 120))
	case *gateway.MessageUpdate:
		detail = fmt.Sprintf("room=%s %s %s: %s", ev.RoomID, ev.ID, ev.Author.Username, truncate(ev.Content, 120))
	case *gateway.MessageDelete:
		detail = fmt.Sprintf("room=%s %s", ev.RoomID, ev.ID)
	case *gateway.TypingStart:
		detail = fmt.Sprintf("room=%s user=%s", ev.RoomID, ev.UserID)
	case *gateway.PresenceUpdate:
		detail = fmt.Sprintf("%s %s", userTag(ev.User), ev.Presence.Status)
		if ev.Presence.Activity != "" {
			detail += " (" + ev.Presence.Activity + ")"
		}
	case *gateway.UserUpdate:
		detail = userTag(ev.User)
	}
	return fmt.Sprintf("%s %-14s %s", time.Now().Format("15:04:05"), op, detail)
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
