package events

import (
	"fmt"
	"strings"

	"mailroom.app/engine/internal/model"
	"mailroom.app/engine/internal/transport"
)

// ConfigReader is the slice of the settings cache the plain presenter
// reads display strings and colors from.
type ConfigReader interface {
	GetOr(key, fallback string) string
}

// PlainPresenter renders events as plain text. It is the default
// presentation wired by the binaries; richer presenters can replace it
// without touching the engine.
type PlainPresenter struct {
	config ConfigReader
}

var _ Presenter = (*PlainPresenter)(nil)

func NewPlainPresenter(config ConfigReader) *PlainPresenter {
	return &PlainPresenter{config: config}
}

func (p *PlainPresenter) Render(e Event) transport.Rendered {
	switch e.Kind {
	case KindSessionOpened:
		return transport.Rendered{
			Body:     fmt.Sprintf("%s\nNew session opened by %s.", p.config.GetOr("thread_creation_title", "Thread Created"), authorLabel(e)),
			Color:    p.config.GetOr("main_color", "#3498db"),
			Mentions: e.Mentions,
		}

	case KindSessionGreeting:
		return transport.Rendered{
			Body:  p.config.GetOr("thread_creation_response", "The staff team will get back to you as soon as possible."),
			Color: p.config.GetOr("main_color", "#3498db"),
		}

	case KindCloseScheduled:
		return transport.Rendered{
			Body:  fmt.Sprintf("This session will close in %s.", e.DelayHuman),
			Color: p.config.GetOr("main_color", "#3498db"),
		}

	case KindCloseCancelled:
		return transport.Rendered{
			Body:  "Scheduled close has been cancelled.",
			Color: p.config.GetOr("main_color", "#3498db"),
		}

	case KindSessionClosed:
		body := p.config.GetOr("thread_close_title", "Thread Closed")
		if e.Body != "" {
			body += "\n" + e.Body
		}
		if e.LogURL != "" {
			body += "\nLog: " + e.LogURL
		}
		return transport.Rendered{
			Body:   body,
			Color:  p.config.GetOr("main_color", "#3498db"),
			Footer: p.config.GetOr("thread_close_footer", "Replying will create a new thread"),
		}

	case KindStaffReply:
		return transport.Rendered{
			Body:      fmt.Sprintf("%s: %s", p.staffLabel(e), e.Body),
			OriginTag: e.LogicalID,
			Role:      e.Role,
			Color:     p.config.GetOr("mod_color", "#2ecc71"),
			Footer:    p.staffFooter(e),
		}

	case KindRecipientMessage:
		return transport.Rendered{
			Body:      fmt.Sprintf("%s: %s", authorLabel(e), e.Body),
			OriginTag: e.LogicalID,
			Role:      model.RoleRecipient,
			Color:     p.config.GetOr("recipient_color", "#e74c3c"),
			Mentions:  e.Mentions,
		}

	case KindNote:
		return transport.Rendered{
			Body:      fmt.Sprintf("Note by %s: %s", authorLabel(e), e.Body),
			OriginTag: e.LogicalID,
			Role:      model.RoleSystemNote,
			Color:     p.config.GetOr("mod_color", "#2ecc71"),
		}
	}

	return transport.Rendered{Body: e.Body, OriginTag: e.LogicalID, Role: e.Role}
}

// staffLabel hides the author behind the configured anonymous username
// when the reply was sent anonymously.
func (p *PlainPresenter) staffLabel(e Event) string {
	if e.Anonymous || e.Role == model.RoleAnonymousStaff {
		return p.config.GetOr("anon_username", "Staff")
	}
	return authorLabel(e)
}

func (p *PlainPresenter) staffFooter(e Event) string {
	if e.Anonymous || e.Role == model.RoleAnonymousStaff {
		return p.config.GetOr("anon_tag", "Response")
	}
	return p.config.GetOr("mod_tag", "Moderator")
}

func authorLabel(e Event) string {
	if name := strings.TrimSpace(e.AuthorName); name != "" {
		return name
	}
	return string(e.Author)
}
