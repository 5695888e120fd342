// Package cards builds Bot Framework activities from the accepted message
// payload shapes: plain text, titled text, and opaque adaptive cards.
package cards

import (
	"fmt"

	"github.com/teams-notifier/activity-api/internal/models"
)

// AdaptiveCardContentType is the attachment content type the Connector
// expects for adaptive cards.
const AdaptiveCardContentType = "application/vnd.microsoft.card.adaptive"

const (
	activityTypeMessage = "message"
	channelIDTeams      = "msteams"

	adaptiveCardSchema  = "https://adaptivecards.io/schemas/adaptive-card.json"
	adaptiveCardVersion = "1.5"
)

// Color is a TextBlock color in the adaptive card sense, not a CSS color.
type Color string

// Valid TextBlock colors.
const (
	ColorDefault   Color = "default"
	ColorDark      Color = "dark"
	ColorLight     Color = "light"
	ColorAccent    Color = "accent"
	ColorGood      Color = "good"
	ColorWarning   Color = "warning"
	ColorAttention Color = "attention"
)

// Valid reports whether the color is unset or one of the enumerated values.
func (c Color) Valid() bool {
	switch c {
	case "", ColorDefault, ColorDark, ColorLight, ColorAccent, ColorGood, ColorWarning, ColorAttention:
		return true
	}
	return false
}

// ContainerStyle is an adaptive card container style.
type ContainerStyle string

// Valid container styles.
const (
	StyleDefault   ContainerStyle = "default"
	StyleEmphasis  ContainerStyle = "emphasis"
	StyleGood      ContainerStyle = "good"
	StyleAttention ContainerStyle = "attention"
	StyleWarning   ContainerStyle = "warning"
	StyleAccent    ContainerStyle = "accent"
)

// Valid reports whether the style is unset or one of the enumerated values.
func (s ContainerStyle) Valid() bool {
	switch s {
	case "", StyleDefault, StyleEmphasis, StyleGood, StyleAttention, StyleWarning, StyleAccent:
		return true
	}
	return false
}

// TextMessage is the titled ("simple") payload shape. Text supports the
// Commonmark subset Teams renders in adaptive cards.
type TextMessage struct {
	Title      string         `json:"title,omitempty"`
	TitleColor Color          `json:"title_color,omitempty"`
	TitleStyle ContainerStyle `json:"title_style,omitempty"`
	TitleBleed bool           `json:"title_bleed,omitempty"`
	Text       string         `json:"text"`
	Style      ContainerStyle `json:"style,omitempty"`
	Bleed      bool           `json:"bleed,omitempty"`
	Summary    string         `json:"summary,omitempty"`
}

// Kind discriminates the payload union.
type Kind string

// Payload kinds.
const (
	KindText    Kind = "text"
	KindMessage Kind = "message"
	KindCard    Kind = "card"
)

// Payload is the tagged union over the accepted request shapes. The HTTP
// boundary decides the variant once; exactly one of Text, Message or Card is
// populated according to Kind.
type Payload struct {
	Kind    Kind
	Text    string
	Message *TextMessage
	Card    map[string]any
	Summary string
}

// Activity is the Connector wire format for an outbound message.
type Activity struct {
	Type        string       `json:"type"`
	ChannelID   string       `json:"channelId,omitempty"`
	Text        string       `json:"text,omitempty"`
	Summary     string       `json:"summary,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Attachment is a Connector activity attachment.
type Attachment struct {
	ContentType string `json:"contentType"`
	Content     any    `json:"content,omitempty"`
}

// AdaptiveCard is the envelope for a generated adaptive card.
type AdaptiveCard struct {
	Type    string `json:"type"`
	Schema  string `json:"$schema"`
	Version string `json:"version"`
	Body    []any  `json:"body"`
}

// TextBlock is an adaptive card text element.
type TextBlock struct {
	Type   string `json:"type"`
	Text   string `json:"text"`
	Wrap   bool   `json:"wrap"`
	Style  string `json:"style,omitempty"`
	Color  string `json:"color,omitempty"`
	Size   string `json:"size,omitempty"`
	Weight string `json:"weight,omitempty"`
}

// Container is an adaptive card container element.
type Container struct {
	Type  string `json:"type"`
	Style string `json:"style,omitempty"`
	Bleed bool   `json:"bleed,omitempty"`
	Items []any  `json:"items"`
}

// Translate converts a payload into the Connector activity body. It is a pure
// function: no I/O, and identical input yields an identical activity.
func Translate(p Payload) (*Activity, error) {
	switch p.Kind {
	case KindText:
		if p.Text == "" {
			return nil, fmt.Errorf("%w: text must not be empty", models.ErrInvalidPayload)
		}
		return textActivity(p.Text), nil

	case KindMessage:
		if p.Message == nil {
			return nil, fmt.Errorf("%w: message must not be empty", models.ErrInvalidPayload)
		}
		return translateMessage(p.Message)

	case KindCard:
		if len(p.Card) == 0 {
			return nil, fmt.Errorf("%w: card must not be empty", models.ErrInvalidPayload)
		}
		return cardActivity(p.Card, p.Summary), nil

	default:
		return nil, fmt.Errorf("%w: neither a text, a message nor a card", models.ErrInvalidPayload)
	}
}

func translateMessage(m *TextMessage) (*Activity, error) {
	if m.Text == "" {
		return nil, fmt.Errorf("%w: message text must not be empty", models.ErrInvalidPayload)
	}
	if !m.TitleColor.Valid() {
		return nil, fmt.Errorf("%w: invalid title_color %q", models.ErrInvalidPayload, m.TitleColor)
	}
	if !m.Style.Valid() {
		return nil, fmt.Errorf("%w: invalid style %q", models.ErrInvalidPayload, m.Style)
	}
	if !m.TitleStyle.Valid() {
		return nil, fmt.Errorf("%w: invalid title_style %q", models.ErrInvalidPayload, m.TitleStyle)
	}

	// A bare message without title or container styling renders as plain text.
	if m.Title == "" && m.Style == "" && !m.Bleed {
		return textActivity(m.Text), nil
	}

	body := make([]any, 0, 2)
	if m.Title != "" {
		title := TextBlock{
			Type:   "TextBlock",
			Text:   m.Title,
			Wrap:   true,
			Style:  "heading",
			Color:  string(m.TitleColor),
			Size:   "large",
			Weight: "bolder",
		}
		body = append(body, wrapInContainer(title, m.TitleStyle, m.TitleBleed))
	}

	text := TextBlock{Type: "TextBlock", Text: m.Text, Wrap: true}
	body = append(body, wrapInContainer(text, m.Style, m.Bleed))

	card := AdaptiveCard{
		Type:    "AdaptiveCard",
		Schema:  adaptiveCardSchema,
		Version: adaptiveCardVersion,
		Body:    body,
	}

	// Notification preview: explicit summary, else title, else the text.
	summary := m.Summary
	if summary == "" {
		summary = m.Title
	}
	if summary == "" {
		summary = m.Text
	}

	return &Activity{
		Type:    activityTypeMessage,
		Summary: summary,
		Attachments: []Attachment{
			{ContentType: AdaptiveCardContentType, Content: card},
		},
	}, nil
}

func wrapInContainer(item any, style ContainerStyle, bleed bool) any {
	if style == "" && !bleed {
		return item
	}
	return Container{
		Type:  "Container",
		Style: string(style),
		Bleed: bleed,
		Items: []any{item},
	}
}

func textActivity(text string) *Activity {
	return &Activity{
		Type:      activityTypeMessage,
		ChannelID: channelIDTeams,
		Text:      text,
	}
}

func cardActivity(card map[string]any, summary string) *Activity {
	return &Activity{
		Type:    activityTypeMessage,
		Summary: summary,
		Attachments: []Attachment{
			{ContentType: AdaptiveCardContentType, Content: card},
		},
	}
}
