package domain

import (
	"fmt"
	"strings"
	"text/template"
)

// BlockReason is the message shown to a blocked or frozen user.
// Pure value type, no external dependencies.
type BlockReason string

// String returns the message text.
func (r BlockReason) String() string { return string(r) }

// PromptData is the template context for the not-linked message.
type PromptData struct {
	Name string // user display name
	Code string // linking code, empty when the backend issued none
	URL  string // configured link URL
}

// Policy is a snapshot of the required-linking settings.
// One Policy is active process-wide; it is replaced as a whole on reload.
type Policy struct {
	Enabled     bool
	Action      Action
	KickStage   Stage
	LinkURL     string
	Unavailable BlockReason

	notLinked *template.Template
	rawPrompt string
}

// NewPolicy constructs a Policy and parses the not-linked message template.
func NewPolicy(enabled bool, action Action, kick Stage, notLinked, unavailable, linkURL string) (Policy, error) {
	tmpl, err := template.New("not_linked").Option("missingkey=zero").Parse(notLinked)
	if err != nil {
		return Policy{}, fmt.Errorf("parse not_linked message: %w", err)
	}
	if strings.TrimSpace(unavailable) == "" {
		return Policy{}, fmt.Errorf("unavailable message must not be empty")
	}
	return Policy{
		Enabled:     enabled,
		Action:      action,
		KickStage:   kick,
		LinkURL:     linkURL,
		Unavailable: BlockReason(unavailable),
		notLinked:   tmpl,
		rawPrompt:   notLinked,
	}, nil
}

// KicksAt reports whether the kick path is active at the given stage.
func (p Policy) KicksAt(s Stage) bool {
	return p.Enabled && p.Action == ActionKick && p.KickStage == s
}

// Freezes reports whether the freeze path is active.
func (p Policy) Freezes() bool {
	return p.Enabled && p.Action == ActionFreeze
}

// Decide evaluates a link check against the policy.
// It returns the reason and true when the user must be blocked or frozen.
// UNKNOWN is blocked with the unavailable message: the decision fails closed.
func Decide(p Policy, user UserIdentity, check LinkCheck) (BlockReason, bool) {
	if !p.Enabled {
		return "", false
	}
	switch check.Status {
	case LinkLinked:
		return "", false
	case LinkUnlinked:
		return p.prompt(PromptData{Name: user.Name, Code: check.Code, URL: p.LinkURL}), true
	default:
		return p.Unavailable, true
	}
}

// prompt renders the not-linked message. A template failure falls back to the
// raw text so an unlinked user is never let through.
func (p Policy) prompt(data PromptData) BlockReason {
	if p.notLinked == nil {
		return BlockReason("You must link your Discord account to play")
	}
	var b strings.Builder
	if err := p.notLinked.Execute(&b, data); err != nil || b.Len() == 0 {
		if p.rawPrompt != "" {
			return BlockReason(p.rawPrompt)
		}
		return BlockReason("You must link your Discord account to play")
	}
	return BlockReason(b.String())
}
