package domain

import (
	"testing"

	"github.com/google/uuid"
)

var testUser = UserIdentity{ID: uuid.MustParse("8667ba71-b85a-4004-af54-457a9734eed7"), Name: "Steve"}

func mustPolicy(t *testing.T, enabled bool, action Action) Policy {
	t.Helper()
	p, err := NewPolicy(enabled, action, Stage{Phase: PhasePreLogin, Priority: PriorityLow},
		"Link with code {{.Code}} at {{.URL}}", "Discord unavailable, please try again later", "https://example.net/link")
	if err != nil {
		t.Fatalf("NewPolicy: %v", err)
	}
	return p
}

func TestDecide_LinkedNeverBlocked(t *testing.T) {
	for _, a := range []Action{ActionNone, ActionKick, ActionFreeze} {
		for _, enabled := range []bool{true, false} {
			p := mustPolicy(t, enabled, a)
			if r, blocked := Decide(p, testUser, LinkCheck{Status: LinkLinked}); blocked || r != "" {
				t.Fatalf("action=%s enabled=%v: linked user blocked with %q", a, enabled, r)
			}
		}
	}
}

func TestDecide_UnlinkedBlockedWithPrompt(t *testing.T) {
	for _, a := range []Action{ActionKick, ActionFreeze} {
		p := mustPolicy(t, true, a)
		r, blocked := Decide(p, testUser, LinkCheck{Status: LinkUnlinked, Code: "123456"})
		if !blocked || r == "" {
			t.Fatalf("action=%s: expected block, got blocked=%v reason=%q", a, blocked, r)
		}
		if want := BlockReason("Link with code 123456 at https://example.net/link"); r != want {
			t.Fatalf("reason=%q want=%q", r, want)
		}
	}
}

func TestDecide_UnknownFailsClosed(t *testing.T) {
	for _, a := range []Action{ActionNone, ActionKick, ActionFreeze} {
		p := mustPolicy(t, true, a)
		r, blocked := Decide(p, testUser, UnknownCheck())
		if !blocked {
			t.Fatalf("action=%s: unknown status must block", a)
		}
		if r != p.Unavailable {
			t.Fatalf("reason=%q want=%q", r, p.Unavailable)
		}
	}
}

func TestDecide_DisabledAllowsEverything(t *testing.T) {
	p := mustPolicy(t, false, ActionKick)
	for _, s := range []LinkStatus{LinkUnknown, LinkLinked, LinkUnlinked} {
		if _, blocked := Decide(p, testUser, LinkCheck{Status: s}); blocked {
			t.Fatalf("status=%s blocked while disabled", s)
		}
	}
}

func TestDecide_EmptyPromptStillBlocks(t *testing.T) {
	p, err := NewPolicy(true, ActionFreeze, Stage{}, "", "unavailable", "")
	if err != nil {
		t.Fatalf("NewPolicy: %v", err)
	}
	r, blocked := Decide(p, testUser, LinkCheck{Status: LinkUnlinked})
	if !blocked || r == "" {
		t.Fatalf("expected non-empty reason, got blocked=%v reason=%q", blocked, r)
	}
}

func TestNewPolicy_Errors(t *testing.T) {
	if _, err := NewPolicy(true, ActionKick, Stage{}, "{{.Code", "x", ""); err == nil {
		t.Fatalf("expected template parse error")
	}
	if _, err := NewPolicy(true, ActionKick, Stage{}, "ok", "  ", ""); err == nil {
		t.Fatalf("expected error for empty unavailable message")
	}
}

func TestPolicy_KicksAtAndFreezes(t *testing.T) {
	p := mustPolicy(t, true, ActionKick)
	if !p.KicksAt(Stage{Phase: PhasePreLogin, Priority: PriorityLow}) {
		t.Fatalf("expected kick at configured stage")
	}
	if p.KicksAt(Stage{Phase: PhasePreLogin, Priority: PriorityNormal}) {
		t.Fatalf("unexpected kick at other priority")
	}
	if p.KicksAt(Stage{Phase: PhaseLogin, Priority: PriorityLow}) {
		t.Fatalf("unexpected kick at other phase")
	}
	if p.Freezes() {
		t.Fatalf("kick policy must not freeze")
	}
	if !mustPolicy(t, true, ActionFreeze).Freezes() {
		t.Fatalf("freeze policy must freeze")
	}
	if mustPolicy(t, false, ActionFreeze).Freezes() {
		t.Fatalf("disabled policy must not freeze")
	}
}
