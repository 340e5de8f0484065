package retarget

import (
	"testing"
	"time"

	"github.com/regabilling/retarget/internal/domain"
)

func TestPersonalize(t *testing.T) {
	created := time.Date(2026, 2, 27, 9, 0, 0, 0, time.UTC)
	now := time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC)
	p := &domain.Prospect{
		Name:      "Ann Smith",
		Email:     "ann@example.com",
		CreatedAt: created,
	}

	tests := []struct {
		name string
		body string
		want string
	}{
		{"empty body", "", ""},
		{"all tokens", "Hi {{name}} ({{firstName}}, {{email}}), day {{daysSinceSignup}} since {{signupDate}}",
			"Hi Ann Smith (Ann, ann@example.com), day 3 since 2026-02-27"},
		{"unknown token stays verbatim", "Hello {{nickname}}", "Hello {{nickname}}"},
		{"no tokens", "plain text", "plain text"},
		{"repeated token", "{{firstName}} {{firstName}}", "Ann Ann"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Personalize(tt.body, p, now)
			if got != tt.want {
				t.Errorf("Personalize(%q) = %q, want %q", tt.body, got, tt.want)
			}
		})
	}
}

func TestPersonalizeClampsNegativeDays(t *testing.T) {
	now := time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC)
	p := &domain.Prospect{
		Name:      "Bo",
		CreatedAt: now.Add(12 * time.Hour),
	}

	got := Personalize("day {{daysSinceSignup}}", p, now)
	if got != "day 0" {
		t.Errorf("expected clamp to zero, got %q", got)
	}
}

func TestFirstName(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"Ann Smith", "Ann"},
		{"Ann", "Ann"},
		{"", ""},
		{"  Ann  Smith ", "Ann"},
	}
	for _, tt := range tests {
		p := &domain.Prospect{Name: tt.name}
		if got := p.FirstName(); got != tt.want {
			t.Errorf("FirstName(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}
