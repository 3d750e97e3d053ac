package security_test

import (
	"strings"
	"testing"

	"github.com/edgard/pulsebot/internal/security"
)

func TestDetectAbuse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		input          string
		wantSpam       bool
		wantFlood      bool
		wantSuspicious bool
		wantMinScore   int
		wantMaxScore   int
	}{
		{
			name:         "empty text yields zero report",
			input:        "",
			wantMaxScore: 0,
		},
		{
			name:         "normal message",
			input:        "See you at the meetup tomorrow!",
			wantMaxScore: 0,
		},
		{
			// Also trips the all-caps heuristic, pushing it over the
			// spam threshold.
			name:         "repeated character flood",
			input:        strings.Repeat("A", 15),
			wantSpam:     true,
			wantFlood:    true,
			wantMinScore: 50,
		},
		{
			name:         "ten repeated characters is not flood",
			input:        strings.Repeat("a", 10),
			wantMaxScore: 0,
		},
		{
			name:         "excessive capitals",
			input:        "STOP SHOUTING AT EVERYONE",
			wantMinScore: 20,
			wantMaxScore: 20,
		},
		{
			name:         "short all-caps is fine",
			input:        "LOL OK",
			wantMaxScore: 0,
		},
		{
			name:           "link shortener",
			input:          "check this out bit.ly/abc123",
			wantSuspicious: true,
			wantMinScore:   40,
		},
		{
			name:           "discord invite",
			input:          "join us discord.gg/secret",
			wantSuspicious: true,
			wantMinScore:   40,
		},
		{
			name:           "scam phrase",
			input:          "Free crypto for the first 100 users, guaranteed profit!",
			wantSuspicious: true,
			wantMinScore:   40,
		},
		{
			name:         "emoji stuffing",
			input:        "🎉🎉🎉🎉 party",
			wantMinScore: 15,
			wantMaxScore: 15,
		},
		{
			name:           "flood plus suspicious crosses spam threshold",
			input:          "WIIIIIIIIIIIIN free crypto at bit.ly/x",
			wantSpam:       true,
			wantFlood:      true,
			wantSuspicious: true,
			wantMinScore:   70,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			report := security.DetectAbuse(tt.input)

			if report.IsSpam != tt.wantSpam {
				t.Errorf("IsSpam = %v, want %v", report.IsSpam, tt.wantSpam)
			}
			if report.IsFlood != tt.wantFlood {
				t.Errorf("IsFlood = %v, want %v", report.IsFlood, tt.wantFlood)
			}
			if report.Suspicious != tt.wantSuspicious {
				t.Errorf("Suspicious = %v, want %v", report.Suspicious, tt.wantSuspicious)
			}
			if report.Score < tt.wantMinScore {
				t.Errorf("Score = %d, want >= %d", report.Score, tt.wantMinScore)
			}
			if tt.wantMaxScore > 0 || tt.wantMinScore == 0 {
				if tt.wantMaxScore >= tt.wantMinScore && report.Score > tt.wantMaxScore {
					t.Errorf("Score = %d, want <= %d", report.Score, tt.wantMaxScore)
				}
			}
		})
	}
}

func TestDetectAbuseScoreNonNegative(t *testing.T) {
	t.Parallel()

	inputs := []string{"", "hi", strings.Repeat("z", 2000), "MIXED case Text 123"}
	for _, in := range inputs {
		if report := security.DetectAbuse(in); report.Score < 0 {
			t.Errorf("DetectAbuse(%q).Score = %d, want >= 0", in, report.Score)
		}
	}
}
