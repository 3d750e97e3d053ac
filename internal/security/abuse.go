package security

import (
	"regexp"
	"unicode"
)

// Abuse score weights and thresholds. Scores are additive; a message at
// or above spamThreshold is classified as spam.
const (
	floodRunLength    = 11
	floodScore        = 30
	capitalsScore     = 20
	capitalsRatio     = 0.7
	capitalsMinLength = 10
	suspiciousScore   = 40
	emojiScore        = 15
	emojiRatio        = 0.3
	emojiMinLength    = 5
	spamThreshold     = 50
)

// suspiciousPatterns matches link shorteners, chat invite links, and
// common scam phrases.
var suspiciousPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(bit\.ly|tinyurl\.com|goo\.gl|t\.co|is\.gd|cutt\.ly|rb\.gy)/`),
	regexp.MustCompile(`(?i)\b(discord\.gg|discordapp\.com/invite|t\.me/joinchat|telegram\.me/joinchat)\b`),
	regexp.MustCompile(`(?i)(free\s+(crypto|bitcoin|nitro|money)|double\s+your\s+\w+|guaranteed\s+(profit|returns)|claim\s+your\s+(prize|reward)|investment\s+opportunity)`),
}

// Report is the result of heuristic classification of one message. It is
// consumed by callers for logging and moderation decisions; it never
// blocks processing on its own.
type Report struct {
	IsSpam     bool `json:"isSpam"`
	IsFlood    bool `json:"isFlood"`
	Suspicious bool `json:"containsSuspiciousContent"`
	Score      int  `json:"score"`
}

// DetectAbuse scores text against flood, shouting, suspicious-content,
// and emoji-stuffing heuristics. Empty text yields a zero report.
func DetectAbuse(text string) Report {
	if text == "" {
		return Report{}
	}

	var report Report
	runes := []rune(text)

	if hasFloodRun(runes) {
		report.IsFlood = true
		report.Score += floodScore
	}

	if len(runes) > capitalsMinLength && upperFraction(runes) > capitalsRatio {
		report.Score += capitalsScore
	}

	for _, re := range suspiciousPatterns {
		if re.MatchString(text) {
			report.Suspicious = true
			report.Score += suspiciousScore
			break
		}
	}

	if len(runes) > emojiMinLength && emojiFraction(runes) > emojiRatio {
		report.Score += emojiScore
	}

	report.IsSpam = report.Score >= spamThreshold
	return report
}

// hasFloodRun reports whether the text contains a run of floodRunLength
// or more identical runes.
func hasFloodRun(runes []rune) bool {
	run := 1
	for i := 1; i < len(runes); i++ {
		if runes[i] == runes[i-1] {
			run++
			if run >= floodRunLength {
				return true
			}
		} else {
			run = 1
		}
	}
	return false
}

// upperFraction returns the uppercase share of letters in the text.
// Non-letter runes are excluded from the denominator so punctuation and
// digits don't dilute shouting.
func upperFraction(runes []rune) float64 {
	var letters, upper int
	for _, r := range runes {
		if unicode.IsLetter(r) {
			letters++
			if unicode.IsUpper(r) {
				upper++
			}
		}
	}
	if letters == 0 {
		return 0
	}
	return float64(upper) / float64(letters)
}

// emojiFraction returns the share of emoji runes in the text.
func emojiFraction(runes []rune) float64 {
	if len(runes) == 0 {
		return 0
	}
	var emoji int
	for _, r := range runes {
		if isEmoji(r) {
			emoji++
		}
	}
	return float64(emoji) / float64(len(runes))
}

// isEmoji covers the common emoji blocks: emoticons, symbols and
// pictographs, transport, supplemental symbols, flags, and dingbats.
func isEmoji(r rune) bool {
	switch {
	case r >= 0x1F300 && r <= 0x1F5FF,
		r >= 0x1F600 && r <= 0x1F64F,
		r >= 0x1F680 && r <= 0x1F6FF,
		r >= 0x1F900 && r <= 0x1F9FF,
		r >= 0x1FA70 && r <= 0x1FAFF,
		r >= 0x1F1E6 && r <= 0x1F1FF,
		r >= 0x2600 && r <= 0x26FF,
		r >= 0x2700 && r <= 0x27BF:
		return true
	}
	return false
}
