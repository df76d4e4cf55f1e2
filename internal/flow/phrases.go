package flow

import "strings"

// skipPhrases are the recognized ways a member opts out of the current
// stage for a while. Matching is substring-based on the normalized
// message, same as the ready check.
var skipPhrases = []string{
	"skip",
	"not interested",
	"no thanks",
	"maybe later",
	"not now",
	"rather not",
}

// readyPhrases signal the member wants to move past the intro.
var readyPhrases = []string{
	"ready",
	"let's go",
	"lets go",
	"let's start",
	"lets start",
	"let's begin",
	"lets begin",
	"sounds good",
}

// affirmativeTokens count as a ready signal only when they lead the
// message, so "yes" advances but "yesterday I..." does not.
var affirmativeTokens = map[string]bool{
	"yes":  true,
	"yeah": true,
	"yep":  true,
	"sure": true,
}

// IsSkipRequest reports whether the message asks to skip the current
// stage.
func IsSkipRequest(message string) bool {
	normalized := strings.ToLower(strings.TrimSpace(message))
	for _, phrase := range skipPhrases {
		if strings.Contains(normalized, phrase) {
			return true
		}
	}
	return false
}

// IsReadySignal reports whether the message expresses intent to
// proceed.
func IsReadySignal(message string) bool {
	normalized := strings.ToLower(strings.TrimSpace(message))
	for _, phrase := range readyPhrases {
		if strings.Contains(normalized, phrase) {
			return true
		}
	}
	fields := strings.FieldsFunc(normalized, func(r rune) bool {
		return r == ' ' || r == ',' || r == '.' || r == '!'
	})
	return len(fields) > 0 && affirmativeTokens[fields[0]]
}
