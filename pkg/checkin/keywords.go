package checkin

import "strings"

// Keyword lists for transcript classification. Kept broad to account
// for slurred or partial speech from someone who has just fallen.

// safeKeywords indicate the user is okay.
var safeKeywords = []string{
	"fine", "okay", "ok", "good", "alright", "all right",
	"i'm fine", "im fine", "i am fine",
	"i'm okay", "im okay", "i am okay",
	"i'm good", "im good", "i am good",
	"no help", "don't call", "do not call", "not hurt",
}

// helpKeywords indicate the user needs assistance.
var helpKeywords = []string{
	"help", "hurt", "pain", "fallen", "can't get up", "cannot get up",
	"call", "emergency", "ambulance", "yes", "please",
	"i need help", "need help", "i fell",
}

// blankAudioMarker is emitted by whisper-family engines for silence.
const blankAudioMarker = "[blank_audio]"

// ClassifyTranscript maps a transcript to a Response.
//
// Safe keywords are checked before help keywords so that a phrase like
// "I'm fine, no help needed" does not accidentally match "help". An
// empty or unrecognized transcript classifies as NoResponse, the same
// as silence.
func ClassifyTranscript(transcript string) Response {
	transcript = strings.ToLower(strings.TrimSpace(transcript))
	if transcript == "" || transcript == blankAudioMarker {
		return NoResponse
	}

	for _, kw := range safeKeywords {
		if strings.Contains(transcript, kw) {
			return Safe
		}
	}
	for _, kw := range helpKeywords {
		if strings.Contains(transcript, kw) {
			return HelpNeeded
		}
	}
	return NoResponse
}
