package emotion

import "strings"

// keywordSet maps one emotion label to the keywords that imply it.
type keywordSet struct {
	label    string
	keywords []string
}

// fallbackLexicon is scanned in order; the first keyword found in the
// input decides the label. Order therefore encodes label priority.
var fallbackLexicon = []keywordSet{
	{"senang", []string{
		"senang", "bahagia", "gembira", "happy", "joy", "excited",
		"love", "suka", "cinta", "riang", "ceria", "girang",
	}},
	{"marah", []string{
		"marah", "kesal", "muak", "angry", "mad", "furious",
		"geram", "jengkel", "dongkol", "benci", "hate",
	}},
	{"sedih", []string{
		"sedih", "kecewa", "galau", "sad", "disappointed", "cry",
		"menangis", "duka", "nestapa", "depresi",
	}},
	{"cemas", []string{
		"cemas", "khawatir", "takut", "anxious", "worried", "scared",
		"gelisah", "panik", "stress", "tegang",
	}},
	{"agresif", []string{
		"hancurkan", "bunuh", "serang", "destroy", "kill", "attack",
		"pukul", "hajar", "gebuk", "fight",
	}},
	{"penyesalan", []string{
		"maaf", "sorry", "salah", "menyesal", "regret",
		"tobat", "insaf", "sesal",
	}},
}

const fallbackConfidence = 0.7

// classifyByKeyword scans the lexicon against lowered text. Returns the
// matched label and keyword, or ok=false when nothing matches.
func classifyByKeyword(lowered string) (label, keyword string, ok bool) {
	for _, set := range fallbackLexicon {
		for _, kw := range set.keywords {
			if strings.Contains(lowered, kw) {
				return set.label, kw, true
			}
		}
	}
	return "", "", false
}
