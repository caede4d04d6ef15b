// Package emotion classifies text into emotion labels, caching results
// and falling back to keyword matching when the remote backend is down.
package emotion

import "time"

// Classification methods reported in Result.Method.
const (
	MethodDefault  = "default"
	MethodRemote   = "nlp_lexicon"
	MethodFallback = "fallback_keyword"
)

// LabelNeutral is the label returned when no emotion is detected.
const LabelNeutral = "netral"

// Result is one emotion classification. Classify always returns a
// usable Result; Method records how it was produced.
type Result struct {
	Emotion       string             `json:"emotion"`
	Confidence    float64            `json:"confidence"`
	Emoticon      string             `json:"emoticon"`
	Method        string             `json:"method"`
	Matches       []string           `json:"matches"`
	AllScores     map[string]float64 `json:"allScores"`
	TextLength    int                `json:"textLength"`
	ProcessedText string             `json:"processedText"`
	Timestamp     time.Time          `json:"timestamp"`
}

// emoticons maps emotion labels to their display emoticon.
var emoticons = map[string]string{
	"senang":     "😊",
	"marah":      "😠",
	"sedih":      "😢",
	"cemas":      "😰",
	"agresif":    "😡",
	"defensif":   "🛡️",
	"penyesalan": "😔",
	"kesal":      "😤",
	LabelNeutral: "😐",
}

// Emoticon returns the emoticon for a label, defaulting to neutral.
func Emoticon(label string) string {
	if e, ok := emoticons[label]; ok {
		return e
	}
	return emoticons[LabelNeutral]
}

func neutralResult(now time.Time) Result {
	return Result{
		Emotion:    LabelNeutral,
		Confidence: 0.5,
		Emoticon:   Emoticon(LabelNeutral),
		Method:     MethodDefault,
		Matches:    []string{},
		AllScores:  map[string]float64{LabelNeutral: 1.0},
		Timestamp:  now,
	}
}
