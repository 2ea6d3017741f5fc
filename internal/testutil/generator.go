package testutil

import (
	"context"
	"errors"
	"sync"
)

// ScriptedGenerator replays Responses in order. A non-nil entry in Errs at the
// same index fails that call instead. Once the script is exhausted, Fallback
// is returned when set.
type ScriptedGenerator struct {
	mu        sync.Mutex
	Responses []string
	Errs      []error
	Fallback  string
	prompts   []string
}

func (g *ScriptedGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	i := len(g.prompts)
	g.prompts = append(g.prompts, prompt)
	if i < len(g.Errs) && g.Errs[i] != nil {
		return "", g.Errs[i]
	}
	if i < len(g.Responses) {
		return g.Responses[i], nil
	}
	if g.Fallback != "" {
		return g.Fallback, nil
	}
	return "", errors.New("no scripted response")
}

func (g *ScriptedGenerator) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.prompts)
}

func (g *ScriptedGenerator) Prompts() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.prompts...)
}

// CompleteSynthesis is a generator response that fills every gap of an empty
// record in one call.
const CompleteSynthesis = `{
  "timeline": {
    "audio": [{"startTime": 0, "endTime": 60, "pace": 140, "pauses": 2, "type": "normal", "message": "steady"}],
    "video": [{"startTime": 0, "endTime": 60, "eyeContact": 80, "gestures": 3, "type": "good", "message": "ok"}],
    "transcript": [{"startTime": 0, "endTime": 60, "text": "welcome", "keyPhrases": ["welcome"]}],
    "scoreDips": [{"timestamp": 30, "score": 55, "message": "dip", "type": "pacing"}],
    "scorePeaks": [{"timestamp": 50, "score": 90, "message": "peak", "type": "engagement"}]
  },
  "metrics": [
    {"name": "Clarity", "score": 80, "confidenceInterval": [75, 85], "whatHelped": ["examples"], "whatHurt": ["jargon"]},
    {"name": "Overall", "score": 78, "confidenceInterval": [73, 83], "whatHelped": ["structure"], "whatHurt": ["pace"]}
  ],
  "weakMoments": [{"timestamp": "00:00:30", "message": "rushed"}]
}`
