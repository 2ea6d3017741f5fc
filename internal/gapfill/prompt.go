package gapfill

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"

	"github.com/mentorscore/session-api/internal/model"
)

// ContextHints grounds synthesis in whatever is known about the session.
type ContextHints struct {
	SessionName       string
	Duration          int
	AnalysisKeys      []string
	DiarizationKeys   []string
	OverallScore      *int
	TranscriptExcerpt string
	SentenceCount     int
}

// SynthesisPayload is the object the generator is asked to return.
type SynthesisPayload struct {
	Timeline    model.Timeline     `json:"timeline"`
	Metrics     []model.Metric     `json:"metrics"`
	WeakMoments []model.WeakMoment `json:"weakMoments"`
}

type FeedbackPayload struct {
	Metrics []MetricFeedback `json:"metrics"`
}

type MetricFeedback struct {
	Name       string   `json:"name"`
	WhatHelped []string `json:"whatHelped"`
	WhatHurt   []string `json:"whatHurt"`
}

// DefaultMetricNames are requested when a record has no metrics at all.
var DefaultMetricNames = []string{
	model.MetricClarity,
	model.MetricEngagement,
	model.MetricPacing,
	model.MetricEyeContact,
	model.MetricGestures,
	model.MetricOverall,
}

var (
	schemaOnce      sync.Once
	synthesisSchema string
	feedbackSchema  string
)

func schemas() (string, string) {
	schemaOnce.Do(func() {
		synthesisSchema = reflectSchema(&SynthesisPayload{})
		feedbackSchema = reflectSchema(&FeedbackPayload{})
	})
	return synthesisSchema, feedbackSchema
}

func reflectSchema(v any) string {
	r := jsonschema.Reflector{
		AllowAdditionalProperties:  false,
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: false,
	}
	data, err := json.MarshalIndent(r.Reflect(v), "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

func synthesisPrompt(hints ContextHints, gaps Gaps) string {
	schema, _ := schemas()

	var b strings.Builder
	b.WriteString("You are generating evaluation data for a recorded mentoring session.\n")
	b.WriteString("Some analysis fields could not be computed; produce plausible values for them.\n\n")
	writeContext(&b, hints)

	b.WriteString("\nFields to produce: ")
	fields := gaps.Fields()
	if len(fields) == 0 {
		fields = []string{"metrics"}
	}
	b.WriteString(strings.Join(fields, ", "))
	b.WriteString(", weakMoments\n")

	fmt.Fprintf(&b, "Metrics must cover: %s.\n", strings.Join(DefaultMetricNames, ", "))
	fmt.Fprintf(&b, "All times are integer seconds between 0 and %d. Scores are integers between 0 and 100.\n", hints.Duration)
	b.WriteString("Each metric needs a confidenceInterval [low, high], two to three whatHelped items and two to three whatHurt items.\n")
	b.WriteString("Weak moment timestamps use HH:MM:SS.\n\n")
	b.WriteString("Respond with a single JSON object and nothing else. It must validate against this JSON schema:\n")
	b.WriteString(schema)
	b.WriteString("\n")
	return b.String()
}

func feedbackPrompt(hints ContextHints, metrics []model.Metric, names []string) string {
	_, schema := schemas()
	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		wanted[metricKey(n)] = true
	}

	var b strings.Builder
	b.WriteString("You are writing feedback for a mentor after a recorded teaching session.\n\n")
	writeContext(&b, hints)
	b.WriteString("\nFor each metric below, list two to three short points on what helped the score and two to three on what hurt it.\n")
	for _, m := range metrics {
		if wanted[metricKey(m.Name)] {
			fmt.Fprintf(&b, "- %s (score %d)\n", m.Name, m.Score)
		}
	}
	b.WriteString("\nRespond with a single JSON object and nothing else. It must validate against this JSON schema:\n")
	b.WriteString(schema)
	b.WriteString("\n")
	return b.String()
}

func summaryPrompt(transcript string) string {
	return "Summarize the following session transcript in 2 concise sentences and give 3 short improvement suggestions.\n\n" +
		"Transcript:\n" + transcript
}

func writeContext(b *strings.Builder, hints ContextHints) {
	b.WriteString("Session context:\n")
	if hints.SessionName != "" {
		fmt.Fprintf(b, "- name: %s\n", hints.SessionName)
	}
	fmt.Fprintf(b, "- duration: %d seconds\n", hints.Duration)
	if hints.OverallScore != nil {
		fmt.Fprintf(b, "- overall score: %d\n", *hints.OverallScore)
	}
	if len(hints.AnalysisKeys) > 0 {
		fmt.Fprintf(b, "- analysis fields: %s\n", strings.Join(hints.AnalysisKeys, ", "))
	}
	if len(hints.DiarizationKeys) > 0 {
		fmt.Fprintf(b, "- diarization fields: %s\n", strings.Join(hints.DiarizationKeys, ", "))
	}
	if hints.SentenceCount > 0 {
		fmt.Fprintf(b, "- diarized sentences: %d\n", hints.SentenceCount)
	}
	if hints.TranscriptExcerpt != "" {
		fmt.Fprintf(b, "- transcript excerpt:\n\"\"\"\n%s\n\"\"\"\n", hints.TranscriptExcerpt)
	}
}
