package model

type AudioPace string

const (
	AudioPaceFast     AudioPace = "fast"
	AudioPaceModerate AudioPace = "moderate"
	AudioPaceNormal   AudioPace = "normal"
	AudioPacePoor     AudioPace = "poor"
)

func (p AudioPace) Valid() bool {
	switch p {
	case AudioPaceFast, AudioPaceModerate, AudioPaceNormal, AudioPacePoor:
		return true
	}
	return false
}

type VideoQuality string

const (
	VideoQualityExcellent VideoQuality = "excellent"
	VideoQualityGood      VideoQuality = "good"
	VideoQualityModerate  VideoQuality = "moderate"
	VideoQualityPoor      VideoQuality = "poor"
)

func (q VideoQuality) Valid() bool {
	switch q {
	case VideoQualityExcellent, VideoQualityGood, VideoQualityModerate, VideoQualityPoor:
		return true
	}
	return false
}

// Evaluation dimensions.
const (
	MetricClarity        = "Clarity"
	MetricCommunication  = "Communication"
	MetricEngagement     = "Engagement"
	MetricTechnicalDepth = "Technical Depth"
	MetricInteraction    = "Interaction"
	MetricPacing         = "Pacing"
	MetricEyeContact     = "Eye Contact"
	MetricGestures       = "Gestures"
	MetricOverall        = "Overall"
)

// Session event types published to mentor subscribers.
const (
	EventSessionCreated = "session.created"
	EventSessionUpdated = "session.updated"
)
