package types

import "time"

type Transcript struct {
	OriginalText   string    `json:"originalText"`
	TranslatedText string    `json:"translatedText"`
	Segments       []Segment `json:"segments,omitempty"`
}

type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Media is a local source video handed to the transcription collaborator.
type Media struct {
	Path     string
	MIMEType string
	Duration time.Duration
}

// Speech is the raw output of a speech-synthesis call: little-endian signed
// 16-bit PCM plus the metadata needed to interpret it.
type Speech struct {
	PCM        []byte
	SampleRate int
	Channels   int
}

type Voice struct {
	ID   string
	Name string
}

type Language struct {
	Code string
	Name string
}

var Voices = []Voice{
	{ID: "Kore", Name: "Kore (male, warm)"},
	{ID: "Puck", Name: "Puck (male, upbeat)"},
	{ID: "Charon", Name: "Charon (neutral, calm)"},
	{ID: "Zephyr", Name: "Zephyr (female, bright)"},
	{ID: "Fenrir", Name: "Fenrir (male, deep)"},
}

var Languages = []Language{
	{Code: "en", Name: "English"},
	{Code: "fr", Name: "French"},
	{Code: "es", Name: "Spanish"},
	{Code: "de", Name: "German"},
	{Code: "it", Name: "Italian"},
	{Code: "ja", Name: "Japanese"},
}

const (
	DefaultVoice    = "Zephyr"
	DefaultLanguage = "en"
)

func LookupVoice(id string) (Voice, bool) {
	for _, v := range Voices {
		if v.ID == id {
			return v, true
		}
	}
	return Voice{}, false
}

func LookupLanguage(code string) (Language, bool) {
	for _, l := range Languages {
		if l.Code == code {
			return l, true
		}
	}
	return Language{}, false
}

type Manifest struct {
	Input        string  `json:"input"`
	Language     string  `json:"language"`
	Voice        string  `json:"voice,omitempty"`
	Dubbed       bool    `json:"dubbed"`
	DurationSec  float64 `json:"duration_sec"`
	Video        string  `json:"video"`
	VideoMIME    string  `json:"video_mime"`
	Audio        string  `json:"audio,omitempty"`
	AudioSec     float64 `json:"audio_sec,omitempty"`
	Transcript   string  `json:"transcript"`
	Subtitles    string  `json:"subtitles,omitempty"`
	OriginalText string  `json:"original_text"`
	Translated   string  `json:"translated_text"`
}
