// Package gemini talks to the Gemini API through the genai SDK: one
// multimodal call transcribes and translates a clip, another synthesizes
// speech for the translation.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"google.golang.org/genai"

	"github.com/forPelevin/dubstudio/internal/types"
)

const (
	DefaultModel    = "gemini-3-flash-preview"
	DefaultTTSModel = "gemini-2.5-flash-preview-tts"

	// TTS output is 24 kHz mono s16le unless the blob MIME type says
	// otherwise.
	defaultTTSRate = 24000

	// Inline requests are capped at 20 MB by the API.
	maxInlineBytes = 20 << 20
)

type Config struct {
	APIKey   string
	Model    string
	TTSModel string
	// BaseURL overrides the API endpoint. Tests point it at httptest.
	BaseURL string
}

type Client struct {
	genai    *genai.Client
	model    string
	ttsModel string
}

func New(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("gemini: api key is required (GEMINI_API_KEY)")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.TTSModel == "" {
		cfg.TTSModel = DefaultTTSModel
	}
	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	gc, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return &Client{genai: gc, model: cfg.Model, ttsModel: cfg.TTSModel}, nil
}

var transcriptSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"originalText":   {Type: genai.TypeString},
		"translatedText": {Type: genai.TypeString},
	},
	Required: []string{"originalText", "translatedText"},
}

// Transcribe sends the whole clip inline with a JSON response schema and
// returns both the source transcript and its translation.
func (c *Client) Transcribe(ctx context.Context, media types.Media, lang string) (types.Transcript, error) {
	data, err := os.ReadFile(media.Path)
	if err != nil {
		return types.Transcript{}, fmt.Errorf("read media: %w", err)
	}
	if len(data) > maxInlineBytes {
		return types.Transcript{}, fmt.Errorf("media %s is %d bytes; inline limit is %d", media.Path, len(data), maxInlineBytes)
	}

	target := lang
	if l, ok := types.LookupLanguage(lang); ok {
		target = l.Name
	}
	prompt := "Transcribe and translate naturally into " + target + ". " +
		"Preserve original tone and energy. Output JSON: {originalText, translatedText}"

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(prompt),
			genai.NewPartFromBytes(data, mediaMIME(media)),
		}, genai.RoleUser),
	}
	resp, err := c.genai.Models.GenerateContent(ctx, c.model, contents, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   transcriptSchema,
	})
	if err != nil {
		return types.Transcript{}, remoteError(err)
	}

	raw := strings.TrimSpace(resp.Text())
	if raw == "" {
		return types.Transcript{}, &types.RemoteCallError{Service: "gemini", Message: "empty transcription response"}
	}
	var tr types.Transcript
	if err := json.Unmarshal([]byte(raw), &tr); err != nil {
		return types.Transcript{}, &types.RemoteCallError{Service: "gemini", Message: "invalid transcription json", Err: err}
	}
	tr.OriginalText = strings.TrimSpace(tr.OriginalText)
	tr.TranslatedText = strings.TrimSpace(tr.TranslatedText)
	return tr, nil
}

// Synthesize reads text aloud with a prebuilt voice and returns the raw PCM.
func (c *Client) Synthesize(ctx context.Context, text, voice string) (types.Speech, error) {
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{genai.NewPartFromText(text)}, genai.RoleUser),
	}
	resp, err := c.genai.Models.GenerateContent(ctx, c.ttsModel, contents, &genai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: voice},
			},
		},
	})
	if err != nil {
		return types.Speech{}, remoteError(err)
	}

	blob := firstInlineBlob(resp)
	if blob == nil || len(blob.Data) == 0 {
		return types.Speech{}, &types.RemoteCallError{Service: "gemini", Message: "no audio in synthesis response"}
	}
	return types.Speech{
		PCM:        blob.Data,
		SampleRate: pcmRate(blob.MIMEType),
		Channels:   1,
	}, nil
}

func firstInlineBlob(resp *genai.GenerateContentResponse) *genai.Blob {
	if resp == nil {
		return nil
	}
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, p := range cand.Content.Parts {
			if p != nil && p.InlineData != nil {
				return p.InlineData
			}
		}
	}
	return nil
}

// pcmRate reads the rate parameter of an "audio/L16;codec=pcm;rate=24000"
// style MIME type.
func pcmRate(mimeType string) int {
	_, params, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return defaultTTSRate
	}
	if r, err := strconv.Atoi(params["rate"]); err == nil && r > 0 {
		return r
	}
	return defaultTTSRate
}

func mediaMIME(m types.Media) string {
	if m.MIMEType != "" {
		return m.MIMEType
	}
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(m.Path))); t != "" {
		return t
	}
	return "video/mp4"
}

func remoteError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if msg == "" {
			msg = apiErr.Status
		}
		return &types.RemoteCallError{Service: "gemini", Message: fmt.Sprintf("status %d: %s", apiErr.Code, msg), Err: err}
	}
	return &types.RemoteCallError{Service: "gemini", Message: err.Error(), Err: err}
}
