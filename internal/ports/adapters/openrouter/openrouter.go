package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/forPelevin/dubstudio/internal/types"
)

const service = "openrouter"

type Adapter struct {
	key     string
	model   string
	baseURL string
	client  *http.Client
}

const (
	requestTimeout = 90 * time.Second
	defaultBaseURL = "https://openrouter.ai"
)

func New(apiKey, model, baseURL string) *Adapter {
	if model == "" {
		model = "google/gemini-2.5-flash"
	}
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Adapter{key: apiKey, model: model, baseURL: baseURL, client: &http.Client{Timeout: 5 * time.Minute}}
}

// Translate renders text in the language identified by lang (an ISO 639-1
// code or a language name).
func (a *Adapter) Translate(ctx context.Context, text, lang string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil
	}
	target := lang
	if l, ok := types.LookupLanguage(lang); ok {
		target = l.Name
	}

	// strict schema: a single translated string.
	payload := map[string]any{
		"model":  a.model,
		"stream": false,
		"messages": []map[string]any{
			{"role": "user", "content": buildPrompt(text, target)},
		},
		"response_format": map[string]any{
			"type": "json_schema",
			"json_schema": map[string]any{
				"name": "dubstudio_translate",
				"schema": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"translatedText": map[string]any{"type": "string"},
					},
					"required": []string{"translatedText"},
				},
			},
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}
	url := a.baseURL + "/api/v1/chat/completions"

	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+a.key)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			return "", &types.RemoteCallError{Service: service, Message: fmt.Sprintf("timeout after %s (model=%s)", requestTimeout, a.model), Err: err}
		}
		return "", &types.RemoteCallError{Service: service, Message: redactSecrets(err.Error(), a.key), Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		rb, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return "", &types.RemoteCallError{Service: service, Message: fmt.Sprintf("status %d and read body failed: %v", resp.StatusCode, readErr)}
		}
		return "", &types.RemoteCallError{Service: service, Message: fmt.Sprintf("status %d: %s", resp.StatusCode, truncate(redactSecrets(string(rb), a.key), 400))}
	}

	var raw struct {
		Choices []struct {
			Message struct {
				Content any `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return "", &types.RemoteCallError{Service: service, Message: "decode response", Err: err}
	}
	if len(raw.Choices) == 0 {
		return "", &types.RemoteCallError{Service: service, Message: "no choices in response"}
	}

	content, err := messageContentToString(raw.Choices[0].Message.Content)
	if err != nil {
		return "", &types.RemoteCallError{Service: service, Message: err.Error(), Err: err}
	}
	clean, err := extractJSONObject(content)
	if err != nil {
		return "", &types.RemoteCallError{Service: service, Message: err.Error(), Err: err}
	}

	var out struct {
		TranslatedText string `json:"translatedText"`
	}
	if err := json.Unmarshal([]byte(clean), &out); err != nil {
		return "", &types.RemoteCallError{Service: service, Message: "invalid translation json", Err: err}
	}
	return strings.TrimSpace(out.TranslatedText), nil
}

func buildPrompt(text, target string) string {
	return "Translate the following transcript into " + target + ". " +
		"Keep the meaning and tone; the result will be read aloud by a voice actor. " +
		"Return strictly valid JSON (no markdown, no code fences) matching the provided schema." +
		"\n\nTranscript:\n" + text
}

func messageContentToString(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case []any:
		// Some providers return an array of {type,text} parts.
		var b strings.Builder
		for _, it := range x {
			m, ok := it.(map[string]any)
			if !ok {
				continue
			}
			if t, ok := m["text"].(string); ok {
				b.WriteString(t)
			}
		}
		s := b.String()
		if strings.TrimSpace(s) == "" {
			return "", errors.New("empty content")
		}
		return s, nil
	default:
		return "", fmt.Errorf("unexpected content type %T", v)
	}
}

func extractJSONObject(s string) (string, error) {
	t := strings.TrimSpace(s)
	if t == "" {
		return "", errors.New("empty content")
	}

	// Strip markdown code fences.
	if strings.HasPrefix(t, "```") {
		if i := strings.Index(t, "\n"); i >= 0 {
			t = t[i+1:]
		}
		if j := strings.LastIndex(t, "```"); j >= 0 {
			t = t[:j]
		}
		t = strings.TrimSpace(t)
	}

	start := strings.Index(t, "{")
	end := strings.LastIndex(t, "}")
	if start >= 0 && end > start {
		return t[start : end+1], nil
	}

	return "", fmt.Errorf("could not locate JSON object in: %q", truncate(t, 200))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

var (
	bearerTokenRE = regexp.MustCompile(`(?i)\bBearer\s+[A-Za-z0-9._-]+\b`)
	authHeaderRE  = regexp.MustCompile(`(?i)(authorization\s*[:=]\s*)([^\n\r,;]+)`)
	apiKeyFieldRE = regexp.MustCompile(`(?i)(api[_-]?key\s*[:=]\s*)([^\n\r,;]+)`)
)

func redactSecrets(s, apiKey string) string {
	if s == "" {
		return s
	}
	out := s
	if apiKey != "" {
		out = strings.ReplaceAll(out, apiKey, "[REDACTED]")
	}
	out = bearerTokenRE.ReplaceAllString(out, "Bearer [REDACTED]")
	out = authHeaderRE.ReplaceAllString(out, "${1}[REDACTED]")
	out = apiKeyFieldRE.ReplaceAllString(out, "${1}[REDACTED]")
	return out
}
