package gemini

import "github.com/kalambet/sillage/internal/extract"

// Part is one element of a content turn: either text or inline binary data.
type Part struct {
	Text       string `json:"text,omitempty"`
	InlineData *Blob  `json:"inline_data,omitempty"`
}

// Blob carries base64-encoded media.
type Blob struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"`
}

// Content is a single conversation turn.
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

// GenerationConfig requests structured output when ResponseSchema is set.
type GenerationConfig struct {
	ResponseMIMEType string          `json:"response_mime_type,omitempty"`
	ResponseSchema   *extract.Schema `json:"response_schema,omitempty"`
	Temperature      *float64        `json:"temperature,omitempty"`
}

// GenerateRequest is the body of POST models/{model}:generateContent.
type GenerateRequest struct {
	Contents         []Content         `json:"contents"`
	GenerationConfig *GenerationConfig `json:"generationConfig,omitempty"`
}

// GenerateResponse mirrors the subset of the generateContent response we read.
type GenerateResponse struct {
	Candidates []Candidate `json:"candidates"`
}

// Candidate is one generated answer.
type Candidate struct {
	Content      Content `json:"content"`
	FinishReason string  `json:"finishReason,omitempty"`
}

// Text concatenates the text of every part of the first candidate. Search
// grounded answers arrive split across several parts.
func (r GenerateResponse) Text() string {
	if len(r.Candidates) == 0 {
		return ""
	}
	var out string
	for _, p := range r.Candidates[0].Content.Parts {
		out += p.Text
	}
	return out
}
