// Package consult answers free-form questions about a perfume or a whole
// collection, gated by the expert_consult quota.
package consult

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strings"

	"github.com/yuin/goldmark"

	"github.com/kalambet/sillage/internal/analysis"
	"github.com/kalambet/sillage/internal/collection"
	"github.com/kalambet/sillage/internal/extract"
	"github.com/kalambet/sillage/internal/quota"
)

var (
	ErrNoQuestion = errors.New("consult: question is required")
	ErrNoContext  = errors.New("consult: a perfume or a collection is required")
	ErrNoUser     = errors.New("consult: user id is required")
)

// Generator produces a text completion, optionally constrained to schema.
type Generator interface {
	Generate(ctx context.Context, prompt string, schema *extract.Schema) (string, error)
}

// Gate is the quota gate.
type Gate interface {
	Require(userID string, action quota.Action) (quota.Decision, error)
	Record(userID string, action quota.Action) error
}

// Question is one consultation. Exactly one of Perfume and Collection is
// used; Perfume wins when both are set.
type Question struct {
	UserID      string
	Perfume     *analysis.Identification
	Collection  []collection.Item
	Question    string
	UserContext string
}

// Answer is the expert's reply in markdown and rendered HTML.
type Answer struct {
	Text string `json:"answer"`
	HTML string `json:"answer_html"`
}

// AnswerSchema is the response shape requested from the model.
func AnswerSchema() *extract.Schema {
	return extract.ObjectSchema(map[string]*extract.Schema{
		"answer": extract.String(),
	}, "answer")
}

// Consultant runs consultations against a Generator.
type Consultant struct {
	gen    Generator
	gate   Gate
	logger *slog.Logger
}

// NewConsultant creates a Consultant.
func NewConsultant(gen Generator, gate Gate) *Consultant {
	return &Consultant{gen: gen, gate: gate, logger: slog.Default()}
}

// Ask answers q. Usage is recorded only after the model has answered.
func (c *Consultant) Ask(ctx context.Context, q Question) (Answer, error) {
	q.Question = strings.TrimSpace(q.Question)
	switch {
	case strings.TrimSpace(q.UserID) == "":
		return Answer{}, ErrNoUser
	case q.Question == "":
		return Answer{}, ErrNoQuestion
	case q.Perfume == nil && len(q.Collection) == 0:
		return Answer{}, ErrNoContext
	}

	if _, err := c.gate.Require(q.UserID, quota.ActionConsult); err != nil {
		return Answer{}, err
	}

	raw, err := c.gen.Generate(ctx, Prompt(q), AnswerSchema())
	if err != nil {
		return Answer{}, fmt.Errorf("consulting expert: %w", err)
	}

	text := parseAnswer(raw)
	if err := c.gate.Record(q.UserID, quota.ActionConsult); err != nil {
		return Answer{}, err
	}

	c.logger.Info("consultation answered", "user_id", q.UserID, "answer_len", len(text))
	return Answer{Text: text, HTML: RenderHTML(text)}, nil
}

// Prompt builds the sommelier prompt for q.
func Prompt(q Question) string {
	var b strings.Builder
	b.WriteString("You are an expert luxury perfume sommelier.\n\n")

	if q.Perfume != nil {
		p := q.Perfume
		b.WriteString("SPECIFIC PERFUME:\n")
		fmt.Fprintf(&b, "- Brand: %s\n", p.Brand)
		fmt.Fprintf(&b, "- Name: %s\n", p.Name)
		fmt.Fprintf(&b, "- Notes: top %s; heart %s; base %s\n",
			strings.Join(p.Notes.Top, ", "),
			strings.Join(p.Notes.Heart, ", "),
			strings.Join(p.Notes.Base, ", "))
		fmt.Fprintf(&b, "- Family: %s\n", p.OlfactoryFamily)
	} else {
		fmt.Fprintf(&b, "THE USER'S COLLECTION (%d perfumes):\n", len(q.Collection))
		for i, it := range q.Collection {
			d := it.AIData
			fmt.Fprintf(&b, "%d. %s - %s (%s)\n", i+1, d.Brand, d.Name, d.OlfactoryFamily)
		}
	}

	userCtx := strings.TrimSpace(q.UserContext)
	if userCtx == "" {
		userCtx = "Not specified"
	}
	fmt.Fprintf(&b, "\nUSER CONTEXT:\n%s\n", userCtx)
	fmt.Fprintf(&b, "\nUSER QUESTION:\n%q\n", q.Question)

	b.WriteString(`
INSTRUCTIONS:
1. Answer in Spanish, elegantly and professionally.
2. When asked about the whole collection, help the user choose based on the occasion or climate they mention.
3. Give specific advice grounded in the perfume's chemistry.
4. When asked for "dupes", suggest Arabic, niche or designer perfumes with similar notes.

Return your answer as JSON: {"answer": "your concise, professional answer"}
`)
	return b.String()
}

// parseAnswer pulls the answer field out of raw, falling back to the raw text
// with code fences stripped.
func parseAnswer(raw string) string {
	if obj, err := extract.Extract(raw, AnswerSchema()); err == nil {
		if s, ok := obj["answer"].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	text := strings.ReplaceAll(raw, "```json", "")
	text = strings.ReplaceAll(text, "```", "")
	return strings.TrimSpace(text)
}

// RenderHTML converts markdown to HTML, escaping the input if conversion fails.
func RenderHTML(md string) string {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		return html.EscapeString(md)
	}
	return buf.String()
}
