package extract

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func notesSchema() *Schema {
	return ObjectSchema(map[string]*Schema{
		"identified": Boolean(),
		"brand":      String(),
		"notes": ObjectSchema(map[string]*Schema{
			"top":   StringArray(),
			"heart": StringArray(),
			"base":  StringArray(),
		}, "top", "heart", "base"),
	}, "identified", "brand", "notes")
}

const validBody = `{"identified": true, "brand": "Giorgio Armani", "notes": {"top": ["bergamot"], "heart": ["jasmine"], "base": ["musk"]}}`

func TestExtract_FencedBlockWithProse(t *testing.T) {
	cases := map[string]string{
		"json tag":  "Here is the analysis:\n```json\n" + validBody + "\n```\nHope this helps {really}.",
		"no tag":    "```\n" + validBody + "\n```",
		"upper tag": "Result ```JSON " + validBody + "``` done",
		"other tag": "```javascript\n" + validBody + "\n```",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			obj, err := Extract(raw, notesSchema())
			require.NoError(t, err)
			assert.Equal(t, "Giorgio Armani", obj["brand"])
		})
	}
}

func TestExtract_UnfencedSpan(t *testing.T) {
	raw := "Sure! " + validBody + " Let me know if you need more."
	obj, err := Extract(raw, notesSchema())
	require.NoError(t, err)
	assert.Equal(t, true, obj["identified"])
}

func TestExtract_StrayBracesInProse(t *testing.T) {
	raw := "Use the {brand} template. " + validBody + " and ignore the trailing } brace."
	obj, err := Extract(raw, notesSchema())
	require.NoError(t, err)
	assert.Equal(t, "Giorgio Armani", obj["brand"])
}

func TestExtract_BracesInsideStrings(t *testing.T) {
	raw := `{"identified": true, "brand": "A {weird} } brand", "notes": {"top": [], "heart": [], "base": []}}`
	obj, err := Extract(raw, notesSchema())
	require.NoError(t, err)
	assert.Equal(t, "A {weird} } brand", obj["brand"])
}

func TestExtract_MalformedJSON(t *testing.T) {
	for _, raw := range []string{
		"",
		"no json here at all",
		"{not json}",
		"```json\n{\"identified\": tru\n```",
		"[1, 2, 3]",
		"null",
	} {
		_, err := Extract(raw, notesSchema())
		require.Error(t, err, "input %q", raw)
		assert.True(t, errors.Is(err, ErrMalformedJSON), "input %q: got %v", raw, err)
	}
}

func TestExtract_MalformedOuterObjectNotSalvagedFromNested(t *testing.T) {
	cases := map[string]string{
		"nested negative":     `{"a":{"identified":false},}`,
		"negative in prose":   `Here you go: {"identified": true, "extra": {"identified": false},}`,
		"nested notes object": `{"brand":"Dior","notes":{"top":["bergamot"],"heart":[],"base":[]},}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			obj, err := Extract(raw, nil)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedJSON), "got %v", err)
			assert.Nil(t, obj)
			assert.False(t, IsNegative(obj))
		})
	}
}

func TestExtract_ObjectAfterMalformedSpan(t *testing.T) {
	raw := `draft: {"identified": false,} final: ` + validBody
	obj, err := Extract(raw, notesSchema())
	require.NoError(t, err)
	assert.Equal(t, true, obj["identified"])
}

func TestExtract_NegativeIdentificationSkipsValidation(t *testing.T) {
	obj, err := Extract(`{"identified": false, "reason": "no bottle visible"}`, notesSchema())
	require.NoError(t, err)
	assert.True(t, IsNegative(obj))
	assert.Equal(t, "no bottle visible", obj["reason"])
}

func TestExtract_SchemaViolation(t *testing.T) {
	cases := map[string]string{
		"missing top-level":  `{"identified": true, "notes": {"top": [], "heart": [], "base": []}}`,
		"missing note tier":  `{"identified": true, "brand": "X", "notes": {"top": [], "heart": []}}`,
		"null note tier":     `{"identified": true, "brand": "X", "notes": {"top": null, "heart": [], "base": []}}`,
		"wrong type":         `{"identified": true, "brand": 42, "notes": {"top": [], "heart": [], "base": []}}`,
		"wrong item type":    `{"identified": true, "brand": "X", "notes": {"top": [1], "heart": [], "base": []}}`,
		"identified missing": `{"brand": "X", "notes": {"top": [], "heart": [], "base": []}}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Extract(raw, notesSchema())
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrSchemaViolation), "got %v", err)
			assert.False(t, errors.Is(err, ErrMalformedJSON))
		})
	}
}

func TestExtract_NilSchema(t *testing.T) {
	obj, err := Extract(`{"answer": "wear it at night"}`, nil)
	require.NoError(t, err)
	assert.Equal(t, "wear it at night", obj["answer"])
}

func TestExtract_Idempotent(t *testing.T) {
	inputs := []string{
		"```json\n" + validBody + "\n```",
		"prefix " + validBody,
		"garbage",
		`{"identified": true}`,
	}
	for _, raw := range inputs {
		a, errA := Extract(raw, notesSchema())
		b, errB := Extract(raw, notesSchema())
		assert.Equal(t, a, b)
		assert.Equal(t, errA, errB)
	}
}

func TestDecode(t *testing.T) {
	obj, err := Extract(validBody, notesSchema())
	require.NoError(t, err)

	type notes struct {
		Top   []string `json:"top"`
		Heart []string `json:"heart"`
		Base  []string `json:"base"`
	}
	type result struct {
		Brand string `json:"brand"`
		Notes notes  `json:"notes"`
	}
	got, err := Decode[result](obj)
	require.NoError(t, err)
	assert.Equal(t, "Giorgio Armani", got.Brand)
	assert.Equal(t, []string{"jasmine"}, got.Notes.Heart)
}

func TestMatchBrace(t *testing.T) {
	assert.Equal(t, 1, matchBrace("{}", 0))
	assert.Equal(t, -1, matchBrace("{ {", 0))
	assert.Equal(t, 10, matchBrace(`{"a":"\"}"}`, 0))
}
