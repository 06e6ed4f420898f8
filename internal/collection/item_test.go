package collection

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalambet/sillage/internal/analysis"
	"github.com/kalambet/sillage/internal/extract"
)

var now = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

func sauvage() *analysis.Identification {
	return &analysis.Identification{
		Brand:           "Dior",
		Name:            "Sauvage",
		Concentration:   "Eau de Toilette",
		OlfactoryFamily: "Aromática fougère",
		Notes: analysis.Notes{
			Top:   []string{"bergamota de Calabria", "pimienta"},
			Heart: []string{"lavanda", "pimienta de Sichuan"},
			Base:  []string{"ambroxan", "cedro"},
		},
		Usage: analysis.Usage{Occasions: []string{"Oficina"}, Season: []string{"Verano"}, TimeOfDay: "Día"},
	}
}

func TestAssemble(t *testing.T) {
	item, err := Assemble(sauvage(), "http://localhost/photos/u1/1.jpg", "u1", now)
	require.NoError(t, err)

	assert.NotEmpty(t, item.ID)
	assert.Equal(t, "u1", item.OwnerID)
	assert.Equal(t, "http://localhost/photos/u1/1.jpg", item.PhotoURL)
	assert.Equal(t, "Sauvage", item.AIData.Name)
	assert.Nil(t, item.AIData.UserReview)
	assert.Equal(t, now, item.CreatedAt)
}

func TestAssemble_DoesNotAliasInput(t *testing.T) {
	id := sauvage()
	item, err := Assemble(id, "p", "u1", now)
	require.NoError(t, err)

	id.Notes.Top[0] = "changed"
	assert.Equal(t, "bergamota de Calabria", item.AIData.Notes.Top[0])
}

func TestAssemble_Validation(t *testing.T) {
	_, err := Assemble(nil, "p", "u1", now)
	assert.ErrorIs(t, err, ErrNoIdentification)
	_, err = Assemble(sauvage(), "p", " ", now)
	assert.ErrorIs(t, err, ErrNoOwner)
	_, err = Assemble(sauvage(), "", "u1", now)
	assert.ErrorIs(t, err, ErrNoPhoto)
}

// A fenced model answer flows through extraction and assembly with every
// note tier preserved exactly.
func TestAssemble_EndToEndNotesPreserved(t *testing.T) {
	raw := "Aquí está:\n```json\n" + `{"identified": true, "brand": "Dior", "name": "Sauvage",
		"notes": {"top": ["bergamota"], "heart": ["lavanda", "geranio"], "base": ["ambroxan"]}}` + "\n```"

	obj, err := extract.Extract(raw, analysis.PerfumeSchema())
	require.NoError(t, err)
	id, err := extract.Decode[analysis.Identification](obj)
	require.NoError(t, err)

	item, err := Assemble(&id, "p", "u1", now)
	require.NoError(t, err)

	rec, err := ToRecord(item)
	require.NoError(t, err)

	var stored map[string]any
	require.NoError(t, json.Unmarshal([]byte(rec.AIData), &stored))
	notes := stored["notes"].(map[string]any)
	assert.Equal(t, []any{"bergamota"}, notes["top"])
	assert.Equal(t, []any{"lavanda", "geranio"}, notes["heart"])
	assert.Equal(t, []any{"ambroxan"}, notes["base"])
	usage := stored["usage"].(map[string]any)
	assert.NotNil(t, usage["occasions"], "empty sequences, never null")
}

func TestWithReview(t *testing.T) {
	item, _ := Assemble(sauvage(), "p", "u1", now)

	later := now.Add(time.Hour)
	reviewed, err := WithReview(item, Review{Rating: 4, Comment: "  dura todo el día "}, later)
	require.NoError(t, err)
	require.NotNil(t, reviewed.AIData.UserReview)
	assert.Equal(t, 4, reviewed.AIData.UserReview.Rating)
	assert.Equal(t, "dura todo el día", reviewed.AIData.UserReview.Comment)
	assert.Equal(t, later, reviewed.AIData.UserReview.Date)
	assert.Equal(t, later, reviewed.UpdatedAt)
	assert.Nil(t, item.AIData.UserReview, "original value untouched")

	for _, r := range []int{0, 6, -1} {
		_, err := WithReview(item, Review{Rating: r}, later)
		assert.ErrorIs(t, err, ErrInvalidRating)
	}
}

func TestRecordRoundTrip(t *testing.T) {
	item, _ := Assemble(sauvage(), "p", "u1", now)
	item, _ = WithReview(item, Review{Rating: 5, Comment: "favorito"}, now)

	rec, err := ToRecord(item)
	require.NoError(t, err)
	assert.Contains(t, rec.AIData, `"user_review"`)
	assert.Contains(t, rec.AIData, `"brand":"Dior"`)

	back, err := FromRecord(rec)
	require.NoError(t, err)
	assert.Equal(t, item, back)
}
