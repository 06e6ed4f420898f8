package analysis

import "github.com/kalambet/sillage/internal/extract"

// FullInstruction drives the high-quality identification call.
const FullInstruction = `You are an elite perfume sommelier. Identify the fragrance in the photo and produce a masterful analysis.

Rules:
- If the image does not show a perfume bottle or packaging, answer {"identified": false, "reason": "<short explanation>"} and nothing else.
- Use your own knowledge of the fragrance. Never answer "N/A" for any field.
- The olfactory pyramid is mandatory: list top, heart and base notes.
- The description must be immersive and at least 250 characters long, covering how the scent opens, dries down and settles.
- Evaluate usage: occasions such as gym, office and dates, suitable seasons and climate, and the best time of day.
- Write every text value in Spanish.
- Output a single JSON object that follows the provided schema strictly.`

// ProbeInstruction is the cheap yes/no question asked on low-quality frames.
const ProbeInstruction = `Look at this image. If a perfume bottle is visible, respond ONLY with {"identified": true}. Otherwise respond ONLY with {"identified": false}. No additional text.`

// PerfumeSchema is the response schema for FullInstruction.
func PerfumeSchema() *extract.Schema {
	return extract.ObjectSchema(map[string]*extract.Schema{
		"identified":       extract.Boolean(),
		"reason":           extract.String(),
		"brand":            extract.String(),
		"name":             extract.String(),
		"concentration":    extract.String(),
		"olfactory_family": extract.String(),
		"notes": extract.ObjectSchema(map[string]*extract.Schema{
			"top":   extract.StringArray(),
			"heart": extract.StringArray(),
			"base":  extract.StringArray(),
		}, "top", "heart", "base"),
		"usage": extract.ObjectSchema(map[string]*extract.Schema{
			"occasions":   extract.StringArray(),
			"season":      extract.StringArray(),
			"time_of_day": extract.String(),
		}),
		"description": extract.String(),
	}, "identified", "brand", "name", "notes")
}

// ProbeSchema is the response schema for ProbeInstruction.
func ProbeSchema() *extract.Schema {
	return extract.ObjectSchema(map[string]*extract.Schema{
		"identified": extract.Boolean(),
	}, "identified")
}
