package extract

// Schema describes the expected JSON output structure. It is sent to the model
// as the response schema and reused locally to validate what comes back.
type Schema struct {
	Type        string             `json:"type"`
	Description string             `json:"description,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Items       *Schema            `json:"items,omitempty"`
	Required    []string           `json:"required,omitempty"`
}

// ObjectSchema returns an object schema with the given properties and required keys.
func ObjectSchema(props map[string]*Schema, required ...string) *Schema {
	return &Schema{Type: "object", Properties: props, Required: required}
}

// String returns a string schema.
func String() *Schema { return &Schema{Type: "string"} }

// Boolean returns a boolean schema.
func Boolean() *Schema { return &Schema{Type: "boolean"} }

// StringArray returns an array-of-strings schema.
func StringArray() *Schema {
	return &Schema{Type: "array", Items: String()}
}
