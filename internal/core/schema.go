package core

// SchemaType mirrors the OpenAPI subset understood by structured generation.
type SchemaType string

const (
	TypeString  SchemaType = "string"
	TypeNumber  SchemaType = "number"
	TypeInteger SchemaType = "integer"
	TypeBoolean SchemaType = "boolean"
	TypeArray   SchemaType = "array"
	TypeObject  SchemaType = "object"
)

// Schema describes the JSON shape a StructuredGenerator must produce.
// It is provider neutral; adapters translate it to their own schema type.
type Schema struct {
	Type        SchemaType
	Description string
	Format      string
	Nullable    bool
	Enum        []string
	Items       *Schema
	Properties  map[string]*Schema
	Required    []string
}
