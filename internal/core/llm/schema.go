package llm

import (
	"github.com/google/generative-ai-go/genai"

	"github.com/markdave123-py/fincontexta/internal/core"
)

func toGenaiSchema(s *core.Schema) *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{
		Type:        toGenaiType(s.Type),
		Description: s.Description,
		Format:      s.Format,
		Nullable:    s.Nullable,
		Enum:        s.Enum,
		Required:    s.Required,
		Items:       toGenaiSchema(s.Items),
	}
	if len(s.Enum) > 0 && out.Format == "" {
		out.Format = "enum"
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for name, p := range s.Properties {
			out.Properties[name] = toGenaiSchema(p)
		}
	}
	return out
}

func toGenaiType(t core.SchemaType) genai.Type {
	switch t {
	case core.TypeString:
		return genai.TypeString
	case core.TypeNumber:
		return genai.TypeNumber
	case core.TypeInteger:
		return genai.TypeInteger
	case core.TypeBoolean:
		return genai.TypeBoolean
	case core.TypeArray:
		return genai.TypeArray
	case core.TypeObject:
		return genai.TypeObject
	default:
		return genai.TypeUnspecified
	}
}
