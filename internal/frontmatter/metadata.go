package frontmatter

import (
	stderrors "errors"
	"fmt"
	"maps"
	"strings"

	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/sitegen/internal/foundation/errors"
)

// Reserved keys with dedicated Metadata fields.
const (
	KeyTemplate = "template"
	KeyTitle    = "title"
	KeyBody     = "body"
)

// Metadata is the structured result of parsing a source file.
type Metadata struct {
	// Template selects the compiled template for a page; empty means not declared.
	Template string
	Title    string
	// Extra holds every other declared key.
	Extra map[string]any
	// Body is the unparsed remainder of the file.
	Body string

	declared []string
}

// Declared returns the declared keys in first-seen order.
func (m Metadata) Declared() []string {
	return append([]string(nil), m.declared...)
}

// HasFrontMatter reports whether any key was declared.
func (m Metadata) HasFrontMatter() bool { return len(m.declared) > 0 }

// Fields returns every declared key and its value, body excluded.
func (m Metadata) Fields() map[string]any {
	out := make(map[string]any, len(m.declared))
	maps.Copy(out, m.Extra)
	for _, key := range m.declared {
		switch key {
		case KeyTemplate:
			out[key] = m.Template
		case KeyTitle:
			out[key] = m.Title
		}
	}
	return out
}

// Parse extracts front matter from data.
//
// A leading `---` YAML block is decoded with yaml.v3 when it holds a mapping.
// Otherwise leading
// `key: value` lines are consumed until the first non-declaration line. When
// nothing is declared the whole text is the body.
func Parse(data []byte) (Metadata, error) {
	block, body, had, err := SplitYAML(data)
	if err != nil && !stderrors.Is(err, ErrMissingClosingDelimiter) {
		return Metadata{}, err
	}
	if had {
		// A block that is not a YAML mapping is a thematic break in the body.
		if fields, err := ParseYAML(block); err == nil {
			return build(fieldsInOrder(block, fields), string(body))
		}
	}

	decls, rest := splitProps(data)
	ordered := make([]field, 0, len(decls))
	for _, d := range decls {
		ordered = append(ordered, field{key: d[0], value: d[1]})
	}
	return build(ordered, string(rest))
}

type field struct {
	key   string
	value any
}

func build(fields []field, body string) (Metadata, error) {
	meta := Metadata{Body: body, Extra: map[string]any{}}
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		if !seen[f.key] {
			seen[f.key] = true
			meta.declared = append(meta.declared, f.key)
		}
		switch f.key {
		case KeyTemplate:
			name, ok := f.value.(string)
			if !ok {
				return Metadata{}, errors.ValidationError("template must be a string").
					WithContext("value", f.value).
					Build()
			}
			name = strings.TrimSpace(name)
			if name == "" {
				meta.Template = ""
				continue
			}
			if err := ValidateTemplateName(name); err != nil {
				return Metadata{}, err
			}
			meta.Template = name
		case KeyTitle:
			meta.Title = stringify(f.value)
		default:
			meta.Extra[f.key] = f.value
		}
	}
	return meta, nil
}

// ValidateTemplateName rejects template selectors that are not bare names.
func ValidateTemplateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return errors.ValidationError("template must be a bare name").
			WithContext("template", name).
			Build()
	}
	return nil
}

func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	default:
		return fmt.Sprint(val)
	}
}

// fieldsInOrder orders decoded YAML fields by their position in the block so
// declaration order survives map decoding.
func fieldsInOrder(block []byte, fields map[string]any) []field {
	var doc yaml.Node
	out := make([]field, 0, len(fields))
	if err := yaml.Unmarshal(block, &doc); err == nil && len(doc.Content) > 0 && doc.Content[0].Kind == yaml.MappingNode {
		mapping := doc.Content[0]
		for i := 0; i+1 < len(mapping.Content); i += 2 {
			key := mapping.Content[i].Value
			if v, ok := fields[key]; ok {
				out = append(out, field{key: key, value: v})
			}
		}
		return out
	}
	for k, v := range fields {
		out = append(out, field{key: k, value: v})
	}
	return out
}
