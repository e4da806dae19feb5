package frontmatter

import (
	"bytes"
	stderrors "errors"

	"gopkg.in/yaml.v3"
)

// SplitYAML separates a `---` delimited YAML block from the rest of the document.
//
// If the document does not start with a YAML delimiter, had is false and body
// is the full input. Both LF and CRLF line endings are recognized.
func SplitYAML(content []byte) (block []byte, body []byte, had bool, err error) {
	nl := detectNewline(content)
	open := []byte("---" + nl)
	if !bytes.HasPrefix(content, open) {
		return nil, content, false, nil
	}

	blockStart := len(open)
	if bytes.HasPrefix(content[blockStart:], open) {
		return []byte{}, content[blockStart+len(open):], true, nil
	}

	closeSeq := []byte(nl + "---" + nl)
	idx := bytes.Index(content[blockStart:], closeSeq)
	if idx < 0 {
		return nil, nil, false, ErrMissingClosingDelimiter
	}

	blockEnd := blockStart + idx + len(nl)
	bodyStart := blockStart + idx + len(closeSeq)
	return content[blockStart:blockEnd], content[bodyStart:], true, nil
}

// ParseYAML parses a raw YAML block (without --- delimiters) into a map.
func ParseYAML(block []byte) (map[string]any, error) {
	if len(block) == 0 {
		return map[string]any{}, nil
	}

	var fields map[string]any
	if err := yaml.Unmarshal(block, &fields); err != nil {
		return nil, err
	}
	if fields == nil {
		fields = map[string]any{}
	}
	return fields, nil
}

// ErrMissingClosingDelimiter indicates the document started with a YAML
// delimiter but did not contain a closing delimiter.
var ErrMissingClosingDelimiter = stderrors.New("yaml front matter start delimiter found but closing delimiter is missing")

func detectNewline(content []byte) string {
	if i := bytes.IndexByte(content, '\n'); i > 0 && content[i-1] == '\r' {
		return "\r\n"
	}
	return "\n"
}
