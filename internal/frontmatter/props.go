package frontmatter

import (
	"bytes"
	"regexp"
)

var declLine = regexp.MustCompile(`^([A-Za-z0-9_-]+):[ \t]*(.*?)[ \t\r]*$`)

// splitProps consumes leading `key: value` lines. The first line that is not a
// declaration starts the body, which is returned verbatim.
func splitProps(content []byte) ([][2]string, []byte) {
	var decls [][2]string
	rest := content
	for len(rest) > 0 {
		line := rest
		next := []byte(nil)
		if i := bytes.IndexByte(rest, '\n'); i >= 0 {
			line = rest[:i]
			next = rest[i+1:]
		}
		m := declLine.FindSubmatch(line)
		if m == nil {
			break
		}
		decls = append(decls, [2]string{string(m[1]), string(m[2])})
		rest = next
	}
	return decls, rest
}
