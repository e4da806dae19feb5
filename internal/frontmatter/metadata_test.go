package frontmatter

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	ferrors "git.home.luguber.info/inful/sitegen/internal/foundation/errors"
)

func TestParse_PropsDeclarationsAndVerbatimBody(t *testing.T) {
	bodies := []string{
		"Hello **world**",
		"\nleading blank line\n\n\ntrailing blanks\n\n",
		"# Heading\n\nwith: colon later is still body\n",
		"",
	}

	for k := 0; k <= 4; k++ {
		for _, body := range bodies {
			var sb strings.Builder
			for i := range k {
				fmt.Fprintf(&sb, "key_%d: value %d\n", i, i)
			}
			input := sb.String() + body

			meta, err := Parse([]byte(input))
			require.NoError(t, err)
			require.Len(t, meta.Declared(), k, "input %q", input)
			require.Len(t, meta.Fields(), k)
			require.Equal(t, body, meta.Body, "input %q", input)
		}
	}
}

func TestParse_KnownFields(t *testing.T) {
	meta, err := Parse([]byte("title: Hi\ntemplate: post\nauthor: ada\nHello **world**"))
	require.NoError(t, err)

	require.Equal(t, "Hi", meta.Title)
	require.Equal(t, "post", meta.Template)
	require.Equal(t, map[string]any{"author": "ada"}, meta.Extra)
	require.Equal(t, "Hello **world**", meta.Body)
	require.Equal(t, []string{"title", "template", "author"}, meta.Declared())
	require.Equal(t, map[string]any{"title": "Hi", "template": "post", "author": "ada"}, meta.Fields())
}

func TestParse_NoDeclarations_WholeTextIsBody(t *testing.T) {
	input := "<h1>{{title}}</h1>{{body}}\n"

	meta, err := Parse([]byte(input))
	require.NoError(t, err)
	require.False(t, meta.HasFrontMatter())
	require.Empty(t, meta.Fields())
	require.Equal(t, input, meta.Body)
}

func TestParse_CRLFValuesAreTrimmed(t *testing.T) {
	meta, err := Parse([]byte("title: Hi\r\nbody text\r\n"))
	require.NoError(t, err)
	require.Equal(t, "Hi", meta.Title)
	require.Equal(t, "body text\r\n", meta.Body)
}

func TestParse_YAMLBlock(t *testing.T) {
	meta, err := Parse([]byte("---\ntitle: Release notes\ntemplate: post\ntags:\n  - go\ndraft: true\n---\n# Body\n"))
	require.NoError(t, err)

	require.Equal(t, "Release notes", meta.Title)
	require.Equal(t, "post", meta.Template)
	require.Equal(t, []any{"go"}, meta.Extra["tags"])
	require.Equal(t, true, meta.Extra["draft"])
	require.Equal(t, "# Body\n", meta.Body)
	require.Equal(t, []string{"title", "template", "tags", "draft"}, meta.Declared())
}

func TestParse_YAMLWithoutClosingFallsBackToProps(t *testing.T) {
	input := "---\ntitle: x\nbody\n"

	meta, err := Parse([]byte(input))
	require.NoError(t, err)
	require.False(t, meta.HasFrontMatter())
	require.Equal(t, input, meta.Body)
}

func TestParse_NonMappingYAMLBlockIsBody(t *testing.T) {
	for _, input := range []string{
		"---\nIntro paragraph.\n---\nMore",
		"---\n- a\n- b\n---\nMore",
		"---\n: broken\n---\nbody",
	} {
		meta, err := Parse([]byte(input))
		require.NoError(t, err, input)
		require.False(t, meta.HasFrontMatter(), input)
		require.Equal(t, input, meta.Body, input)
	}
}

func TestParse_TemplateMustBeBareName(t *testing.T) {
	for _, bad := range []string{"../secret", "layouts/post", `a\b`, ".."} {
		_, err := Parse([]byte("template: " + bad + "\nbody"))
		require.Error(t, err, bad)
		require.True(t, ferrors.HasCategory(err, ferrors.CategoryValidation), bad)
	}

	_, err := Parse([]byte("---\ntemplate: [a, b]\n---\nbody"))
	require.True(t, ferrors.HasCategory(err, ferrors.CategoryValidation))
}

func TestParse_EmptyTemplateMeansDefault(t *testing.T) {
	meta, err := Parse([]byte("template:\nbody"))
	require.NoError(t, err)
	require.Empty(t, meta.Template)
	require.Equal(t, []string{"template"}, meta.Declared())
}

func TestParse_NonStringTitleIsStringified(t *testing.T) {
	meta, err := Parse([]byte("---\ntitle: 2024\n---\n"))
	require.NoError(t, err)
	require.Equal(t, "2024", meta.Title)
}
