package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMode(t *testing.T) {
	tests := []struct {
		in   string
		want OutputMode
	}{
		{"", ModeAuto},
		{"auto", ModeAuto},
		{"TEXT", ModeText},
		{"md", ModeMarkdown},
		{"markdown", ModeMarkdown},
		{"json", ModeJSON},
		{"yaml", ModeAuto},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Mode(tt.in))
		})
	}
}

func TestRenderer_EffectiveMode(t *testing.T) {
	tests := []struct {
		name  string
		mode  OutputMode
		isTTY bool
		want  OutputMode
	}{
		{"auto on terminal", ModeAuto, true, ModeText},
		{"auto piped", ModeAuto, false, ModeMarkdown},
		{"explicit json on terminal", ModeJSON, true, ModeJSON},
		{"explicit text piped", ModeText, false, ModeText},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRendererWithTTY(&bytes.Buffer{}, &bytes.Buffer{}, tt.isTTY, tt.mode)
			assert.Equal(t, tt.want, r.EffectiveMode())
		})
	}
}

func TestRenderer_Markdown(t *testing.T) {
	var out bytes.Buffer
	r := NewRendererWithTTY(&out, &bytes.Buffer{}, false, ModeAuto)

	r.Header(1, "Models")
	r.KeyValue("Schema", "marts")
	r.Table([]string{"name", "schema"}, [][]string{{"revenue", "marts"}})

	s := out.String()
	assert.Contains(t, s, "# Models\n")
	assert.Contains(t, s, "- **Schema:** marts")
	assert.Contains(t, s, "| revenue | marts |")
	assert.NotContains(t, s, "\x1b[")
}

func TestRenderer_TextTable(t *testing.T) {
	var out bytes.Buffer
	r := NewRendererWithTTY(&out, &bytes.Buffer{}, false, ModeText)

	r.Table([]string{"name"}, [][]string{{"revenue"}, {"orders"}})
	s := out.String()
	assert.Contains(t, s, "revenue")
	assert.Contains(t, s, "│")

	out.Reset()
	r.Table([]string{"name"}, nil)
	assert.Equal(t, "(none)\n", out.String())
}

func TestRenderer_ErrorsGoToStderr(t *testing.T) {
	var out, errOut bytes.Buffer
	r := NewRendererWithTTY(&out, &errOut, false, ModeText)

	r.Warning("ambiguous body")
	r.Error("boom")

	assert.Empty(t, out.String())
	assert.Equal(t, "warning: ambiguous body\nerror: boom\n", errOut.String())
}

func TestRenderer_JSON(t *testing.T) {
	var out bytes.Buffer
	r := NewRendererWithTTY(&out, &bytes.Buffer{}, false, ModeJSON)

	require.NoError(t, r.JSON(map[string]int{"models": 2}))
	assert.Equal(t, "{\n  \"models\": 2\n}\n", out.String())
}

func TestFormatHelpers(t *testing.T) {
	assert.Equal(t, "## Lineage", FormatHeader(2, "Lineage"))
	assert.Equal(t, "# x", FormatHeader(0, "x"))
	assert.Equal(t, "- **Tags:** a, b", FormatKeyValue("Tags", FormatList([]string{"a", "b"})))
	assert.Equal(t, "-", FormatList(nil))
	assert.True(t, strings.HasPrefix(FormatHeader(3, "t"), "###"))
}
