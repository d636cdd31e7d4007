package download

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeFilename(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		title string
		want  string
	}{
		{"plain", "Graphene Synthesis", "Graphene Synthesis"},
		{"path separators", `a/b\c`, "a_b_c"},
		{"windows reserved", `what? "when": <where> | how*`, "what_ _when_ _where_ _ how_"},
		{"control chars", "line1\nline2\tend", "line1_line2_end"},
		{"trailing dots and spaces", "  name.. ", "name"},
		{"empty", "", "unnamed"},
		{"only illegal", `///***`, "unnamed"},
		{"cjk preserved", "基于深度学习的图像识别", "基于深度学习的图像识别"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, SanitizeFilename(tt.title))
		})
	}
}

func TestSanitizeFilenameCapsLength(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("标", 300)
	got := SanitizeFilename(long)
	assert.Equal(t, maxFilenameRunes, len([]rune(got)))
}

func TestSanitizeFilenameIsDeterministic(t *testing.T) {
	t.Parallel()

	title := `A/B: study? (2024)`
	assert.Equal(t, SanitizeFilename(title), SanitizeFilename(title))
}
