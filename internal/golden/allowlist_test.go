package golden

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultAllowList(t *testing.T) {
	a, err := LoadAllowList("")
	require.NoError(t, err)

	paths := a.Paths()
	assert.NotEmpty(t, a.Version)
	assert.Len(t, paths, len(a.Rubrics))
	assert.Contains(t, paths, "Kopf, Hitze")
	assert.Equal(t, "Head, heat", a.Translate("Kopf, Hitze"))
	assert.Equal(t, "Mind", a.Chapter("Gemüt, Angst"))
}

func TestParseAllowList(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr string
	}{
		{"empty", "version: x\nrubrics: []\n", "no rubrics"},
		{"blank path", "rubrics:\n  - path: '  '\n", "empty path"},
		{"duplicate", "rubrics:\n  - path: A, b\n  - path: 'A, b '\n", "listed twice"},
		{"malformed", "rubrics: [", "parse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseAllowList([]byte(tt.input))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestAllowListTranslation(t *testing.T) {
	a, err := ParseAllowList([]byte(`
version: test
chapters:
  Gemüt: Mind
rubrics:
  - path: Gemüt, Angst
    en: Mind, anxiety
  - path: Schlaf, Träume
`))
	require.NoError(t, err)

	assert.Equal(t, "Mind, anxiety", a.Translate("Gemüt, Angst"))
	assert.Equal(t, "Mind", a.Translate("Gemüt"))
	assert.Equal(t, "", a.Translate("Schlaf, Träume"))
	assert.Equal(t, "", a.Translate("Schlaf"))

	assert.Equal(t, "Mind", a.Chapter("Gemüt, Angst, nachts"))
	assert.Equal(t, "Schlaf", a.Chapter("Schlaf, Träume"))
}

func TestLoadAllowListFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "allow.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rubrics:\n  - path: Kopf, Hitze\n"), 0o600))

	a, err := LoadAllowList(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"Kopf, Hitze"}, a.Paths())

	_, err = LoadAllowList(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestSegments(t *testing.T) {
	assert.Equal(t, "Gemüt", firstSegment("Gemüt, Angst, nachts"))
	assert.Equal(t, "nachts", lastSegment("Gemüt, Angst, nachts"))
	assert.Equal(t, "Kopf", lastSegment(" Kopf "))
}
