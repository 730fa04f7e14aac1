package suite_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sarchlab/rvcosim/suite"
)

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "suite.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadManifest(t *testing.T) {
	path := writeManifest(t, `
name: rv32 smoke tests
default_max_cycles: 1000
cases:
  - name: checksum
    description: signature checksum over two words
    image: images/checksum.elf
    script: scripts/checksum.yaml
    reference: refs/checksum.signature
    max_cycles: 100
  - name: quiet
    image: /abs/quiet.elf
    script: scripts/quiet.yaml
`)
	dir := filepath.Dir(path)

	m, err := suite.LoadManifest(path)
	require.NoError(t, err)

	assert.Equal(t, "rv32 smoke tests", m.Name)
	require.Len(t, m.Cases, 2)

	checksum := m.Cases[0]
	assert.Equal(t, "checksum", checksum.Name)
	assert.Equal(t, filepath.Join(dir, "images/checksum.elf"), checksum.Image)
	assert.Equal(t, filepath.Join(dir, "scripts/checksum.yaml"), checksum.Script)
	assert.Equal(t, filepath.Join(dir, "refs/checksum.signature"), checksum.Reference)
	assert.Equal(t, uint64(100), checksum.MaxCycles)

	quiet := m.Cases[1]
	assert.Equal(t, "/abs/quiet.elf", quiet.Image, "absolute paths stay untouched")
	assert.Empty(t, quiet.Reference)
	assert.Equal(t, uint64(1000), quiet.MaxCycles, "default budget applies")
}

func TestLoadManifestMissingFile(t *testing.T) {
	_, err := suite.LoadManifest(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open manifest")
}

func TestLoadManifestBadYAML(t *testing.T) {
	path := writeManifest(t, "cases: [not: valid: yaml")
	_, err := suite.LoadManifest(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse manifest")
}

func TestLoadManifestValidation(t *testing.T) {
	tests := []struct {
		name     string
		manifest string
		wantErr  string
	}{
		{
			name:     "no cases",
			manifest: "name: empty\n",
			wantErr:  "no cases",
		},
		{
			name: "unnamed case",
			manifest: `
cases:
  - image: a.elf
    script: a.yaml
`,
			wantErr: "has no name",
		},
		{
			name: "duplicate names",
			manifest: `
cases:
  - {name: dup, image: a.elf, script: a.yaml}
  - {name: dup, image: b.elf, script: b.yaml}
`,
			wantErr: "duplicate case name",
		},
		{
			name: "missing image",
			manifest: `
cases:
  - {name: x, script: a.yaml}
`,
			wantErr: "has no image",
		},
		{
			name: "missing script",
			manifest: `
cases:
  - {name: x, image: a.elf}
`,
			wantErr: "has no script",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeManifest(t, tt.manifest)
			_, err := suite.LoadManifest(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
