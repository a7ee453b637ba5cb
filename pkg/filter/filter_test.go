package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExcluded(t *testing.T) {
	tests := []struct {
		name     string
		patterns []string
		path     string
		exp      bool
	}{
		{
			name:     "ExtensionMatch",
			patterns: []string{"*.tmp"},
			path:     "temp.tmp",
			exp:      true,
		},
		{
			name:     "ExtensionMatchNested",
			patterns: []string{"*.tmp"},
			path:     "sub/dir/scratch.tmp",
			exp:      true,
		},
		{
			name:     "ExtensionNoMatch",
			patterns: []string{"*.tmp"},
			path:     "notes.txt",
			exp:      false,
		},
		{
			name:     "CaseInsensitive",
			patterns: []string{"*.TMP"},
			path:     "TEMP.tmp",
			exp:      true,
		},
		{
			name:     "DirectoryName",
			patterns: []string{"node_modules"},
			path:     "src/node_modules",
			exp:      true,
		},
		{
			name:     "PathPattern",
			patterns: []string{"build/**"},
			path:     "build/obj/main.o",
			exp:      true,
		},
		{
			name:     "PathPatternOutside",
			patterns: []string{"build/**"},
			path:     "src/build.go",
			exp:      false,
		},
		{
			name:     "MultiplePatterns",
			patterns: []string{"*.tmp", "*.bak"},
			path:     "backup.bak",
			exp:      true,
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			set, err := Compile(test.patterns)
			require.NoError(t, err)
			assert.Equal(t, test.exp, set.Excluded(test.path))
		})
	}
}

func TestCompileEmpty(t *testing.T) {
	set, err := Compile(nil)
	assert.NoError(t, err)
	assert.Nil(t, set)
	assert.False(t, set.Excluded("anything"))
}

func TestCompileInvalid(t *testing.T) {
	_, err := Compile([]string{"[unterminated"})
	assert.Error(t, err)
}
