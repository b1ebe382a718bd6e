package internal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStemAndExt(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		wantStem string
		wantExt  string
	}{
		{
			name:     "setup.sh",
			path:     "C:\\Users\\setup.sh",
			wantStem: "setup",
			wantExt:  ".sh",
		},
		{
			name:     "mojosetup.tar.gz",
			path:     "/path/to/mojosetup.tar.gz",
			wantStem: "mojosetup",
			wantExt:  ".tar.gz",
		},
		{
			name:     "versioned installer",
			path:     "/path/to/setup_game_1.0.2_(12345).sh",
			wantStem: "setup_game_1.0.2_(12345)",
			wantExt:  ".sh",
		},
		{
			name:     "no ext",
			path:     "/path/to/installer",
			wantStem: "installer",
			wantExt:  "",
		},
		{
			name:     "ab via filepath.Base",
			path:     "ab",
			wantStem: "ab",
			wantExt:  "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotStem, gotExt := StemAndExt(tt.path)
			assert.Equalf(t, tt.wantStem, gotStem, "StemAndExt() gotStem = %v, want %v", gotStem, tt.wantStem)
			assert.Equalf(t, tt.wantExt, gotExt, "StemAndExt() gotExt = %v, want %v", gotExt, tt.wantExt)
		})
	}
}

func TestOpenExclFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "gameinfo.bin"), nil, 0666))

	f, err := OpenExclFile(dir, "gameinfo", ".bin")
	require.NoErrorf(t, err, "OpenExclFile() error = %v", err)
	defer f.Close()

	assert.Equal(t, filepath.Join(dir, "gameinfo-1.bin"), f.Name())
}
