package main

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTIGERArchive(t *testing.T, members map[string]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tl_2023_us_county.zip")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := zip.NewWriter(f)
	for name, content := range members {
		entry, err := w.Create(name)
		require.NoError(t, err)
		_, err = entry.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return path
}

func TestExtractShapefile(t *testing.T) {
	archive := createTIGERArchive(t, map[string]string{
		"tl_2023_us_county.shp": "shape data",
		"tl_2023_us_county.shx": "index data",
		"tl_2023_us_county.dbf": "attribute data",
		"tl_2023_us_county.prj": "projection",
	})

	shp, err := extractShapefile(archive)
	require.NoError(t, err)
	assert.Equal(t, "tl_2023_us_county.shp", filepath.Base(shp))

	// The sidecars must land next to the .shp for the reader to find them.
	for _, ext := range []string{".shx", ".dbf", ".prj"} {
		sidecar := shp[:len(shp)-len(".shp")] + ext
		_, err := os.Stat(sidecar)
		assert.NoError(t, err, "sidecar %s extracted alongside", ext)
	}
}

func TestExtractShapefile_NoShapeMember(t *testing.T) {
	archive := createTIGERArchive(t, map[string]string{
		"readme.txt": "no shapes here",
	})

	_, err := extractShapefile(archive)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no .shp member")
}
