package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFileNameSSTable(t *testing.T) {
	name := FileNameSSTable("/data", 12)
	require.Equal(t, filepath.Join("/data", "00012.sst"), name)
	require.Equal(t, uint64(12), FID(name))
	require.Equal(t, uint64(123456), FID(FileNameSSTable("/data", 123456)))

	require.Equal(t, uint64(0), FID("/data/00012.wal"))
	require.Equal(t, uint64(0), FID("/data/abc.sst"))
}

func TestLoadIDMap(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"00003.sst", "00001.sst", "00010.sst", "00002.sst.tmp", "MANIFEST"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "00004.sst"), 0755))

	ids, err := LoadIDMap(dir)
	require.NoError(t, err)
	require.Equal(t, []uint64{1, 3, 10}, ids)

	_, err = LoadIDMap(filepath.Join(dir, "missing"))
	require.Error(t, err)
}
