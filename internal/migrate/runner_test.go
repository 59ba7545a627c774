package migrate

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscoverUpMigrations_Embedded(t *testing.T) {
	files, err := New(nil).discoverUpMigrations()
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, int64(1), files[0].Version)
	assert.Equal(t, "0001_packet_archive_up.sql", files[0].Path)
	assert.Equal(t, int64(2), files[1].Version)
}

func TestDiscoverUpMigrations_OrderAndFilter(t *testing.T) {
	r := Runner{FS: fstest.MapFS{
		"10_b_up.sql":    {Data: []byte("SELECT 1")},
		"2_a_up.sql":     {Data: []byte("SELECT 1")},
		"2_a_down.sql":   {Data: []byte("SELECT 1")},
		"x_bad_up.sql":   {Data: []byte("SELECT 1")},
		"README.md":      {Data: []byte("doc")},
		"sub/3_c_up.sql": {Data: []byte("SELECT 1")},
	}}
	files, err := r.discoverUpMigrations()
	require.NoError(t, err)

	var vers []int64
	for _, f := range files {
		vers = append(vers, f.Version)
	}
	assert.Equal(t, []int64{2, 3, 10}, vers)
}

func TestDiscoverUpMigrations_DuplicateVersion(t *testing.T) {
	r := Runner{FS: fstest.MapFS{
		"1_a_up.sql": {Data: []byte("SELECT 1")},
		"1_b_up.sql": {Data: []byte("SELECT 1")},
	}}
	_, err := r.discoverUpMigrations()
	assert.Error(t, err)
}
