package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "relayd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("workers: 4\nport: 9090\nlogJson: true\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 4, cfg.Workers)
	require.Equal(t, 9090, cfg.Port)
	require.True(t, cfg.LogJSON)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestMerge_FlagsWinOverFile(t *testing.T) {
	flags := Config{Port: 9090}
	file := Config{Port: 8080, Workers: 4, DocRoot: "/srv/www"}

	got := Merge(flags, file)
	require.Equal(t, 9090, got.Port)
	require.Equal(t, 4, got.Workers)
	require.Equal(t, "/srv/www", got.DocRoot)
}

func TestValidate(t *testing.T) {
	require.Error(t, Config{Workers: 0}.Validate())
	require.NoError(t, Config{Workers: 1}.Validate())
}
