package worker

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReloadManager_MissingArtifactKeepsBuiltin(t *testing.T) {
	rm := NewReloadManager(0, "/nonexistent/path/http.so")

	require.NoError(t, rm.MaybeReload())
	hs := rm.Current()
	require.NotNil(t, hs.ValidateRequest)
	require.NotNil(t, hs.HandleRequest)
	require.NotNil(t, hs.HandlePost)

	req, err := hs.ValidateRequest([]byte("GET / HTTP/1.0\r\n\r\n"))
	require.NoError(t, err)
	require.Equal(t, "/", req.Target)
}

func TestReloadManager_InvalidPluginFileIsFatal(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/http.so"
	require.NoError(t, os.WriteFile(path, []byte("not an ELF plugin"), 0o644))

	rm := NewReloadManager(0, path)
	err := rm.MaybeReload()
	require.Error(t, err, "a malformed artifact must fail the reload so the worker self-terminates per spec.md §4.7")
}
