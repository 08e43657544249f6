package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleMapfile = `MAP
  NAME "geomet-weather"
  LAYER
    NAME "GDPS.ETA_TT"
    STATUS ON
  END
END
`

func writeConfig(t *testing.T, redisAddr string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := fmt.Sprintf(`app:
  version: "2.0.0"
database:
  redis:
    address: %q
mapfile:
  basedir: %q
  config: %q
  storage: store
logging:
  level: error
  format: json
`, redisAddr, dir, filepath.Join(dir, "geomet-weather.yml"))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestStoreCommands(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := writeConfig(t, mr.Addr())

	mapfile := filepath.Join(t.TempDir(), "GDPS.ETA_TT.map")
	require.NoError(t, os.WriteFile(mapfile, []byte(sampleMapfile), 0o644))

	_, err := execute(t, "store", "setup", "--config", cfg)
	require.NoError(t, err)
	version, err := mr.Get("geomet-mapfile-version")
	require.NoError(t, err)
	assert.Equal(t, "2.0.0", version)

	_, err = execute(t, "store", "set", "--config", cfg, "-k", "GDPS.ETA_TT_mapfile", "-f", mapfile)
	require.NoError(t, err)
	_, err = execute(t, "store", "set", "--config", cfg, "-k", "GDPS.ETA_TT_layer", "-f", mapfile, "--map=false")
	require.NoError(t, err)

	layerOnly, err := mr.Get("geomet-mapfile_GDPS.ETA_TT_layer")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(layerOnly, "LAYER"), layerOnly)
	assert.NotContains(t, layerOnly, "geomet-weather")

	out, err := execute(t, "store", "get", "--config", cfg, "-k", "GDPS.ETA_TT_mapfile")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "MAP"), out)
	assert.Contains(t, out, `NAME "GDPS.ETA_TT"`)

	out, err = execute(t, "store", "list", "--config", cfg, "-p", "_layer")
	require.NoError(t, err)
	assert.Equal(t, "GDPS.ETA_TT_layer\n", out)

	_, err = execute(t, "store", "get", "--config", cfg, "-k", "nope")
	require.Error(t, err)

	_, err = execute(t, "store", "teardown", "--config", cfg)
	require.NoError(t, err)
	assert.Empty(t, mr.Keys())
}

func TestStoreSet_MissingFlags(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := writeConfig(t, mr.Addr())

	_, err := execute(t, "store", "set", "--config", cfg, "-k", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing --key or --mapfile")
}

func TestMapfileGenerate_RejectsUnknownOutput(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := writeConfig(t, mr.Addr())

	_, err := execute(t, "mapfile", "generate", "--config", cfg, "--output", "s3")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid --output "s3"`)
}

func TestCheckChoice(t *testing.T) {
	assert.NoError(t, checkChoice("mode", "", "include", "monolithic"))
	assert.NoError(t, checkChoice("mode", "monolithic", "include", "monolithic"))
	assert.Error(t, checkChoice("mode", "tiled", "include", "monolithic"))
}
