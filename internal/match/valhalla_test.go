package match

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeStub installs an executable shell script standing in for the
// matching service binary.
func writeStub(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("stub oracle scripts require a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "valhalla_service")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func TestValhallaOracleParsesOutput(t *testing.T) {
	stub := writeStub(t, `cat "$3" > /dev/null
echo '{"edges":[{"way_id":5,"speed":40}],"matched_points":[{"edge_index":0,"type":"matched"},{"type":"unmatched"}]}'
`)
	o := &ValhallaOracle{ConfigPath: "valhalla.json", Binary: stub, TmpDir: t.TempDir()}

	resp, err := o.Match(context.Background(), "veh1", 0, twoSampleTrip())
	require.NoError(t, err)
	require.Len(t, resp.Edges, 1)
	assert.Equal(t, int64(5), *resp.Edges[0].WayID)
	require.Len(t, resp.MatchedPoints, 2)
	assert.Equal(t, 0, *resp.MatchedPoints[0].EdgeIndex)
	assert.Nil(t, resp.MatchedPoints[1].EdgeIndex)
}

func TestValhallaOracleNonZeroExit(t *testing.T) {
	stub := writeStub(t, `echo "no tiles" >&2
exit 3
`)
	o := &ValhallaOracle{Binary: stub, TmpDir: t.TempDir()}

	_, err := o.Match(context.Background(), "veh1", 0, twoSampleTrip())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no tiles")
}

func TestValhallaOracleGarbageOutput(t *testing.T) {
	stub := writeStub(t, `echo 'not json at all'
`)
	o := &ValhallaOracle{Binary: stub, TmpDir: t.TempDir()}

	_, err := o.Match(context.Background(), "veh1", 0, twoSampleTrip())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing")
}

func TestValhallaOracleRemovesRequestFile(t *testing.T) {
	stub := writeStub(t, `echo '{"edges":[],"matched_points":[]}'
`)
	tmp := t.TempDir()
	o := &ValhallaOracle{Binary: stub, TmpDir: tmp}

	_, err := o.Match(context.Background(), "veh1", 7, twoSampleTrip())
	require.NoError(t, err)

	entries, err := os.ReadDir(tmp)
	require.NoError(t, err)
	assert.Empty(t, entries, "request temp file should be cleaned up")
}
