package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlagsRequiresCoreArgs(t *testing.T) {
	_, err := parseFlags([]string{"-S", "reads.db"})
	assert.Error(t, err, "missing -O and -o should fail")
}

func TestParseFlagsDefaults(t *testing.T) {
	f, err := parseFlags([]string{"-S", "reads.db", "-O", "overlaps.db", "-o", "out/asm"})
	require.NoError(t, err)
	assert.Equal(t, "reads.db", f.readStorePath)
	assert.Equal(t, "overlaps.db", f.overlapStorePath)
	assert.Equal(t, "out/asm", f.outputPrefix)
	assert.Equal(t, 0.05, f.graphErate)
	assert.False(t, f.disallowSingletonPromotion)
	assert.False(t, f.gzipReports)
}

func TestNewReadTableSmallInputUsesHeap(t *testing.T) {
	tbl := newReadTable(4)
	tbl.Set(1, 100, 0, 0)
	assert.Equal(t, 4, tbl.NumReads())
	assert.Equal(t, uint32(100), tbl.Length(1))
	require.NoError(t, tbl.Close())
}

func TestParseFlagsOverridesOptions(t *testing.T) {
	f, err := parseFlags([]string{
		"-S", "reads.db", "-O", "overlaps.db", "-o", "out/asm",
		"-eg", "0.12", "-DP", "-create", "-gzip-reports",
	})
	require.NoError(t, err)
	assert.Equal(t, 0.12, f.graphErate)
	assert.True(t, f.disallowSingletonPromotion)
	assert.True(t, f.createTigStore)
	assert.True(t, f.gzipReports)
}
