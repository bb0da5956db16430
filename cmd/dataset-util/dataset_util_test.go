package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/INLOpen/nexusdata/core"
	"github.com/INLOpen/nexusdata/internal/testutil"
	"github.com/INLOpen/nexusdata/shuffle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestGenerateAndInspect(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gen.sds")
	out, err := execute(t, "generate", path, "--counts", "6,3,1", "--compression", "lz4", "--input-size", "8")
	require.NoError(t, err)
	assert.Contains(t, out, "wrote 10 entries over 3 classes")

	r := testutil.OpenDataset(t, path)
	assert.Equal(t, uint32(10), r.EntryCount())
	assert.Equal(t, core.CompressionLZ4, r.Compression())
	assert.Equal(t, 8, r.Layout().InputSize())

	rep, err := inspect(r, shuffle.ArgMax)
	require.NoError(t, err)
	assert.Equal(t, map[uint32]int{0: 6, 1: 3, 2: 1}, rep.Classes)
	assert.Positive(t, rep.StoredBytes)
	assert.Contains(t, rep.RecordSizes, 50)

	out, err = execute(t, "inspect", path)
	require.NoError(t, err)
	assert.Contains(t, out, "entries:     10")
	assert.Contains(t, out, "compression: lz4")
	assert.Contains(t, out, "p99=")
}

func TestGenerate_RejectsBadInput(t *testing.T) {
	dir := t.TempDir()
	_, err := execute(t, "generate", filepath.Join(dir, "a.sds"), "--counts", "3,x")
	assert.Error(t, err)
	_, err = execute(t, "generate", filepath.Join(dir, "b.sds"), "--counts", "3", "--input-size", "2")
	assert.Error(t, err)
	_, err = execute(t, "generate", filepath.Join(dir, "c.sds"), "--counts", "3", "--compression", "brotli")
	assert.Error(t, err)
}

func TestVerify(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.sds")
	b := filepath.Join(dir, "b.sds")
	c := filepath.Join(dir, "c.sds")
	testutil.WriteOneHotDataset(t, a, []int{2, 2}, core.CompressionNone)
	testutil.WriteOneHotDataset(t, b, []int{2, 2}, core.CompressionZSTD)
	testutil.WriteOneHotDataset(t, c, []int{3, 1}, core.CompressionNone)

	out, err := execute(t, "verify", a)
	require.NoError(t, err)
	assert.Contains(t, out, "entries=4")

	out, err = execute(t, "verify", a, b)
	require.NoError(t, err)
	assert.Contains(t, out, "match")

	_, err = execute(t, "verify", a, c)
	assert.ErrorContains(t, err, "hold different entries")
}
