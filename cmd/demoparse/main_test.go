package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/dbalders/demoparser/bitstream"
	"github.com/dbalders/demoparser/demo"
	dt "github.com/dbalders/demoparser/demotesting"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeHealthDemo(t *testing.T, dir, name string) {
	schema := dt.NewSchemaBuilder().
		Serializer("CPlayer", 0, dt.FieldSpec{Name: "health", VarType: "int32"}).
		Class(1, "CPlayer")
	stream := func() *dt.EntityStream { return dt.NewEntityStream(bitstream.ClassIDBits(schema.MaxClasses())) }
	data := dt.NewDemoBuilder().
		Header(dt.HeaderSpec{MapName: "de_nuke", ServerName: "cli", BuildNum: 1}).
		Schema(schema).
		SignonPacket(0, dt.NewPacket().ServerInfo(schema.MaxClasses(), 1.0/64)).
		Packet(1, dt.NewPacket().Entities(stream().Create(7, 1, 0, dt.P(dt.Int(100), 0)))).
		Packet(2, dt.NewPacket().Entities(stream().Update(7, dt.P(dt.Int(85), 0)))).
		Stop(2).
		Bytes()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0o644))
}

func run(t *testing.T, args ...string) (string, error) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestParseSummary(t *testing.T) {
	dir := t.TempDir()
	writeHealthDemo(t, dir, "a.dem")

	out, err := run(t, "parse", "--log-level", "NOOP", "--source", dir, "--props", "health", "a.dem")
	require.NoError(t, err)
	assert.Contains(t, out, "a.dem: cli on de_nuke, build 1, 2 ticks")
	assert.Contains(t, out, "column health: 2 rows")
}

func TestParseCBOR(t *testing.T) {
	dir := t.TempDir()
	writeHealthDemo(t, dir, "a.dem")
	dest := filepath.Join(t.TempDir(), "a.cbor")

	_, err := run(t, "parse", "--log-level", "NOOP", "--source", dir,
		"--props", "health", "--alias", "health=hp", "--format", "cbor", "-o", dest, "a.dem")
	require.NoError(t, err)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	codec, err := demo.NewOutputCodec()
	require.NoError(t, err)
	got, err := demo.DecodeOutput(codec, data)
	require.NoError(t, err)
	assert.Len(t, got.Column("hp"), 2)
	assert.Equal(t, "de_nuke", got.Header.MapName)
}

func TestParseEnvironment(t *testing.T) {
	dir := t.TempDir()
	writeHealthDemo(t, dir, "a.dem")
	t.Setenv("DEMOPARSE_SOURCE", dir)
	t.Setenv("DEMOPARSE_LOG_LEVEL", "NOOP")

	out, err := run(t, "parse", "--header-only", "a.dem")
	require.NoError(t, err)
	assert.Contains(t, out, "on de_nuke")
	assert.NotContains(t, out, "column")
}

func TestParseErrors(t *testing.T) {
	dir := t.TempDir()
	writeHealthDemo(t, dir, "a.dem")

	_, err := run(t, "parse", "--log-level", "NOOP", "--source", dir, "missing.dem")
	assert.ErrorContains(t, err, "not found")

	_, err = run(t, "parse", "--log-level", "NOOP", "--source", dir, "--format", "xml", "a.dem")
	assert.ErrorContains(t, err, `unknown output format "xml"`)

	_, err = run(t, "parse", "--log-level", "NOOP", "--config", filepath.Join(dir, "nope.yaml"), "a.dem")
	assert.Error(t, err)
}

func TestParseConfigFile(t *testing.T) {
	dir := t.TempDir()
	writeHealthDemo(t, dir, "a.dem")
	cfg := filepath.Join(t.TempDir(), "demoparse.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("source: "+dir+"\nlog-level: NOOP\nprops: [health]\n"), 0o644))

	out, err := run(t, "parse", "--config", cfg, "a.dem")
	require.NoError(t, err)
	assert.Contains(t, out, "column health: 2 rows")
}

func TestBatch(t *testing.T) {
	dir := t.TempDir()
	writeHealthDemo(t, dir, "a.dem")
	writeHealthDemo(t, dir, "b.dem")
	outDir := filepath.Join(t.TempDir(), "out")

	out, err := run(t, "batch", "--log-level", "NOOP", "--source", dir,
		"--props", "health", "--concurrency", "2", "--out-dir", outDir)
	require.NoError(t, err)
	assert.Contains(t, out, "a.dem: cli on de_nuke")
	assert.Contains(t, out, "b.dem: cli on de_nuke")

	for _, name := range []string{"a.cbor", "b.cbor"} {
		_, err := os.Stat(filepath.Join(outDir, name))
		assert.NoError(t, err, name)
	}

	_, err = run(t, "batch", "--log-level", "NOOP", "--source", dir, "a.dem", "gone.dem")
	assert.ErrorContains(t, err, "1 of 2 demos failed")
}
