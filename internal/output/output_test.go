package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusPrintsMarkerAndMessage(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf)

	w.Status("•", "Probing embedder")

	assert.Equal(t, "• Probing embedder\n", buf.String())
}

func TestStatusEmptyMarkerIndents(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf)

	w.Status("", "continued detail")

	assert.Equal(t, "   continued detail\n", buf.String())
}

func TestStatusfFormats(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf)

	w.Statusf("•", "indexed %d documents", 42)

	assert.Equal(t, "• indexed 42 documents\n", buf.String())
}

func TestSeverityMarkersPlainWhenNotTerminal(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf)

	w.Success("backfill complete")
	w.Warning("embedder degraded")
	w.Error("store locked")

	out := buf.String()
	assert.Contains(t, out, "[ok] backfill complete")
	assert.Contains(t, out, "[warn] embedder degraded")
	assert.Contains(t, out, "[error] store locked")
}

func TestFormattedSeverityHelpers(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf)

	w.Successf("purged %d", 3)
	w.Warningf("%d partial", 2)
	w.Errorf("%s missing", "vectors.hnsw")

	out := buf.String()
	assert.Contains(t, out, "purged 3")
	assert.Contains(t, out, "2 partial")
	assert.Contains(t, out, "vectors.hnsw missing")
}

func TestNewline(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf)

	w.Newline()

	assert.Equal(t, "\n", buf.String())
}

func TestMultipleLinesStayOrdered(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf)

	w.Status("1.", "first")
	w.Status("2.", "second")
	w.Newline()
	w.Success("done")

	assert.Equal(t, "1. first\n2. second\n\n[ok] done\n", buf.String())
}
