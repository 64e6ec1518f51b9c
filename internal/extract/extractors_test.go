package extract

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingRunner is a CommandRunner test double.
type recordingRunner struct {
	outputs map[string][]byte // keyed by command name
	errs    map[string]error
	calls   []string
}

func (r *recordingRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	r.calls = append(r.calls, name)
	if err := r.errs[name]; err != nil {
		return nil, err
	}
	return r.outputs[name], nil
}

// fixedOCR always recognizes the same text.
type fixedOCR struct {
	text string
	err  error
}

func (f *fixedOCR) Recognize(context.Context, string) (string, error) { return f.text, f.err }
func (f *fixedOCR) Available() bool                                   { return true }

func TestTextExtractor(t *testing.T) {
	e := &TextExtractor{}
	dir := t.TempDir()

	path := filepath.Join(dir, "readme.md")
	require.NoError(t, os.WriteFile(path, []byte("# Title\n\nbody text"), 0o644))

	assert.True(t, e.CanHandle(path, []byte("# Title")))
	assert.False(t, e.CanHandle(path, []byte{'a', 0x00, 'b'}), "NUL head means binary")
	assert.False(t, e.CanHandle(filepath.Join(dir, "blob.bin"), []byte("text")))

	content, err := e.Extract(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "# Title\n\nbody text", content.Text)
	assert.Equal(t, "markdown", content.Metadata["format"])
}

func TestTextExtractorBinaryContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fake.txt")
	require.NoError(t, os.WriteFile(path, []byte{'a', 'b', 0x00, 'c'}, 0o644))

	_, err := (&TextExtractor{}).Extract(context.Background(), path)
	require.ErrorIs(t, err, ErrUnsupported)
}

func TestTextExtractorInvalidUTF8(t *testing.T) {
	path := filepath.Join(t.TempDir(), "latin1.txt")
	require.NoError(t, os.WriteFile(path, []byte{'c', 'a', 'f', 0xE9}, 0o644))

	content, err := (&TextExtractor{}).Extract(context.Background(), path)
	require.NoError(t, err)
	assert.Contains(t, content.Warnings, "invalid_utf8_replaced")
	assert.Contains(t, content.Text, "caf")
}

func TestJSONExtractor(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"name": "lantern",
		"port": 7421,
		"tags": ["search", "local"],
		"nested": {"enabled": true, "ratio": null}
	}`), 0o644))

	content, err := (&JSONExtractor{}).Extract(context.Background(), path)
	require.NoError(t, err)
	assert.Contains(t, content.Text, "name: lantern")
	assert.Contains(t, content.Text, "port: 7421")
	assert.Contains(t, content.Text, "tags[0]: search")
	assert.Contains(t, content.Text, "nested.enabled: true")
	assert.Contains(t, content.Text, "nested.ratio: null")
}

func TestJSONExtractorInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := (&JSONExtractor{}).Extract(context.Background(), path)
	require.ErrorIs(t, err, ErrUnsupported)
}

func TestLegacyDocExtractor(t *testing.T) {
	// Synthetic OLE2 container: magic header, structure noise, then a
	// UTF-16LE body run the way Word stores document text.
	var data []byte
	data = append(data, ole2Magic...)
	data = append(data, make([]byte, 512)...)
	body := "This is the recovered body of an old word document."
	for _, r := range body {
		var pair [2]byte
		binary.LittleEndian.PutUint16(pair[:], uint16(r))
		data = append(data, pair[:]...)
	}
	data = append(data, 0x00, 0x00)
	data = append(data, []byte("Times New Roman")...) // font table noise, no spaces ratio issue

	path := filepath.Join(t.TempDir(), "memo.doc")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	e := &LegacyDocExtractor{}
	assert.True(t, e.CanHandle(path, data[:8]))
	assert.True(t, e.CanHandle("other.doc", nil))
	assert.False(t, e.CanHandle("other.docx", []byte("PK")))

	content, err := e.Extract(context.Background(), path)
	require.NoError(t, err)
	assert.Contains(t, content.Text, "recovered body")
	assert.Contains(t, content.Warnings, "legacy_doc_heuristic_extraction")
}

func TestLegacyDocNoPrintableText(t *testing.T) {
	data := append([]byte{}, ole2Magic...)
	data = append(data, make([]byte, 1024)...)
	path := filepath.Join(t.TempDir(), "empty.doc")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	_, err := (&LegacyDocExtractor{}).Extract(context.Background(), path)
	require.ErrorIs(t, err, ErrUnsupported)
}

func TestLegacyDocNotOLE2(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fake.doc")
	require.NoError(t, os.WriteFile(path, []byte("just plain text, no container"), 0o644))

	_, err := (&LegacyDocExtractor{}).Extract(context.Background(), path)
	require.ErrorIs(t, err, ErrUnsupported)
}

func TestImageExtractor(t *testing.T) {
	e := &ImageExtractor{OCR: &fixedOCR{text: "scanned receipt total 42.00"}}

	assert.True(t, e.CanHandle("scan.png", nil))
	assert.True(t, e.CanHandle("photo.bin", []byte{0xFF, 0xD8, 0xFF, 0xE0}))
	assert.False(t, e.CanHandle("doc.pdf", []byte("%PDF")))

	content, err := e.Extract(context.Background(), "scan.png")
	require.NoError(t, err)
	assert.Equal(t, "scanned receipt total 42.00", content.Text)
	assert.True(t, content.WasOCRUsed)
}

func TestImageExtractorNoEngine(t *testing.T) {
	e := &ImageExtractor{OCR: unavailableOCR{}}
	_, err := e.Extract(context.Background(), "scan.png")
	require.ErrorIs(t, err, ErrUnsupported)
}

func TestPDFTextLayer(t *testing.T) {
	runner := &recordingRunner{outputs: map[string][]byte{
		"pdftotext": []byte("extracted pdf text layer\n"),
	}}
	e := &PDFExtractor{Runner: runner, OCR: &fixedOCR{}}

	content, err := e.Extract(context.Background(), "/tmp/report.pdf")
	require.NoError(t, err)
	assert.Equal(t, "extracted pdf text layer", content.Text)
	assert.False(t, content.WasOCRUsed)
	assert.Equal(t, []string{"pdftotext"}, runner.calls)
}

func TestPDFOCRFallback(t *testing.T) {
	// Empty text layer forces rasterization; the runner cannot create
	// real pages, so the fallback reports no pages.
	runner := &recordingRunner{outputs: map[string][]byte{
		"pdftotext": []byte("  \n"),
		"pdftoppm":  nil,
	}}
	e := &PDFExtractor{Runner: runner, OCR: &fixedOCR{text: "ocr text"}}

	_, err := e.Extract(context.Background(), "/tmp/scan.pdf")
	require.ErrorIs(t, err, ErrUnsupported)
	assert.Equal(t, []string{"pdftotext", "pdftoppm"}, runner.calls)
}

func TestPDFTextLayerFailure(t *testing.T) {
	runner := &recordingRunner{errs: map[string]error{
		"pdftotext": fmt.Errorf("exec: not found"),
	}}
	e := &PDFExtractor{Runner: runner}

	_, err := e.Extract(context.Background(), "/tmp/report.pdf")
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrUnsupported)
}

func TestPDFCanHandle(t *testing.T) {
	e := &PDFExtractor{}
	assert.True(t, e.CanHandle("report.pdf", nil))
	assert.True(t, e.CanHandle("blob", []byte("%PDF-1.7")))
	assert.False(t, e.CanHandle("report.txt", []byte("text")))
}
