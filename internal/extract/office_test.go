package extract

import (
	"archive/zip"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeArchive(t *testing.T, path string, parts map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	w := zip.NewWriter(f)
	for name, body := range parts {
		part, err := w.Create(name)
		require.NoError(t, err)
		_, err = part.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())
}

func TestOfficeCanHandle(t *testing.T) {
	e := &OfficeExtractor{}
	assert.True(t, e.CanHandle("plan.docx", []byte{0x50, 0x4B, 0x03, 0x04, 0}))
	assert.True(t, e.CanHandle("deck.pptx", nil))
	assert.True(t, e.CanHandle("sheet.xlsx", nil))
	assert.False(t, e.CanHandle("plan.doc", nil))
	assert.False(t, e.CanHandle("plan.docx", []byte("not a zip archive")))
}

func TestExtractDocx(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.docx")
	writeArchive(t, path, map[string]string{
		"word/document.xml": `<?xml version="1.0"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>First paragraph</w:t></w:r></w:p>
    <w:p><w:r><w:t>Second </w:t></w:r><w:r><w:t>paragraph</w:t></w:r></w:p>
  </w:body>
</w:document>`,
		"docProps/core.xml": `<?xml version="1.0"?>
<cp:coreProperties xmlns:cp="http://schemas.openxmlformats.org/package/2006/metadata/core-properties" xmlns:dc="http://purl.org/dc/elements/1.1/">
  <dc:title>Quarterly Plan</dc:title>
</cp:coreProperties>`,
	})

	content, err := (&OfficeExtractor{}).Extract(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "Quarterly Plan", content.Title)
	assert.Contains(t, content.Text, "First paragraph")
	assert.Contains(t, content.Text, "Second paragraph")
	assert.Equal(t, "docx", content.Metadata["format"])
}

func TestExtractDocxMissingBody(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.docx")
	writeArchive(t, path, map[string]string{"other.xml": "<x/>"})

	_, err := (&OfficeExtractor{}).Extract(context.Background(), path)
	require.ErrorIs(t, err, ErrUnsupported)
}

func TestExtractPptx(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deck.pptx")
	slide := `<?xml version="1.0"?>
<p:sld xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main" xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main">
  <p:cSld><p:spTree><p:sp><p:txBody>
    <a:p><a:r><a:t>%s</a:t></a:r></a:p>
  </p:txBody></p:sp></p:spTree></p:cSld>
</p:sld>`
	writeArchive(t, path, map[string]string{
		"ppt/slides/slide1.xml": fmt.Sprintf(slide, "Roadmap overview"),
		"ppt/slides/slide2.xml": fmt.Sprintf(slide, "Milestones"),
	})

	content, err := (&OfficeExtractor{}).Extract(context.Background(), path)
	require.NoError(t, err)
	assert.Contains(t, content.Text, "Roadmap overview")
	assert.Contains(t, content.Text, "Milestones")
	assert.Equal(t, "2", content.Metadata["slides"])
}

func TestExtractXlsx(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sheet.xlsx")
	writeArchive(t, path, map[string]string{
		"xl/sharedStrings.xml": `<?xml version="1.0"?>
<sst xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main">
  <si><t>Revenue</t></si>
  <si><t>Forecast</t></si>
</sst>`,
		"xl/worksheets/sheet1.xml": `<?xml version="1.0"?>
<worksheet xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main">
  <sheetData><row><c t="inlineStr"><is><t>Inline note</t></is></c></row></sheetData>
</worksheet>`,
	})

	content, err := (&OfficeExtractor{}).Extract(context.Background(), path)
	require.NoError(t, err)
	assert.Contains(t, content.Text, "Revenue")
	assert.Contains(t, content.Text, "Forecast")
	assert.Contains(t, content.Text, "Inline note")
}

func TestExtractNotAnArchive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fake.docx")
	require.NoError(t, os.WriteFile(path, []byte("plain bytes"), 0o644))

	_, err := (&OfficeExtractor{}).Extract(context.Background(), path)
	require.ErrorIs(t, err, ErrUnsupported)
}
