package links

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"testing"

	"github.com/Lllllllleong/esgreportlinks/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockFetcher struct {
	body []byte
	err  error
	urls []string
}

func (m *mockFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	m.urls = append(m.urls, url)
	if m.err != nil {
		return nil, m.err
	}
	return m.body, nil
}

// mockReader returns fixed pages and records what it was handed.
type mockReader struct {
	pages []Page
	err   error
	seen  []byte
}

func (m *mockReader) ReadPages(rs io.ReadSeeker) ([]Page, error) {
	b, err := io.ReadAll(rs)
	if err != nil {
		return nil, err
	}
	m.seen = b
	if m.err != nil {
		return nil, m.err
	}
	return m.pages, nil
}

func newTestExtractor(t *testing.T, f Fetcher, r DocumentReader) (*Extractor, string) {
	t.Helper()
	dir := t.TempDir()
	e := NewExtractor(f, r)
	e.tempDir = dir
	return e, dir
}

func assertDirEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "scratch directory was not removed")
}

func TestExtract_NoAnnotations(t *testing.T) {
	e, dir := newTestExtractor(t, &mockFetcher{body: []byte("%PDF")}, &mockReader{})

	ext, err := e.Extract(context.Background(), "https://x.com/report.pdf")
	require.NoError(t, err)
	assert.Empty(t, ext.LinksByPage)
	assert.Empty(t, ext.PDFLinks)
	assert.Empty(t, ext.AllLinks)
	assertDirEmpty(t, dir)
}

func TestExtract_PageThreeLinks(t *testing.T) {
	reader := &mockReader{pages: []Page{
		{Number: 3, URIs: []string{"https://x.com/a.pdf", "https://x.com/b.html"}},
	}}
	e, _ := newTestExtractor(t, &mockFetcher{body: []byte("%PDF-1.7")}, reader)

	ext, err := e.Extract(context.Background(), "https://x.com/report.pdf")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://x.com/a.pdf", "https://x.com/b.html"}, ext.LinksByPage[3])
	assert.Equal(t, []string{"https://x.com/a.pdf"}, ext.PDFLinks)
	assert.Equal(t, []int{3}, ext.Pages)
	assert.Equal(t, []byte("%PDF-1.7"), reader.seen)
}

func TestExtract_FlattensInPageOrder(t *testing.T) {
	reader := &mockReader{pages: []Page{
		{Number: 10, URIs: []string{"https://x.com/ten.pdf"}},
		{Number: 2, URIs: []string{"https://x.com/two.html", ""}},
		{Number: 5, URIs: []string{""}},
	}}
	e, _ := newTestExtractor(t, &mockFetcher{body: []byte("%PDF")}, reader)

	ext, err := e.Extract(context.Background(), "https://x.com/r.pdf")
	require.NoError(t, err)
	assert.Equal(t, []int{2, 10}, ext.Pages)
	assert.Equal(t, []string{"https://x.com/two.html", "https://x.com/ten.pdf"}, ext.AllLinks)
	assert.NotContains(t, ext.LinksByPage, 5)
}

func TestExtract_FetchErrorPassesThrough(t *testing.T) {
	fetchErr := &models.FetchError{URL: "https://x.com/r.pdf", StatusCode: 403}
	reader := &mockReader{}
	e, dir := newTestExtractor(t, &mockFetcher{err: fetchErr}, reader)

	_, err := e.Extract(context.Background(), "https://x.com/r.pdf")
	require.Error(t, err)
	assert.Equal(t, models.KindFetch, models.ErrorKind(err))
	assert.Nil(t, reader.seen)
	assertDirEmpty(t, dir)
}

func TestExtract_ParseFailureIsExtractionError(t *testing.T) {
	e, dir := newTestExtractor(t, &mockFetcher{body: []byte("junk")}, &mockReader{err: errors.New("no header")})

	_, err := e.Extract(context.Background(), "https://x.com/r.pdf")
	var extErr *models.ExtractionError
	require.True(t, errors.As(err, &extErr))
	assert.Equal(t, "https://x.com/r.pdf", extErr.Source)
	assertDirEmpty(t, dir)
}

func TestExtract_PDFCPURejectsGarbage(t *testing.T) {
	e, dir := newTestExtractor(t, &mockFetcher{body: []byte("<html>not a pdf</html>")}, NewPDFCPUReader())

	_, err := e.Extract(context.Background(), "https://x.com/r.pdf")
	require.Error(t, err)
	assert.Equal(t, models.KindExtraction, models.ErrorKind(err))
	assertDirEmpty(t, dir)
}

func TestPDFCPUReader_Garbage(t *testing.T) {
	_, err := NewPDFCPUReader().ReadPages(bytes.NewReader([]byte("hello")))
	assert.Error(t, err)
}

func TestIsPDFLink(t *testing.T) {
	tests := []struct {
		uri  string
		want bool
	}{
		{"https://x.com/a.pdf", true},
		{"https://x.com/a.pdf?download=1", true},
		{"https://x.com/a.PDF", false},
		{"https://x.com/a.pdf.html", false},
		{"https://x.com/pdf", false},
		{"mailto:esg@x.com", false},
		{"%zz/bad.pdf", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsPDFLink(tt.uri), tt.uri)
	}
}
