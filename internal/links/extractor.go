package links

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Lllllllleong/esgreportlinks/internal/models"
)

// Fetcher downloads a whole resource.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Extractor downloads a PDF and collects the hyperlinks in its annotations.
type Extractor struct {
	fetcher Fetcher
	reader  DocumentReader
	tempDir string // parent for per-call scratch dirs; "" means os.TempDir()
}

// NewExtractor creates an Extractor.
func NewExtractor(fetcher Fetcher, reader DocumentReader) *Extractor {
	return &Extractor{fetcher: fetcher, reader: reader}
}

// Extract downloads pdfLink into a scratch directory, which is removed before
// returning on every path, and reads its link annotations.
func (e *Extractor) Extract(ctx context.Context, pdfLink string) (*models.Extraction, error) {
	logCtx := slog.With("pdfLink", pdfLink)

	body, err := e.fetcher.Fetch(ctx, pdfLink)
	if err != nil {
		logCtx.Error("Failed to download source PDF", "error", err)
		return nil, err
	}

	tempDir, err := os.MkdirTemp(e.tempDir, "link-extractor-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	sourcePdfPath := filepath.Join(tempDir, "source.pdf")
	if err := os.WriteFile(sourcePdfPath, body, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write temp file at %s: %w", sourcePdfPath, err)
	}

	pages, err := e.readPages(sourcePdfPath)
	if err != nil {
		logCtx.Error("Failed to read link annotations", "error", err)
		return nil, &models.ExtractionError{Source: pdfLink, Err: err}
	}

	extraction := buildExtraction(pages)
	logCtx.Info("Extracted links from PDF.",
		"bytes", len(body),
		"pagesWithLinks", len(extraction.Pages),
		"linkCount", len(extraction.AllLinks),
		"pdfLinkCount", len(extraction.PDFLinks),
	)
	return extraction, nil
}

func (e *Extractor) readPages(path string) ([]Page, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return e.reader.ReadPages(f)
}

func buildExtraction(pages []Page) *models.Extraction {
	ext := &models.Extraction{
		LinksByPage: make(map[int][]string),
		Pages:       []int{},
		AllLinks:    []string{},
		PDFLinks:    []string{},
	}
	for _, p := range pages {
		for _, uri := range p.URIs {
			if uri == "" {
				continue
			}
			ext.LinksByPage[p.Number] = append(ext.LinksByPage[p.Number], uri)
		}
	}
	for pageNr := range ext.LinksByPage {
		ext.Pages = append(ext.Pages, pageNr)
	}
	sort.Ints(ext.Pages)

	for _, pageNr := range ext.Pages {
		for _, uri := range ext.LinksByPage[pageNr] {
			ext.AllLinks = append(ext.AllLinks, uri)
			if IsPDFLink(uri) {
				ext.PDFLinks = append(ext.PDFLinks, uri)
			}
		}
	}
	return ext
}

// IsPDFLink reports whether the path of uri ends in ".pdf" (case-sensitive).
// Unparseable links are checked as raw strings.
func IsPDFLink(uri string) bool {
	u, err := url.Parse(uri)
	if err != nil {
		return strings.HasSuffix(uri, ".pdf")
	}
	return strings.HasSuffix(u.Path, ".pdf")
}
