package links

import (
	"fmt"
	"io"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

func init() {
	// pdfcpu otherwise creates and reads a config dir under the user's home,
	// which is neither writable nor thread safe inside Cloud Functions.
	api.DisableConfigDir()
}

// Page is one page of a document together with the URI targets of its link annotations.
type Page struct {
	Number int // 1-based
	URIs   []string
}

// DocumentReader opens a PDF and returns the link annotations of every page that has any.
type DocumentReader interface {
	ReadPages(rs io.ReadSeeker) ([]Page, error)
}

// PDFCPUReader reads link annotations with pdfcpu.
type PDFCPUReader struct {
	conf *model.Configuration
}

// NewPDFCPUReader returns a reader using relaxed validation, since published
// reports are frequently not fully conformant.
func NewPDFCPUReader() *PDFCPUReader {
	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed
	return &PDFCPUReader{conf: cfg}
}

// ReadPages implements DocumentReader. Links keep the order of each page's
// /Annots array; non-link annotations and links without a URI action are skipped.
func (r *PDFCPUReader) ReadPages(rs io.ReadSeeker) ([]Page, error) {
	ctx, err := api.ReadContext(rs, r.conf)
	if err != nil {
		return nil, err
	}
	if err := ctx.EnsurePageCount(); err != nil {
		return nil, err
	}

	var pages []Page
	for pageNr := 1; pageNr <= ctx.PageCount; pageNr++ {
		pageDict, _, _, err := ctx.PageDict(pageNr, false)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", pageNr, err)
		}
		if pageDict == nil {
			continue
		}
		uris, err := pageLinkURIs(ctx, pageDict)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", pageNr, err)
		}
		if len(uris) > 0 {
			pages = append(pages, Page{Number: pageNr, URIs: uris})
		}
	}
	return pages, nil
}

func pageLinkURIs(ctx *model.Context, pageDict types.Dict) ([]string, error) {
	obj, found := pageDict.Find("Annots")
	if !found || obj == nil {
		return nil, nil
	}
	annots, err := ctx.DereferenceArray(obj)
	if err != nil {
		return nil, err
	}

	var uris []string
	for _, o := range annots {
		annot, err := ctx.DereferenceDict(o)
		if err != nil || annot == nil {
			continue
		}
		if subtype := annot.NameEntry("Subtype"); subtype == nil || *subtype != "Link" {
			continue
		}
		uri, err := linkURI(ctx, annot)
		if err != nil {
			return nil, err
		}
		if uri != "" {
			uris = append(uris, uri)
		}
	}
	return uris, nil
}

// linkURI returns the target of a link's /A << /S /URI /URI (...) >> action, or "".
func linkURI(ctx *model.Context, annot types.Dict) (string, error) {
	actionObj, found := annot.Find("A")
	if !found || actionObj == nil {
		return "", nil
	}
	action, err := ctx.DereferenceDict(actionObj)
	if err != nil || action == nil {
		return "", err
	}
	if s := action.NameEntry("S"); s == nil || *s != "URI" {
		return "", nil
	}
	uriObj, found := action.Find("URI")
	if !found {
		return "", nil
	}
	o, err := ctx.Dereference(uriObj)
	if err != nil {
		return "", err
	}
	switch v := o.(type) {
	case types.StringLiteral:
		return types.StringLiteralToString(v)
	case types.HexLiteral:
		return types.HexLiteralToString(v)
	}
	return "", nil
}
