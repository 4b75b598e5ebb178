package models

import (
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"
)

// Category selects the folder under esg_report/ that an uploaded PDF lands in.
type Category string

const (
	// CategoryLanding holds the seed report supplied by the caller.
	CategoryLanding Category = "landing"
	// CategoryFilteredPDF holds PDFs linked from the seed report that matched the company keyword.
	CategoryFilteredPDF Category = "sr_in_all_pdf"
)

// ReportRecord is one row of the link warehouse table, keyed by CompanyID.
type ReportRecord struct {
	CompanyID   string
	CompanyName string
	SeedPDFLink string
	LinksByPage map[int][]string
	PDFLinks    []string
	InsertedAt  time.Time
	UpdatedAt   time.Time
}

// Extraction is the result of reading every link annotation out of a PDF.
type Extraction struct {
	LinksByPage map[int][]string `json:"linksByPage"`
	Pages       []int            `json:"pages"`    // ascending, only pages with links
	AllLinks    []string         `json:"allLinks"` // flattened in page order
	PDFLinks    []string         `json:"pdfLinks"`
}

// LinkPartition splits links by whether they mention the company keyword.
type LinkPartition struct {
	Keyword   string   `json:"keyword"`
	Matched   []string `json:"matched"`
	Unmatched []string `json:"unmatched"`
}

// BlobTarget is the object storage destination of one uploaded PDF.
type BlobTarget struct {
	Bucket string `json:"bucket"`
	Path   string `json:"path"`
}

// URI returns the gs:// form of the target.
func (t BlobTarget) URI() string {
	return fmt.Sprintf("gs://%s/%s", t.Bucket, t.Path)
}

var slugReplacer = strings.NewReplacer(" ", "_", "/", "_")

// CompanySlug normalizes a company display name into a single path segment.
func CompanySlug(companyName string) string {
	return strings.ToLower(slugReplacer.Replace(companyName))
}

// LinkBasename returns the last path element of a link, ignoring any query or fragment.
// It returns "" when the link has no usable file name.
func LinkBasename(link string) string {
	p := link
	if u, err := url.Parse(link); err == nil {
		p = u.Path
	}
	base := path.Base(p)
	if base == "." || base == "/" || base == "" {
		return ""
	}
	return base
}

// NewBlobTarget derives {slug}/{year}/esg_report/{category}/{basename}.
func NewBlobTarget(bucket, companyName string, year int, category Category, link string) (BlobTarget, error) {
	base := LinkBasename(link)
	if base == "" {
		return BlobTarget{}, fmt.Errorf("%w: link %q has no file name", ErrInvalidTarget, link)
	}
	slug := CompanySlug(companyName)
	if slug == "" {
		return BlobTarget{}, fmt.Errorf("%w: company name is empty", ErrInvalidTarget)
	}
	return BlobTarget{
		Bucket: bucket,
		Path:   fmt.Sprintf("%s/%d/esg_report/%s/%s", slug, year, category, base),
	}, nil
}
