package models

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBlobTarget(t *testing.T) {
	target, err := NewBlobTarget("sr_organisation_data", "Tata Power", 2023, CategoryLanding, "https://tatapower.com/reports/esg2023.pdf")
	require.NoError(t, err)
	assert.Equal(t, "tata_power/2023/esg_report/landing/esg2023.pdf", target.Path)
	assert.Equal(t, "gs://sr_organisation_data/tata_power/2023/esg_report/landing/esg2023.pdf", target.URI())

	target, err = NewBlobTarget("b", "Biocon Ltd", 2024, CategoryFilteredPDF, "https://biocon.com/docs/brsr.pdf?v=2#page=4")
	require.NoError(t, err)
	assert.Equal(t, "biocon_ltd/2024/esg_report/sr_in_all_pdf/brsr.pdf", target.Path)
}

func TestNewBlobTarget_Invalid(t *testing.T) {
	tests := []struct {
		name        string
		companyName string
		link        string
	}{
		{"bare host", "Acme", "https://acme.com"},
		{"trailing slash", "Acme", "https://acme.com/"},
		{"empty link", "Acme", ""},
		{"empty company", "", "https://acme.com/a.pdf"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewBlobTarget("b", tt.companyName, 2023, CategoryLanding, tt.link)
			assert.ErrorIs(t, err, ErrInvalidTarget)
		})
	}
}

func TestCompanySlug(t *testing.T) {
	assert.Equal(t, "tata_power", CompanySlug("Tata Power"))
	assert.Equal(t, "infosys", CompanySlug("INFOSYS"))
	assert.Equal(t, "larsen_&_toubro", CompanySlug("Larsen & Toubro"))
	assert.Equal(t, "a_b_industries", CompanySlug("A/B Industries"))
}

func TestNewBlobTarget_SlashInCompanyName(t *testing.T) {
	target, err := NewBlobTarget("b", "A/B Industries", 2023, CategoryLanding, "https://ab.com/r.pdf")
	require.NoError(t, err)
	assert.Equal(t, "a_b_industries/2023/esg_report/landing/r.pdf", target.Path)
}

func TestErrorKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{&FetchError{URL: "u", StatusCode: 404}, KindFetch},
		{fmt.Errorf("wrapped: %w", &ExtractionError{Source: "u", Err: errors.New("bad xref")}), KindExtraction},
		{&WarehouseError{Op: "insert", Err: errors.New("x")}, KindWarehouse},
		{&StorageError{Op: "put", Err: errors.New("x")}, KindStorage},
		{fmt.Errorf("%w: no name", ErrInvalidTarget), KindStorage},
		{&WorkflowError{Workflow: "w", Err: errors.New("x")}, KindWorkflow},
		{errors.New("boom"), KindUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ErrorKind(tt.err), "%v", tt.err)
	}
}

func TestFetchError_UnwrapsTransportError(t *testing.T) {
	cause := errors.New("connection refused")
	err := &FetchError{URL: "https://x.com/a.pdf", Err: cause}
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Contains(t, (&FetchError{URL: "u", StatusCode: 503}).Error(), "503")
}

func TestExtractLinksRequest_Validate(t *testing.T) {
	valid := ExtractLinksRequest{CompanyID: "C1", CompanyName: "Acme", PDFLink: "https://acme.com/r.pdf", Year: 2023}
	require.NoError(t, valid.Validate())

	mutations := map[string]func(r *ExtractLinksRequest){
		"companyId":   func(r *ExtractLinksRequest) { r.CompanyID = " " },
		"companyName": func(r *ExtractLinksRequest) { r.CompanyName = "" },
		"pdfLink":     func(r *ExtractLinksRequest) { r.PDFLink = "" },
		"year":        func(r *ExtractLinksRequest) { r.Year = 0 },
	}
	for field, mutate := range mutations {
		t.Run(field, func(t *testing.T) {
			r := valid
			mutate(&r)
			err := r.Validate()
			assert.ErrorIs(t, err, ErrInvalidRequest)
			assert.Contains(t, err.Error(), field)
		})
	}
}

func TestRunReport_FailedUploads(t *testing.T) {
	r := RunReport{Uploads: []UploadResult{
		{Link: "a", ObjectURI: "gs://b/a"},
		{Link: "b", Error: "fetch b: unexpected status 404"},
		{Link: "c", Err: errors.New("context canceled")},
	}}
	assert.Equal(t, 2, r.FailedUploads())
}
