package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/Lllllllleong/esgreportlinks/internal/links"
	"github.com/Lllllllleong/esgreportlinks/internal/models"
)

const pdfContentType = "application/pdf"

// BlobStore is the object storage used for published reports.
type BlobStore interface {
	Exists(ctx context.Context, bucket, object string) (bool, error)
	Put(ctx context.Context, bucket, object string, data []byte, contentType string) error
}

// Publisher copies PDFs from the web into the reports bucket.
type Publisher struct {
	store   BlobStore
	fetcher links.Fetcher
	bucket  string
}

// NewPublisher creates a Publisher writing to bucket.
func NewPublisher(store BlobStore, fetcher links.Fetcher, bucket string) *Publisher {
	return &Publisher{store: store, fetcher: fetcher, bucket: bucket}
}

// Publish downloads link and uploads it to
// {company_slug}/{year}/esg_report/{category}/{basename}, overwriting any
// existing object. The returned result is never nil; on failure it carries the
// error kind and message and the error is returned as well.
func (p *Publisher) Publish(ctx context.Context, link, companyName string, year int, category models.Category) (*models.UploadResult, error) {
	result := &models.UploadResult{Link: link, Category: category}
	logCtx := slog.With("link", link, "category", string(category))

	fail := func(err error) (*models.UploadResult, error) {
		result.Err = err
		result.ErrorKind = models.ErrorKind(err)
		result.Error = err.Error()
		logCtx.Error("Upload failed", "error", err, "errorKind", result.ErrorKind)
		return result, err
	}

	target, err := models.NewBlobTarget(p.bucket, companyName, year, category, link)
	if err != nil {
		return fail(err)
	}
	result.Target = target
	logCtx = logCtx.With("gcsObject", target.URI())

	existed, err := p.store.Exists(ctx, target.Bucket, target.Path)
	switch {
	case err != nil:
		logCtx.Warn("Could not check for an existing object; uploading anyway.", "error", err)
	case existed:
		logCtx.Info("Object already exists, it will be overwritten.")
	}
	result.Existed = existed

	body, err := p.fetcher.Fetch(ctx, link)
	if err != nil {
		return fail(err)
	}

	if err := p.store.Put(ctx, target.Bucket, target.Path, body, pdfContentType); err != nil {
		var storageErr *models.StorageError
		if !errors.As(err, &storageErr) {
			err = &models.StorageError{Op: "put", Bucket: target.Bucket, Object: target.Path, Err: err}
		}
		return fail(err)
	}

	result.Bytes = len(body)
	result.ObjectURI = target.URI()
	logCtx.Info("Uploaded PDF.", "bytes", len(body), "overwrote", existed)
	return result, nil
}

// PublishAll uploads the seed report and then each matched link, one at a time.
// A failed upload is recorded and does not stop the ones after it.
func (p *Publisher) PublishAll(ctx context.Context, seedLink string, matched []string, companyName string, year int) []models.UploadResult {
	results := make([]models.UploadResult, 0, len(matched)+1)

	seed, _ := p.Publish(ctx, seedLink, companyName, year, models.CategoryLanding)
	results = append(results, *seed)

	if len(matched) == 0 {
		slog.Info("No filtered links to upload.", "companyName", companyName)
		return results
	}
	for _, link := range matched {
		if ctx.Err() != nil {
			results = append(results, models.UploadResult{
				Link:      link,
				Category:  models.CategoryFilteredPDF,
				Err:       ctx.Err(),
				ErrorKind: models.KindUnknown,
				Error:     ctx.Err().Error(),
			})
			continue
		}
		res, _ := p.Publish(ctx, link, companyName, year, models.CategoryFilteredPDF)
		results = append(results, *res)
	}
	return results
}
