package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/Lllllllleong/esgreportlinks/internal/models"
	"github.com/Lllllllleong/esgreportlinks/internal/services"
	cloudevents "github.com/cloudevents/sdk-go/v2"
)

// MessagePublishedData is the payload of a google.cloud.pubsub.topic.v1.messagePublished event.
type MessagePublishedData struct {
	Message struct {
		Data       []byte            `json:"data"` // base64 in the envelope
		Attributes map[string]string `json:"attributes,omitempty"`
		MessageID  string            `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

var (
	extractorInstance *services.LinkExtractorFunction
	once              sync.Once
	initErr           error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	functions.CloudEvent("ExtractLinksFromEvent", extractLinksFromEvent)
}

// main is required by the Go Functions Framework.
func main() {}

// extractLinksFromEvent runs one extraction per Pub/Sub message.
// Malformed messages and permanent failures are acknowledged; transient ones
// are returned so the message is redelivered.
func extractLinksFromEvent(ctx context.Context, e cloudevents.Event) error {
	once.Do(func() {
		extractorInstance, initErr = services.NewLinkExtractor(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		return initErr
	}

	req, err := decodeRequest(e)
	if err != nil {
		slog.Error("Dropping malformed message", "error", err, "eventId", e.ID())
		return nil
	}

	report, err := extractorInstance.Process(ctx, req)
	if err != nil {
		if !retryable(err) {
			slog.Error("Dropping request that cannot succeed on retry", "error", err, "errorKind", models.ErrorKind(err), "eventId", e.ID())
			return nil
		}
		return err
	}

	slog.Info("Processed extraction event.", "eventId", e.ID(), "runId", report.RunID, "status", report.Status)
	return nil
}

func decodeRequest(e cloudevents.Event) (*models.ExtractLinksRequest, error) {
	var msg MessagePublishedData
	if err := e.DataAs(&msg); err != nil {
		return nil, fmt.Errorf("event.DataAs: %w", err)
	}
	var req models.ExtractLinksRequest
	if err := json.Unmarshal(msg.Message.Data, &req); err != nil {
		return nil, fmt.Errorf("json.Unmarshal: %w", err)
	}
	return &req, nil
}

// retryable reports whether redelivering the message could change the outcome.
// Invalid requests, unparseable seed PDFs and 4xx answers for the seed are permanent.
func retryable(err error) bool {
	if errors.Is(err, models.ErrInvalidRequest) {
		return false
	}
	var extractionErr *models.ExtractionError
	if errors.As(err, &extractionErr) {
		return false
	}
	var fetchErr *models.FetchError
	if errors.As(err, &fetchErr) {
		return fetchErr.StatusCode < 400 || fetchErr.StatusCode >= 500 || fetchErr.StatusCode == http.StatusTooManyRequests || fetchErr.StatusCode == http.StatusRequestTimeout
	}
	return true
}
