package gcp

import (
	"context"
	"fmt"
	"sort"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"
)

// NewBigQueryClient creates a BigQuery client for the given project ID.
func NewBigQueryClient(ctx context.Context, projectID string) (*bigquery.Client, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID must be provided to create a bigquery client")
	}
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create BigQuery client: %w", err)
	}
	return client, nil
}

// BigQueryWarehouse runs parameterized GoogleSQL statements.
type BigQueryWarehouse struct {
	client   *bigquery.Client
	location string
}

// NewBigQueryWarehouse wraps client. An empty location lets BigQuery choose.
func NewBigQueryWarehouse(client *bigquery.Client, location string) *BigQueryWarehouse {
	return &BigQueryWarehouse{client: client, location: location}
}

// Query runs a read statement and returns every row keyed by column name.
func (w *BigQueryWarehouse) Query(ctx context.Context, sql string, params map[string]any) ([]map[string]any, error) {
	it, err := w.query(sql, params).Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run query: %w", err)
	}

	var rows []map[string]any
	for {
		var row map[string]bigquery.Value
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read query results: %w", err)
		}
		out := make(map[string]any, len(row))
		for k, v := range row {
			out[k] = v
		}
		rows = append(rows, out)
	}
	return rows, nil
}

// Exec runs a DML statement and waits for the job to finish.
func (w *BigQueryWarehouse) Exec(ctx context.Context, sql string, params map[string]any) error {
	job, err := w.query(sql, params).Run(ctx)
	if err != nil {
		return fmt.Errorf("failed to start job: %w", err)
	}
	jobStatus, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("failed waiting for job %s: %w", job.ID(), err)
	}
	if err := jobStatus.Err(); err != nil {
		return fmt.Errorf("job %s failed: %w", job.ID(), err)
	}
	return nil
}

func (w *BigQueryWarehouse) query(sql string, params map[string]any) *bigquery.Query {
	q := w.client.Query(sql)
	q.Parameters = queryParameters(params)
	if w.location != "" {
		q.Location = w.location
	}
	return q
}

// queryParameters converts named values to BigQuery parameters in a stable order.
func queryParameters(params map[string]any) []bigquery.QueryParameter {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]bigquery.QueryParameter, 0, len(names))
	for _, name := range names {
		out = append(out, bigquery.QueryParameter{Name: name, Value: params[name]})
	}
	return out
}
