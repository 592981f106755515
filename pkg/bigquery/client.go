package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/angelmondragon/threadline-backend/pkg/config"
	"github.com/angelmondragon/threadline-backend/pkg/logger"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const (
	metadataCheckTimeout = 10 * time.Second
	// Streaming inserts accept at most 500 rows per request.
	maxRowsPerInsert = 500
)

var (
	errProjectIDRequired    = errors.New("gcp project id is required")
	errDatasetRequired      = errors.New("bigquery dataset is required")
	errTableNameRequired    = errors.New("bigquery order events table is required")
	errClientNotInitialized = errors.New("bigquery client not initialized")
)

// Client streams order analytics rows into one table.
type Client struct {
	client *bigquery.Client
	table  *bigquery.Table
}

// NewClient connects to BigQuery and checks that the order events table
// exists with every column OrderEventRow writes.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.BigQueryConfig, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	if projectID == "" {
		return nil, errProjectIDRequired
	}
	datasetID := strings.TrimSpace(cfg.Dataset)
	if datasetID == "" {
		return nil, errDatasetRequired
	}
	tableID := strings.TrimSpace(cfg.OrderEventsTable)
	if tableID == "" {
		return nil, errTableNameRequired
	}

	bqClient, err := bigquery.NewClient(ctx, projectID, clientOptions(gcp)...)
	if err != nil {
		return nil, fmt.Errorf("creating bigquery client: %w", err)
	}
	client := &Client{client: bqClient, table: bqClient.Dataset(datasetID).Table(tableID)}
	if err := client.Ping(ctx); err != nil {
		_ = bqClient.Close()
		return nil, err
	}

	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"bigquery_dataset": datasetID,
			"bigquery_table":   tableID,
		}), "bigquery client initialized")
	}
	return client, nil
}

func clientOptions(gcp config.GCPConfig) []option.ClientOption {
	switch {
	case strings.TrimSpace(gcp.CredentialsJSON) != "":
		return []option.ClientOption{option.WithCredentialsJSON([]byte(gcp.CredentialsJSON))}
	case strings.TrimSpace(gcp.ApplicationCredentials) != "":
		return []option.ClientOption{option.WithCredentialsFile(gcp.ApplicationCredentials)}
	}
	return nil
}

// Ping reads the table metadata and verifies its schema.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.table == nil {
		return errClientNotInitialized
	}
	ctx, cancel := context.WithTimeout(ctx, metadataCheckTimeout)
	defer cancel()

	meta, err := c.table.Metadata(ctx)
	if err != nil {
		if isNotFound(err) {
			return fmt.Errorf("table %s.%s does not exist", c.table.DatasetID, c.table.TableID)
		}
		return fmt.Errorf("checking table %s.%s: %w", c.table.DatasetID, c.table.TableID, err)
	}
	if missing := missingColumns(meta.Schema); len(missing) > 0 {
		return fmt.Errorf("table %s.%s is missing columns: %s", c.table.DatasetID, c.table.TableID, strings.Join(missing, ", "))
	}
	return nil
}

// missingColumns lists the OrderEventRow columns the schema lacks.
func missingColumns(schema bigquery.Schema) []string {
	present := make(map[string]struct{}, len(schema))
	for _, field := range schema {
		present[strings.ToLower(field.Name)] = struct{}{}
	}
	var missing []string
	for _, column := range orderEventColumns {
		if _, ok := present[column]; !ok {
			missing = append(missing, column)
		}
	}
	return missing
}

// InsertOrderEvents streams rows in request-sized batches. Each row's event id
// is its insert id, so a redelivered event does not double count.
func (c *Client) InsertOrderEvents(ctx context.Context, rows ...OrderEventRow) error {
	if len(rows) == 0 {
		return nil
	}
	if c == nil || c.table == nil {
		return errClientNotInitialized
	}
	inserter := c.table.Inserter()
	for start := 0; start < len(rows); start += maxRowsPerInsert {
		end := min(start+maxRowsPerInsert, len(rows))
		batch := make([]*OrderEventRow, 0, end-start)
		for i := start; i < end; i++ {
			batch = append(batch, &rows[i])
		}
		if err := inserter.Put(ctx, batch); err != nil {
			return describeInsertError(err, rows[start:end])
		}
	}
	return nil
}

// describeInsertError names the rejected events instead of bare row indexes.
func describeInsertError(err error, batch []OrderEventRow) error {
	var multi bigquery.PutMultiError
	if !errors.As(err, &multi) || len(multi) == 0 {
		return fmt.Errorf("insert order events: %w", err)
	}
	rejected := make([]string, 0, len(multi))
	for _, rowErr := range multi {
		id := fmt.Sprintf("row %d", rowErr.RowIndex)
		if rowErr.RowIndex >= 0 && rowErr.RowIndex < len(batch) {
			id = batch[rowErr.RowIndex].EventID
		}
		rejected = append(rejected, id)
	}
	return fmt.Errorf("insert order events: %d rejected (%s): %w", len(multi), strings.Join(rejected, ", "), err)
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}
