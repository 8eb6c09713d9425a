// Package influxdb ships sales telemetry to an InfluxDB bucket. Writes are
// batched and asynchronous; the feature is optional and the service runs
// without it.
package influxdb

import (
	"context"
	"fmt"
	"strconv"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/citrusbyte/lemonade-core/internal/infrastructure/config"
	"github.com/citrusbyte/lemonade-core/internal/infrastructure/logging"
)

// Client writes sale measurements through the non-blocking write API.
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	log      *logging.Logger
}

// Connect verifies the server is reachable and starts the async writer.
func Connect(ctx context.Context, cfg config.InfluxDBConfig, log *logging.Logger) (*Client, error) {
	if log == nil {
		log = logging.Default()
	}

	options := influxdb2.DefaultOptions().
		SetBatchSize(uint(cfg.BatchSize)).
		SetFlushInterval(uint(cfg.FlushInterval))
	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, options)

	ok, err := client.Ping(ctx)
	if err != nil || !ok {
		client.Close()
		return nil, fmt.Errorf("pinging influxdb at %s: %w", cfg.URL, err)
	}

	writeAPI := client.WriteAPI(cfg.Org, cfg.Bucket)
	c := &Client{client: client, writeAPI: writeAPI, log: log}

	// Async write failures surface on the error channel only.
	go func() {
		for err := range writeAPI.Errors() {
			log.Warn("influxdb write failed", "error", err)
		}
	}()

	return c, nil
}

// WriteSale records one sale as a point in the "sale" measurement. The call
// enqueues and returns; batching and retries happen in the background.
func (c *Client) WriteSale(standID int64, standName, currency string, priceInMicros int64, at time.Time) {
	point := influxdb2.NewPoint("sale",
		map[string]string{
			"stand_id": strconv.FormatInt(standID, 10),
			"stand":    standName,
			"currency": currency,
		},
		map[string]any{
			"price_micros": priceInMicros,
			"count":        1,
		},
		at)
	c.writeAPI.WritePoint(point)
}

// Close flushes pending points and shuts the client down.
func (c *Client) Close() {
	c.writeAPI.Flush()
	c.client.Close()
}
