// Package neo4j wraps the official neo4j-go-driver with connectivity checks
// and a read helper that returns rows as plain maps.
package neo4j

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/rdsm-lab/disease-mapper/pkg/config"
	"github.com/rdsm-lab/disease-mapper/pkg/resilience"
)

var connectBackoff = resilience.Backoff{
	Attempts:   4,
	Initial:    time.Second,
	Max:        8 * time.Second,
	Factor:     2,
	Jitter:     0.1,
	PerAttempt: 10 * time.Second,
}

// Driver is a read-oriented Neo4j client.
type Driver struct {
	driver   neo4j.DriverWithContext
	database string
	logger   *slog.Logger
}

// NewDriver connects to Neo4j and verifies connectivity, retrying while the
// server is still starting.
func NewDriver(ctx context.Context, cfg config.Neo4jConfig) (*Driver, error) {
	auth := neo4j.NoAuth()
	if cfg.Username != "" {
		auth = neo4j.BasicAuth(cfg.Username, cfg.Password, "")
	}
	driver, err := neo4j.NewDriverWithContext(cfg.URI, auth, func(c *neo4j.Config) {
		if cfg.MaxConnectionPoolSize > 0 {
			c.MaxConnectionPoolSize = cfg.MaxConnectionPoolSize
		}
		if cfg.ConnectionAcquisitionTimeout > 0 {
			c.ConnectionAcquisitionTimeout = cfg.ConnectionAcquisitionTimeout
		}
	})
	if err != nil {
		return nil, fmt.Errorf("creating neo4j driver: %w", err)
	}

	if err := resilience.Retry(ctx, "neo4j-connect", connectBackoff, driver.VerifyConnectivity); err != nil {
		driver.Close(context.Background())
		return nil, fmt.Errorf("connecting to neo4j at %s: %w", cfg.URI, err)
	}

	database := cfg.Database
	if database == "" {
		database = "neo4j"
	}
	logger := slog.Default().With("component", "neo4j")
	logger.Info("connected to neo4j", "uri", cfg.URI, "database", database)
	return &Driver{driver: driver, database: database, logger: logger}, nil
}

// ReadRows runs cypher in a read transaction and returns every record as a
// key/value map.
func (d *Driver) ReadRows(ctx context.Context, cypher string, params map[string]any) ([]map[string]any, error) {
	session := d.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: d.database,
		AccessMode:   neo4j.AccessModeRead,
	})
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		rows := make([]map[string]any, 0, len(records))
		for _, rec := range records {
			rows = append(rows, rec.AsMap())
		}
		return rows, nil
	})
	if err != nil {
		d.logger.Error("neo4j read failed", "error", err)
		return nil, fmt.Errorf("neo4j read: %w", err)
	}
	return out.([]map[string]any), nil
}

// Ping verifies the server is still reachable.
func (d *Driver) Ping(ctx context.Context) error {
	return d.driver.VerifyConnectivity(ctx)
}

// Close releases all pooled connections.
func (d *Driver) Close(ctx context.Context) error {
	return d.driver.Close(ctx)
}
