package neo4j

import (
	"context"
	"errors"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

var ErrMissingURI = errors.New("graph database URI is required")

// Options describes connectivity to the graph database.
type Options struct {
	URI            string
	Username       string
	Password       string
	Database       string
	MaxConnections int
}

// Statement is one parameterized Cypher invocation.
type Statement struct {
	Cypher string
	Params map[string]any
}

// Client is the connector's view of the graph database. ExecuteBatch runs all
// statements inside a single write transaction; the session is acquired per
// call and released on every exit path.
type Client interface {
	ExecuteBatch(ctx context.Context, statements []Statement) error
	ExecuteRead(ctx context.Context, cypher string, params map[string]any) ([]map[string]any, error)
	VerifyConnectivity(ctx context.Context) error
	Close(ctx context.Context) error
}

// NewClient establishes a Bolt connection using the official Neo4j driver.
func NewClient(ctx context.Context, opts Options) (Client, error) {
	if opts.URI == "" {
		return nil, ErrMissingURI
	}

	auth := neo4j.NoAuth()
	if opts.Username != "" {
		auth = neo4j.BasicAuth(opts.Username, opts.Password, "")
	}

	driver, err := neo4j.NewDriverWithContext(opts.URI, auth, func(c *neo4j.Config) {
		if opts.MaxConnections > 0 {
			c.MaxConnectionPoolSize = opts.MaxConnections
		}
	})
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}

	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("verify graph connectivity: %w", err)
	}

	return &neo4jClient{
		driver:   driver,
		database: opts.Database,
	}, nil
}

type neo4jClient struct {
	driver   neo4j.DriverWithContext
	database string
}

func (c *neo4jClient) ExecuteBatch(ctx context.Context, statements []Statement) error {
	if len(statements) == 0 {
		return nil
	}

	session := c.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: c.database,
		AccessMode:   neo4j.AccessModeWrite,
	})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, statement := range statements {
			result, err := tx.Run(ctx, statement.Cypher, statement.Params)
			if err != nil {
				return nil, err
			}
			if _, err := result.Consume(ctx); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	return err
}

func (c *neo4jClient) ExecuteRead(ctx context.Context, cypher string, params map[string]any) ([]map[string]any, error) {
	session := c.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: c.database,
		AccessMode:   neo4j.AccessModeRead,
	})
	defer session.Close(ctx)

	res, err := session.Run(ctx, cypher, params)
	if err != nil {
		return nil, err
	}

	var records []map[string]any
	for res.Next(ctx) {
		rec := res.Record()
		record := make(map[string]any, len(rec.Keys))
		for _, key := range rec.Keys {
			value, _ := rec.Get(key)
			record[key] = value
		}
		records = append(records, record)
	}
	if err := res.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func (c *neo4jClient) VerifyConnectivity(ctx context.Context) error {
	return c.driver.VerifyConnectivity(ctx)
}

func (c *neo4jClient) Close(ctx context.Context) error {
	return c.driver.Close(ctx)
}

// IsTransient classifies a driver error as retriable: connectivity failures,
// transient server errors, and cluster role changes. Everything else is
// permanent (constraint violations, syntax errors, type mismatches).
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if neo4j.IsConnectivityError(err) {
		return true
	}
	var neoErr *neo4j.Neo4jError
	if errors.As(err, &neoErr) {
		if neoErr.Classification() == "TransientError" {
			return true
		}
		switch neoErr.Code {
		case "Neo.ClientError.Cluster.NotALeader",
			"Neo.ClientError.Security.AuthorizationExpired",
			"Neo.ClientError.General.DatabaseUnavailable":
			return true
		}
	}
	return false
}
