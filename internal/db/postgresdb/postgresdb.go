// Package postgresdb provides a PostgreSQL-backed document store. Documents
// of every collection live in a single JSONB table managed by goose
// migrations; equality queries run against JSONB attributes.
package postgresdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"

	"github.com/patric-chuzhbe/jjbank/internal/db/storage"
)

// PostgresDB is a PostgreSQL-backed implementation of storage.Storage.
type PostgresDB struct {
	database          *sql.DB
	connectionTimeout time.Duration
}

type initOptions struct {
	DBPreReset bool
	DriverName string
}

// New opens the database with the configured driver ("pgx" by default,
// "postgres" for lib/pq), applies the migrations from migrationsDir and
// returns a ready PostgresDB.
func New(
	ctx context.Context,
	databaseDSN string,
	connectionTimeout time.Duration,
	migrationsDir string,
	optionsProto ...InitOption,
) (*PostgresDB, error) {
	options := &initOptions{
		DBPreReset: false,
		DriverName: "pgx",
	}
	for _, protoOption := range optionsProto {
		protoOption(options)
	}

	database, err := sql.Open(options.DriverName, databaseDSN)
	if err != nil {
		return nil, err
	}

	result := &PostgresDB{
		database:          database,
		connectionTimeout: connectionTimeout,
	}

	if options.DBPreReset {
		if err := result.resetDB(ctx); err != nil {
			return nil,
				fmt.Errorf(
					"in internal/db/postgresdb/postgresdb.go/New(): error while `result.resetDB()` calling: %w",
					err,
				)
		}
	}

	if err := goose.SetDialect("postgres"); err != nil {
		return nil,
			fmt.Errorf(
				"in internal/db/postgresdb/postgresdb.go/New(): error while `goose.SetDialect()` calling: %w",
				err,
			)
	}

	if err := goose.UpContext(ctx, result.database, migrationsDir); err != nil {
		return nil,
			fmt.Errorf(
				"in internal/db/postgresdb/postgresdb.go/New(): error while `goose.Up()` calling: %w",
				err,
			)
	}

	return result, nil
}

// ListDocuments returns the documents of collection matching every query,
// in insertion order.
func (db *PostgresDB) ListDocuments(
	ctx context.Context,
	collection string,
	queries ...storage.Query,
) (storage.DocumentList, error) {
	where, params := buildWhere(collection, queries)

	rows, err := db.database.QueryContext(
		ctx,
		`SELECT id::text, collection, data, created_at FROM documents WHERE `+where+` ORDER BY seq`,
		params...,
	)
	if err != nil {
		return storage.DocumentList{},
			fmt.Errorf(
				"in internal/db/postgresdb/postgresdb.go/ListDocuments(): error while `db.database.QueryContext()` calling: %w",
				err,
			)
	}
	defer rows.Close()

	result := storage.DocumentList{Documents: []storage.Document{}}
	for rows.Next() {
		var (
			doc  storage.Document
			data []byte
		)
		if err := rows.Scan(&doc.ID, &doc.Collection, &data, &doc.CreatedAt); err != nil {
			return storage.DocumentList{}, err
		}
		if err := json.Unmarshal(data, &doc.Data); err != nil {
			return storage.DocumentList{}, err
		}

		result.Documents = append(result.Documents, doc)
	}

	if err := rows.Err(); err != nil {
		return storage.DocumentList{}, err
	}
	result.Total = len(result.Documents)

	return result, nil
}

// CreateDocument inserts data as a new document with a fresh UUID.
func (db *PostgresDB) CreateDocument(
	ctx context.Context,
	collection string,
	data map[string]any,
) (storage.Document, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return storage.Document{}, err
	}

	doc := storage.Document{
		ID:         uuid.NewString(),
		Collection: collection,
		Data:       data,
	}

	row := db.database.QueryRowContext(
		ctx,
		`INSERT INTO documents (id, collection, data) VALUES ($1, $2, $3::jsonb) RETURNING created_at`,
		doc.ID,
		collection,
		string(payload),
	)
	if err := row.Scan(&doc.CreatedAt); err != nil {
		return storage.Document{},
			fmt.Errorf(
				"in internal/db/postgresdb/postgresdb.go/CreateDocument(): error while `row.Scan()` calling: %w",
				err,
			)
	}

	return doc, nil
}

// InitOption defines a functional option for configuring database initialization.
type InitOption func(*initOptions)

// WithDBPreReset drops every table before migrating. Tests only.
func WithDBPreReset(value bool) InitOption {
	return func(options *initOptions) {
		options.DBPreReset = value
	}
}

// WithDriverName selects the database/sql driver: "pgx" or "postgres".
func WithDriverName(name string) InitOption {
	return func(options *initOptions) {
		if name != "" {
			options.DriverName = name
		}
	}
}

// Ping verifies connectivity with the PostgreSQL database within the configured timeout.
func (db *PostgresDB) Ping(ctx context.Context) error {
	ctxWithTimeout, cancel := context.WithTimeout(ctx, db.connectionTimeout)
	defer cancel()

	return db.database.PingContext(ctxWithTimeout)
}

// Close closes the database connection and releases any associated resources.
func (db *PostgresDB) Close() error {
	return db.database.Close()
}

func (db *PostgresDB) resetDB(ctx context.Context) error {
	_, err := db.database.ExecContext(
		ctx,
		`
			DO $$
			DECLARE
				r RECORD;
			BEGIN
				FOR r IN (SELECT tablename FROM pg_tables WHERE schemaname = 'public') LOOP
					EXECUTE 'DROP TABLE IF EXISTS ' || quote_ident(r.tablename) || ' CASCADE';
				END LOOP;
			END $$;
		`,
	)
	if err != nil {
		return fmt.Errorf(
			"in internal/db/postgresdb/postgresdb.go/resetDB(): error while `db.database.ExecContext()` calling: %w",
			err,
		)
	}
	return nil
}

// indexedAttributes have expression indexes (see migration 00002). Their
// names are written into the SQL as literals so the planner can match the
// index; any other attribute name travels as a parameter.
var indexedAttributes = map[string]string{
	"userId":    `data->>'userId'`,
	"accountId": `data->>'accountId'`,
	"bankId":    `data->>'bankId'`,
}

// buildWhere renders the filter for ListDocuments with numbered placeholders.
func buildWhere(collection string, queries []storage.Query) (string, []interface{}) {
	params := []interface{}{collection}
	conditions := []string{"collection = $1"}

	for _, query := range queries {
		if len(query.Values) == 0 {
			conditions = append(conditions, "FALSE")
			continue
		}

		column, indexed := indexedAttributes[query.Attribute]
		if !indexed {
			if query.Attribute == storage.AttributeID {
				column = "id::text"
			} else {
				params = append(params, query.Attribute)
				column = fmt.Sprintf("data->>$%d", len(params))
			}
		}

		placeholders := make([]string, len(query.Values))
		for i, value := range query.Values {
			params = append(params, value)
			placeholders[i] = fmt.Sprintf("$%d", len(params))
		}

		conditions = append(conditions, fmt.Sprintf("%s IN (%s)", column, strings.Join(placeholders, ",")))
	}

	return strings.Join(conditions, " AND "), params
}
