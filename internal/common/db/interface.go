package db

import "context"

// Database is the connection-pool level handle used by repositories.
type Database interface {
	Querier
	Transaction(ctx context.Context, fn func(tx Transaction) error) error
	Ping(ctx context.Context) error
	Close() error
}

// Transaction is a running database transaction.
type Transaction interface {
	Querier
	Commit() error
	Rollback() error
}

// Rows iterates a multi-row result.
type Rows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Close() error
	Err() error
}

// Row is a single-row result.
type Row interface {
	Scan(dest ...interface{}) error
}

// Result summarizes an Exec call.
type Result interface {
	LastInsertId() (int64, error)
	RowsAffected() (int64, error)
}
