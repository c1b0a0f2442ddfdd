package postgres

import (
	"context"
	"errors"
	"net"

	"github.com/jackc/pgx/v5/pgconn"
	registrystore "github.com/memkeep/memkeep/internal/registry/store"
	"gorm.io/gorm"
)

// SQLSTATE codes that indicate the server refused a connection slot rather
// than a query failing.
const (
	sqlstateTooManyConnections = "53300"
	sqlstateCannotConnectNow   = "57P03"
)

// classify converts driver faults into the typed errors callers check with
// errors.As. Query-level errors pass through wrapped by the caller.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case sqlstateTooManyConnections, sqlstateCannotConnectNow:
			return &registrystore.PoolExhaustedError{Cause: err}
		}
		return err
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return &registrystore.StorageUnavailableError{Cause: err}
	}

	var netErr *net.OpError
	if errors.As(err, &netErr) {
		return &registrystore.StorageUnavailableError{Cause: err}
	}

	// A deadline hit while waiting for a pooled connection surfaces as
	// context.DeadlineExceeded from database/sql.
	if errors.Is(err, context.DeadlineExceeded) {
		return &registrystore.PoolExhaustedError{Cause: err}
	}

	return err
}

// notFound maps gorm's sentinel to the typed NotFoundError.
func notFound(err error, resource string, id int64) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &registrystore.NotFoundError{Resource: resource, ID: id}
	}
	return classify(err)
}
