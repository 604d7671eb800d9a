package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/go-sql-driver/mysql"
)

var (
	// ErrStoreUnavailable matches errors where the store could not be
	// reached or the table being read does not exist.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrStoreQuery matches errors caused by the query itself: bad filter
	// values, bad pagination arguments or SQL the store rejected.
	ErrStoreQuery = errors.New("store query error")
)

type UnavailableError struct {
	Op  string
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s: store unavailable: %v", e.Op, e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

func (e *UnavailableError) Is(target error) bool {
	return target == ErrStoreUnavailable
}

type QueryError struct {
	Op    string
	Query string
	Err   error
}

func (e *QueryError) Error() string {
	if e.Query == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %v (query: %s)", e.Op, e.Err, e.Query)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

func (e *QueryError) Is(target error) bool {
	return target == ErrStoreQuery
}

func queryErrorf(op, format string, args ...any) error {
	return &QueryError{Op: op, Err: fmt.Errorf(format, args...)}
}

// mysql server error numbers that mean the data can't be reached at all
var mysqlUnavailable = map[uint16]struct{}{
	1044: {}, // access denied to database
	1045: {}, // access denied for user
	1049: {}, // unknown database
	1146: {}, // table doesn't exist
}

// classify sorts a driver error into one of the two store error kinds,
// keeping the driver error as the cause.
func classify(op, query string, err error) error {
	if err == nil {
		return nil
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		_, unavailable := mysqlUnavailable[myErr.Number]
		if unavailable {
			return &UnavailableError{Op: op, Err: err}
		}
		return &QueryError{Op: op, Query: query, Err: err}
	}

	var netErr net.Error
	switch {
	case errors.Is(err, sql.ErrConnDone),
		errors.Is(err, driver.ErrBadConn),
		errors.Is(err, mysql.ErrInvalidConn),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled),
		errors.As(err, &netErr):
		return &UnavailableError{Op: op, Err: err}
	}

	msg := err.Error()
	if strings.Contains(msg, "no such table") ||
		strings.Contains(msg, "database is closed") ||
		strings.Contains(msg, "unable to open database") {
		return &UnavailableError{Op: op, Err: err}
	}
	return &QueryError{Op: op, Query: query, Err: err}
}
