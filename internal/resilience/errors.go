package resilience

import (
	"errors"
	"net"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgconn"
)

// transientSQLStates are Postgres error codes worth retrying: connection
// exceptions (class 08), serialization failures, deadlocks, and shutdowns.
var transientSQLStates = map[string]bool{
	"08000": true, "08001": true, "08003": true, "08004": true, "08006": true,
	"40001": true, "40P01": true,
	"57P01": true, "57P02": true, "57P03": true,
	"53300": true,
}

// IsTransient reports whether err looks like a failure that may succeed on
// retry: a retryable Postgres state, a busy SQLite database, a network timeout,
// or a dropped connection.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return transientSQLStates[pgErr.Code]
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, p := range []string{
		"database is locked",
		"sqlite_busy",
		"connection reset by peer",
		"broken pipe",
		"i/o timeout",
		"conn closed",
	} {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
