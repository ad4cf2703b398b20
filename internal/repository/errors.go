// Package repository holds the MySQL data access layer.  Each table (or
// tightly coupled group of tables) has its own Repo type built on *sql.DB;
// methods with a Tx suffix run inside a caller-owned transaction.
package repository

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// ErrConflict is returned when a write cannot proceed because of dependent
// or conflicting rows, such as deleting a route that still has trips.
// Handlers translate this into 409.
var ErrConflict = errors.New("conflict")

// ErrDuplicate is returned when a unique key would be violated.
var ErrDuplicate = errors.New("duplicate")

var (
	ErrLocationNotFound = errors.New("location not found")
	ErrCompanyNotFound  = errors.New("company not found")
	ErrLayoutNotFound   = errors.New("seat layout not found")
	ErrBusNotFound      = errors.New("bus not found")
	ErrSeatNotFound     = errors.New("seat not found")
	ErrRouteNotFound    = errors.New("route not found")
	ErrTripNotFound     = errors.New("trip not found")
	ErrBookingNotFound  = errors.New("booking not found")
)

// MySQL server error numbers used to classify write failures.
const (
	mysqlDupEntry        = 1062
	mysqlRowIsReferenced = 1451
	mysqlNoReferencedRow = 1452
)

// mapWriteErr converts driver errors into the sentinels above.
func mapWriteErr(err error) error {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		switch me.Number {
		case mysqlDupEntry:
			return ErrDuplicate
		case mysqlRowIsReferenced, mysqlNoReferencedRow:
			return ErrConflict
		}
	}
	return err
}

// placeholders returns "?, ?, ?" for n values.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func uint64Args(ids []uint64) []interface{} {
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
