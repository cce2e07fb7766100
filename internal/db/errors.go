package db

import (
	"errors"
	"fmt"
	"strings"

	"github.com/surrealdb/surrealdb.go"
)

var (
	// ErrAlreadyExists indicates a run with the same ID is already in the ledger.
	ErrAlreadyExists = errors.New("record already exists")

	// ErrTransactionConflict indicates concurrent writers touched the same record.
	ErrTransactionConflict = errors.New("transaction conflict")

	// ErrNotFound indicates the requested run does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrInvalidRecord indicates a write was rejected by a field type or ASSERT clause.
	ErrInvalidRecord = errors.New("invalid record")
)

// queryErrorKinds maps fragments of SurrealDB error messages to sentinels.
var queryErrorKinds = []struct {
	fragment string
	sentinel error
}{
	{"already exists", ErrAlreadyExists},
	{"Transaction conflict", ErrTransactionConflict},
	{"must conform to", ErrInvalidRecord},
	{"Couldn't coerce value for field", ErrInvalidRecord},
}

// wrapQueryError tags known SurrealDB query errors with a sentinel.
// Other errors are returned unchanged.
func wrapQueryError(err error) error {
	var queryErr *surrealdb.QueryError
	if !errors.As(err, &queryErr) {
		return err
	}
	for _, kind := range queryErrorKinds {
		if strings.Contains(queryErr.Message, kind.fragment) {
			return fmt.Errorf("%w: %s", kind.sentinel, queryErr.Message)
		}
	}
	return err
}
