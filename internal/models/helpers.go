package models

import (
	"fmt"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// RecordIDString returns the string key of a ledger record ID.
func RecordIDString(id surrealmodels.RecordID) (string, error) {
	s, ok := id.ID.(string)
	if !ok {
		return "", fmt.Errorf("record %s: key is %T, not a string", id.Table, id.ID)
	}
	return s, nil
}

// Key returns the run ID without the table name. Non-string keys are formatted as-is.
func (r BatchRun) Key() string {
	if s, err := RecordIDString(r.ID); err == nil {
		return s
	}
	return fmt.Sprint(r.ID.ID)
}
