package scan

import (
	"fmt"

	"github.com/ab180/partscan/store"
)

// PartitionError is returned by a parallel run when a query scoped to a single feed range fails.
type PartitionError struct {
	Range store.FeedRange
	Err   error
}

func (e *PartitionError) Error() string {
	return fmt.Sprintf("query partition %s: %v", e.Range, e.Err)
}

func (e *PartitionError) Unwrap() error {
	return e.Err
}

// Cause implements github.com/pkg/errors causer.
func (e *PartitionError) Cause() error {
	return e.Err
}
