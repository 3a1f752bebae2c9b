// Package docid generates the opaque identifiers assigned to records,
// constraints and transactions.
package docid

import (
	"time"

	"github.com/google/uuid"
)

// New returns a fresh random identifier. Generating a UUID can in principle
// fail on a starved entropy source, so it retries briefly; exhausting the
// retries panics, since an id-less record is unusable.
func New() string {
	var err error
	for i := 0; i < 10; i++ {
		var id uuid.UUID
		id, err = uuid.NewRandom()
		if err == nil {
			return id.String()
		}
		time.Sleep(time.Millisecond)
	}
	panic(err)
}
