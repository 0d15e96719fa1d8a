package invoicing

import "github.com/xraph/invoicing/id"

// ID is the primary identifier type for all invoicing records.
type ID = id.ID

// Prefix identifies the record kind encoded in a TypeID.
type Prefix = id.Prefix
