package lanes

import "github.com/tavlicon/lanes/id"

// ID is the primary identifier type for all lanes entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
