package strategy

import "errors"

// ErrInvalidPartitionCount is returned for a negative partition count.
var ErrInvalidPartitionCount = errors.New("partition count must not be negative")
