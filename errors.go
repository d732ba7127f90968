package partigroup

import "github.com/arloliu/partigroup/types"

// Sentinel errors returned by the Consumer. They alias the types package
// sentinels so errors.Is matches across packages.
var (
	ErrInvalidConfig          = types.ErrInvalidConfig
	ErrNATSConnectionRequired = types.ErrNATSConnectionRequired
	ErrInvalidID              = types.ErrInvalidID
	ErrNoDestinations         = types.ErrNoDestinations
	ErrHandlerRequired        = types.ErrHandlerRequired
	ErrConsumerClosed         = types.ErrConsumerClosed
	ErrAlreadySubscribed      = types.ErrAlreadySubscribed
)
