package idnode

import "errors"

var (
	ErrInvalidNodeID  = errors.New("invalid node id")
	ErrInvalidCounter = errors.New("invalid counter value")
	ErrRecordSize     = errors.New("unexpected record size")

	ErrNotValid    = errors.New("node is not valid")
	ErrCollision   = errors.New("node id collision detected")
	ErrRateLimited = errors.New("failed to advance high-water timestamp")

	ErrGroupRequired     = errors.New("multicast group is required")
	ErrInvalidTTL        = errors.New("ttl must be positive")
	ErrInvalidListenTime = errors.New("listen time must be positive")
)
