package splitter

import "errors"

// Configuration rejections. The strings surface verbatim to callers and are
// part of the API.
var (
	ErrNoPolicy          = errors.New("no policy provided")
	ErrNoInputAccount    = errors.New("no input account provided")
	ErrNoOutputAccount   = errors.New("no output account provided")
	ErrInvalidSplitType  = errors.New("invalid split type")
	ErrDuplicateSplit    = errors.New("duplicate split in split config")
	ErrZeroAmount        = errors.New("amount cannot be zero")
	ErrZeroRatio         = errors.New("ratio cannot be zero")
	ErrRatioSum          = errors.New("sum of ratios is not equal to 1")
	ErrMixedSplitTypes   = errors.New("cannot combine different split types for same token")
	ErrOracleNotContract = errors.New("dynamic ratio contract address is not a contract")
)

// Execution rejections.
var (
	ErrRatioExceedsMax = errors.New("ratio exceeds maximum")
	ErrSplitInProgress = errors.New("split already in progress")
)

// Authorization rejections, raised before any read or write.
var (
	ErrNotOwner     = errors.New("caller is not the owner")
	ErrNotProcessor = errors.New("caller is not the processor")
)
