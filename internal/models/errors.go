package models

import "errors"

// Error taxonomy. Wrap with fmt.Errorf("...: %w", Err...) and match with errors.Is.
var (
	// ErrInsufficientData means the sufficiency gate returned SKIP
	ErrInsufficientData = errors.New("insufficient data")
	// ErrCircuitOpen means the dependency is isolated and the call was not attempted
	ErrCircuitOpen = errors.New("circuit open")
	// ErrCorruptedResult means a computed statistic is non-finite or |z| > 10
	ErrCorruptedResult = errors.New("corrupted result")
	// ErrDuplicateWrite is informational: a snapshot already exists for the key
	ErrDuplicateWrite = errors.New("snapshot already exists")
	// ErrConfiguration is fatal at startup
	ErrConfiguration = errors.New("configuration error")
	// ErrQualityBatchRejected means the validator recommended REJECT
	ErrQualityBatchRejected = errors.New("quality batch rejected")
	// ErrOutsideWriteWindow means a store attempt fell outside the write window
	ErrOutsideWriteWindow = errors.New("outside write window")
	// ErrInsufficientComponents means too few composite components were available
	ErrInsufficientComponents = errors.New("insufficient components")
	// ErrBarNotAvailable means the bar for the trading day has not landed yet
	ErrBarNotAvailable = errors.New("price bar not available")
	// ErrNotFound means no row matched
	ErrNotFound = errors.New("not found")
)
