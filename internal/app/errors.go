package app

import "errors"

var (
	// ErrValidation marks input rejected before any external call.
	ErrValidation = errors.New("validation failed")
	// ErrUnauthorized means no authenticated caller.
	ErrUnauthorized = errors.New("please login")
	ErrNotFound     = errors.New("not found")
	// ErrGeneration is a text or image provider failure.
	ErrGeneration = errors.New("generation failed")
	// ErrParse means provider output did not decode into the expected shape.
	ErrParse           = errors.New("failed to parse generated content")
	ErrImageGeneration = errors.New("image generation failed")
	ErrRateLimited     = errors.New("too many requests")

	ErrHistoryNotFound error = notFoundError{"History not found"}
	ErrAssetNotFound   error = notFoundError{"Asset not found"}
)

// notFoundError carries a resource-specific message and matches ErrNotFound.
type notFoundError struct{ msg string }

func (e notFoundError) Error() string { return e.msg }

func (e notFoundError) Is(target error) bool { return target == ErrNotFound }
