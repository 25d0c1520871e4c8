package errors

import "errors"

var (
	ErrMissingField     = errors.New("required field missing")
	ErrRequestReused    = errors.New("request id already used")
	ErrGeneration       = errors.New("terraform generation failed")
	ErrSyntax           = errors.New("terraform syntax validation failed")
	ErrParse            = errors.New("terraform source does not parse")
	ErrPolicy           = errors.New("terraform policy validation failed")
	ErrArtifactNotFound = errors.New("artifact not found")
	ErrBinaryNotFound   = errors.New("terraform binary not found")
	ErrToolExecution    = errors.New("terraform command failed")
	ErrTimeout          = errors.New("terraform command timed out")
)
