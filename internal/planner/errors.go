package planner

import "errors"

var (
	// ErrNotFound covers both missing records and missing preconditions,
	// such as generating a plan before the project is configured.
	ErrNotFound = errors.New("not found")

	// ErrValidation marks caller mistakes in the request itself.
	ErrValidation = errors.New("validation failed")

	// ErrGeneration marks a generation whose output could not be turned
	// into a usable artifact even after repairs and retries.
	ErrGeneration = errors.New("generation failed")
)
