package domain

import "errors"

var (
	// ErrConfiguration aborts a batch before any submitter is processed.
	ErrConfiguration = errors.New("configuration error")
	// ErrIntegrity signals a broken anonymization mapping.
	ErrIntegrity = errors.New("integrity error")
	// ErrPrecondition is returned when a required input is absent.
	ErrPrecondition = errors.New("precondition failed")
)
