package sentinel

import "errors"

// Sentinel dependency errors. Dependencies should return these (optionally wrapped)
// so services can translate them into domain errors exactly once. Aggregates wrap
// them inside domain errors so callers keep the precise failure kind via errors.Is
// while the transport sees only the coarse domain code.
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrExpired           = errors.New("expired")
	ErrAlreadyUsed       = errors.New("already used")
	ErrAttemptsExhausted = errors.New("attempts exhausted")
	ErrIncorrectSecret   = errors.New("incorrect secret")
	ErrNotActive         = errors.New("not active")
	ErrNotPersistent     = errors.New("not persistent")
	ErrBlacklisted       = errors.New("blacklisted")
	ErrDeleted           = errors.New("deleted")
	ErrVersionConflict   = errors.New("version conflict")
)
