package repository

import "errors"

// ErrNotFound indicates an entity was not located.
var ErrNotFound = errors.New("repository: not found")

// ErrInvalidArgument indicates the store rejected the written value.
var ErrInvalidArgument = errors.New("repository: invalid argument")

// ErrConflict indicates a uniqueness violation, e.g. a duplicate code.
var ErrConflict = errors.New("repository: conflict")

// ErrTeamFull is returned by AddMember when the member cap is reached.
var ErrTeamFull = errors.New("repository: team full")

// ErrAlreadyMember is returned by AddMember when the uid is already present.
var ErrAlreadyMember = errors.New("repository: already a member")
