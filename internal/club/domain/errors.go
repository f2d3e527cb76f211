package domain

import "errors"

var (
	// ErrStoreNotConfigured indicates the service is missing persistence wiring.
	ErrStoreNotConfigured = errors.New("club store is not configured")
	// ErrMemberNotFound indicates the acting member does not exist.
	ErrMemberNotFound = errors.New("member not found")
	// ErrInvalidPhase indicates the operation is not allowed in the current phase.
	ErrInvalidPhase = errors.New("operation not allowed in current phase")
	// ErrSlotConflict indicates the member's weekly slot is already occupied.
	ErrSlotConflict = errors.New("slot already occupied")
	// ErrNoVettingMovie indicates no movie is currently in vetting.
	ErrNoVettingMovie = errors.New("no movie in vetting")
	// ErrMovieNotAvailable indicates the movie is missing or not open for voting.
	ErrMovieNotAvailable = errors.New("movie not available for voting")
	// ErrVettingIncomplete indicates voting started before vetting quorum.
	ErrVettingIncomplete = errors.New("vetting is not complete")
	// ErrInvalidScore indicates a score outside the 0-10 range.
	ErrInvalidScore = errors.New("score must be between 0 and 10")
	// ErrTitleRequired indicates a submission without a title.
	ErrTitleRequired = errors.New("movie title is required")
	// ErrNameRequired indicates a member registration without a name.
	ErrNameRequired = errors.New("member name is required")
	// ErrNameTaken indicates a member registration with a duplicate name.
	ErrNameTaken = errors.New("member name already taken")
	// ErrInvalidPIN indicates a PIN that is not exactly four digits.
	ErrInvalidPIN = errors.New("pin must be four digits")
	// ErrInvalidCredentials indicates a failed name and PIN check.
	ErrInvalidCredentials = errors.New("invalid credentials")
)
