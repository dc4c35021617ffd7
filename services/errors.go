package services

import "errors"

// Errors shared across services and reused by the HTTP error mapping.
var (
	ErrNotFound         = errors.New("requested resource not found")
	ErrValidationFailed = errors.New("validation failed")

	ErrParticipantNotFound     = errors.New("participant not found")
	ErrParticipantNameRequired = errors.New("participant display name is required")
	ErrParticipantNameConflict = errors.New("display name is already in use")

	ErrResultNotFound = errors.New("match result not found")

	ErrAvatarContentTypeInvalid = errors.New("unsupported avatar content type")
	ErrAvatarUploadFailed       = errors.New("avatar upload failed")
)
