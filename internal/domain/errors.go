package domain

import "errors"

// ErrInvalidTransition indicates Complete/Fail was called on a job that is not in progress
var ErrInvalidTransition = errors.New("invalid job state transition")

// ErrNotFound indicates a job, episode or content item row does not exist
var ErrNotFound = errors.New("not found")

// ErrInvalidJob indicates an enqueue request failed validation
var ErrInvalidJob = errors.New("invalid job")

// ErrUnknownRole indicates an image target path does not carry a thumb/banner marker
var ErrUnknownRole = errors.New("unknown image role")
