package session

import "errors"

var (
	// ErrInvalidSettings is returned by Start for an unusable frame rate or speed multiplier.
	ErrInvalidSettings = errors.New("invalid settings")
	// ErrAlreadyRecording is returned by Start when a session is active or awaiting retry.
	ErrAlreadyRecording = errors.New("a session is already active")
	// ErrNotRecording is returned by Stop when no session is recording.
	ErrNotRecording = errors.New("not recording")
	// ErrNotFailed is returned by Retry and Reset when no session has failed.
	ErrNotFailed = errors.New("no failed session")
	// ErrInsufficientSpace is returned by Start when the output root has less
	// free space than the configured minimum.
	ErrInsufficientSpace = errors.New("insufficient free disk space")
)
