package core

import (
	"errors"

	"nexusai.dev/nexus/internal/repos"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrSearchLimitReached = errors.New("daily search limit reached")
	ErrInvalidRepoURL     = repos.ErrInvalidURL
	ErrUnknownMode        = errors.New("unknown discovery mode")
	ErrUserExists         = errors.New("user already exists")
)
