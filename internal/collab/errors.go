package collab

import "errors"

var (
	ErrBadToken    = errors.New("bad token")
	ErrUnavailable = errors.New("collaborator unavailable")
)
