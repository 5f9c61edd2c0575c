package core

import "errors"

var (
	// ErrAuthentication refuses the connection attempt itself.
	ErrAuthentication = errors.New("authentication failed")

	// ErrNotAuthorized refuses a room action; the connection stays open.
	ErrNotAuthorized = errors.New("not authorized")

	// ErrNotFound covers unknown rooms and connections.
	ErrNotFound = errors.New("not found")

	// ErrPeerNotFound means the relay target has no active session.
	ErrPeerNotFound = errors.New("peer not found")

	// ErrStorage is a collaborator failure; broadcast still proceeds.
	ErrStorage = errors.New("storage error")

	// ErrBackpressure is returned by TrySend when the recipient's
	// buffer is full. Contained per recipient.
	ErrBackpressure = errors.New("backpressure")

	// ErrConnClosed is returned by TrySend after Close.
	ErrConnClosed = errors.New("connection closed")
)
