package board

import "errors"

var (
	// ErrUnknownBoard is returned by Open for a name no plugin registered.
	ErrUnknownBoard = errors.New("board: unknown board")

	// ErrOutOfRange is returned for a percentage outside 0..100.
	ErrOutOfRange = errors.New("board: value out of range")

	// ErrUnknownTheme is returned by SetTheme for an unsupported theme.
	ErrUnknownTheme = errors.New("board: unknown theme")
)
