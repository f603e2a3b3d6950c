package session

type staticErr string

func (e staticErr) Error() string { return string(e) }
func errf(s string) error         { return staticErr(s) }

var (
	ErrWrongTurn      = errf("it is not your turn")
	ErrGameNotFound   = errf("game not found")
	ErrColorRequired  = errf("color is required")
	ErrForeignColor   = errf("you cannot act for the opponent")
	ErrInvalidPlayers = errf("two distinct player tokens are required")
	ErrAlreadyPlaying = errf("player is already in a running game")
	ErrTimeControl    = errf("unsupported time control")
	ErrConflict       = errf("game was changed concurrently, retry")

	// ErrInternal hides infrastructure failures of mutating operations.
	ErrInternal = errf("dark chess base exception")
)
