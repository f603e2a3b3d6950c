package darkdto

// Command frame types accepted from players.
const (
	TypeNewGame      = "new_game"
	TypeMove         = "move"
	TypeDrawAccept   = "draw_accept"
	TypeDrawRefuse   = "draw_refuse"
	TypeCheckDraw    = "check_draw"
	TypeResign       = "resign"
	TypeMoves        = "moves"
	TypeGetBoard     = "get_board"
	TypeGetInfo      = "get_info"
	TypeTimeLeft     = "time_left"
	TypeCheckCastles = "check_castles"
	TypeBoardImage   = "board_image"

	TypeError = "error"
)

type NewGameRequest struct {
	// Opponent is the other player's token; the sender plays Color.
	Opponent     string `json:"opponent"`
	Color        string `json:"color,omitempty"`
	Name         string `json:"name,omitempty"`
	OpponentName string `json:"opponent_name,omitempty"`
	TimeControl  string `json:"time_control,omitempty"`
	Seconds      int    `json:"seconds,omitempty"`
	Setup        string `json:"setup,omitempty"`
}

type MoveRequest struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Color string `json:"color,omitempty"`
}

// ColorRequest carries the optional color of draw, resign and clock commands.
type ColorRequest struct {
	Color string `json:"color,omitempty"`
}

type DrawResponse struct {
	Ended bool `json:"ended"`
}

type MovesResponse struct {
	Moves []string `json:"moves"`
}

type TimeLeftResponse struct {
	Color string `json:"color"`
	// Limited is false for games without a clock; Ms is then zero.
	Limited bool  `json:"limited"`
	Ms      int64 `json:"ms"`
}

type BoardImageResponse struct {
	PNG []byte `json:"png"`
}
