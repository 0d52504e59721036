package game

import "errors"

// 非法操作一律回傳以下錯誤，且不改變任何狀態。
// 伺服器是合法性的最終把關者，呼叫端不需要向客戶端解釋原因。
var (
	ErrSessionFull        = errors.New("game: session already has two players")
	ErrDuplicatePlayer    = errors.New("game: player already in session")
	ErrNotEnoughPlayers   = errors.New("game: two players required")
	ErrAlreadyStarted     = errors.New("game: already started")
	ErrNotStarted         = errors.New("game: not started")
	ErrGameOver           = errors.New("game: already ended")
	ErrUnknownPlayer      = errors.New("game: player not in session")
	ErrInvalidCard        = errors.New("game: invalid card")
	ErrNotYourTurn        = errors.New("game: not your turn")
	ErrRankMismatch       = errors.New("game: rank not on table")
	ErrCardNotOwned       = errors.New("game: card not in hand")
	ErrInvalidAttackIndex = errors.New("game: no attack at index")
	ErrAlreadyDefended    = errors.New("game: attack already defended")
	ErrCannotBeat         = errors.New("game: card does not beat attack")
)
