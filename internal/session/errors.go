package session

// Error is a rejected operation with a stable, user-facing code. The room
// layer maps these onto outbound error events; anything that is not an
// *Error is treated as internal.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string { return e.Message }

var (
	ErrInvalidName        = &Error{Code: "INVALID_NAME", Message: "display name must be 1-20 characters"}
	ErrInvalidMode        = &Error{Code: "INVALID_MODE", Message: "game mode must be strict or average"}
	ErrNotFound           = &Error{Code: "NOT_FOUND", Message: "session not found"}
	ErrClosed             = &Error{Code: "CLOSED", Message: "session is finished"}
	ErrDuplicateName      = &Error{Code: "DUPLICATE_NAME", Message: "display name already taken"}
	ErrEmptyBacklog       = &Error{Code: "EMPTY_BACKLOG", Message: "backlog must contain at least one valid feature"}
	ErrNoBacklog          = &Error{Code: "NO_BACKLOG", Message: "no backlog loaded"}
	ErrNotEnoughPlayers   = &Error{Code: "NOT_ENOUGH_PLAYERS", Message: "at least two participants are required"}
	ErrNotAuthorized      = &Error{Code: "NOT_AUTHORIZED", Message: "only the facilitator may do that"}
	ErrInvalidCard        = &Error{Code: "INVALID_CARD", Message: "card value is not in the deck"}
	ErrAlreadyVoted       = &Error{Code: "ALREADY_VOTED", Message: "you already voted this round"}
	ErrNoActiveFeature    = &Error{Code: "NO_ACTIVE_FEATURE", Message: "no feature is currently under estimation"}
	ErrNotActive          = &Error{Code: "NOT_ACTIVE", Message: "session has not been started"}
	ErrAlreadyStarted     = &Error{Code: "ALREADY_STARTED", Message: "session is already running"}
	ErrUnknownParticipant = &Error{Code: "UNKNOWN_PARTICIPANT", Message: "participant not found"}
)
