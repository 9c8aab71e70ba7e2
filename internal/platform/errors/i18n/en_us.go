package i18n

// Error codes must match the codes defined in internal/platform/errors/codes.go.
var enUS = map[Code]string{
	"TRANSACTION_TOKEN_MISMATCH":  "The game state could not be updated and the session was stopped.",
	"TRANSACTION_NOT_OPEN":        "The game state could not be updated and the session was stopped.",
	"JOURNAL_DETACHED":            "The game is not ready to accept changes.",
	"JOURNAL_FAULTED":             "This game session was stopped after an internal error.",
	"JOURNAL_SCOPE_OPEN":          "The game is busy resolving another action.",
	"SCOPE_OUT_OF_ORDER":          "The game state could not be updated and the session was stopped.",
	"SEQUENCER_NOT_SUSPENDED":     "No decision is pending.",
	"SEQUENCER_REENTERED":         "This game session was stopped after an internal error.",
	"SEQUENCER_COMPLETED":         "The game has already finished.",
	"SEQUENCER_RETRY_LIMIT":       "Too many invalid answers for {{.player}}.",
	"SEQUENCER_UNKNOWN_STEP":      "The saved game refers to an unknown rule step {{.kind}}.",
	"SEQUENCER_ASK_CONFLICT":      "This game session was stopped after an internal error.",
	"SEARCH_CROSS_CHECK_MISMATCH": "The computer player disagreed with itself and was stopped.",
	"SEARCH_NO_CANDIDATES":        "There are no answers to explore.",
	"HISTORY_SEQUENCE_GAP":        "The game history is incomplete.",
	"HISTORY_CHAIN_BROKEN":        "The game history failed verification.",
	"SEAT_GRANT_INVALID":          "The seat grant is not valid.",
	"SEAT_GRANT_EXPIRED":          "The seat grant has expired.",
	"SEAT_GRANT_MISMATCH":         "The seat grant does not match this game.",
	"NOT_FOUND":                   "{{if .resource}}{{.resource}} not found.{{else}}Not found.{{end}}",
	"INVALID_ARGUMENT":            "The request is not valid.",
	"SESSION_TERMINATED":          "This game session is no longer running.",
}
