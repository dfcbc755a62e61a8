package domain

import "strings"

// ActionClass is the closed set of behaviors a task kind maps to. Stored
// kinds are free-form strings ("VISIT_PAGE", "LIKE", ...); they are
// classified once at the boundary so everything downstream can switch
// exhaustively.
type ActionClass int

const (
	ActionUnknown ActionClass = iota

	// ActionVisit covers VISIT_* kinds: time-gated, verified synchronously
	// at claim time.
	ActionVisit

	// ActionLegacyEngagement covers like/follow/share/comment kinds:
	// no time gate, queued for asynchronous verification.
	ActionLegacyEngagement

	// ActionConnectAccount is deferred upstream and fails closed.
	ActionConnectAccount
)

func (a ActionClass) String() string {
	switch a {
	case ActionVisit:
		return "visit"
	case ActionLegacyEngagement:
		return "legacy_engagement"
	case ActionConnectAccount:
		return "connect_account"
	default:
		return "unknown"
	}
}

var legacyKinds = map[string]struct{}{
	"LIKE":    {},
	"FOLLOW":  {},
	"SHARE":   {},
	"COMMENT": {},
}

// ClassifyAction maps a stored task kind to its ActionClass.
func ClassifyAction(kind string) ActionClass {
	switch {
	case strings.HasPrefix(kind, "VISIT_"):
		return ActionVisit
	case kind == "CONNECT_ACCOUNT":
		return ActionConnectAccount
	default:
		if _, ok := legacyKinds[kind]; ok {
			return ActionLegacyEngagement
		}
		if strings.HasPrefix(kind, "LIKE_") || strings.HasPrefix(kind, "FOLLOW_") ||
			strings.HasPrefix(kind, "SHARE_") || strings.HasPrefix(kind, "COMMENT_") {
			return ActionLegacyEngagement
		}
		return ActionUnknown
	}
}
