package coordinator

import (
	"strings"

	"github.com/dreamware/nimbusdb/internal/nimberr"
)

// Level is a client-requested consistency level (spec section 4.5).
type Level int

const (
	LevelAny Level = iota
	LevelOne
	LevelTwo
	LevelThree
	LevelQuorum
	LevelAll
)

func (l Level) String() string {
	switch l {
	case LevelAny:
		return "any"
	case LevelOne:
		return "one"
	case LevelTwo:
		return "two"
	case LevelThree:
		return "three"
	case LevelQuorum:
		return "quorum"
	case LevelAll:
		return "all"
	default:
		return "unknown"
	}
}

// ParseLevel parses a client-supplied consistency level string,
// case-insensitively (spec section 6).
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "any":
		return LevelAny, nil
	case "one":
		return LevelOne, nil
	case "two":
		return LevelTwo, nil
	case "three":
		return LevelThree, nil
	case "quorum":
		return LevelQuorum, nil
	case "all":
		return LevelAll, nil
	default:
		return 0, nimberr.Parsef("unknown consistency level %q", s)
	}
}

// RequiredOKs returns required_oks for level given needed responses
// (spec section 4.5's consistency predicate table).
func RequiredOKs(level Level, needed int) int {
	switch level {
	case LevelAny, LevelOne:
		return 1
	case LevelTwo:
		return 2
	case LevelThree:
		return 3
	case LevelQuorum:
		return needed/2 + 1
	case LevelAll:
		return needed
	default:
		return needed
	}
}
