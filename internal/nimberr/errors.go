// Package nimberr defines the typed error taxonomy shared across nimbusdb's
// core packages, mirroring the coordinator-visible categories from the
// system's error handling design: parse, schema, consistency, storage,
// transport, and protocol-decode errors.
//
// Callers test an error's category with HasKind, compare with errors.Is
// against the sentinel *Error values below (which matches only that
// exact value), or use errors.As against *Error to recover the category
// and an optional wrapped cause.
package nimberr

import "fmt"

// Kind categorizes a nimbusdb error for coordinator-side routing: which
// client frame to emit, whether to count a response as an error, and
// whether a connection should be closed.
type Kind int

const (
	// KindParse indicates a malformed query string.
	KindParse Kind = iota
	// KindSchema indicates a missing keyspace/table, invalid column, or an
	// attempt to modify a primary-key column.
	KindSchema
	// KindConsistency indicates a query cannot reach its required
	// consistency level given failed or unreachable replicas.
	KindConsistency
	// KindStorage indicates an on-disk I/O failure or index corruption.
	KindStorage
	// KindTransport indicates a send failure to a peer node.
	KindTransport
	// KindDecode indicates a malformed internode wire frame.
	KindDecode
)

func (k Kind) String() string {
	switch k {
	case KindParse:
		return "parse"
	case KindSchema:
		return "schema"
	case KindConsistency:
		return "consistency"
	case KindStorage:
		return "storage"
	case KindTransport:
		return "transport"
	case KindDecode:
		return "decode"
	default:
		return "unknown"
	}
}

// Error is a typed nimbusdb error carrying a Kind for classification and an
// optional wrapped cause for diagnostics. Its Error() string is the
// short, stack-trace-free description the spec requires for client Error
// frames.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// HasKind reports whether err is (or wraps) a *Error of the given Kind.
func HasKind(err error, kind Kind) bool {
	var e *Error
	for err != nil {
		if as, ok := err.(*Error); ok {
			e = as
			break
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return e != nil && e.Kind == kind
}

func newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Parsef builds a KindParse error.
func Parsef(format string, args ...any) *Error { return newf(KindParse, format, args...) }

// Schemaf builds a KindSchema error.
func Schemaf(format string, args ...any) *Error { return newf(KindSchema, format, args...) }

// Consistencyf builds a KindConsistency error.
func Consistencyf(format string, args ...any) *Error { return newf(KindConsistency, format, args...) }

// Decodef builds a KindDecode error.
func Decodef(format string, args ...any) *Error { return newf(KindDecode, format, args...) }

// Storage wraps a cause as a KindStorage error.
func Storage(message string, cause error) *Error {
	return &Error{Kind: KindStorage, Message: message, Cause: cause}
}

// Transport wraps a cause as a KindTransport error.
func Transport(message string, cause error) *Error {
	return &Error{Kind: KindTransport, Message: message, Cause: cause}
}

// Sentinel values for errors.Is comparisons. *Error has no Is method, so
// errors.Is matches only the identical sentinel, not any error of the
// same Kind (use HasKind for that), e.g.
//
//	if errors.Is(err, nimberr.ErrNotFound) { ... }
var (
	// ErrNotFound indicates a row, table, or keyspace was not found where
	// one was required (e.g. UPDATE targeting a missing table).
	ErrNotFound = &Error{Kind: KindSchema, Message: "not found"}
	// ErrPrimaryKeyImmutable indicates an UPDATE SET clause named a
	// partition or clustering column.
	ErrPrimaryKeyImmutable = &Error{Kind: KindSchema, Message: "primary key column is immutable"}
	// ErrRingEmpty indicates partition.Ring.Owner was called with no nodes.
	ErrRingEmpty = &Error{Kind: KindStorage, Message: "ring has no nodes"}
)
