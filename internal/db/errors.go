package db

import "errors"

// Sentinel errors for backend operations.
var (
	ErrKeyNotFound   = errors.New("db: key not found")
	ErrIndexNotFound = errors.New("db: index not found")
	ErrQuerySyntax   = errors.New("db: query syntax error")
	ErrInvalidCursor = errors.New("db: invalid cursor")
	ErrIteratorDone  = errors.New("db: iterator done")
)

// Op names for error context. Redis ops use command names.
const (
	OpPing        = "PING"
	OpSearch      = "FT.SEARCH"
	OpAggregate   = "FT.AGGREGATE"
	OpCursorRead  = "FT.CURSOR READ"
	OpDel         = "DEL"
	OpHGetAll     = "HGETALL"
	OpHSet        = "HSET"
	OpExpire      = "EXPIRE"
	OpEval        = "EVALSHA"
	OpBleveSearch = "bleve.search"
	OpBleveIndex  = "bleve.index"
	OpESSearch    = "es.search"
	OpESPing      = "es.ping"
)

// Error wraps an underlying error with the operation name for diagnostics.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

// IsInvalidRequest reports whether err was caused by the request itself rather than the backend.
func IsInvalidRequest(err error) bool {
	return errors.Is(err, ErrQuerySyntax) || errors.Is(err, ErrInvalidCursor)
}
