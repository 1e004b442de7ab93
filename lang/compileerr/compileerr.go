// Package compileerr defines the compile-time error family raised by the
// resolver and compiler. Both packages report errors through this shared,
// minimal type instead of each rolling its own: a single error shape
// carrying a source position.
package compileerr

import "github.com/svmlang/svmc/lang/token"

// Error is a fatal, non-recoverable compile-time error tied to a source
// position.
type Error struct {
	Pos token.Position
	Msg string
}

func (e *Error) Error() string {
	if e.Pos.Line == 0 && e.Pos.Filename == "" {
		return e.Msg
	}
	return e.Pos.String() + ": " + e.Msg
}

// New builds an Error at pos with a formatted message.
func New(pos token.Position, msg string) *Error {
	return &Error{Pos: pos, Msg: msg}
}
