package log

import "context"

type nop struct{}

// Nop returns a logger that discards everything.
func Nop() Logger { return nop{} }

func (nop) With(...any) Logger                           { return nop{} }
func (nop) Debug(context.Context, string, ...any)        {}
func (nop) Info(context.Context, string, ...any)         {}
func (nop) Warn(context.Context, string, ...any)         {}
func (nop) Error(context.Context, error, string, ...any) {}
func (nop) Sync() error                                  { return nil }
