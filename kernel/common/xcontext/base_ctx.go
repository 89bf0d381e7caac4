// Package xcontext defines the contexts injected into chain components.
package xcontext

import (
	"context"
	"time"

	"github.com/xuperchain/xupergraph/lib/logs"
	"github.com/xuperchain/xupergraph/lib/timer"
)

// XContext is what every component receives: a logger, a phase timer and a
// context.Context that never expires.
type XContext interface {
	context.Context
	GetLog() logs.Logger
	GetTimer() *timer.XTimer
	GetModule() string
}

// BaseCtx is embedded by the engine, chain, ledger and kernel contract
// contexts.
type BaseCtx struct {
	XLog   logs.Logger
	Timer  *timer.XTimer
	Module string
}

// NewBaseCtx returns a context whose logger is tagged with module.
func NewBaseCtx(module string) (BaseCtx, error) {
	log, err := logs.NewLogger("", module)
	if err != nil {
		return BaseCtx{}, err
	}
	return BaseCtx{XLog: log, Timer: timer.NewXTimer(), Module: module}, nil
}

func (t *BaseCtx) GetLog() logs.Logger     { return t.XLog }
func (t *BaseCtx) GetTimer() *timer.XTimer { return t.Timer }
func (t *BaseCtx) GetModule() string       { return t.Module }

// 链上操作不设超时，以下实现空context
func (t *BaseCtx) Deadline() (time.Time, bool)       { return time.Time{}, false }
func (t *BaseCtx) Done() <-chan struct{}             { return nil }
func (t *BaseCtx) Err() error                        { return nil }
func (t *BaseCtx) Value(key interface{}) interface{} { return nil }
