package logs

import (
	"fmt"
	"os"
	"sync"

	"github.com/xuperchain/xupergraph/lib/utils"
)

// Reserve common key
const (
	CommFieldLogId = "log_id"
	CommFieldPid   = "pid"
	CommFieldCall  = "call"
)

const (
	DefaultCallDepth = 4
)

// LogDriver is what the underlying log library must provide.
type LogDriver interface {
	Error(msg string, ctx ...interface{})
	Warn(msg string, ctx ...interface{})
	Info(msg string, ctx ...interface{})
	Trace(msg string, ctx ...interface{})
	Debug(msg string, ctx ...interface{})
}

// Logger is the logging surface handed to every component.
type Logger interface {
	GetLogId() string
	SetCommField(key string, value interface{})
	SetInfoField(key string, value interface{})
	Error(msg string, ctx ...interface{})
	Warn(msg string, ctx ...interface{})
	Info(msg string, ctx ...interface{})
	Trace(msg string, ctx ...interface{})
	Debug(msg string, ctx ...interface{})
}

// LogFitter prepends log id, caller and pid to every record. Common fields
// are written on every level, info fields only once on the next Info.
type LogFitter struct {
	logger     LogDriver
	logId      string
	pid        int
	callDepth  int
	mu         sync.Mutex
	commFields []interface{}
	infoFields []interface{}
}

func NewLogFitter(logger LogDriver, logId string) (*LogFitter, error) {
	if logger == nil {
		return nil, fmt.Errorf("new logger param error")
	}
	if logId == "" {
		logId = utils.GenLogId()
	}

	return &LogFitter{
		logger:    logger,
		logId:     logId,
		pid:       os.Getpid(),
		callDepth: DefaultCallDepth,
	}, nil
}

func (t *LogFitter) GetLogId() string {
	return t.logId
}

func (t *LogFitter) SetCommField(key string, value interface{}) {
	if key == "" || value == nil {
		return
	}
	t.mu.Lock()
	t.commFields = append(t.commFields, key, value)
	t.mu.Unlock()
}

func (t *LogFitter) SetInfoField(key string, value interface{}) {
	if key == "" || value == nil {
		return
	}
	t.mu.Lock()
	t.infoFields = append(t.infoFields, key, value)
	t.mu.Unlock()
}

func (t *LogFitter) Error(msg string, ctx ...interface{}) {
	t.logger.Error(msg, t.fmtFields(false, ctx)...)
}

func (t *LogFitter) Warn(msg string, ctx ...interface{}) {
	t.logger.Warn(msg, t.fmtFields(false, ctx)...)
}

func (t *LogFitter) Info(msg string, ctx ...interface{}) {
	t.logger.Info(msg, t.fmtFields(true, ctx)...)
}

func (t *LogFitter) Trace(msg string, ctx ...interface{}) {
	t.logger.Trace(msg, t.fmtFields(false, ctx)...)
}

func (t *LogFitter) Debug(msg string, ctx ...interface{}) {
	t.logger.Debug(msg, t.fmtFields(false, ctx)...)
}

func (t *LogFitter) fmtFields(withInfo bool, ctx []interface{}) []interface{} {
	if len(ctx)%2 != 0 {
		last := ctx[len(ctx)-1]
		ctx = append(ctx[:len(ctx)-1:len(ctx)-1], "unknow", last)
	}

	fileLine, _ := utils.GetFuncCall(t.callDepth)
	logId := interface{}(t.logId)
	// a leading log_id pair overrides the fitter's own
	if len(ctx) > 1 && fmt.Sprintf("%v", ctx[0]) == CommFieldLogId {
		logId = ctx[1]
		ctx = ctx[2:]
	}

	t.mu.Lock()
	out := make([]interface{}, 0, 6+len(t.commFields)+len(t.infoFields)+len(ctx))
	out = append(out, CommFieldLogId, logId, CommFieldCall, fileLine, CommFieldPid, t.pid)
	out = append(out, t.commFields...)
	if withInfo {
		out = append(out, t.infoFields...)
		t.infoFields = t.infoFields[:0]
	}
	t.mu.Unlock()

	return append(out, ctx...)
}
