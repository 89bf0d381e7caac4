package logs

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	log "github.com/xuperchain/log15"

	"github.com/xuperchain/xupergraph/lib/utils"
)

var (
	logHandle LogDriver
	logOnce   sync.Once
	logMu     sync.RWMutex
	logCfg    *LogConf
)

// InitLog opens the process wide log stream. Only the first call takes effect,
// later config file writes adjust level and output without a restart.
func InitLog(cfgFile, logDir string) error {
	var err error
	logOnce.Do(func() {
		// 没有日志配置文件时使用默认配置
		if cfgFile != "" && !utils.FileIsExist(cfgFile) {
			cfgFile = ""
		}
		cfg := GetDefLogConf()
		if cfgFile != "" {
			if cfg, err = LoadLogConf(cfgFile); err != nil {
				return
			}
		}
		if logDir != "" {
			cfg.Filepath = logDir
		}

		var lg log.Logger
		if lg, err = OpenLog(cfg); err != nil {
			return
		}
		logMu.Lock()
		logHandle, logCfg = lg, cfg
		logMu.Unlock()

		if cfgFile != "" {
			err = watchConf(cfgFile, func(nc *LogConf) {
				if logDir != "" {
					nc.Filepath = logDir
				}
				if rerr := reopen(lg, nc); rerr != nil {
					lg.Warn("reload log config failed", "err", rerr)
					return
				}
				lg.Info("log config reloaded", "level", nc.Level)
			})
		}
	})
	return err
}

// OpenLog create and open log stream using LogConf
func OpenLog(lc *LogConf) (log.Logger, error) {
	xlog := log.New("module", lc.Module)
	if err := reopen(xlog, lc); err != nil {
		return nil, err
	}
	return xlog, nil
}

func reopen(xlog log.Logger, lc *LogConf) error {
	lvLevel, err := log.LvlFromString(lc.Level)
	if err != nil {
		return fmt.Errorf("log level error.err:%v", err)
	}
	if err := os.MkdirAll(lc.Filepath, os.ModePerm); err != nil {
		return fmt.Errorf("create log dir failed.err:%v", err)
	}
	infoFile := filepath.Join(lc.Filepath, lc.Filename+".log")
	wfFile := filepath.Join(lc.Filepath, lc.Filename+".log.wf")

	lfmt := log.LogfmtFormat()
	if lc.Fmt == "json" {
		lfmt = log.JsonFormat()
	}

	var nmHandler, wfHandler log.Handler
	if lc.RotateInterval > 0 && lc.RotateBackups > 0 {
		nmHandler = log.Must.RotateFileHandler(infoFile, lfmt, lc.RotateInterval, lc.RotateBackups)
		wfHandler = log.Must.RotateFileHandler(wfFile, lfmt, lc.RotateInterval, lc.RotateBackups)
	} else {
		nmHandler = log.Must.FileHandler(infoFile, lfmt)
		wfHandler = log.Must.FileHandler(wfFile, lfmt)
	}
	if lc.Async {
		bufSize := lc.BufSize
		if bufSize <= 0 {
			bufSize = GetDefLogConf().BufSize
		}
		nmHandler = log.BufferedHandler(bufSize, nmHandler)
		wfHandler = log.BufferedHandler(bufSize, wfHandler)
	}

	// common log takes lvLevel..Error, the wf log Warn and above
	handlers := []log.Handler{
		log.BoundLvlFilterHandler(lvLevel, log.LvlError, nmHandler),
		log.LvlFilterHandler(log.LvlWarn, wfHandler),
	}
	if lc.Console {
		handlers = append(handlers, log.StreamHandler(os.Stderr, lfmt))
	}

	xlog.SetLevelLimit(lvLevel)
	xlog.SetHandler(log.SyncHandler(log.MultiHandler(handlers...)))
	return nil
}

var (
	consoleOnce sync.Once
	console     LogDriver
)

// consoleLog is used until InitLog is called, mostly by unit tests.
func consoleLog() LogDriver {
	consoleOnce.Do(func() {
		xlog := log.New("module", "xgraph")
		xlog.SetHandler(log.StreamHandler(os.Stderr, log.LogfmtFormat()))
		console = xlog
	})
	return console
}

func getDriver() LogDriver {
	logMu.RLock()
	defer logMu.RUnlock()
	if logHandle == nil {
		return consoleLog()
	}
	return logHandle
}

// NewLogger returns a fitter tagged with subMod. An empty logId gets a fresh one.
func NewLogger(logId, subMod string) (Logger, error) {
	if logId == "" {
		logId = utils.GenLogId()
	}
	lf, err := NewLogFitter(getDriver(), logId)
	if err != nil {
		return nil, err
	}
	if subMod != "" {
		lf.SetCommField("s_mod", subMod)
	}
	return lf, nil
}

// GetLogLevel returns the level currently configured, "" before InitLog.
func GetLogLevel() string {
	logMu.RLock()
	defer logMu.RUnlock()
	if logCfg == nil {
		return ""
	}
	return logCfg.Level
}
