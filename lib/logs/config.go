package logs

import (
	"fmt"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/xuperchain/xupergraph/lib/utils"
)

// LogConf is the log config of node
type LogConf struct {
	Module   string `yaml:"module,omitempty"`
	Filepath string `yaml:"filepath,omitempty"`
	Filename string `yaml:"filename,omitempty"`
	Fmt      string `yaml:"fmt,omitempty"`
	Console  bool   `yaml:"console,omitempty"`
	Level    string `yaml:"level,omitempty"`
	Async    bool   `yaml:"async,omitempty"`
	BufSize  int    `yaml:"bufsize,omitempty"`
	// minutes
	RotateInterval int `yaml:"rotateinterval,omitempty"`
	// hours
	RotateBackups int `yaml:"rotatebackups,omitempty"`
}

func LoadLogConf(cfgFile string) (*LogConf, error) {
	cfg := GetDefLogConf()
	if _, err := cfg.loadConf(cfgFile); err != nil {
		return nil, fmt.Errorf("load log config failed.err:%s", err)
	}

	return cfg, nil
}

func GetDefLogConf() *LogConf {
	return &LogConf{
		Module:         "xgraph",
		Filepath:       "logs",
		Filename:       "xgraph",
		Fmt:            "logfmt",
		Console:        true,
		Level:          "debug",
		Async:          false,
		BufSize:        102400,
		RotateInterval: 60,
		RotateBackups:  168,
	}
}

func (t *LogConf) loadConf(cfgFile string) (*viper.Viper, error) {
	if cfgFile == "" || !utils.FileIsExist(cfgFile) {
		return nil, fmt.Errorf("config file set error.path:%s", cfgFile)
	}

	viperObj := viper.New()
	viperObj.SetConfigFile(cfgFile)
	if err := viperObj.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config failed.path:%s,err:%v", cfgFile, err)
	}
	if err := viperObj.Unmarshal(t); err != nil {
		return nil, fmt.Errorf("unmatshal config failed.path:%s,err:%v", cfgFile, err)
	}

	return viperObj, nil
}

// watchConf calls onChange with the re-read config every time cfgFile is written.
func watchConf(cfgFile string, onChange func(*LogConf)) error {
	cfg := GetDefLogConf()
	viperObj, err := cfg.loadConf(cfgFile)
	if err != nil {
		return err
	}

	viperObj.OnConfigChange(func(e fsnotify.Event) {
		if e.Op&fsnotify.Write == 0 {
			return
		}
		newCfg := GetDefLogConf()
		if err := viperObj.Unmarshal(newCfg); err != nil {
			return
		}
		onChange(newCfg)
	})
	viperObj.WatchConfig()
	return nil
}
