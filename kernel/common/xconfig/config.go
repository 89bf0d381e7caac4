package xconfig

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/xuperchain/xupergraph/kernel/common/xutils"
	"github.com/xuperchain/xupergraph/lib/utils"
)

type EnvConf struct {
	// Program running root directory
	RootPath string `yaml:"rootPath,omitempty"`
	// config file directory
	ConfDir string `yaml:"confDir,omitempty"`
	// data file directory
	DataDir string `yaml:"dataDir,omitempty"`
	// log file directory
	LogDir string `yaml:"logDir,omitempty"`
	// blockchain data directory, relative to DataDir
	ChainDir string `yaml:"chainDir,omitempty"`
	// engine config file name
	EngineConf string `yaml:"engineConf,omitempty"`
	// log config file name
	LogConf string `yaml:"logConf,omitempty"`
	// ledger config file name
	LedgerConf string `yaml:"ledgerConf,omitempty"`
	// genesis file name
	GenesisConf string `yaml:"genesisConf,omitempty"`
	// metric switch
	MetricSwitch bool `yaml:"metricSwitch,omitempty"`
}

// LoadEnvConf reads cfgFile over the defaults. A missing file leaves the
// defaults in place.
func LoadEnvConf(cfgFile string) (*EnvConf, error) {
	cfg := GetDefEnvConf()
	err := cfg.loadConf(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load env config failed.err:%s", err)
	}

	// root path priority: XGRAPH_ROOT_PATH, config file, parent of the binary dir
	rt := xutils.RootPathFromEnv()
	if rt != "" {
		cfg.RootPath = rt
	}

	return cfg, nil
}

func GetDefEnvConf() *EnvConf {
	return &EnvConf{
		RootPath:     xutils.BinaryRootDir(),
		ConfDir:      "conf",
		DataDir:      "data",
		LogDir:       "logs",
		ChainDir:     "blockchain",
		EngineConf:   "engine.yaml",
		LogConf:      "log.yaml",
		LedgerConf:   "ledger.yaml",
		GenesisConf:  "genesis.json",
		MetricSwitch: false,
	}
}

func (t *EnvConf) GenDirAbsPath(dir string) string {
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(t.RootPath, dir)
}

func (t *EnvConf) GenDataAbsPath(dir string) string {
	return filepath.Join(t.GenDirAbsPath(t.DataDir), dir)
}

func (t *EnvConf) GenConfFilePath(fName string) string {
	return filepath.Join(t.GenDirAbsPath(t.ConfDir), fName)
}

// GenChainDataPath is where the stores of chain bcName live.
func (t *EnvConf) GenChainDataPath(bcName string) string {
	return filepath.Join(t.GenDataAbsPath(t.ChainDir), bcName)
}

func (t *EnvConf) loadConf(cfgFile string) error {
	if cfgFile == "" || !utils.FileIsExist(cfgFile) {
		return nil
	}

	viperObj := viper.New()
	viperObj.SetConfigFile(cfgFile)
	err := viperObj.ReadInConfig()
	if err != nil {
		return fmt.Errorf("read config failed.path:%s,err:%v", cfgFile, err)
	}

	if err = viperObj.Unmarshal(t); err != nil {
		return fmt.Errorf("unmatshal config failed.path:%s,err:%v", cfgFile, err)
	}

	return nil
}
