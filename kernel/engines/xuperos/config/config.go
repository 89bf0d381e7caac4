package config

import (
	"fmt"

	"github.com/docker/go-units"
	"github.com/spf13/viper"

	"github.com/xuperchain/xupergraph/lib/utils"
	"github.com/xuperchain/xupergraph/protos"
)

const (
	DefaultRootChain      = "xgraph"
	DefaultKeyPath        = "data/keys" // witness key path
	DefaultMaxPendingSize = 100000
	DefaultRebroadcastTPS = 1.0
	DefaultMinParticipate = 33
)

type EngineConf struct {
	// root chain name
	RootChain string `yaml:"rootChain,omitempty"`
	// 本地出块大小上限，如 "2MB"，不超过链参数；为空时只受链参数限制
	MaxBlockSize string `yaml:"maxBlockSize,omitempty"`
	// 未确认交易池大小
	MaxPendingSize int `yaml:"maxPendingSize,omitempty"`
	// 可回滚的最大区块数
	MaxUndoHistory uint32 `yaml:"maxUndoHistory,omitempty"`
	// 节点级跳过的校验，如 transaction_signatures, tapos_check
	SkipFlags   []string          `yaml:"skipFlags,omitempty"`
	Rebroadcast RebroadcastConfig `yaml:"rebroadcast,omitempty"`
	Contract    ContractConfig    `yaml:"contract,omitempty"`
	Miner       MinerConfig       `yaml:"miner,omitempty"`
}

// RebroadcastConfig limits how often the pending transactions are rebroadcast
// after the head moves.
type RebroadcastConfig struct {
	// 每秒允许的重广播次数
	Rate  float64 `yaml:"rate,omitempty"`
	Burst int     `yaml:"burst,omitempty"`
}

type ContractConfig struct {
	// 合约过程值加密密钥，为空时使用默认值
	CipherKey      string `yaml:"cipherKey,omitempty"`
	CallStackSize  int    `yaml:"callStackSize,omitempty"`
	RegistrySize   int    `yaml:"registrySize,omitempty"`
	ProtoCacheSize int    `yaml:"protoCacheSize,omitempty"`
}

// MinerConfig is the config of the block producer
type MinerConfig struct {
	Enable bool `yaml:"enable,omitempty"`
	// 本节点负责出块的见证人账户名
	Witnesses []string `yaml:"witnesses,omitempty"`
	KeyPath   string   `yaml:"keypath,omitempty"`
	// 参与率低于该百分比时停止出块
	MinParticipation uint32 `yaml:"minParticipation,omitempty"`
}

// LoadEngineConf reads cfgFile over the defaults. A missing file leaves the
// defaults in place.
func LoadEngineConf(cfgFile string) (*EngineConf, error) {
	cfg := GetDefEngineConf()
	err := cfg.loadConf(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load engine config failed.err:%s", err)
	}
	if _, err := cfg.MaxBlockSizeBytes(); err != nil {
		return nil, fmt.Errorf("load engine config failed.err:%s", err)
	}

	return cfg, nil
}

func GetDefEngineConf() *EngineConf {
	return &EngineConf{
		RootChain:      DefaultRootChain,
		MaxPendingSize: DefaultMaxPendingSize,
		MaxUndoHistory: protos.MaxUndoHistory,
		Rebroadcast: RebroadcastConfig{
			Rate:  DefaultRebroadcastTPS,
			Burst: 1,
		},
		Miner: MinerConfig{
			KeyPath:          DefaultKeyPath,
			MinParticipation: DefaultMinParticipate,
		},
	}
}

// MaxBlockSizeBytes parses MaxBlockSize, 0 when unset.
func (t *EngineConf) MaxBlockSizeBytes() (int64, error) {
	if t.MaxBlockSize == "" {
		return 0, nil
	}
	n, err := units.RAMInBytes(t.MaxBlockSize)
	if err != nil {
		return 0, fmt.Errorf("bad maxBlockSize %q: %v", t.MaxBlockSize, err)
	}
	return n, nil
}

func (t *EngineConf) loadConf(cfgFile string) error {
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
