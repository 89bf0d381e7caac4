package xutils

import (
	"os"
	"path/filepath"

	"github.com/xuperchain/xupergraph/lib/utils"
)

// 节点根目录环境变量，优先于配置
const RootPathEnv = "XGRAPH_ROOT_PATH"

// RootPathFromEnv returns XGRAPH_ROOT_PATH when it names an existing
// directory, "" otherwise.
func RootPathFromEnv() string {
	rtPath := os.Getenv(RootPathEnv)
	if rtPath == "" || !utils.FileIsExist(rtPath) {
		return ""
	}
	abs, err := filepath.Abs(rtPath)
	if err != nil {
		return rtPath
	}
	return abs
}

// BinaryRootDir is the parent of the directory holding the running binary,
// i.e. <root>/bin/xgraph gives <root>.
func BinaryRootDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(filepath.Dir(exe))
}
