package def

// 引擎常量配置
const (
	// 引擎名
	BCEngineName = "xuperos"
	// 出块私钥文件后缀
	KeyFileSuffix = ".key"
)

// PushState tells where a transaction pushed into the pending state came from.
type PushState int

const (
	// 本地提交
	FromMe PushState = iota
	// 网络转发
	FromNet
	// 新块到达后重放未打包交易，只检查TaPoS和过期时间
	RePush
	// 回滚区块中的交易
	PopBlock
)

func (s PushState) String() string {
	switch s {
	case FromMe:
		return "from_me"
	case FromNet:
		return "from_net"
	case RePush:
		return "re_push"
	case PopBlock:
		return "pop_block"
	}
	return "unknown"
}
