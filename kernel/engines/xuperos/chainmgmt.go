package xuperos

import (
	"fmt"
	"sort"
	"sync"

	"github.com/xuperchain/xupergraph/kernel/engines/xuperos/def"
	"github.com/xuperchain/xupergraph/lib/logs"
)

// ChainManagerImpl 用于管理链操作
type ChainManagerImpl struct {
	// 链实例
	chains sync.Map
	engCtx *def.EngineCtx
	log    logs.Logger
}

func (m *ChainManagerImpl) Get(chainName string) (*Chain, error) {
	c, ok := m.chains.Load(chainName)
	if !ok {
		return nil, def.ErrBlockChainNotExist
	}
	return c.(*Chain), nil
}

func (m *ChainManagerImpl) Put(chainName string, chain *Chain) {
	m.chains.Store(chainName, chain)
}

func (m *ChainManagerImpl) GetChains() []string {
	var chains []string
	m.chains.Range(func(key, value interface{}) bool {
		chains = append(chains, key.(string))
		return true
	})
	sort.Strings(chains)
	return chains
}

func (m *ChainManagerImpl) StartChains(wg *sync.WaitGroup) {
	m.chains.Range(func(k, v interface{}) bool {
		chainHD := v.(*Chain)
		m.log.Trace("start chain " + k.(string))

		wg.Add(1)
		go func() {
			defer wg.Done()

			// 启动链，阻塞到Stop
			chainHD.Start()
			m.log.Trace("chain " + k.(string) + " exit")
		}()

		return true
	})
}

// StopChains stops every chain in parallel and waits for all of them.
func (m *ChainManagerImpl) StopChains() {
	var wg sync.WaitGroup
	m.chains.Range(func(k, v interface{}) bool {
		wg.Add(1)
		go func(name string, c *Chain) {
			defer wg.Done()
			c.Stop()
			m.log.Trace("chain " + name + " closed")
		}(k.(string), v.(*Chain))
		return true
	})
	wg.Wait()
}

// UnloadChain stops chainName and forgets it. Its data stays on disk.
func (m *ChainManagerImpl) UnloadChain(chainName string) error {
	v, ok := m.chains.LoadAndDelete(chainName)
	if !ok {
		return def.ErrBlockChainNotExist
	}
	v.(*Chain).Stop()
	m.log.Info("chain unloaded", "chain_name", chainName)
	return nil
}

// LoadChain opens chainName and keeps it. The chain is not started.
func (m *ChainManagerImpl) LoadChain(chainName string) error {
	if _, ok := m.chains.Load(chainName); ok {
		return def.ErrBlockChainExist
	}
	chain, err := LoadChain(m.engCtx, chainName)
	if err != nil {
		m.log.Error("load chain failed", "error", err, "chain_name", chainName)
		return fmt.Errorf("load chain %s failed: %v", chainName, err)
	}
	m.Put(chainName, chain)
	return nil
}
