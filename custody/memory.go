package custody

import (
	"context"
	"sync"
)

// MemoryAdapter 内存托管适配器（本地开发与测试用，语义与链上适配器一致）
type MemoryAdapter struct {
	mu         sync.Mutex
	engineAddr string
	owners     map[AssetRef]string        // 资产 -> 持有者
	operators  map[string]map[string]bool // 持有者 -> operator -> 是否授权
}

// NewMemoryAdapter 创建内存托管适配器
func NewMemoryAdapter(engineAddr string) *MemoryAdapter {
	return &MemoryAdapter{
		engineAddr: engineAddr,
		owners:     make(map[AssetRef]string),
		operators:  make(map[string]map[string]bool),
	}
}

// Mint 铸造NFT给owner（测试辅助）
func (m *MemoryAdapter) Mint(owner string, ref AssetRef) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.owners[ref] = owner
}

// SetApprovalForAll 持有者授权/撤销operator（对应ERC721的setApprovalForAll）
func (m *MemoryAdapter) SetApprovalForAll(owner, operator string, approved bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.operators[owner] == nil {
		m.operators[owner] = make(map[string]bool)
	}
	m.operators[owner][operator] = approved
}

// Owner 查询NFT当前持有者
func (m *MemoryAdapter) Owner(ctx context.Context, ref AssetRef) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.owners[ref], nil
}

// Lock 将NFT从owner转入引擎托管
func (m *MemoryAdapter) Lock(ctx context.Context, owner string, ref AssetRef) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.owners[ref] != owner {
		return ErrNotOwner
	}
	if !m.operators[owner][m.engineAddr] {
		return ErrNotApproved
	}
	m.owners[ref] = m.engineAddr
	return nil
}

// Release 将引擎托管的NFT转给to
func (m *MemoryAdapter) Release(ctx context.Context, ref AssetRef, to string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.owners[ref] != m.engineAddr {
		return ErrNotHeld
	}
	m.owners[ref] = to
	return nil
}
