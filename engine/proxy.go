package engine

import (
	"context"
	"sync"

	"nft_auction/model"
	"nft_auction/utils"

	"go.uber.org/zap"
)

// Proxy 升级边界：对外暴露稳定入口，内部持有当前引擎实现的引用。
// Upgrade替换的只是逻辑——登记处里已存的记录与托管/资金适配器的绑定保持不变，
// 升级前创建、尚未结束的拍卖在新逻辑下照常结算。
type Proxy struct {
	mu      sync.RWMutex
	current Engine
}

// NewProxy 创建升级代理，绑定初始引擎实现
func NewProxy(initial Engine) *Proxy {
	return &Proxy{current: initial}
}

// Upgrade 切换到新引擎实现
// 约束：新实现对升级前已有字段的解释必须与旧实现一致，只允许追加带默认值的新字段。
func (p *Proxy) Upgrade(next Engine) {
	p.mu.Lock()
	old := p.current
	p.current = next
	p.mu.Unlock()

	utils.Logger.Info("引擎升级完成",
		zap.Int("from_version", old.Version()), zap.Int("to_version", next.Version()))
}

func (p *Proxy) engine() Engine {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

// CreateAuction 创建拍卖
func (p *Proxy) CreateAuction(ctx context.Context, req CreateAuctionReq) (uint64, error) {
	return p.engine().CreateAuction(ctx, req)
}

// PlaceBid 出价
func (p *Proxy) PlaceBid(ctx context.Context, auctionID uint64, bidder, amount string) error {
	return p.engine().PlaceBid(ctx, auctionID, bidder, amount)
}

// EndAuction 结束拍卖
func (p *Proxy) EndAuction(ctx context.Context, auctionID uint64) error {
	return p.engine().EndAuction(ctx, auctionID)
}

// GetAuction 查询拍卖记录
func (p *Proxy) GetAuction(ctx context.Context, auctionID uint64) (*model.Auction, error) {
	return p.engine().GetAuction(ctx, auctionID)
}

// Claim 领取可领取余额
func (p *Proxy) Claim(ctx context.Context, addr string) (string, error) {
	return p.engine().Claim(ctx, addr)
}

// Version 当前引擎逻辑版本
func (p *Proxy) Version() int {
	return p.engine().Version()
}
