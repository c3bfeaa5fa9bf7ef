package engine

import (
	"context"
	"time"

	"nft_auction/custody"
	"nft_auction/dao"
	"nft_auction/ledger"
	"nft_auction/model"
	"nft_auction/utils"

	"gorm.io/gorm"
)

// CreateAuctionReq 创建拍卖请求
type CreateAuctionReq struct {
	Seller      string `json:"seller"`
	Duration    int64  `json:"duration"`    // 拍卖时长（秒）
	StartPrice  string `json:"start_price"` // 起拍价（wei单位）
	NFTContract string `json:"nft_contract"`
	TokenID     string `json:"token_id"`
}

// Engine 拍卖状态机
// 每个调用要么全部生效要么全部拒绝，拒绝不产生任何可见副作用。
type Engine interface {
	// CreateAuction 创建拍卖：把NFT拉入引擎托管并登记新拍卖记录，返回顺序分配的拍卖ID
	CreateAuction(ctx context.Context, req CreateAuctionReq) (uint64, error)
	// PlaceBid 出价：窗口内严格加价，被超越者的资金转入可领取余额
	PlaceBid(ctx context.Context, auctionID uint64, bidder, amount string) error
	// EndAuction 结束拍卖：窗口过后任何人可调用，原子完成状态翻转、NFT释放与资金结算
	EndAuction(ctx context.Context, auctionID uint64) error
	// GetAuction 查询拍卖记录（只读投影）
	GetAuction(ctx context.Context, auctionID uint64) (*model.Auction, error)
	// Claim 领取调用者的全部可领取余额，返回领取金额
	Claim(ctx context.Context, addr string) (string, error)
	// Version 引擎逻辑版本
	Version() int
}

// Locker 互斥锁抽象（生产环境用redsync分布式锁，测试用进程内实现）
type Locker interface {
	// Acquire 获取key上的互斥锁，返回释放函数
	Acquire(ctx context.Context, key string, ttl time.Duration) (func() error, error)
}

// noopLocker 空实现（单实例/测试场景，依赖DB事务自身的串行化）
type noopLocker struct{}

func (noopLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func() error, error) {
	return func() error { return nil }, nil
}

// Deps 引擎依赖（登记处与适配器显式注入，不走包级全局状态）
type Deps struct {
	DB       *gorm.DB
	Registry *dao.AuctionRegistry
	Custody  custody.Adapter
	Ledger   *ledger.FundsLedger
	ChainID  int

	// Locker 互斥锁（可选，缺省为进程内空锁）
	Locker Locker
	// Deadlines 到期扫描索引（可选，nil则不登记）
	Deadlines dao.DeadlineIndex
	// Publish 结算事件发布（可选，nil则不发布）
	Publish func(ctx context.Context, evt utils.SettlementEvent) error
	// Now 时钟注入（测试用，缺省time.Now）
	Now func() time.Time
}
