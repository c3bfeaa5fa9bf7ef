package model

import (
	"time"
)

// AuctionState 拍卖状态
type AuctionState int

const (
	AuctionStateOpen  AuctionState = 0 // 竞拍中
	AuctionStateEnded AuctionState = 1 // 已结束
)

// Auction 拍卖记录表（核心）
// 注意：该表的列布局跨引擎版本只增不改，新版本引擎只能追加带默认值的新列，
// 不能改变已有列对旧记录的含义（升级边界约束）。
type Auction struct {
	SeqID       uint64       `gorm:"primaryKey;autoIncrement:false;comment:拍卖ID（顺序分配，从0开始，永不复用）"`
	Seller      string       `gorm:"comment:卖家钱包地址"`
	NFTContract string       `gorm:"index:idx_auction_asset;comment:NFT合约地址"`
	TokenID     string       `gorm:"index:idx_auction_asset;comment:链上TokenID"`
	StartPrice  string       `gorm:"comment:起拍价（wei单位）"`
	StartTime   time.Time    `gorm:"comment:拍卖开始时间"`
	Duration    int64        `gorm:"comment:拍卖时长（秒）"`
	MaxBidder   string       `gorm:"comment:当前最高出价者地址（无人出价时为空）"`
	MaxPrice    string       `gorm:"comment:当前最高价（wei单位，无人出价时为起拍底价，不对应托管资金）"`
	State       AuctionState `gorm:"comment:0-竞拍中 1-已结束"`
	EscrowHeld  bool         `gorm:"comment:NFT是否仍由引擎托管"`
	ChainID     int          `gorm:"comment:所属链ID"`
	CreatedAt   time.Time    `gorm:"comment:创建时间"`
	UpdatedAt   time.Time    `gorm:"comment:更新时间"`

	// ---- V2新增列（只增不改，V1写入的旧记录默认为NULL） ----
	EndedAt *time.Time `gorm:"comment:结算完成时间（V2新增）"`
}

// TableName 表名
func (a *Auction) TableName() string {
	return "nft_auctions"
}

// Deadline 竞拍窗口截止时间（窗口为[StartTime, Deadline)，到点即关闭）
func (a *Auction) Deadline() time.Time {
	return a.StartTime.Add(time.Duration(a.Duration) * time.Second)
}

// AuctionCounter 拍卖ID分配表（单行计数器，NextID为下一个待分配ID）
type AuctionCounter struct {
	ID     int    `gorm:"primaryKey;comment:固定为1"`
	NextID uint64 `gorm:"comment:下一个待分配的拍卖ID"`
}

// TableName 表名
func (c *AuctionCounter) TableName() string {
	return "nft_auction_counters"
}

// BidDeposit 竞拍保证金表（引擎当前持有的最高出价资金，每个拍卖至多一条）
type BidDeposit struct {
	ID        uint64    `gorm:"primaryKey;comment:记录ID"`
	AuctionID uint64    `gorm:"uniqueIndex;comment:关联拍卖ID"`
	Bidder    string    `gorm:"comment:出价者钱包地址"`
	Amount    string    `gorm:"comment:托管金额（wei单位）"`
	CreatedAt time.Time `gorm:"comment:创建时间"`
	UpdatedAt time.Time `gorm:"comment:更新时间"`
}

// TableName 表名
func (d *BidDeposit) TableName() string {
	return "nft_bid_deposits"
}

// PendingReturn 可领取余额表（被超越出价者的退款与卖家结算款，pull模式，绝不主动推送）
type PendingReturn struct {
	ID        uint64    `gorm:"primaryKey;comment:记录ID"`
	Addr      string    `gorm:"uniqueIndex;comment:收款人钱包地址"`
	Amount    string    `gorm:"comment:累计可领取金额（wei单位）"`
	CreatedAt time.Time `gorm:"comment:创建时间"`
	UpdatedAt time.Time `gorm:"comment:更新时间"`
}

// TableName 表名
func (p *PendingReturn) TableName() string {
	return "nft_pending_returns"
}

// AssetEscrow NFT托管登记表（同一NFT在拍卖进行中不允许再次上拍）
type AssetEscrow struct {
	ID          uint64     `gorm:"primaryKey;comment:托管ID"`
	NFTContract string     `gorm:"index:idx_escrow_asset;comment:NFT合约地址"`
	TokenID     string     `gorm:"index:idx_escrow_asset;comment:链上TokenID"`
	AuctionID   uint64     `gorm:"comment:关联拍卖ID"`
	Held        bool       `gorm:"comment:是否托管中"`
	LockTime    time.Time  `gorm:"comment:托管开始时间"`
	ReleaseTime *time.Time `gorm:"comment:托管释放时间（NULL表示未释放）"`
	CreatedAt   time.Time  `gorm:"comment:创建时间"`
	UpdatedAt   time.Time  `gorm:"comment:更新时间"`
}

// TableName 表名
func (e *AssetEscrow) TableName() string {
	return "nft_asset_escrows"
}

// SettlementRecord 结算审计记录表（最终账本，由MQ消费者异步落库）
type SettlementRecord struct {
	ID        uint64    `gorm:"primaryKey;comment:记录ID"`
	SettleNo  string    `gorm:"uniqueIndex;comment:结算编号（UUID）"`
	AuctionID uint64    `gorm:"index;comment:关联拍卖ID"`
	Seller    string    `gorm:"comment:卖家钱包地址"`
	Winner    string    `gorm:"comment:中拍者钱包地址（流拍为空）"`
	Price     string    `gorm:"comment:成交价（wei单位，流拍为0）"`
	ChainID   int       `gorm:"comment:所属链ID"`
	SettledAt time.Time `gorm:"comment:结算完成时间"`
	CreatedAt time.Time `gorm:"comment:创建时间"`
	UpdatedAt time.Time `gorm:"comment:更新时间"`
}

// TableName 表名
func (s *SettlementRecord) TableName() string {
	return "nft_settlement_records"
}
