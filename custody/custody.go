package custody

import (
	"context"
	"errors"
	"fmt"
)

// 托管错误（适配层统一错误，引擎据此区分失败原因）
var (
	ErrNotOwner    = errors.New("custody: caller not owner of asset")    // 卖家并不持有该NFT
	ErrNotApproved = errors.New("custody: engine not approved operator") // 卖家未授权引擎转移NFT
	ErrNotHeld     = errors.New("custody: asset not held by engine")     // 引擎当前未托管该NFT
)

// AssetRef NFT资产引用：（合约地址, TokenID）二元组
type AssetRef struct {
	Contract string `json:"contract"`
	TokenID  string `json:"token_id"`
}

// Key 资产唯一键（用于分布式锁、托管登记）
func (r AssetRef) Key() string {
	return fmt.Sprintf("%s:%s", r.Contract, r.TokenID)
}

// Adapter NFT托管适配器
// Lock将NFT从owner转入引擎托管；Release将托管的NFT转给to。
// 这两个调用是结算原子性的边界：要么与拍卖状态更新一起全部生效，要么一起回滚。
type Adapter interface {
	// Owner 查询NFT当前持有者地址
	Owner(ctx context.Context, ref AssetRef) (string, error)
	// Lock 将NFT从owner转入引擎托管（owner非持有者返回ErrNotOwner，未授权返回ErrNotApproved）
	Lock(ctx context.Context, owner string, ref AssetRef) error
	// Release 将引擎托管的NFT转给to（引擎未托管时返回ErrNotHeld）
	Release(ctx context.Context, ref AssetRef, to string) error
}
