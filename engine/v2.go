package engine

import "context"

// engineV2 升级版拍卖状态机
// 与V1共享同一登记处、适配器与存储，对升级前已有列的解释与V1完全一致；
// 仅追加EndedAt列（V1写入的旧记录默认为NULL），由结算时落值。
// V1创建、未结束的拍卖必须能在V2下正确结算（升级回归约束）。
type engineV2 struct {
	*engineV1
}

// NewEngineV2 创建升级版拍卖引擎
func NewEngineV2(deps Deps) Engine {
	return &engineV2{engineV1: newEngineV1(deps)}
}

// Version 引擎逻辑版本
func (e *engineV2) Version() int {
	return 2
}

// EndAuction 结束拍卖（V2在结算时落EndedAt）
func (e *engineV2) EndAuction(ctx context.Context, auctionID uint64) error {
	return e.endAuction(ctx, auctionID, true)
}
