package dao

import (
	"context"
	"strconv"
	"time"

	"nft_auction/utils"

	"github.com/go-redis/redis/v8"
)

// 到期索引：ZSet，member为拍卖ID，score为窗口截止时间（unix秒）。
// 仅作为结算扫描的加速索引，拍卖真实状态以MySQL中的登记记录为准。
const auctionDeadlineKey = "nft_auction:deadlines"

// DeadlineIndex 拍卖到期索引
type DeadlineIndex interface {
	Add(ctx context.Context, seqID uint64, deadline time.Time) error
	Due(ctx context.Context, now time.Time) ([]uint64, error)
	Remove(ctx context.Context, seqID uint64) error
}

// RedisDeadlineIndex 基于Redis ZSet的到期索引实现
type RedisDeadlineIndex struct{}

// Add 登记拍卖截止时间
func (RedisDeadlineIndex) Add(ctx context.Context, seqID uint64, deadline time.Time) error {
	return utils.RedisClient.ZAdd(ctx, auctionDeadlineKey, &redis.Z{
		Score:  float64(deadline.Unix()),
		Member: strconv.FormatUint(seqID, 10),
	}).Err()
}

// Due 获取截止时间已过的拍卖ID（score <= now）
func (RedisDeadlineIndex) Due(ctx context.Context, now time.Time) ([]uint64, error) {
	members, err := utils.RedisClient.ZRangeByScore(ctx, auctionDeadlineKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.Unix(), 10),
	}).Result()
	if err != nil {
		return nil, err
	}

	ids := make([]uint64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseUint(m, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Remove 结算完成后从索引移除
func (RedisDeadlineIndex) Remove(ctx context.Context, seqID uint64) error {
	return utils.RedisClient.ZRem(ctx, auctionDeadlineKey, strconv.FormatUint(seqID, 10)).Err()
}
