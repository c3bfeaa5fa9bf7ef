package engine

import "errors"

// 状态机错误。参数类错误重试无意义；时间类错误等窗口变化后可重试；
// 托管/资金类错误（custody包、ledger包）意味着适配层异常，应按致命告警处理。
var (
	// 参数校验错误
	ErrInvalidDuration = errors.New("engine: duration must be positive")
	ErrInvalidPrice    = errors.New("engine: invalid price amount")

	// 状态错误
	ErrAuctionNotFound     = errors.New("engine: auction not found")
	ErrAuctionNotOpen      = errors.New("engine: auction not open")
	ErrAuctionExpired      = errors.New("engine: bidding window closed")
	ErrAuctionStillRunning = errors.New("engine: bidding window still running")

	// 出价错误
	ErrBidTooLow = errors.New("engine: bid not higher than current max price")

	// 同一NFT已在进行中的拍卖里托管
	ErrAssetEscrowed = errors.New("engine: asset already escrowed in an open auction")
)
