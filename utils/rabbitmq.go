package utils

import (
	"context"
	"encoding/json"
	"time"

	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

var RabbitMQConn *amqp.Connection
var RabbitMQChannel *amqp.Channel

// SettlementEvent 结算事件（EndAuction提交成功后发布，消费者落审计账本）
type SettlementEvent struct {
	AuctionID uint64    `json:"auction_id"`
	Seller    string    `json:"seller"`
	Winner    string    `json:"winner"` // 流拍为空
	Price     string    `json:"price"`  // 成交价（wei单位，流拍为0）
	ChainID   int       `json:"chain_id"`
	SettledAt time.Time `json:"settled_at"`
}

// InitRabbitMQ 初始化RabbitMQ
func InitRabbitMQ(url string) error {
	// 建立连接
	conn, err := amqp.Dial(url)
	if err != nil {
		return err
	}
	RabbitMQConn = conn

	// 建立通道
	ch, err := conn.Channel()
	if err != nil {
		return err
	}
	RabbitMQChannel = ch

	// 声明交换机和队列
	err = declareExchangeAndQueue()
	if err != nil {
		return err
	}

	return nil
}

// 声明交换机和队列（结算审计队列）
func declareExchangeAndQueue() error {
	// 声明交换机
	err := RabbitMQChannel.ExchangeDeclare(
		"nft_auction_exchange", // 交换机名
		"direct",               // 类型
		true,                   // 持久化
		false,                  // 自动删除
		false,                  // 内部
		false,                  // 等待
		nil,                    // 参数
	)
	if err != nil {
		return err
	}

	// 声明队列
	_, err = RabbitMQChannel.QueueDeclare(
		"nft_auction_settle_queue", // 队列名
		true,                       // 持久化
		false,                      // 自动删除
		false,                      // 排他
		false,                      // 等待
		nil,                        // 参数
	)
	if err != nil {
		return err
	}

	// 绑定队列到交换机
	err = RabbitMQChannel.QueueBind(
		"nft_auction_settle_queue", // 队列名
		"auction.settled",          // 路由键
		"nft_auction_exchange",     // 交换机名
		false,
		nil,
	)
	if err != nil {
		return err
	}

	return nil
}

// PublishSettlementMsg 发布结算事件消息
func PublishSettlementMsg(ctx context.Context, evt SettlementEvent) error {
	// 序列化消息
	msg, err := json.Marshal(evt)
	if err != nil {
		return err
	}

	// 发布消息
	err = RabbitMQChannel.Publish(
		"nft_auction_exchange", // 交换机名
		"auction.settled",      // 路由键
		false,                  // 强制
		false,                  // 立即
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         msg,
			DeliveryMode: amqp.Persistent, // 持久化
			Timestamp:    time.Now(),
		},
	)
	return err
}

// ConsumeSettlementMsg 消费结算事件消息
func ConsumeSettlementMsg(handler func(evt SettlementEvent) error) error {
	msgs, err := RabbitMQChannel.Consume(
		"nft_auction_settle_queue", // 队列名
		"",                         // 消费者标签
		false,                      // 自动确认
		false,                      // 排他
		false,                      // 不本地
		false,                      // 等待
		nil,                        // 参数
	)
	if err != nil {
		return err
	}

	// 启动协程消费消息
	go func() {
		for d := range msgs {
			// 反序列化消息
			var evt SettlementEvent
			err := json.Unmarshal(d.Body, &evt)
			if err != nil {
				Logger.Error("消息反序列化失败", zap.Error(err))
				d.Nack(false, false) // 拒绝消息，不重新入队
				continue
			}

			// 处理消息
			err = handler(evt)
			if err != nil {
				Logger.Error("处理结算消息失败", zap.Uint64("auction_id", evt.AuctionID), zap.Error(err))
				d.Nack(false, true) // 拒绝消息，重新入队
			} else {
				d.Ack(false) // 确认消息
			}
		}
	}()

	return nil
}

// CloseRabbitMQ 关闭RabbitMQ连接
func CloseRabbitMQ() {
	if RabbitMQChannel != nil {
		RabbitMQChannel.Close()
	}
	if RabbitMQConn != nil {
		RabbitMQConn.Close()
	}
}
