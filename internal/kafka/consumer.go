package kafka

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

// MessageHandler 消息处理函数，返回错误时消息不标记，等待重投
type MessageHandler func(ctx context.Context, message *sarama.ConsumerMessage) error

// Consumer Kafka消费者
type Consumer struct {
	consumer sarama.ConsumerGroup
	groupID  string
	topics   []string
	logger   *zap.Logger

	mu       sync.RWMutex
	handlers map[string]MessageHandler

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewConsumer 创建消费者组，需调用 Start 开始消费
func NewConsumer(brokers []string, groupID string, topics []string, logger *zap.Logger) (*Consumer, error) {
	config := sarama.NewConfig()
	config.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	config.Consumer.Offsets.Initial = sarama.OffsetOldest
	config.Consumer.Return.Errors = true
	config.Version = sarama.V2_6_0_0

	group, err := sarama.NewConsumerGroup(brokers, groupID, config)
	if err != nil {
		return nil, fmt.Errorf("创建Kafka消费者组失败: %w", err)
	}

	c := newConsumer(group, groupID, topics, logger)
	c.logger.Info("Kafka消费者初始化成功",
		zap.Strings("brokers", brokers),
		zap.String("group_id", groupID),
		zap.Strings("topics", topics))
	return c, nil
}

func newConsumer(group sarama.ConsumerGroup, groupID string, topics []string, logger *zap.Logger) *Consumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Consumer{
		consumer: group,
		groupID:  groupID,
		topics:   topics,
		logger:   logger,
		handlers: make(map[string]MessageHandler),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// RegisterHandler 注册消息处理器
func (c *Consumer) RegisterHandler(topic string, handler MessageHandler) {
	c.mu.Lock()
	c.handlers[topic] = handler
	c.mu.Unlock()
	c.logger.Info("注册Kafka消息处理器", zap.String("topic", topic))
}

func (c *Consumer) handler(topic string) (MessageHandler, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	h, ok := c.handlers[topic]
	return h, ok
}

// Start 启动消费循环
func (c *Consumer) Start() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		handler := &consumerGroupHandler{consumer: c}
		for {
			if err := c.consumer.Consume(c.ctx, c.topics, handler); err != nil {
				c.logger.Error("消费消息失败", zap.Error(err))
				select {
				case <-c.ctx.Done():
				case <-time.After(5 * time.Second):
				}
			}
			if c.ctx.Err() != nil {
				c.logger.Info("Kafka消费者停止")
				return
			}
		}
	}()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for err := range c.consumer.Errors() {
			c.logger.Error("Kafka消费者错误", zap.Error(err))
		}
	}()
}

// Close 关闭消费者
func (c *Consumer) Close() error {
	if c == nil {
		return nil
	}
	c.cancel()
	var err error
	if c.consumer != nil {
		// 关闭后 Errors 通道才会结束
		err = c.consumer.Close()
	}
	c.wg.Wait()
	return err
}

// consumerGroupHandler 消费者组处理器
type consumerGroupHandler struct {
	consumer *Consumer
}

// Setup 会话开始
func (h *consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error {
	return nil
}

// Cleanup 会话结束
func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim 消费消息
func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok || message == nil {
				return nil
			}
			h.dispatch(session, message)
		case <-session.Context().Done():
			return nil
		}
	}
}

func (h *consumerGroupHandler) dispatch(session sarama.ConsumerGroupSession, message *sarama.ConsumerMessage) {
	log := h.consumer.logger

	handler, ok := h.consumer.handler(message.Topic)
	if !ok {
		log.Warn("未找到消息处理器", zap.String("topic", message.Topic))
		session.MarkMessage(message, "")
		return
	}

	if err := handler(session.Context(), message); err != nil {
		log.Error("处理消息失败",
			zap.String("topic", message.Topic),
			zap.Int32("partition", message.Partition),
			zap.Int64("offset", message.Offset),
			zap.Error(err))
		return
	}

	session.MarkMessage(message, "")
	log.Debug("消息处理成功",
		zap.String("topic", message.Topic),
		zap.Int32("partition", message.Partition),
		zap.Int64("offset", message.Offset))
}
