package mq

import "context"

// Producer 生产者接口
type Producer interface {
	// Publish 发送消息
	// key: 用于分区排序 (Partition Key)，这里传运行指纹，同一次运行的事件有序
	Publish(ctx context.Context, topic string, key string, payload []byte) error
}

// NopProducer 没配置消息队列时的空实现
type NopProducer struct{}

func (NopProducer) Publish(ctx context.Context, topic string, key string, payload []byte) error {
	return nil
}
