// Package notify 通过 Redis Pub/Sub 向在线用户推送事件，WebSocket 处理器负责转发。
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// 消息类型，字段名与前端解析保持一致。
const (
	TypeApplicationStatus     = "application_status"
	TypeSavedSearchMatches    = "saved_search_matches"
	TypeRecommendationsUpdate = "recommendations_updated"
)

// Message 是统一的推送消息协议。
type Message struct {
	Type          string `json:"type"`
	ApplicationID uint   `json:"application_id,omitempty"`
	JobID         uint   `json:"job_id,omitempty"`
	Status        string `json:"status,omitempty"`
	SearchID      uint   `json:"search_id,omitempty"`
	NewMatches    int    `json:"new_matches,omitempty"`
	SubjectKind   string `json:"subject_kind,omitempty"`
	SubjectID     uint   `json:"subject_id,omitempty"`
}

// Publisher 向指定用户推送一条消息。
type Publisher interface {
	Publish(ctx context.Context, userID uint, msg Message) error
}

// Channel 返回用户的通知频道名。
func Channel(userID uint) string {
	return fmt.Sprintf("user_notify:%d", userID)
}

// RedisPublisher 基于 go-redis 的实现。
type RedisPublisher struct {
	client redis.UniversalClient
}

// NewRedisPublisher 构造 RedisPublisher。
func NewRedisPublisher(client redis.UniversalClient) *RedisPublisher {
	return &RedisPublisher{client: client}
}

func (p *RedisPublisher) Publish(ctx context.Context, userID uint, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification payload: %w", err)
	}
	channel := Channel(userID)
	if err := p.client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("publish redis notification to %q: %w", channel, err)
	}
	return nil
}

// Nop 丢弃所有消息。
type Nop struct{}

func (Nop) Publish(context.Context, uint, Message) error { return nil }

// Recorder 在内存中记录消息，供测试断言。
type Recorder struct {
	mu   sync.Mutex
	Sent map[uint][]Message
}

func NewRecorder() *Recorder {
	return &Recorder{Sent: map[uint][]Message{}}
}

func (r *Recorder) Publish(_ context.Context, userID uint, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Sent[userID] = append(r.Sent[userID], msg)
	return nil
}

// For 返回某用户收到的消息副本。
func (r *Recorder) For(userID uint) []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.Sent[userID]...)
}
