package distributed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rl-arena/rl-arena-matchmaker/internal/matchmaking"
	"go.uber.org/zap"
)

// DefaultNotificationChannel 매칭 알림 채널
const DefaultNotificationChannel = "matchmaking:notifications"

// NotificationEnvelope 인스턴스 간 전달되는 매칭 알림
type NotificationEnvelope struct {
	PlayerID     string                        `json:"playerId"`
	Origin       string                        `json:"origin"`
	Notification matchmaking.MatchNotification `json:"notification"`
	PublishedAt  time.Time                     `json:"publishedAt"`
}

// DeliverFunc hands a notification to the local transport. Players that are not
// connected to this instance are ignored by the transport.
type DeliverFunc func(playerID string, notification matchmaking.MatchNotification) error

// RedisNotifier Redis Pub/Sub 기반 매칭 알림 팬아웃.
//
// Publish broadcasts to every instance, the publisher included, and each
// subscriber delivers to the websocket connections it holds. Satisfies
// matchmaking.Publisher.
type RedisNotifier struct {
	client     *redis.Client
	logger     *zap.Logger
	instanceID string
	channel    string

	stopOnce sync.Once
	stopChan chan struct{}
}

// NewRedisNotifier Redis 알림 팬아웃 생성
func NewRedisNotifier(client *redis.Client, channel string, logger *zap.Logger) *RedisNotifier {
	if channel == "" {
		channel = DefaultNotificationChannel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisNotifier{
		client:     client,
		logger:     logger,
		instanceID: uuid.New().String(),
		channel:    channel,
		stopChan:   make(chan struct{}),
	}
}

// Publish 매칭 알림 발행
func (n *RedisNotifier) Publish(ctx context.Context, playerID string, notification matchmaking.MatchNotification) error {
	data, err := json.Marshal(NotificationEnvelope{
		PlayerID:     playerID,
		Origin:       n.instanceID,
		Notification: notification,
		PublishedAt:  time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	if err := n.client.Publish(ctx, n.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}

	n.logger.Debug("Published match notification",
		zap.String("playerId", playerID),
		zap.String("matchId", notification.MatchID))
	return nil
}

// Start 알림 수신 시작. Blocks until Stop is called or ctx is done.
func (n *RedisNotifier) Start(ctx context.Context, deliver DeliverFunc) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	pubsub := n.client.Subscribe(ctx, n.channel)
	defer pubsub.Close()

	// 구독 확인
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	n.logger.Info("Match notifier subscribed",
		zap.String("instanceId", n.instanceID),
		zap.String("channel", n.channel))

	ch := pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			n.handle(msg.Payload, deliver)

		case <-n.stopChan:
			n.logger.Info("Match notifier stopped")
			return nil

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Stop 알림 수신 중지
func (n *RedisNotifier) Stop() {
	n.stopOnce.Do(func() { close(n.stopChan) })
}

func (n *RedisNotifier) handle(payload string, deliver DeliverFunc) {
	var envelope NotificationEnvelope
	if err := json.Unmarshal([]byte(payload), &envelope); err != nil {
		n.logger.Error("Failed to unmarshal notification", zap.Error(err))
		return
	}

	if err := deliver(envelope.PlayerID, envelope.Notification); err != nil {
		n.logger.Warn("Failed to deliver notification",
			zap.String("playerId", envelope.PlayerID),
			zap.String("origin", envelope.Origin),
			zap.Error(err))
	}
}
