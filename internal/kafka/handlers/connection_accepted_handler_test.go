package kafkahandlers

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"devconnect/internal/devtypes"
	"devconnect/internal/models"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type memConnectionRepo struct {
	nextID uint
	rows   map[uint]*models.Connection
	err    error
}

func newMemConnectionRepo() *memConnectionRepo {
	return &memConnectionRepo{nextID: 1, rows: make(map[uint]*models.Connection)}
}

func (r *memConnectionRepo) CreatePair(ctx context.Context, a, b uint) ([]models.Connection, error) {
	if r.err != nil {
		return nil, r.err
	}
	out := make([]models.Connection, 0, 2)
	for _, pair := range [][2]uint{{a, b}, {b, a}} {
		row := &models.Connection{OwnerID: pair[0], CounterpartID: pair[1]}
		row.ID = r.nextID
		r.nextID++
		r.rows[row.ID] = row
		out = append(out, *row)
	}
	return out, nil
}

func (r *memConnectionRepo) GetByID(ctx context.Context, id uint) (*models.Connection, error) {
	row, ok := r.rows[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return row, nil
}

func (r *memConnectionRepo) AreConnected(ctx context.Context, a, b uint) (bool, error) {
	if r.err != nil {
		return false, r.err
	}
	for _, row := range r.rows {
		if (row.OwnerID == a && row.CounterpartID == b) || (row.OwnerID == b && row.CounterpartID == a) {
			return true, nil
		}
	}
	return false, nil
}

func (r *memConnectionRepo) DeletePair(ctx context.Context, a, b uint) error {
	for id, row := range r.rows {
		if (row.OwnerID == a && row.CounterpartID == b) || (row.OwnerID == b && row.CounterpartID == a) {
			delete(r.rows, id)
		}
	}
	return nil
}

func (r *memConnectionRepo) ListForOwner(ctx context.Context, ownerID uint) ([]models.Connection, error) {
	var out []models.Connection
	for _, row := range r.rows {
		if row.OwnerID == ownerID {
			out = append(out, *row)
		}
	}
	return out, nil
}

type recordingNotifier struct {
	events []devtypes.ChangeEvent
}

func (n *recordingNotifier) Publish(event devtypes.ChangeEvent) {
	n.events = append(n.events, event)
}

func acceptedMessage(t *testing.T, event devtypes.ConnectionAcceptedEvent) *kafka.Message {
	t.Helper()
	payload, err := json.Marshal(event)
	require.NoError(t, err)
	topic := "test-connection-accepted"
	return &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: 0, Offset: 1},
		Key:            []byte("1-2"),
		Value:          payload,
	}
}

func TestHandleConnectionAcceptedMaterializesBothHalves(t *testing.T) {
	repo := newMemConnectionRepo()
	notifier := &recordingNotifier{}
	logic := NewConnectionAcceptedConsumerLogic(repo, notifier)

	msg := acceptedMessage(t, devtypes.ConnectionAcceptedEvent{RequestID: 7, SenderID: 1, ReceiverID: 2})
	require.NoError(t, logic.HandleConnectionAccepted(context.Background(), msg))

	require.Len(t, repo.rows, 2)
	connected, err := repo.AreConnected(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.True(t, connected)

	// 每条半行各发布一条 insert 事件
	require.Len(t, notifier.events, 2)
	for _, event := range notifier.events {
		assert.Equal(t, devtypes.TableConnections, event.Table)
		assert.Equal(t, devtypes.ChangeActionInsert, event.Action)
		assert.True(t, event.InvolvesPair(1, 2))
	}
}

func TestHandleConnectionAcceptedIsIdempotent(t *testing.T) {
	repo := newMemConnectionRepo()
	notifier := &recordingNotifier{}
	logic := NewConnectionAcceptedConsumerLogic(repo, notifier)

	msg := acceptedMessage(t, devtypes.ConnectionAcceptedEvent{RequestID: 7, SenderID: 1, ReceiverID: 2})
	require.NoError(t, logic.HandleConnectionAccepted(context.Background(), msg))
	// 重复投递: 已连接的配对不再插入, 也不再发布事件
	require.NoError(t, logic.HandleConnectionAccepted(context.Background(), msg))

	assert.Len(t, repo.rows, 2)
	assert.Len(t, notifier.events, 2)
}

func TestHandleConnectionAcceptedSkipsBadPayload(t *testing.T) {
	repo := newMemConnectionRepo()
	logic := NewConnectionAcceptedConsumerLogic(repo, &recordingNotifier{})

	topic := "test-connection-accepted"
	bad := &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic},
		Value:          []byte("not json"),
	}
	// 无法解析的消息要提交掉, 不能卡住分区
	assert.NoError(t, logic.HandleConnectionAccepted(context.Background(), bad))
	assert.Empty(t, repo.rows)

	// 缺参与者的事件同样跳过
	msg := acceptedMessage(t, devtypes.ConnectionAcceptedEvent{RequestID: 7, SenderID: 0, ReceiverID: 2})
	assert.NoError(t, logic.HandleConnectionAccepted(context.Background(), msg))
	assert.Empty(t, repo.rows)
}

func TestHandleConnectionAcceptedRetriesOnStoreError(t *testing.T) {
	repo := newMemConnectionRepo()
	repo.err = errors.New("db down")
	logic := NewConnectionAcceptedConsumerLogic(repo, &recordingNotifier{})

	msg := acceptedMessage(t, devtypes.ConnectionAcceptedEvent{RequestID: 7, SenderID: 1, ReceiverID: 2})
	// 存储故障要返回错误, 让消费者不提交 offset
	assert.Error(t, logic.HandleConnectionAccepted(context.Background(), msg))
}
