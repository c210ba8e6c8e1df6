package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"devconnect/internal/config"
	"devconnect/internal/devtypes"
	"devconnect/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	aliceID = uint(1)
	bobID   = uint(2)
	caroID  = uint(3)
)

type connectionFixture struct {
	svc      ConnectionService
	profiles *fakeProfileRepo
	requests *fakeRequestRepo
	conns    *fakeConnectionRepo
	producer *fakeProducer
	notifier *fakeNotifier
}

func newConnectionFixture() *connectionFixture {
	f := &connectionFixture{
		profiles: newFakeProfileRepo(testProfile(aliceID, "alice"), testProfile(bobID, "bob"), testProfile(caroID, "caro")),
		requests: newFakeRequestRepo(),
		conns:    newFakeConnectionRepo(),
		producer: &fakeProducer{},
		notifier: &fakeNotifier{},
	}
	cfg := config.KafkaConfig{ConnectionAcceptedTopic: "test-connection-accepted"}
	f.svc = NewConnectionService(f.profiles, f.requests, f.conns, f.producer, cfg, f.notifier)
	return f
}

func TestConnectCreatesPendingRequest(t *testing.T) {
	f := newConnectionFixture()
	ctx := context.Background()

	request, err := f.svc.Connect(ctx, aliceID, bobID)
	require.NoError(t, err)
	require.NotNil(t, request)
	assert.Equal(t, models.ConnectionRequestStatusPending, request.Status)
	assert.Equal(t, aliceID, request.SenderID)
	assert.Equal(t, bobID, request.ReceiverID)

	// 发送者视角: pending-sent, 带可撤回的请求ID
	status := f.svc.ResolveStatus(ctx, aliceID, bobID)
	assert.Equal(t, models.ConnectionStatePendingSent, status.State)
	assert.Equal(t, request.ID, status.RequestID)

	// 接收者视角: 请求出现在收件箱, 但状态仍是 none
	status = f.svc.ResolveStatus(ctx, bobID, aliceID)
	assert.Equal(t, models.ConnectionStateNone, status.State)
	assert.Zero(t, status.RequestID)

	incoming, err := f.svc.ListIncoming(ctx, bobID)
	require.NoError(t, err)
	require.Len(t, incoming, 1)
	assert.Equal(t, "alice", incoming[0].Sender.Username)

	// 变更事件: 一条 connection_requests insert
	events := f.notifier.eventsFor(devtypes.TableConnectionRequests)
	require.Len(t, events, 1)
	assert.Equal(t, devtypes.ChangeActionInsert, events[0].Action)
	assert.True(t, events[0].InvolvesPair(aliceID, bobID))
}

func TestConnectValidations(t *testing.T) {
	f := newConnectionFixture()
	ctx := context.Background()

	_, err := f.svc.Connect(ctx, aliceID, aliceID)
	assert.ErrorIs(t, err, ErrConnectSelf)

	_, err = f.svc.Connect(ctx, aliceID, 999)
	assert.ErrorIs(t, err, ErrReceiverNotFound)

	// 待处理请求存在时, 两个方向都不允许再次发起
	_, err = f.svc.Connect(ctx, aliceID, bobID)
	require.NoError(t, err)
	_, err = f.svc.Connect(ctx, aliceID, bobID)
	assert.ErrorIs(t, err, ErrRequestPending)
	_, err = f.svc.Connect(ctx, bobID, aliceID)
	assert.ErrorIs(t, err, ErrRequestPending)

	// 已连接的配对不允许发起请求
	_, err = f.conns.CreatePair(ctx, aliceID, caroID)
	require.NoError(t, err)
	_, err = f.svc.Connect(ctx, aliceID, caroID)
	assert.ErrorIs(t, err, ErrAlreadyConnected)
}

func TestConnectSelfHealsStaleRow(t *testing.T) {
	f := newConnectionFixture()
	ctx := context.Background()

	// 上一轮工作流留下的已拒绝行仍占用唯一索引
	stale := f.requests.seed(aliceID, bobID, models.ConnectionRequestStatusRejected)

	request, err := f.svc.Connect(ctx, aliceID, bobID)
	require.NoError(t, err)
	require.NotNil(t, request)
	assert.NotEqual(t, stale.ID, request.ID)
	assert.Equal(t, models.ConnectionRequestStatusPending, request.Status)

	// 旧行已被清除
	_, ok := f.requests.rows[stale.ID]
	assert.False(t, ok)

	status := f.svc.ResolveStatus(ctx, aliceID, bobID)
	assert.Equal(t, models.ConnectionStatePendingSent, status.State)
}

func TestConnectSelfHealClearsBothDirections(t *testing.T) {
	f := newConnectionFixture()
	ctx := context.Background()

	// 两个方向都留有旧行 (例如双方都曾被拒绝过)
	f.requests.seed(aliceID, bobID, models.ConnectionRequestStatusRejected)
	f.requests.seed(bobID, aliceID, models.ConnectionRequestStatusRejected)

	request, err := f.svc.Connect(ctx, aliceID, bobID)
	require.NoError(t, err)
	assert.Len(t, f.requests.rows, 1)
	assert.Equal(t, request.ID, func() uint {
		for id := range f.requests.rows {
			return id
		}
		return 0
	}())
}

func TestWithdraw(t *testing.T) {
	f := newConnectionFixture()
	ctx := context.Background()

	request, err := f.svc.Connect(ctx, aliceID, bobID)
	require.NoError(t, err)

	// 只有发送者可以撤回
	err = f.svc.Withdraw(ctx, bobID, request.ID)
	assert.ErrorIs(t, err, ErrNotRequestSender)

	err = f.svc.Withdraw(ctx, aliceID, request.ID)
	require.NoError(t, err)

	// 行已物理删除, 配对立即可以重新发起
	assert.Empty(t, f.requests.rows)
	status := f.svc.ResolveStatus(ctx, aliceID, bobID)
	assert.Equal(t, models.ConnectionStateNone, status.State)

	_, err = f.svc.Connect(ctx, bobID, aliceID)
	require.NoError(t, err)

	// 再次撤回同一请求ID: 不存在
	err = f.svc.Withdraw(ctx, aliceID, request.ID)
	assert.ErrorIs(t, err, ErrRequestNotFound)
}

func TestAcceptPublishesKafkaEvent(t *testing.T) {
	f := newConnectionFixture()
	ctx := context.Background()

	request, err := f.svc.Connect(ctx, aliceID, bobID)
	require.NoError(t, err)

	// 发送者不能接受自己的请求
	err = f.svc.Accept(ctx, aliceID, request.ID)
	assert.ErrorIs(t, err, ErrNotRequestReceiver)

	err = f.svc.Accept(ctx, bobID, request.ID)
	require.NoError(t, err)

	// 请求状态已更新, 但 connections 行由消费端物化, 此处不出现
	assert.Equal(t, models.ConnectionRequestStatusAccepted, f.requests.rows[request.ID].Status)
	assert.Empty(t, f.conns.rows)

	require.Len(t, f.producer.payloads, 1)
	assert.Equal(t, "test-connection-accepted", f.producer.topics[0])

	var event devtypes.ConnectionAcceptedEvent
	require.NoError(t, json.Unmarshal(f.producer.payloads[0], &event))
	assert.Equal(t, request.ID, event.RequestID)
	assert.Equal(t, aliceID, event.SenderID)
	assert.Equal(t, bobID, event.ReceiverID)

	// 已接受的请求不能再接受或拒绝
	err = f.svc.Accept(ctx, bobID, request.ID)
	assert.ErrorIs(t, err, ErrRequestNotPending)
	err = f.svc.Reject(ctx, bobID, request.ID)
	assert.ErrorIs(t, err, ErrRequestNotPending)
}

func TestAcceptKeepsRequestPendingOnProducerError(t *testing.T) {
	f := newConnectionFixture()
	ctx := context.Background()

	request, err := f.svc.Connect(ctx, aliceID, bobID)
	require.NoError(t, err)

	f.producer.err = errors.New("broker unavailable")
	err = f.svc.Accept(ctx, bobID, request.ID)
	require.Error(t, err)
}

func TestRejectRetainsRow(t *testing.T) {
	f := newConnectionFixture()
	ctx := context.Background()

	request, err := f.svc.Connect(ctx, aliceID, bobID)
	require.NoError(t, err)

	err = f.svc.Reject(ctx, bobID, request.ID)
	require.NoError(t, err)

	// 行保留, 状态为 rejected; 派生状态回到 none
	row, ok := f.requests.rows[request.ID]
	require.True(t, ok)
	assert.Equal(t, models.ConnectionRequestStatusRejected, row.Status)

	status := f.svc.ResolveStatus(ctx, aliceID, bobID)
	assert.Equal(t, models.ConnectionStateNone, status.State)

	// 收件箱里也不再出现
	incoming, err := f.svc.ListIncoming(ctx, bobID)
	require.NoError(t, err)
	assert.Empty(t, incoming)

	// 之后重新发起会经由自愈路径成功
	again, err := f.svc.Connect(ctx, aliceID, bobID)
	require.NoError(t, err)
	assert.Equal(t, models.ConnectionRequestStatusPending, again.Status)
}

func TestRemoveConnectionDeletesBothHalves(t *testing.T) {
	f := newConnectionFixture()
	ctx := context.Background()

	rows, err := f.conns.CreatePair(ctx, aliceID, bobID)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	// 非参与者不能删除
	err = f.svc.RemoveConnection(ctx, caroID, rows[0].ID)
	assert.ErrorIs(t, err, ErrNotConnectionParticipant)

	// 任一参与者都可以删除, 即使持有的是对方的半行
	err = f.svc.RemoveConnection(ctx, bobID, rows[0].ID)
	require.NoError(t, err)
	assert.Empty(t, f.conns.rows)

	// 双方视角都回到 none
	assert.Equal(t, models.ConnectionStateNone, f.svc.ResolveStatus(ctx, aliceID, bobID).State)
	assert.Equal(t, models.ConnectionStateNone, f.svc.ResolveStatus(ctx, bobID, aliceID).State)

	err = f.svc.RemoveConnection(ctx, aliceID, rows[0].ID)
	assert.ErrorIs(t, err, ErrConnectionNotFound)
}

func TestResolveStatusFailSafe(t *testing.T) {
	f := newConnectionFixture()
	ctx := context.Background()

	_, err := f.svc.Connect(ctx, aliceID, bobID)
	require.NoError(t, err)

	// 存储故障时返回 none 而不是报错
	f.requests.err = errors.New("db down")
	status := f.svc.ResolveStatus(ctx, aliceID, bobID)
	assert.Equal(t, models.ConnectionStateNone, status.State)

	f.requests.err = nil
	f.conns.err = errors.New("db down")
	status = f.svc.ResolveStatus(ctx, caroID, bobID)
	assert.Equal(t, models.ConnectionStateNone, status.State)

	// 查看自己的资料也是 none
	f.conns.err = nil
	status = f.svc.ResolveStatus(ctx, aliceID, aliceID)
	assert.Equal(t, models.ConnectionStateNone, status.State)
}

func TestListOutgoingAndConnections(t *testing.T) {
	f := newConnectionFixture()
	ctx := context.Background()

	_, err := f.svc.Connect(ctx, aliceID, bobID)
	require.NoError(t, err)

	outgoing, err := f.svc.ListOutgoing(ctx, aliceID)
	require.NoError(t, err)
	require.Len(t, outgoing, 1)
	assert.Equal(t, "bob", outgoing[0].Receiver.Username)

	_, err = f.conns.CreatePair(ctx, aliceID, caroID)
	require.NoError(t, err)

	connections, err := f.svc.ListConnections(ctx, aliceID)
	require.NoError(t, err)
	require.Len(t, connections, 1)
	assert.Equal(t, "caro", connections[0].Profile.Username)

	// caro 只看到自己的半行
	connections, err = f.svc.ListConnections(ctx, caroID)
	require.NoError(t, err)
	require.Len(t, connections, 1)
	assert.Equal(t, "alice", connections[0].Profile.Username)
}
