package realtime

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"devconnect/internal/devtypes"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub()
	go hub.Run()
	t.Cleanup(hub.Stop)
	return hub
}

func recvEvent(t *testing.T, c chan devtypes.ChangeEvent) devtypes.ChangeEvent {
	t.Helper()
	select {
	case event := <-c:
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("等待变更事件超时")
		return devtypes.ChangeEvent{}
	}
}

func assertNoEvent(t *testing.T, c chan devtypes.ChangeEvent) {
	t.Helper()
	select {
	case event := <-c:
		t.Fatalf("收到了不该匹配的事件: %+v", event)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHubDeliversMatchingEvents(t *testing.T) {
	hub := startHub(t)

	sub := hub.Subscribe(devtypes.EventFilter{Table: devtypes.TableConnectionRequests, PairA: 1, PairB: 2})
	defer sub.Close()

	hub.Publish(devtypes.ChangeEvent{
		Table:    devtypes.TableConnectionRequests,
		Action:   devtypes.ChangeActionInsert,
		RecordID: 10,
		UserA:    1,
		UserB:    2,
	})

	event := recvEvent(t, sub.C)
	assert.Equal(t, uint(10), event.RecordID)
}

func TestHubFiltersOutOtherPairsAndTables(t *testing.T) {
	hub := startHub(t)

	sub := hub.Subscribe(devtypes.EventFilter{Table: devtypes.TableConnectionRequests, PairA: 1, PairB: 2})
	defer sub.Close()

	// 别的配对
	hub.Publish(devtypes.ChangeEvent{Table: devtypes.TableConnectionRequests, UserA: 1, UserB: 3})
	// 同配对但别的表
	hub.Publish(devtypes.ChangeEvent{Table: devtypes.TableConnections, UserA: 1, UserB: 2})
	assertNoEvent(t, sub.C)

	// 方向相反也算同一配对
	hub.Publish(devtypes.ChangeEvent{Table: devtypes.TableConnectionRequests, RecordID: 11, UserA: 2, UserB: 1})
	event := recvEvent(t, sub.C)
	assert.Equal(t, uint(11), event.RecordID)
}

func TestHubMultipleFiltersAreORed(t *testing.T) {
	hub := startHub(t)

	sub := hub.Subscribe(
		devtypes.EventFilter{Table: devtypes.TableProfiles, ProfileID: 2},
		devtypes.EventFilter{Table: devtypes.TableConnections, PairA: 1, PairB: 2},
	)
	defer sub.Close()

	hub.Publish(devtypes.ChangeEvent{Table: devtypes.TableProfiles, RecordID: 2, UserA: 2})
	assert.Equal(t, devtypes.TableProfiles, recvEvent(t, sub.C).Table)

	hub.Publish(devtypes.ChangeEvent{Table: devtypes.TableConnections, RecordID: 5, UserA: 2, UserB: 1})
	assert.Equal(t, devtypes.TableConnections, recvEvent(t, sub.C).Table)

	// profiles 过滤器只看主体自己的记录
	hub.Publish(devtypes.ChangeEvent{Table: devtypes.TableProfiles, RecordID: 9, UserA: 9})
	assertNoEvent(t, sub.C)
}

func TestSubscriptionCloseStopsDelivery(t *testing.T) {
	hub := startHub(t)

	sub := hub.Subscribe(devtypes.EventFilter{Table: devtypes.TableProfiles, ProfileID: 1})
	sub.Close()

	// 通道由 hub 关闭
	select {
	case _, ok := <-sub.C:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("等待订阅通道关闭超时")
	}
}

func TestWatchProfilePairTriggersRefresh(t *testing.T) {
	hub := startHub(t)

	var refreshes atomic.Int32
	refreshed := make(chan struct{}, 16)
	watch := WatchProfilePair(hub, 1, 2, func(ctx context.Context) {
		refreshes.Add(1)
		refreshed <- struct{}{}
	})

	waitRefresh := func() {
		select {
		case <-refreshed:
		case <-time.After(2 * time.Second):
			t.Fatal("等待 refresh 回调超时")
		}
	}

	// 主体资料变更
	hub.Publish(devtypes.ChangeEvent{Table: devtypes.TableProfiles, UserA: 2})
	waitRefresh()

	// 配对的请求变更 (任一方向)
	hub.Publish(devtypes.ChangeEvent{Table: devtypes.TableConnectionRequests, UserA: 2, UserB: 1})
	waitRefresh()

	// 配对的连接变更
	hub.Publish(devtypes.ChangeEvent{Table: devtypes.TableConnections, UserA: 1, UserB: 2})
	waitRefresh()

	// 无关配对不触发
	hub.Publish(devtypes.ChangeEvent{Table: devtypes.TableConnectionRequests, UserA: 3, UserB: 4})

	watch.Close()
	require.Equal(t, int32(3), refreshes.Load())

	// Close 之后不再触发
	hub.Publish(devtypes.ChangeEvent{Table: devtypes.TableProfiles, UserA: 2})
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(3), refreshes.Load())
}
