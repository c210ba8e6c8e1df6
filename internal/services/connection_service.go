package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"devconnect/internal/config"
	"devconnect/internal/devtypes"
	"devconnect/internal/kafka"
	"devconnect/internal/models"
	"devconnect/internal/realtime"
	"devconnect/internal/storage"

	"gorm.io/gorm"
)

var (
	ErrConnectSelf              = errors.New("不能向自己发送连接请求")
	ErrReceiverNotFound         = errors.New("接收用户不存在")
	ErrAlreadyConnected         = errors.New("你们已经建立连接了")
	ErrRequestPending           = errors.New("已存在待处理的连接请求")
	ErrRequestNotFound          = errors.New("连接请求不存在")
	ErrNotRequestSender         = errors.New("您不是此连接请求的发送者")
	ErrNotRequestReceiver       = errors.New("您不是此连接请求的接收者")
	ErrRequestNotPending        = errors.New("该连接请求不是待处理状态")
	ErrConnectionNotFound       = errors.New("连接不存在")
	ErrNotConnectionParticipant = errors.New("您不是此连接的参与者")
)

// ConnectionService defines the interface for the connection workflow:
// deriving the relationship state between two profiles, issuing and
// resolving requests, and managing established connections.
type ConnectionService interface {
	// ResolveStatus derives the viewer's relationship to the subject
	// from current request and connection rows. It never fails: on a
	// store error it logs and reports "none", so callers render the
	// neutral state rather than breaking the page.
	ResolveStatus(ctx context.Context, viewerID, subjectID uint) models.ConnectionStatus
	Connect(ctx context.Context, senderID, receiverID uint) (*models.ConnectionRequest, error)
	Withdraw(ctx context.Context, senderID, requestID uint) error
	Accept(ctx context.Context, receiverID, requestID uint) error
	Reject(ctx context.Context, receiverID, requestID uint) error
	RemoveConnection(ctx context.Context, profileID, connectionID uint) error
	ListIncoming(ctx context.Context, receiverID uint) ([]*models.ConnectionRequestWithSender, error)
	ListOutgoing(ctx context.Context, senderID uint) ([]*models.ConnectionRequestWithReceiver, error)
	ListConnections(ctx context.Context, ownerID uint) ([]*models.ConnectionWithProfile, error)
}

type connectionService struct {
	profileRepo storage.ProfileRepository
	requestRepo storage.ConnectionRequestRepository
	connRepo    storage.ConnectionRepository
	producer    kafka.MessageProducer
	kafkaConfig config.KafkaConfig
	notifier    realtime.Notifier
}

// NewConnectionService creates a new ConnectionService instance.
func NewConnectionService(
	profileRepo storage.ProfileRepository,
	requestRepo storage.ConnectionRequestRepository,
	connRepo storage.ConnectionRepository,
	producer kafka.MessageProducer,
	cfg config.KafkaConfig,
	notifier realtime.Notifier,
) ConnectionService {
	return &connectionService{
		profileRepo: profileRepo,
		requestRepo: requestRepo,
		connRepo:    connRepo,
		producer:    producer,
		kafkaConfig: cfg,
		notifier:    notifier,
	}
}

func (s *connectionService) publish(event devtypes.ChangeEvent) {
	if s.notifier != nil {
		s.notifier.Publish(event)
	}
}

// ResolveStatus 计算 viewer 相对 subject 的关系状态。
// 优先级: 自己发出的待处理请求 > 已建立的连接 > 无关系。
// 对方发给 viewer 的待处理请求不影响这里的状态, 它出现在收件箱里。
func (s *connectionService) ResolveStatus(ctx context.Context, viewerID, subjectID uint) models.ConnectionStatus {
	none := models.ConnectionStatus{State: models.ConnectionStateNone}
	if viewerID == 0 || viewerID == subjectID {
		return none
	}

	pending, err := s.requestRepo.FindPendingFromSender(ctx, viewerID, subjectID)
	if err != nil {
		log.Printf("Error resolving pending request %d -> %d: %v", viewerID, subjectID, err)
		return none
	}
	if pending != nil {
		return models.ConnectionStatus{State: models.ConnectionStatePendingSent, RequestID: pending.ID}
	}

	connected, err := s.connRepo.AreConnected(ctx, viewerID, subjectID)
	if err != nil {
		log.Printf("Error resolving connection between %d and %d: %v", viewerID, subjectID, err)
		return none
	}
	if connected {
		return models.ConnectionStatus{State: models.ConnectionStateConnected}
	}

	return none
}

// Connect validates and creates a pending connection request.
func (s *connectionService) Connect(ctx context.Context, senderID, receiverID uint) (*models.ConnectionRequest, error) {
	if senderID == receiverID {
		return nil, ErrConnectSelf
	}

	// 1. Check if receiver exists
	if _, err := s.profileRepo.GetByID(ctx, receiverID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrReceiverNotFound
		}
		log.Printf("Error checking receiver profile %d: %v", receiverID, err)
		return nil, fmt.Errorf("检查接收用户时出错: %w", err)
	}

	// 2. Check if the pair is already connected
	connected, err := s.connRepo.AreConnected(ctx, senderID, receiverID)
	if err != nil {
		log.Printf("Error checking if profiles %d and %d are already connected: %v", senderID, receiverID, err)
		return nil, fmt.Errorf("检查连接关系时出错: %w", err)
	}
	if connected {
		return nil, ErrAlreadyConnected
	}

	// 3. Check if a pending request already exists (in either direction)
	existing, err := s.requestRepo.FindPendingForPair(ctx, senderID, receiverID)
	if err != nil {
		log.Printf("Error checking existing request between %d and %d: %v", senderID, receiverID, err)
		return nil, fmt.Errorf("检查现有请求时出错: %w", err)
	}
	if existing != nil {
		return nil, ErrRequestPending
	}

	request := &models.ConnectionRequest{
		SenderID:   senderID,
		ReceiverID: receiverID,
		Status:     models.ConnectionRequestStatusPending,
	}

	if err := s.requestRepo.Create(ctx, request); err != nil {
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			log.Printf("Error creating connection request %d -> %d: %v", senderID, receiverID, err)
			return nil, fmt.Errorf("创建连接请求失败: %w", err)
		}

		// 唯一索引命中说明该配对还留有旧记录 (通常是已拒绝的请求,
		// 连接被移除后遗留下来的)。清掉两个方向的所有记录后重试一次。
		log.Printf("Duplicate request row for pair (%d, %d), clearing stale records and retrying", senderID, receiverID)
		if err := s.requestRepo.DeleteAllForPair(ctx, senderID, receiverID); err != nil {
			log.Printf("Error clearing stale requests for pair (%d, %d): %v", senderID, receiverID, err)
			return nil, fmt.Errorf("清理旧连接请求失败: %w", err)
		}
		request = &models.ConnectionRequest{
			SenderID:   senderID,
			ReceiverID: receiverID,
			Status:     models.ConnectionRequestStatusPending,
		}
		if err := s.requestRepo.Create(ctx, request); err != nil {
			log.Printf("Error creating connection request %d -> %d after cleanup: %v", senderID, receiverID, err)
			return nil, fmt.Errorf("创建连接请求失败: %w", err)
		}
	}

	payload, _ := json.Marshal(request)
	s.publish(devtypes.ChangeEvent{
		Table:    devtypes.TableConnectionRequests,
		Action:   devtypes.ChangeActionInsert,
		RecordID: request.ID,
		UserA:    senderID,
		UserB:    receiverID,
		Payload:  payload,
	})

	log.Printf("Connection request %d created: %d -> %d", request.ID, senderID, receiverID)
	return request, nil
}

// Withdraw cancels a pending request the sender previously issued. The
// row is marked withdrawn and then physically removed, so the pair is
// immediately free for a new request from either side.
func (s *connectionService) Withdraw(ctx context.Context, senderID, requestID uint) error {
	request, err := s.requestRepo.GetByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrRequestNotFound
		}
		log.Printf("Error retrieving connection request %d: %v", requestID, err)
		return fmt.Errorf("检索连接请求失败: %w", err)
	}

	if request.SenderID != senderID {
		return ErrNotRequestSender
	}
	if request.Status != models.ConnectionRequestStatusPending {
		return ErrRequestNotPending
	}

	if err := s.requestRepo.UpdateStatus(ctx, requestID, models.ConnectionRequestStatusWithdrawn); err != nil {
		log.Printf("Error marking request %d as withdrawn: %v", requestID, err)
		return fmt.Errorf("更新连接请求状态失败: %w", err)
	}

	rows, err := s.requestRepo.DeleteBySender(ctx, requestID, senderID)
	if err != nil {
		log.Printf("Error deleting withdrawn request %d: %v", requestID, err)
		return fmt.Errorf("删除连接请求失败: %w", err)
	}
	if rows == 0 {
		// 到这里说明持有者在两次调用之间发生了变化, 按越权处理。
		return ErrNotRequestSender
	}

	s.publish(devtypes.ChangeEvent{
		Table:    devtypes.TableConnectionRequests,
		Action:   devtypes.ChangeActionDelete,
		RecordID: requestID,
		UserA:    request.SenderID,
		UserB:    request.ReceiverID,
	})

	log.Printf("Connection request %d withdrawn by profile %d", requestID, senderID)
	return nil
}

// Accept marks a pending request as accepted and publishes a
// ConnectionAccepted event to Kafka. The connection rows themselves are
// materialized by the Kafka consumer, not here.
func (s *connectionService) Accept(ctx context.Context, receiverID, requestID uint) error {
	request, err := s.requestRepo.GetByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrRequestNotFound
		}
		log.Printf("Error retrieving connection request %d: %v", requestID, err)
		return fmt.Errorf("检索连接请求失败: %w", err)
	}

	if request.ReceiverID != receiverID {
		return ErrNotRequestReceiver
	}
	if request.Status != models.ConnectionRequestStatusPending {
		return ErrRequestNotPending
	}

	if err := s.requestRepo.UpdateStatus(ctx, requestID, models.ConnectionRequestStatusAccepted); err != nil {
		log.Printf("Error updating request %d status to accepted: %v", requestID, err)
		return fmt.Errorf("更新连接请求状态失败: %w", err)
	}

	event := devtypes.ConnectionAcceptedEvent{
		RequestID:  requestID,
		SenderID:   request.SenderID,
		ReceiverID: request.ReceiverID,
	}
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("Error marshalling connection accepted event: %v", err)
		return fmt.Errorf("序列化连接事件失败: %w", err)
	}

	topic := s.kafkaConfig.ConnectionAcceptedTopic
	key := []byte(fmt.Sprintf("%d-%d", request.SenderID, request.ReceiverID))
	if err := s.producer.SendMessage(ctx, topic, key, payload); err != nil {
		log.Printf("Error producing connection accepted event to Kafka topic %s: %v", topic, err)
		return fmt.Errorf("发送连接事件到处理队列失败: %w", err)
	}

	s.publish(devtypes.ChangeEvent{
		Table:    devtypes.TableConnectionRequests,
		Action:   devtypes.ChangeActionUpdate,
		RecordID: requestID,
		UserA:    request.SenderID,
		UserB:    request.ReceiverID,
	})

	log.Printf("Connection request %d accepted by profile %d, sender %d", requestID, receiverID, request.SenderID)
	return nil
}

// Reject marks a pending request as rejected. The row is kept: a later
// Connect for the same pair will hit the unique index and clear it via
// the self-heal path.
func (s *connectionService) Reject(ctx context.Context, receiverID, requestID uint) error {
	request, err := s.requestRepo.GetByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrRequestNotFound
		}
		log.Printf("Error retrieving connection request %d for rejection: %v", requestID, err)
		return fmt.Errorf("检索连接请求失败: %w", err)
	}

	if request.ReceiverID != receiverID {
		return ErrNotRequestReceiver
	}
	if request.Status != models.ConnectionRequestStatusPending {
		return ErrRequestNotPending
	}

	if err := s.requestRepo.UpdateStatus(ctx, requestID, models.ConnectionRequestStatusRejected); err != nil {
		log.Printf("Error updating request %d status to rejected: %v", requestID, err)
		return fmt.Errorf("更新连接请求状态为已拒绝失败: %w", err)
	}

	s.publish(devtypes.ChangeEvent{
		Table:    devtypes.TableConnectionRequests,
		Action:   devtypes.ChangeActionUpdate,
		RecordID: requestID,
		UserA:    request.SenderID,
		UserB:    request.ReceiverID,
	})

	log.Printf("Connection request %d rejected by profile %d", requestID, receiverID)
	return nil
}

// RemoveConnection deletes both halves of an established connection.
// Either participant may remove it; the two deletes run as a single
// statement so a crash cannot leave only one half behind.
func (s *connectionService) RemoveConnection(ctx context.Context, profileID, connectionID uint) error {
	conn, err := s.connRepo.GetByID(ctx, connectionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrConnectionNotFound
		}
		log.Printf("Error retrieving connection %d: %v", connectionID, err)
		return fmt.Errorf("检索连接失败: %w", err)
	}

	if conn.OwnerID != profileID && conn.CounterpartID != profileID {
		return ErrNotConnectionParticipant
	}

	if err := s.connRepo.DeletePair(ctx, conn.OwnerID, conn.CounterpartID); err != nil {
		log.Printf("Error deleting connection pair (%d, %d): %v", conn.OwnerID, conn.CounterpartID, err)
		return fmt.Errorf("删除连接失败: %w", err)
	}

	s.publish(devtypes.ChangeEvent{
		Table:    devtypes.TableConnections,
		Action:   devtypes.ChangeActionDelete,
		RecordID: connectionID,
		UserA:    conn.OwnerID,
		UserB:    conn.CounterpartID,
	})

	log.Printf("Connection between %d and %d removed by profile %d", conn.OwnerID, conn.CounterpartID, profileID)
	return nil
}

// ListIncoming retrieves pending requests addressed to the given
// profile, enriched with sender info.
func (s *connectionService) ListIncoming(ctx context.Context, receiverID uint) ([]*models.ConnectionRequestWithSender, error) {
	requests, err := s.requestRepo.ListPendingForReceiver(ctx, receiverID)
	if err != nil {
		log.Printf("Error fetching incoming requests for profile %d: %v", receiverID, err)
		return nil, fmt.Errorf("获取收到的连接请求失败: %w", err)
	}

	result := make([]*models.ConnectionRequestWithSender, 0, len(requests))
	for _, req := range requests {
		sender, err := s.profileRepo.GetBasicInfoByID(ctx, req.SenderID)
		if err != nil {
			log.Printf("Error fetching sender info for profile %d (request %d): %v", req.SenderID, req.ID, err)
			continue
		}
		result = append(result, &models.ConnectionRequestWithSender{
			ConnectionRequest: req,
			Sender:            sender,
		})
	}
	return result, nil
}

// ListOutgoing retrieves pending requests the given profile has sent,
// enriched with receiver info.
func (s *connectionService) ListOutgoing(ctx context.Context, senderID uint) ([]*models.ConnectionRequestWithReceiver, error) {
	requests, err := s.requestRepo.ListPendingForSender(ctx, senderID)
	if err != nil {
		log.Printf("Error fetching outgoing requests for profile %d: %v", senderID, err)
		return nil, fmt.Errorf("获取发出的连接请求失败: %w", err)
	}

	result := make([]*models.ConnectionRequestWithReceiver, 0, len(requests))
	for _, req := range requests {
		receiver, err := s.profileRepo.GetBasicInfoByID(ctx, req.ReceiverID)
		if err != nil {
			log.Printf("Error fetching receiver info for profile %d (request %d): %v", req.ReceiverID, req.ID, err)
			continue
		}
		result = append(result, &models.ConnectionRequestWithReceiver{
			ConnectionRequest: req,
			Receiver:          receiver,
		})
	}
	return result, nil
}

// ListConnections retrieves the profile's half-rows, enriched with
// counterpart info.
func (s *connectionService) ListConnections(ctx context.Context, ownerID uint) ([]*models.ConnectionWithProfile, error) {
	connections, err := s.connRepo.ListForOwner(ctx, ownerID)
	if err != nil {
		log.Printf("Error fetching connections for profile %d: %v", ownerID, err)
		return nil, fmt.Errorf("获取连接列表失败: %w", err)
	}

	result := make([]*models.ConnectionWithProfile, 0, len(connections))
	for _, conn := range connections {
		counterpart, err := s.profileRepo.GetBasicInfoByID(ctx, conn.CounterpartID)
		if err != nil {
			log.Printf("Error fetching counterpart info for profile %d (connection %d): %v", conn.CounterpartID, conn.ID, err)
			continue
		}
		result = append(result, &models.ConnectionWithProfile{
			Connection: conn,
			Profile:    counterpart,
		})
	}
	return result, nil
}
