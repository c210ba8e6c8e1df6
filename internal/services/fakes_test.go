package services

import (
	"context"
	"fmt"

	"devconnect/internal/devtypes"
	"devconnect/internal/models"

	"gorm.io/gorm"
)

// fakeProfileRepo 是 ProfileRepository 的内存实现, 只覆盖测试用到的方法。
type fakeProfileRepo struct {
	profiles map[uint]*models.Profile
	err      error // 注入的存储错误
}

func newFakeProfileRepo(profiles ...*models.Profile) *fakeProfileRepo {
	r := &fakeProfileRepo{profiles: make(map[uint]*models.Profile)}
	for _, p := range profiles {
		r.profiles[p.ID] = p
	}
	return r
}

func (r *fakeProfileRepo) Create(ctx context.Context, profile *models.Profile) error {
	if r.err != nil {
		return r.err
	}
	profile.ID = uint(len(r.profiles) + 1)
	r.profiles[profile.ID] = profile
	return nil
}

func (r *fakeProfileRepo) GetByID(ctx context.Context, id uint) (*models.Profile, error) {
	if r.err != nil {
		return nil, r.err
	}
	p, ok := r.profiles[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return p, nil
}

func (r *fakeProfileRepo) GetByUsername(ctx context.Context, username string) (*models.Profile, error) {
	if r.err != nil {
		return nil, r.err
	}
	for _, p := range r.profiles {
		if p.Username == username {
			return p, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeProfileRepo) GetByEmail(ctx context.Context, email string) (*models.Profile, error) {
	if r.err != nil {
		return nil, r.err
	}
	for _, p := range r.profiles {
		if p.Email == email {
			return p, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeProfileRepo) Update(ctx context.Context, profile *models.Profile) error {
	if r.err != nil {
		return r.err
	}
	r.profiles[profile.ID] = profile
	return nil
}

func (r *fakeProfileRepo) SearchProfiles(ctx context.Context, query, skill string, currentProfileID uint) ([]models.Profile, error) {
	if r.err != nil {
		return nil, r.err
	}
	var out []models.Profile
	for _, p := range r.profiles {
		if p.ID != currentProfileID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *fakeProfileRepo) GetBasicInfoByID(ctx context.Context, id uint) (*models.ProfileBasicInfo, error) {
	p, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &models.ProfileBasicInfo{ID: p.ID, Username: p.Username, Name: p.Name, AvatarURL: p.AvatarURL}, nil
}

func (r *fakeProfileRepo) GetMultipleBasicInfoByIDs(ctx context.Context, ids []uint) ([]*models.ProfileBasicInfo, error) {
	var out []*models.ProfileBasicInfo
	for _, id := range ids {
		info, err := r.GetBasicInfoByID(ctx, id)
		if err != nil {
			continue
		}
		out = append(out, info)
	}
	return out, nil
}

// fakeRequestRepo 模拟 connection_requests 表, 包括 (sender, receiver)
// 的唯一索引: 同方向的第二行插入会返回 gorm.ErrDuplicatedKey。
type fakeRequestRepo struct {
	nextID uint
	rows   map[uint]*models.ConnectionRequest
	err    error
}

func newFakeRequestRepo() *fakeRequestRepo {
	return &fakeRequestRepo{nextID: 1, rows: make(map[uint]*models.ConnectionRequest)}
}

func (r *fakeRequestRepo) seed(senderID, receiverID uint, status models.ConnectionRequestStatus) *models.ConnectionRequest {
	row := &models.ConnectionRequest{SenderID: senderID, ReceiverID: receiverID, Status: status}
	row.ID = r.nextID
	r.nextID++
	r.rows[row.ID] = row
	return row
}

func (r *fakeRequestRepo) Create(ctx context.Context, request *models.ConnectionRequest) error {
	if r.err != nil {
		return r.err
	}
	for _, row := range r.rows {
		if row.SenderID == request.SenderID && row.ReceiverID == request.ReceiverID {
			return gorm.ErrDuplicatedKey
		}
	}
	request.ID = r.nextID
	r.nextID++
	r.rows[request.ID] = request
	return nil
}

func (r *fakeRequestRepo) GetByID(ctx context.Context, requestID uint) (*models.ConnectionRequest, error) {
	if r.err != nil {
		return nil, r.err
	}
	row, ok := r.rows[requestID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return row, nil
}

func (r *fakeRequestRepo) FindPendingFromSender(ctx context.Context, senderID, receiverID uint) (*models.ConnectionRequest, error) {
	if r.err != nil {
		return nil, r.err
	}
	for _, row := range r.rows {
		if row.SenderID == senderID && row.ReceiverID == receiverID && row.Status == models.ConnectionRequestStatusPending {
			return row, nil
		}
	}
	return nil, nil
}

func (r *fakeRequestRepo) FindPendingForPair(ctx context.Context, a, b uint) (*models.ConnectionRequest, error) {
	if r.err != nil {
		return nil, r.err
	}
	for _, row := range r.rows {
		samePair := (row.SenderID == a && row.ReceiverID == b) || (row.SenderID == b && row.ReceiverID == a)
		if samePair && row.Status == models.ConnectionRequestStatusPending {
			return row, nil
		}
	}
	return nil, nil
}

func (r *fakeRequestRepo) UpdateStatus(ctx context.Context, requestID uint, status models.ConnectionRequestStatus) error {
	if r.err != nil {
		return r.err
	}
	if row, ok := r.rows[requestID]; ok {
		row.Status = status
	}
	return nil
}

func (r *fakeRequestRepo) DeleteBySender(ctx context.Context, requestID, senderID uint) (int64, error) {
	if r.err != nil {
		return 0, r.err
	}
	row, ok := r.rows[requestID]
	if !ok || row.SenderID != senderID {
		return 0, nil
	}
	delete(r.rows, requestID)
	return 1, nil
}

func (r *fakeRequestRepo) DeleteAllForPair(ctx context.Context, a, b uint) error {
	if r.err != nil {
		return r.err
	}
	for id, row := range r.rows {
		if (row.SenderID == a && row.ReceiverID == b) || (row.SenderID == b && row.ReceiverID == a) {
			delete(r.rows, id)
		}
	}
	return nil
}

func (r *fakeRequestRepo) ListPendingForReceiver(ctx context.Context, receiverID uint) ([]models.ConnectionRequest, error) {
	if r.err != nil {
		return nil, r.err
	}
	var out []models.ConnectionRequest
	for _, row := range r.rows {
		if row.ReceiverID == receiverID && row.Status == models.ConnectionRequestStatusPending {
			out = append(out, *row)
		}
	}
	return out, nil
}

func (r *fakeRequestRepo) ListPendingForSender(ctx context.Context, senderID uint) ([]models.ConnectionRequest, error) {
	if r.err != nil {
		return nil, r.err
	}
	var out []models.ConnectionRequest
	for _, row := range r.rows {
		if row.SenderID == senderID && row.Status == models.ConnectionRequestStatusPending {
			out = append(out, *row)
		}
	}
	return out, nil
}

// fakeConnectionRepo 模拟 connections 表的两条互指记录。
type fakeConnectionRepo struct {
	nextID uint
	rows   map[uint]*models.Connection
	err    error
}

func newFakeConnectionRepo() *fakeConnectionRepo {
	return &fakeConnectionRepo{nextID: 1, rows: make(map[uint]*models.Connection)}
}

func (r *fakeConnectionRepo) CreatePair(ctx context.Context, a, b uint) ([]models.Connection, error) {
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

func (r *fakeConnectionRepo) GetByID(ctx context.Context, connectionID uint) (*models.Connection, error) {
	if r.err != nil {
		return nil, r.err
	}
	row, ok := r.rows[connectionID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return row, nil
}

func (r *fakeConnectionRepo) AreConnected(ctx context.Context, a, b uint) (bool, error) {
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

func (r *fakeConnectionRepo) DeletePair(ctx context.Context, a, b uint) error {
	if r.err != nil {
		return r.err
	}
	for id, row := range r.rows {
		if (row.OwnerID == a && row.CounterpartID == b) || (row.OwnerID == b && row.CounterpartID == a) {
			delete(r.rows, id)
		}
	}
	return nil
}

func (r *fakeConnectionRepo) ListForOwner(ctx context.Context, ownerID uint) ([]models.Connection, error) {
	if r.err != nil {
		return nil, r.err
	}
	var out []models.Connection
	for _, row := range r.rows {
		if row.OwnerID == ownerID {
			out = append(out, *row)
		}
	}
	return out, nil
}

// fakeProducer records published Kafka messages.
type fakeProducer struct {
	topics   []string
	keys     []string
	payloads [][]byte
	err      error
}

func (p *fakeProducer) SendMessage(ctx context.Context, topic string, key []byte, payload []byte) error {
	if p.err != nil {
		return p.err
	}
	p.topics = append(p.topics, topic)
	p.keys = append(p.keys, string(key))
	p.payloads = append(p.payloads, payload)
	return nil
}

func (p *fakeProducer) Close() {}

// fakeNotifier records published change events.
type fakeNotifier struct {
	events []devtypes.ChangeEvent
}

func (n *fakeNotifier) Publish(event devtypes.ChangeEvent) {
	n.events = append(n.events, event)
}

func (n *fakeNotifier) eventsFor(table string) []devtypes.ChangeEvent {
	var out []devtypes.ChangeEvent
	for _, e := range n.events {
		if e.Table == table {
			out = append(out, e)
		}
	}
	return out
}

func testProfile(id uint, username string) *models.Profile {
	p := &models.Profile{Username: username, Name: fmt.Sprintf("User %s", username)}
	p.ID = id
	return p
}
