package scraper

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/wzxcff/APIScraperTG/internal/session"
)

type mockSession struct {
	mock.Mock
}

func (m *mockSession) Connect(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockSession) Disconnect(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockSession) Me(ctx context.Context) (*session.User, error) {
	args := m.Called(ctx)
	user, _ := args.Get(0).(*session.User)
	return user, args.Error(1)
}

func (m *mockSession) ResolveEntity(ctx context.Context, handle string) (*session.Entity, error) {
	args := m.Called(ctx, handle)
	entity, _ := args.Get(0).(*session.Entity)
	return entity, args.Error(1)
}

func (m *mockSession) Permissions(ctx context.Context, entity *session.Entity, userID int64) (*session.Permissions, error) {
	args := m.Called(ctx, entity, userID)
	perms, _ := args.Get(0).(*session.Permissions)
	return perms, args.Error(1)
}

func (m *mockSession) FullInfo(ctx context.Context, entity *session.Entity) (*session.FullInfo, error) {
	args := m.Called(ctx, entity)
	info, _ := args.Get(0).(*session.FullInfo)
	return info, args.Error(1)
}

func (m *mockSession) ListMessages(ctx context.Context, entity *session.Entity, limit int, offsetID int64) ([]*session.Message, error) {
	args := m.Called(ctx, entity, limit, offsetID)
	messages, _ := args.Get(0).([]*session.Message)
	return messages, args.Error(1)
}

func (m *mockSession) ListPinned(ctx context.Context, entity *session.Entity, limit int) ([]*session.Message, error) {
	args := m.Called(ctx, entity, limit)
	messages, _ := args.Get(0).([]*session.Message)
	return messages, args.Error(1)
}

func (m *mockSession) ListReplies(ctx context.Context, entity *session.Entity, parentID int64) ([]*session.Message, error) {
	args := m.Called(ctx, entity, parentID)
	messages, _ := args.Get(0).([]*session.Message)
	return messages, args.Error(1)
}

func (m *mockSession) ListAdminActions(ctx context.Context, entity *session.Entity) ([]*session.AdminAction, error) {
	args := m.Called(ctx, entity)
	actions, _ := args.Get(0).([]*session.AdminAction)
	return actions, args.Error(1)
}

func (m *mockSession) ListParticipants(ctx context.Context, entity *session.Entity) ([]*session.User, error) {
	args := m.Called(ctx, entity)
	users, _ := args.Get(0).([]*session.User)
	return users, args.Error(1)
}

func (m *mockSession) User(ctx context.Context, userID int64) (*session.User, error) {
	args := m.Called(ctx, userID)
	user, _ := args.Get(0).(*session.User)
	return user, args.Error(1)
}

func (m *mockSession) DownloadProfilePhoto(ctx context.Context, user *session.User, path string) (string, error) {
	args := m.Called(ctx, user, path)
	return args.String(0), args.Error(1)
}

func (m *mockSession) DownloadEntityPhoto(ctx context.Context, entity *session.Entity, path string) (string, error) {
	args := m.Called(ctx, entity, path)
	return args.String(0), args.Error(1)
}

func (m *mockSession) DownloadMedia(ctx context.Context, media *session.Media, path string) (string, error) {
	args := m.Called(ctx, media, path)
	return args.String(0), args.Error(1)
}

func (m *mockSession) SendText(ctx context.Context, userID int64, text string) error {
	return m.Called(ctx, userID, text).Error(0)
}
