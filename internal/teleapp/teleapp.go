package teleapp

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/zelenin/go-tdlib/client"
	"golang.org/x/time/rate"

	"github.com/wzxcff/APIScraperTG/internal/logger"
)

// TeleApp 基于 TDLib 的用户会话，实现 session.Session
type TeleApp struct {
	user       *client.User
	tdClient   *client.Client
	parameters *client.SetTdlibParametersRequest
	options    []client.Option
	limiter    *rate.Limiter
	usersMu    sync.RWMutex
	usersCache map[int64]*client.User
	chatsMu    sync.RWMutex
	chatsCache map[int64]*client.Chat
}

func NewApp(apiId int32, apiHash, dataDir string, requestsPerSecond float64, options ...client.Option) *TeleApp {
	_, err := client.SetLogVerbosityLevel(&client.SetLogVerbosityLevelRequest{
		NewVerbosityLevel: 1,
	})
	if err != nil {
		logger.Fatalf("[TeleApp] 设置日志级别错误, %s", err)
	}

	parameters := &client.SetTdlibParametersRequest{
		UseTestDc:           false,
		DatabaseDirectory:   filepath.Join(dataDir, ".tdlib", "database"),
		FilesDirectory:      filepath.Join(dataDir, ".tdlib", "files"),
		UseFileDatabase:     true,
		UseChatInfoDatabase: true,
		UseMessageDatabase:  true,
		UseSecretChats:      false,
		ApiId:               apiId,
		ApiHash:             apiHash,
		SystemLanguageCode:  "en",
		DeviceModel:         "Server",
		SystemVersion:       "1.0.0",
		ApplicationVersion:  "1.0.0",
	}

	limit := rate.Inf
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
	}

	return &TeleApp{
		parameters: parameters,
		options:    options,
		limiter:    rate.NewLimiter(limit, 1),
		chatsCache: make(map[int64]*client.Chat),
		usersCache: make(map[int64]*client.User),
	}
}

// Connect 登录 TDLib，首次运行时在终端交互输入手机号和验证码
func (app *TeleApp) Connect(ctx context.Context) error {
	if app.user != nil {
		return nil
	}

	authorizer := client.ClientAuthorizer(app.parameters)
	go client.CliInteractor(authorizer)

	tdlibClient, err := client.NewClient(authorizer, app.options...)
	if err != nil {
		return mapError(err)
	}

	me, err := tdlibClient.GetMe()
	if err != nil {
		return mapError(err)
	}

	app.user = me
	app.tdClient = tdlibClient
	logger.Infof("[TeleApp] 用户 <%s %s>(%d) 登录成功", me.FirstName, me.LastName, me.Id)
	return nil
}

func (app *TeleApp) Disconnect(ctx context.Context) error {
	if app.tdClient == nil {
		return nil
	}

	_, err := app.tdClient.Close()
	app.tdClient = nil
	app.user = nil
	return err
}

// wait 按 RequestsPerSecond 节流，并确保已登录
func (app *TeleApp) wait(ctx context.Context) error {
	if app.tdClient == nil {
		return fmt.Errorf("telegram client is not connected")
	}
	return app.limiter.Wait(ctx)
}

func (app *TeleApp) getChat(ctx context.Context, chatId int64) (*client.Chat, error) {
	// 先尝试读锁读取缓存
	app.chatsMu.RLock()
	chat, ok := app.chatsCache[chatId]
	app.chatsMu.RUnlock()
	if ok {
		return chat, nil
	}

	// 缓存未命中，获取数据
	if err := app.wait(ctx); err != nil {
		return nil, err
	}
	chat, err := app.tdClient.GetChat(&client.GetChatRequest{ChatId: chatId})
	if err != nil {
		return nil, mapError(err)
	}

	// 写锁更新缓存
	app.chatsMu.Lock()
	app.chatsCache[chatId] = chat
	app.chatsMu.Unlock()
	return chat, nil
}

func (app *TeleApp) getUser(ctx context.Context, userId int64) (*client.User, error) {
	// 先尝试读锁读取缓存
	app.usersMu.RLock()
	user, ok := app.usersCache[userId]
	app.usersMu.RUnlock()
	if ok {
		return user, nil
	}

	// 缓存未命中，获取数据
	if err := app.wait(ctx); err != nil {
		return nil, err
	}
	user, err := app.tdClient.GetUser(&client.GetUserRequest{UserId: userId})
	if err != nil {
		return nil, mapError(err)
	}

	// 写锁更新缓存
	app.usersMu.Lock()
	app.usersCache[userId] = user
	app.usersMu.Unlock()
	return user, nil
}
