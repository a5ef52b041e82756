//go:build linux
// +build linux

package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/wzxcff/APIScraperTG/internal/config"
	"github.com/wzxcff/APIScraperTG/internal/logger"
	"github.com/wzxcff/APIScraperTG/internal/notify"
	"github.com/wzxcff/APIScraperTG/internal/scheduler"
	"github.com/wzxcff/APIScraperTG/internal/scraper"
	"github.com/wzxcff/APIScraperTG/internal/svc"
	"github.com/wzxcff/APIScraperTG/internal/teleapp"

	"github.com/zelenin/go-tdlib/client"
)

var (
	configFile = flag.String("f", "etc/config.yaml", "the config file")
	target     = flag.String("target", "", "target @username or numeric id, overrides Scraper.Target")
	limit      = flag.Int("limit", 0, "number of messages to fetch, overrides Scraper.Limit")
	offset     = flag.Int64("offset", 0, "fetch messages older than this id, overrides Scraper.Offset")
	resume     = flag.Bool("resume", false, "continue from the previous messages.json")
	fullInfo   = flag.Bool("full", false, "fetch full target info")
)

// applyFlags 命令行中显式设置的参数覆盖配置文件
func applyFlags(c *config.Config) error {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "target":
			c.Scraper.Target = *target
		case "limit":
			c.Scraper.Limit = *limit
		case "offset":
			c.Scraper.Offset = *offset
		case "resume":
			c.Scraper.Resume = *resume
		case "full":
			c.Scraper.FullInfo = *fullInfo
		}
	})
	return c.Validate()
}

func main() {
	flag.Parse()

	// 读取配置文件
	c, err := config.LoadFromFile(*configFile)
	if err != nil {
		logger.Fatalf("读取配置文件失败, %s", err)
	}
	if err := applyFlags(c); err != nil {
		logger.Fatalf("命令行参数无效, %s", err)
	}
	if err := logger.Configure(c.Log.Level, c.Log.Dir); err != nil {
		logger.Fatalf("配置日志失败, %s", err)
	}

	// 创建服务上下文
	svcCtx := svc.NewServiceContext(c)

	// Telegram 代理
	options := make([]client.Option, 0)
	if c.Sock5Proxy.Enable {
		options = append(options, client.WithProxy(&client.AddProxyRequest{
			Server: c.Sock5Proxy.Host,
			Port:   c.Sock5Proxy.Port,
			Enable: c.Sock5Proxy.Enable,
			Type:   &client.ProxyTypeSocks5{},
		}))
	}

	// 创建TeleApp
	app := teleapp.NewApp(c.TelegramApp.ApiId, c.TelegramApp.ApiHash, c.TelegramApp.DataDir, c.Scraper.RequestsPerSecond, options...)

	scheduled := c.Schedule.Cron != ""
	if scheduled {
		// 定时任务总是从上次的断点继续
		c.Scraper.Resume = true
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 首次登录需要在终端输入验证码，登录完成后再监听停止命令
	if err := app.Connect(ctx); err != nil {
		logger.Fatalf("[TeleApp] 用户登录失败, %s", err)
	}

	// 终端输入 stop 或 q 停止当前抓取
	token := scraper.NewToken()
	go scraper.ListenStdin(ctx, os.Stdin, token)

	scraperInstance := scraper.NewScraper(
		app,
		svcCtx.Caller,
		svcCtx.GroupModel,
		svcCtx.MessageModel,
		svcCtx.RunModel,
		&c.Scraper,
		token,
	)
	// 发送报告需要保持会话
	scraperInstance.KeepSession = scheduled || c.Notify.Enable

	notifierInstance := notify.NewNotifier(app, &c.Notify)
	schedulerInstance := scheduler.NewScheduler(
		scraperInstance,
		notifierInstance,
		svcCtx.RunModel,
		token,
		&c.Schedule,
	)

	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)

	if !scheduled {
		go func() {
			<-ch
			logger.Infof("收到退出信号，当前请求完成后停止抓取")
			token.Cancel()
		}()

		schedulerInstance.RecoverIncompleteRuns(ctx)
		report, err := schedulerInstance.RunOnce(ctx)
		if disconnectErr := app.Disconnect(context.Background()); disconnectErr != nil {
			logger.Infof("[TeleApp] 关闭失败, %v", disconnectErr)
		}
		svcCtx.Close()
		if err != nil {
			logger.Fatalf("抓取失败, %s", err)
		}
		logger.Infof("抓取结束, 状态: %s, 输出目录: %s", report.Status, scraperInstance.Folders().Target)
		return
	}

	if err := schedulerInstance.Start(); err != nil {
		logger.Fatalf("[Scheduler] 启动调度器失败: %s", err)
	}

	// 等待程序退出
	<-ch

	// 优雅关闭
	logger.Infof("正在关闭服务...")
	token.Cancel()
	schedulerInstance.Stop()
	if err := app.Disconnect(context.Background()); err != nil {
		logger.Infof("[TeleApp] 关闭失败, %v", err)
	}
	svcCtx.Close()
	logger.Infof("服务已停止")
}
