package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// 环境变量中的 Telegram 凭据优先于配置文件
const (
	EnvApiId   = "API_ID"
	EnvApiHash = "API_HASH"
)

// 抓取阶段名称
const (
	PhaseInfo     = "info"
	PhaseMessages = "messages"
	PhasePinned   = "pinned"
	PhaseMembers  = "members"
	PhaseAdminLog = "admin_log"
)

var DefaultPhases = []string{PhaseInfo, PhaseMessages, PhasePinned, PhaseMembers, PhaseAdminLog}

type Sock5Proxy struct {
	Host   string `yaml:"Host"`
	Port   int32  `yaml:"Port"`
	Enable bool   `yaml:"Enable"`
}

type TelegramApp struct {
	ApiId   int32  `yaml:"ApiId" validate:"required"`
	ApiHash string `yaml:"ApiHash" validate:"required"`
	DataDir string `yaml:"DataDir"` // TDLib 数据目录，默认 data
}

type Scraper struct {
	Target            string   `yaml:"Target" validate:"required"` // @username 或数字ID
	OutputDir         string   `yaml:"OutputDir"`                  // 输出根目录，默认当前目录
	Limit             int      `yaml:"Limit" validate:"gte=0"`     // 单次抓取消息数量，默认 100
	Offset            int64    `yaml:"Offset" validate:"gte=0"`    // 起始消息ID（不包含），0 表示从最新开始
	Resume            bool     `yaml:"Resume"`                     // 从上次的 messages.json 继续
	FullInfo          bool     `yaml:"FullInfo"`                   // 获取完整的频道信息（较慢）
	MaxAttempts       int      `yaml:"MaxAttempts" validate:"gte=0"`
	BatchSize         int      `yaml:"BatchSize" validate:"gte=0"`
	PinnedLimit       int      `yaml:"PinnedLimit" validate:"gte=0"`
	Phases            []string `yaml:"Phases"`
	RequestsPerSecond float64  `yaml:"RequestsPerSecond" validate:"gte=0"`
}

type Database struct {
	Enable bool   `yaml:"Enable"`
	Path   string `yaml:"Path"`
}

type Notify struct {
	Enable  bool    `yaml:"Enable"`
	UserIds []int64 `yaml:"UserIds"` // 接收抓取报告的用户ID列表
}

type Schedule struct {
	Cron string `yaml:"Cron"` // cron 表达式，为空则只运行一次
}

type Log struct {
	Level string `yaml:"Level" validate:"omitempty,oneof=trace debug info warn warning error"`
	Dir   string `yaml:"Dir"`
}

type Config struct {
	Sock5Proxy  Sock5Proxy  `yaml:"Sock5Proxy"`
	TelegramApp TelegramApp `yaml:"TelegramApp"`
	Scraper     Scraper     `yaml:"Scraper"`
	Database    Database    `yaml:"Database"`
	Notify      Notify      `yaml:"Notify"`
	Schedule    Schedule    `yaml:"Schedule"`
	Log         Log         `yaml:"Log"`
}

func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	// 当前目录的 .env 可选
	_ = godotenv.Load()

	return Parse(data)
}

// Parse 解析 YAML 配置，填充默认值并验证
func Parse(data []byte) (*Config, error) {
	var c Config
	err := yaml.Unmarshal(data, &c)
	if err != nil {
		return nil, err
	}

	c.SetDefaults()
	if err := c.applyEnv(); err != nil {
		return nil, err
	}

	// 验证配置
	if err := c.Validate(); err != nil {
		return nil, err
	}

	return &c, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvApiId); v != "" {
		id, err := strconv.ParseInt(v, 10, 32)
		if err != nil {
			return fmt.Errorf("环境变量 %s 无效: %w", EnvApiId, err)
		}
		c.TelegramApp.ApiId = int32(id)
	}
	if v := os.Getenv(EnvApiHash); v != "" {
		c.TelegramApp.ApiHash = v
	}
	return nil
}

// SetDefaults 填充未配置的默认值
func (c *Config) SetDefaults() {
	if c.TelegramApp.DataDir == "" {
		c.TelegramApp.DataDir = "data"
	}
	if c.Scraper.OutputDir == "" {
		c.Scraper.OutputDir = "."
	}
	if c.Scraper.Limit == 0 {
		c.Scraper.Limit = 100
	}
	if c.Scraper.MaxAttempts == 0 {
		c.Scraper.MaxAttempts = 3
	}
	if c.Scraper.BatchSize == 0 {
		c.Scraper.BatchSize = 100
	}
	if c.Scraper.PinnedLimit == 0 {
		c.Scraper.PinnedLimit = 10
	}
	if len(c.Scraper.Phases) == 0 {
		c.Scraper.Phases = append([]string(nil), DefaultPhases...)
	}
	if c.Scraper.RequestsPerSecond == 0 {
		c.Scraper.RequestsPerSecond = 10
	}
	if c.Database.Path == "" {
		c.Database.Path = "data/archive.db"
	}
	if c.Log.Level == "" {
		c.Log.Level = "debug"
	}
	if c.Log.Dir == "" {
		c.Log.Dir = "logs"
	}
}

// Validate 验证配置的有效性
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("配置校验失败: %w", err)
	}

	// 验证 Scraper
	for _, phase := range c.Scraper.Phases {
		switch phase {
		case PhaseInfo, PhaseMessages, PhasePinned, PhaseMembers, PhaseAdminLog:
		default:
			return fmt.Errorf("Scraper.Phases 包含未知阶段: %s", phase)
		}
	}

	// 验证 Sock5Proxy
	if c.Sock5Proxy.Enable && (c.Sock5Proxy.Host == "" || c.Sock5Proxy.Port <= 0) {
		return fmt.Errorf("Sock5Proxy 启用时 Host 和 Port 不能为空")
	}

	// 验证 Notify
	if c.Notify.Enable && len(c.Notify.UserIds) == 0 {
		return fmt.Errorf("Notify.UserIds 不能为空（当 Notify.Enable 为 true 时）")
	}

	return nil
}

// HasPhase 判断是否启用了指定阶段
func (s *Scraper) HasPhase(name string) bool {
	for _, phase := range s.Phases {
		if phase == name {
			return true
		}
	}
	return false
}
