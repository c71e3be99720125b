package app

import (
	"asset_lending_tool/db"
	"asset_lending_tool/lending"
	"asset_lending_tool/notify"
	"asset_lending_tool/session"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// 简化别名，便于 handlers 调用
type Ctx = gin.Context
type H = gin.H

// App 聚合各依赖
type App struct {
	Router  *gin.Engine
	DB      *gorm.DB
	RDB     *redis.Client
	Repo    *db.Repo
	Lending *lending.Coordinator
	Sweeper *lending.Sweeper
	Log     *zap.Logger
	Config  Config

	appSess *session.AppSessionStore
	closers []io.Closer
}

// Config 从环境变量读取
type Config struct {
	Env         string
	Port        string
	DatabaseURL string
	RedisAddr   string
	RedisPwd    string
	WebOrigins  []string
	SessionTTL  time.Duration
	AdminEmails []string

	SweepInterval     time.Duration
	LockTimeout       time.Duration
	ConflictRetries   int
	DefaultLoanPeriod time.Duration
	SeenThrottle      time.Duration

	NotifyChannel string
	KafkaBrokers  []string
	KafkaTopic    string

	// 仅本地联调：开放 /dev/login 直接签发会话
	DevLogin bool
}

func (c Config) IsDev() bool { return c.Env != "production" }

func (a *App) AppSessions() *session.AppSessionStore { return a.appSess }

func MustNew(log *zap.Logger) *App {
	cfg := loadConfig()

	// --- DB: Postgres ---
	dbConn := db.ConnectDB(cfg.DatabaseURL, log)
	repo := db.NewRepo(dbConn)

	// --- Redis ---
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPwd, DB: 0})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal("redis ping failed", zap.Error(err))
	}

	// --- 通知：日志 + Redis 频道，配置了 Kafka 再加一路 ---
	fanout := notify.NewFanout(log)
	fanout.Subscribe("log", notify.NewLogSink(log))
	fanout.Subscribe("redis", notify.NewRedisPublisher(rdb, cfg.NotifyChannel))
	var closers []io.Closer
	if len(cfg.KafkaBrokers) > 0 {
		kp := notify.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		fanout.Subscribe("kafka", kp)
		closers = append(closers, kp)
	}

	coordinator := lending.NewCoordinator(repo, fanout, log.Named("lending"), lending.Options{
		LockTimeout:       cfg.LockTimeout,
		MaxAttempts:       cfg.ConflictRetries,
		DefaultLoanPeriod: cfg.DefaultLoanPeriod,
	})
	sweeper := lending.NewSweeper(repo, fanout, log.Named("sweeper"), cfg.SweepInterval)

	// --- Gin ---
	if !cfg.IsDev() {
		gin.SetMode(gin.ReleaseMode)
	}
	if err := RegisterValidators(); err != nil {
		log.Fatal("register validators", zap.Error(err))
	}
	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(log.Named("http")))
	useCORS(r, cfg.WebOrigins)

	a := &App{
		Router: r, DB: dbConn, RDB: rdb, Repo: repo, Config: cfg, Log: log,
		Lending: coordinator,
		Sweeper: sweeper,
		appSess: session.NewAppSessionStore(rdb, cfg.SessionTTL),
		closers: closers,
	}
	BootstrapAdmins(ctx, cfg, repo, log)
	return a
}

// Start 启动后台任务（逾期扫描）
func (a *App) Start(ctx context.Context) { a.Sweeper.Start(ctx) }

func (a *App) Close() {
	a.Sweeper.Stop()
	for _, c := range a.closers {
		_ = c.Close()
	}
	_ = a.RDB.Close()
	if sqlDB, err := a.DB.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func loadConfig() Config {
	get := func(k, def string) string {
		v := os.Getenv(k)
		if v == "" {
			return def
		}
		return v
	}
	dur := func(k string, def time.Duration) time.Duration {
		if d, err := time.ParseDuration(get(k, "")); err == nil {
			return d
		}
		return def
	}
	csv := func(s string, lower bool) []string {
		var out []string
		for _, p := range strings.Split(s, ",") {
			if t := strings.TrimSpace(p); t != "" {
				if lower {
					t = strings.ToLower(t)
				}
				out = append(out, t)
			}
		}
		return out
	}

	ttl := 24 * time.Hour
	if n, err := strconv.Atoi(get("SESSION_TTL_SECONDS", "")); err == nil && n > 0 {
		ttl = time.Duration(n) * time.Second
	}
	retries := 6
	if n, err := strconv.Atoi(get("CONFLICT_RETRIES", "")); err == nil && n > 0 {
		retries = n
	}

	dsn := get("DATABASE_URL", "")
	if dsn == "" {
		dsn = fmt.Sprintf(
			"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
			get("DB_HOST", "127.0.0.1"),
			get("DB_USER", "postgres"),
			get("DB_PASSWORD", "postgres"),
			get("DB_NAME", "lending"),
			get("DB_PORT", "5432"),
			get("DB_SSLMODE", "disable"),
		)
	}

	return Config{
		Env:         get("ENV", "development"),
		Port:        get("PORT", "3001"),
		DatabaseURL: dsn,
		RedisAddr:   get("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPwd:    os.Getenv("REDIS_PASSWORD"),
		WebOrigins:  csv(get("WEB_ORIGIN", "http://localhost:5173"), false),
		SessionTTL:  ttl,
		AdminEmails: csv(os.Getenv("ADMIN_EMAILS"), true), // 例如: "admin@ex.com,ops@ex.com"

		SweepInterval:     dur("SWEEP_INTERVAL", time.Minute),
		LockTimeout:       dur("LOCK_TIMEOUT", 3*time.Second),
		ConflictRetries:   retries,
		DefaultLoanPeriod: dur("DEFAULT_LOAN_PERIOD", 0),
		SeenThrottle:      dur("SEEN_THROTTLE", 5*time.Minute),

		NotifyChannel: get("NOTIFY_CHANNEL", "lending:events"),
		KafkaBrokers:  csv(os.Getenv("KAFKA_BROKERS"), false),
		KafkaTopic:    get("KAFKA_TOPIC", "lending-events"),

		DevLogin: get("DEV_LOGIN", "") == "true",
	}
}
