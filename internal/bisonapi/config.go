package bisonapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v9"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"suibison/internal/evm"
	"suibison/internal/wallet"
)

const appConfigKey = "app_config"

type App struct {
	Rpc    wallet.Backend
	Rdb    *redis.Client
	Db     *gorm.DB
	Aqc    *asynq.Client
	Aqi    *asynq.Inspector
	Env    *Env
	Config *AppConfig
	Log    *logrus.Logger
}

type Env struct {
	AppEnv            string        `env:"APP_ENV" envDefault:"development"`
	LogLevel          string        `env:"LOG_LEVEL" envDefault:"info"`
	DbDsn             string        `env:"DB_DSN,required"`
	RedisAddr         string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword     string        `env:"REDIS_PASSWORD"`
	WalletBackend     string        `env:"WALLET_BACKEND" envDefault:"sui"`
	RpcUrl            string        `env:"RPC_URL,required"`
	WalletSecret      string        `env:"WALLET_SECRET,required"`
	PlatformAddress   string        `env:"PLATFORM_ADDRESS,required"`
	PlatformKey       string        `env:"PLATFORM_KEY,required"` // sealed with WALLET_SECRET
	PriceUrl          string        `env:"PRICE_URL" envDefault:"https://api.coingecko.com/api/v3/simple/price?ids=sui&vs_currencies=usd"`
	PricePath         string        `env:"PRICE_PATH" envDefault:"$.sui.usd"`
	ServiceToken      string        `env:"SERVICE_TOKEN"`
	JwtSecret         string        `env:"JWT_SECRET,required"`
	StakeTimeout      time.Duration `env:"STAKE_TIMEOUT" envDefault:"45s"`
	RateTtl           time.Duration `env:"RATE_TTL" envDefault:"3h"`
	TelegramToken     string        `env:"TELEGRAM_TOKEN"`
	FinanceChatId     int64         `env:"FINANCE_CHAT_ID"`
	WorkerConcurrency int           `env:"WORKER_CONCURRENCY" envDefault:"10"`
	Port              string        `env:"PORT" envDefault:"8000"`
	CorsOrigins       []string      `env:"CORS_ORIGINS" envDefault:"http://localhost:3000" envSeparator:","`
	RateLimit         uint          `env:"RATE_LIMIT" envDefault:"100"` // requests per second per ip
}

func (e *Env) RedisOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     e.RedisAddr,
		Password: e.RedisPassword,
	}
}

type AppConfig struct {
	Settings AppSettings `json:"settings"`
}

type AppSettings struct {
	Ref      RefSettings      `json:"ref"`
	Staking  StakingSettings  `json:"staking"`
	Limits   SettingLimit     `json:"limits"`
	Matrix   MatrixSettings   `json:"matrix"`
	Transfer TransferSettings `json:"transfer"`
	Ranks    []RankTier       `json:"ranks"`
}

type RefSettings struct {
	MaxDepth              int               `json:"max_depth"`
	Levels                []decimal.Decimal `json:"levels"` // commission per level, index 0 is level 1
	FastBonus             decimal.Decimal   `json:"fast_bonus"`
	FastBonusWindow       time.Duration     `json:"fast_bonus_window"`
	FastBonusMinReferrals int64             `json:"fast_bonus_min_referrals"`
}

type StakingSettings struct {
	MinDeposit  decimal.Decimal `json:"min_deposit"`
	Diversion   decimal.Decimal `json:"diversion"`
	RoiFloor    decimal.Decimal `json:"roi_floor"`
	RoiStep     decimal.Decimal `json:"roi_step"`
	RoiCap      decimal.Decimal `json:"roi_cap"`
	Interval    time.Duration   `json:"interval"`
	RunDuration time.Duration   `json:"run_duration"`
	Dust        decimal.Decimal `json:"dust"` // custodial balances at or below are not swept
}

type SettingLimit struct {
	WithdrawMin decimal.Decimal `json:"withdraw_min"`
	Payout      decimal.Decimal `json:"payout"`
	Restake     decimal.Decimal `json:"restake"`
	Token       decimal.Decimal `json:"token"`
}

type MatrixSettings struct {
	Window      time.Duration `json:"window"`
	PayoutGrace time.Duration `json:"payout_grace"`
}

type TransferSettings struct {
	Timeout     time.Duration `json:"timeout"`
	MaxAttempts int           `json:"max_attempts"`
	Backoff     time.Duration `json:"backoff"`
	LockTtl     time.Duration `json:"lock_ttl"`
}

// RankTier bounds are in the reference currency, lower inclusive, upper exclusive. A zero upper bound is open.
type RankTier struct {
	Name         string          `json:"name"`
	MinVolume    decimal.Decimal `json:"min_volume"`
	MaxVolume    decimal.Decimal `json:"max_volume"`
	MinDeposit   decimal.Decimal `json:"min_deposit"`
	MaxDeposit   decimal.Decimal `json:"max_deposit"`
	MinReferrals int64           `json:"min_referrals"`
	WeeklyBonus  decimal.Decimal `json:"weekly_bonus"`
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func tier(name, minVol, maxVol, minDep, maxDep string, refs int64, bonus string) RankTier {
	return RankTier{
		Name:         name,
		MinVolume:    dec(minVol),
		MaxVolume:    dec(maxVol),
		MinDeposit:   dec(minDep),
		MaxDeposit:   dec(maxDep),
		MinReferrals: refs,
		WeeklyBonus:  dec(bonus),
	}
}

// DefaultAppConfig returns the tunables written to redis on first boot.
func DefaultAppConfig() *AppConfig {
	return &AppConfig{
		Settings: AppSettings{
			Ref: RefSettings{
				MaxDepth:              5,
				Levels:                []decimal.Decimal{dec("0.10"), dec("0.05"), dec("0.03"), dec("0.02"), dec("0.01")},
				FastBonus:             dec("3"),
				FastBonusWindow:       24 * time.Hour,
				FastBonusMinReferrals: 2,
			},
			Staking: StakingSettings{
				MinDeposit:  dec("3"),
				Diversion:   dec("0.1"),
				RoiFloor:    dec("0.01"),
				RoiStep:     dec("0.005"),
				RoiCap:      dec("0.03"),
				Interval:    5 * 24 * time.Hour,
				RunDuration: 100 * 24 * time.Hour,
				Dust:        dec("0.01"),
			},
			Limits: SettingLimit{
				WithdrawMin: dec("1"),
				Payout:      dec("0.6"),
				Restake:     dec("0.2"),
				Token:       dec("0.1"),
			},
			Matrix: MatrixSettings{
				Window:      7 * 24 * time.Hour,
				PayoutGrace: 5 * time.Minute,
			},
			Transfer: TransferSettings{
				Timeout:     30 * time.Second,
				MaxAttempts: 10,
				Backoff:     2 * time.Minute,
				LockTtl:     2 * time.Minute,
			},
			Ranks: []RankTier{
				tier("Leader", "1000", "5000", "50", "100", 3, "25"),
				tier("Bison King", "5000", "20000", "100", "500", 5, "100"),
				tier("Bison Hon", "20000", "100000", "500", "2000", 10, "250"),
				tier("Accumulator", "100000", "250000", "2000", "5000", 10, "1000"),
				tier("Bison Diamond", "250000", "500000", "5000", "10000", 10, "3000"),
				tier("Bison Legend", "500000", "1000000", "10000", "15000", 10, "5000"),
				tier("Supreme Bison", "1000000", "0", "150000", "0", 10, "7000"),
			},
		},
	}
}

// Init wires the api process.
func Init() (*App, error) {
	app, err := initBase()
	if err != nil {
		return nil, err
	}
	app.Aqc = asynq.NewClient(app.Env.RedisOpt())
	app.Aqi = asynq.NewInspector(app.Env.RedisOpt())
	return app, nil
}

// InitWorker wires the job runner process. The asynq server is built by the caller.
func InitWorker() (*App, error) {
	app, err := initBase()
	if err != nil {
		return nil, err
	}
	app.Aqc = asynq.NewClient(app.Env.RedisOpt())
	return app, nil
}

func initBase() (*App, error) {
	e, err := LoadEnv()
	if err != nil {
		return nil, err
	}
	log := setupLogger(e)
	rdb := setupRedis(e)
	db, err := setupDb(e)
	if err != nil {
		return nil, err
	}
	rpc, err := setupWallet(e)
	if err != nil {
		return nil, err
	}
	cfg, err := LoadAppConfig(context.Background(), rdb)
	if err != nil {
		return nil, err
	}
	return &App{
		Rpc:    rpc,
		Rdb:    rdb,
		Db:     db,
		Env:    e,
		Config: cfg,
		Log:    log,
	}, nil
}

// LoadAppConfig reads the cached tunables, seeding the defaults when absent.
func LoadAppConfig(ctx context.Context, rdb *redis.Client) (*AppConfig, error) {
	raw, err := rdb.Get(ctx, appConfigKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("read app config: %w", err)
	}
	if len(raw) > 0 {
		cfg := DefaultAppConfig()
		if err := json.Unmarshal([]byte(raw), cfg); err == nil {
			return cfg, nil
		}
	}
	cfg := DefaultAppConfig()
	current, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	if err := rdb.Set(ctx, appConfigKey, current, 0).Err(); err != nil {
		return nil, fmt.Errorf("seed app config: %w", err)
	}
	return cfg, nil
}

func setupLogger(e *Env) *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	level, err := logrus.ParseLevel(e.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	return log
}

func setupRedis(e *Env) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     e.RedisAddr,
		Password: e.RedisPassword,
		DB:       0,
	})
}

func setupDb(e *Env) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(e.DbDsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to the db: %w", err)
	}
	err = db.AutoMigrate(
		&User{},
		&Wallet{},
		&StakingPosition{},
		&ReferralEdge{},
		&MatrixPool{},
		&MatrixPoolShare{},
		&Activity{},
		&TokenMeter{},
		&Transfer{},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return db, nil
}

func setupWallet(e *Env) (wallet.Backend, error) {
	switch e.WalletBackend {
	case "evm":
		return evm.New(e.RpcUrl)
	case "sui":
		return wallet.NewSui(e.RpcUrl), nil
	}
	return nil, fmt.Errorf("unknown wallet backend %q", e.WalletBackend)
}

// SetupAsynqServer builds the job runner with its queue weights.
func SetupAsynqServer(e *Env, log *logrus.Logger) *asynq.Server {
	return asynq.NewServer(
		e.RedisOpt(),
		asynq.Config{
			Concurrency: e.WorkerConcurrency,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
			Logger: log,
		},
	)
}

// LoadEnv reads .env files the usual way and parses them into Env.
func LoadEnv() (*Env, error) {
	appEnv := os.Getenv("APP_ENV")
	if "" == appEnv {
		appEnv = "development"
	}

	godotenv.Load(".env." + appEnv + ".local")

	if "test" != appEnv {
		godotenv.Load(".env.local")
	}
	godotenv.Load(".env." + appEnv)
	godotenv.Load()

	e := &Env{}
	if err := env.Parse(e); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return e, nil
}
