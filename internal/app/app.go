// Package app инициализирует все компоненты приложения.
// app.go — точка сборки: создаёт БД-пул, хранилище, сервисы, обработчики,
// HTTP-сервер, бота и планировщик.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/flip-bot/internal/api"
	"serotonyl.ru/flip-bot/internal/auth"
	"serotonyl.ru/flip-bot/internal/bot"
	"serotonyl.ru/flip-bot/internal/cache"
	"serotonyl.ru/flip-bot/internal/common"
	"serotonyl.ru/flip-bot/internal/config"
	"serotonyl.ru/flip-bot/internal/db/postgres"
	"serotonyl.ru/flip-bot/internal/features/accounts"
	"serotonyl.ru/flip-bot/internal/features/admin"
	"serotonyl.ru/flip-bot/internal/features/games"
	"serotonyl.ru/flip-bot/internal/features/payments"
	"serotonyl.ru/flip-bot/internal/features/rewards"
	"serotonyl.ru/flip-bot/internal/features/tasks"
	"serotonyl.ru/flip-bot/internal/jobs"
	"serotonyl.ru/flip-bot/internal/ratelimit"
)

const readHeaderTimeout = 10 * time.Second

// App содержит все компоненты приложения.
type App struct {
	cfg *config.Config

	HTTP      *http.Server
	Bot       *bot.Bot // nil, если BOT_ENABLED=false
	Scheduler *jobs.Scheduler
	DB        *pgxpool.Pool
	Redis     *redis.Client // nil без REDIS_ADDR
	Limiter   *ratelimit.Limiter
}

// New создаёт и инициализирует приложение.
// Порядок инициализации важен — компоненты зависят друг от друга.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{cfg: cfg}
	ok := false
	// При ошибке на любом шаге закрываем то, что уже открыто
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	// === 1. База данных ===
	pool, err := postgres.NewPool(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к БД: %w", err)
	}
	a.DB = pool

	if err := postgres.RunMigrations(ctx, pool, migrations); err != nil {
		return nil, fmt.Errorf("ошибка миграций: %w", err)
	}
	store := postgres.NewStore(pool)

	// === 2. Кэш статистики (необязательно) ===
	var statsCache admin.StatsCache
	if cfg.RedisAddr != "" {
		client, err := cache.Connect(ctx, cfg)
		if err != nil {
			// Без кэша админка работает, просто медленнее
			log.WithError(err).Warn("Redis недоступен, кэш статистики отключён")
		} else {
			a.Redis = client
			statsCache = cache.NewStats(client, cfg.StatsCacheTTL)
		}
	}

	// === 3. Аутентификация ===
	clock := common.SystemClock
	verifier := auth.NewVerifier(cfg.TelegramBotToken, cfg.AuthMaxAge, clock)
	issuer := auth.NewIssuer(cfg.JWTSecret, cfg.JWTTTL, clock)

	// === 4. Сервисы ===
	gameService := games.NewService(store, games.NewLimiter(games.DailyCaps), clock, games.CryptoPicker)
	taskService := tasks.NewService(store)
	rewardService := rewards.NewService(store, clock)
	paymentService := payments.NewService(store, clock, cfg.TelegramBotUsername)
	accountService := accounts.NewService(store, issuer, cfg.IsAdminID, clock)
	adminService := admin.NewService(store, paymentService, statsCache, clock)

	// === 5. HTTP ===
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	a.Limiter = ratelimit.New(cfg.RateLimitRequests, cfg.RateLimitWindow, clock)

	accountHandler := accounts.NewHandler(accountService, verifier)
	router := api.NewRouter(api.Handlers{
		Accounts: accountHandler,
		Games:    games.NewHandler(gameService),
		Tasks:    tasks.NewHandler(taskService, clock),
		Rewards:  rewards.NewHandler(rewardService),
		Payments: payments.NewHandler(paymentService, payments.NewWebhook(paymentService, verifier), accountHandler.Locale),
		Admin:    admin.NewHandler(adminService),
	}, api.Options{
		Issuer:      issuer,
		Limiter:     a.Limiter,
		CORSOrigins: cfg.CORSOrigins,
		Health:      store.Ping,
	})
	a.HTTP = &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	// === 6. Telegram Bot API ===
	if cfg.BotEnabled {
		botAPI, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
		if err != nil {
			return nil, fmt.Errorf("ошибка создания Telegram API: %w", err)
		}
		botAPI.Debug = cfg.AppEnv == "development"
		log.Infof("Авторизован как @%s", botAPI.Self.UserName)

		a.Bot = bot.New(botAPI, cfg, accountService, gameService, paymentService, a.Limiter)
	}

	// === 7. Планировщик задач ===
	a.Scheduler = jobs.NewScheduler(cfg.PruneSchedule, cfg.CounterRetentionDays, store, a.Limiter, clock)

	ok = true
	return a, nil
}

// Run запускает планировщик, бота и HTTP-сервер и блокируется до отмены ctx.
// После отмены сервер завершает текущие запросы за HTTP_SHUTDOWN_TIMEOUT.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	if err := a.Scheduler.Start(ctx); err != nil {
		return err
	}
	defer a.Scheduler.Stop()

	botDone := make(chan struct{})
	if a.Bot != nil {
		go func() {
			defer close(botDone)
			a.Bot.Start(ctx)
		}()
	} else {
		close(botDone)
	}

	serveErr := make(chan error, 1)
	go func() {
		log.WithField("addr", a.HTTP.Addr).Info("HTTP-сервер запущен")
		if err := a.HTTP.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		runErr = fmt.Errorf("ошибка HTTP-сервера: %w", err)
	}

	stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTPShutdownTimeout)
	defer cancel()
	if err := a.HTTP.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("HTTP-сервер остановлен не полностью")
	}
	<-botDone
	log.Info("HTTP-сервер остановлен")
	return runErr
}

// Close освобождает соединения. Безопасно вызывать повторно.
func (a *App) Close() {
	if a.Limiter != nil {
		a.Limiter.Close()
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			log.WithError(err).Warn("Ошибка закрытия Redis")
		}
		a.Redis = nil
	}
	if a.DB != nil {
		a.DB.Close()
		a.DB = nil
	}
}
