package server

import (
	"github.com/hibiken/asynq"

	"suibison/internal/bisonapi"
	"suibison/internal/ledger"
	"suibison/internal/rate"
	"suibison/internal/store"
	"suibison/internal/telegram"
	"suibison/internal/worker"
)

func buildEngine(app *bisonapi.App) *ledger.Engine {
	return ledger.New(ledger.Options{
		Store:           store.NewGorm(app.Db),
		Wallet:          app.Rpc,
		Rates:           rate.NewCache(app.Rdb, app.Env.RateTtl),
		Locker:          ledger.NewRedisLocker(app.Rdb),
		Events:          ledger.NewRedisPublisher(app.Rdb, app.Log),
		Alerts:          financeNotifier(app),
		Settings:        app.Config.Settings,
		Secret:          []byte(app.Env.WalletSecret),
		PlatformAddress: app.Env.PlatformAddress,
		PlatformKey:     app.Env.PlatformKey,
		Log:             app.Log,
	})
}

// financeNotifier returns nil when telegram is not configured, which the engine treats as no alerts.
func financeNotifier(app *bisonapi.App) ledger.Notifier {
	if app.Env.TelegramToken == "" || app.Env.FinanceChatId == 0 {
		app.Log.Warn("[telegram] finance alerts disabled")
		return nil
	}
	bot, err := telegram.NewBot(app.Env.TelegramToken)
	if err != nil {
		app.Log.WithError(err).Error("[telegram] bot unavailable, finance alerts disabled")
		return nil
	}
	return telegram.NewFinance(bot, app.Env.FinanceChatId)
}

func newWorkerMux(app *bisonapi.App, engine *ledger.Engine) *asynq.ServeMux {
	fetcher := rate.NewFetcher(app.Env.PriceUrl, app.Env.PricePath)
	cache := rate.NewCache(app.Rdb, app.Env.RateTtl)
	refresher := rate.NewRefresher(fetcher, cache, app.Log.WithField("component", "rate"))
	return worker.NewMux(engine, refresher, app.Log)
}
