package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chcndr-sys/dms-hub-app-new-sub000/api/controllers"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/api/middleware"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/config"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/db"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/logger"
	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/metrics"
	pkgredis "github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/redis"
)

// Params wires the router. Redis is optional: without it health skips the
// Redis check and idempotency keys are not enforced.
type Params struct {
	Config     *config.Config
	Logger     *logger.Logger
	DB         db.Pinger
	Redis      *pkgredis.Client
	MarketDay  controllers.MarketDayService
	Wallets    controllers.WalletService
	Fees       controllers.FeeService
	Attendance controllers.AttendanceService
	Location   *time.Location
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
}

func NewRouter(p Params) http.Handler {
	cfg, logg := p.Config, p.Logger

	var (
		store   pkgredis.IdempotencyStore
		redisOK db.Pinger
	)
	if p.Redis != nil {
		store = p.Redis
		redisOK = p.Redis
	}
	idem := middleware.Idempotency(store, logg)

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg, metrics.NewHTTPMetrics(p.Registerer)),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, p.DB, redisOK))
	})

	if p.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(p.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/markets/{marketId}", func(r chi.Router) {
			r.Get("/stalls", controllers.MarketStalls(p.MarketDay, logg))
			r.Get("/queue", controllers.MarketQueuePreview(p.MarketDay, p.Location, logg))
			r.With(idem).Post("/fees", controllers.FeeGenerate(p.Fees, logg))

			r.Route("/days/{date}", func(r chi.Router) {
				r.Get("/", controllers.MarketDayView(p.MarketDay, logg))
				r.Post("/start", controllers.MarketDayStart(p.MarketDay, logg))
				r.With(idem).Post("/concessions/check-in", controllers.MarketDayCheckIn(p.MarketDay, logg))
				r.Post("/presence", controllers.MarketDayPresence(p.MarketDay, logg))
				r.Post("/spunta", controllers.MarketDaySpunta(p.MarketDay, logg))
				r.Post("/offers/next", controllers.MarketDayOfferNext(p.MarketDay, logg))
				r.With(idem).Post("/offers/{vendorId}/confirm", controllers.MarketDayConfirm(p.MarketDay, logg))
				r.Post("/offers/{vendorId}/decline", controllers.MarketDayDecline(p.MarketDay, logg))
				r.Post("/stalls/{stallNumber}/release", controllers.MarketDayRelease(p.MarketDay, logg))
				r.Post("/close", controllers.MarketDayClose(p.MarketDay, logg))
			})
		})

		r.Route("/wallets/{walletId}", func(r chi.Router) {
			r.Get("/", controllers.WalletGet(p.Wallets, logg))
			r.Get("/transactions", controllers.WalletTransactions(p.Wallets, logg))
			r.Get("/reconcile", controllers.WalletReconcile(p.Wallets, logg))
			r.Get("/fees", controllers.WalletFees(p.Fees, logg))
			r.With(idem).Post("/deposits", controllers.WalletDeposit(p.Wallets, logg))
			r.With(idem).Post("/charges", controllers.WalletCharge(p.Fees, logg))
		})

		r.With(idem).Post("/fees/{scheduleId}/pay", controllers.FeePay(p.Fees, logg))
		r.Post("/attendance/{attendanceId}/correction", controllers.AttendanceCorrect(p.Attendance, logg))
	})

	return r
}
