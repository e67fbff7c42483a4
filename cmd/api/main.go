package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-order-lifecycle/internal/config"
	"github.com/ariefcatur/go-order-lifecycle/internal/dispatch"
	"github.com/ariefcatur/go-order-lifecycle/internal/httpx"
	"github.com/ariefcatur/go-order-lifecycle/internal/inventory"
	kafkax "github.com/ariefcatur/go-order-lifecycle/internal/kafka"
	"github.com/ariefcatur/go-order-lifecycle/internal/logx"
	"github.com/ariefcatur/go-order-lifecycle/internal/memstore"
	"github.com/ariefcatur/go-order-lifecycle/internal/orders"
	"github.com/ariefcatur/go-order-lifecycle/internal/postgres"
	"github.com/ariefcatur/go-order-lifecycle/internal/redisx"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type backend interface {
	orders.Catalog
	orders.OrderStore
	orders.CustomerStore
	httpx.ProductReader
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := logx.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	zap.ReplaceGlobals(log)

	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Storage
	var (
		store backend
		stock inventory.StockStore
	)
	switch cfg.Store {
	case "postgres":
		db, err := postgres.Connect(ctx, cfg.PostgresDSN, log)
		if err != nil {
			log.Fatal("db connect", zap.Error(err))
		}
		defer db.Close()
		if err := postgres.Migrate(ctx, db); err != nil {
			log.Fatal("db migrate", zap.Error(err))
		}
		store = &orders.Repo{DB: db}
		stock = &orders.StockRepo{DB: db}
	default:
		mem := memstore.New()
		seedDemo(mem)
		log.Warn("using in-memory store; data is lost on exit")
		store, stock = mem, mem
	}

	// Redis
	var cache *redisx.OrderCache
	if cfg.RedisAddr != "" {
		rdb := redisx.New(cfg.RedisAddr)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn("redis unavailable, order cache disabled", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		} else {
			cache = redisx.NewOrderCache(rdb, cfg.OrderCacheTTL)
		}
	}

	// Side effects: Kafka to the notifier service, or in process.
	var (
		effects  orders.SideEffects
		shutdown func()
	)
	if len(cfg.KafkaBrokers) > 0 {
		prod := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderStatusChanged, 1024, log)
		prod.Start(ctx)
		effects = &dispatch.Publisher{Producer: prod, ServiceName: cfg.ServiceName}
		shutdown = func() {
			prod.Close()
			prod.WaitClosed()
		}
	} else {
		async := dispatch.NewAsync(&dispatch.Dispatcher{
			Notifier: notifier(cfg, log),
			Renderer: dispatch.TextInvoiceRenderer{},
			Log:      log,
		}, cfg.DispatchWorkers, 256, log)
		async.Start(ctx)
		effects = async
		shutdown = async.Close
	}

	svc := &orders.Service{
		Catalog:              store,
		Inventory:            inventory.New(stock, log),
		Orders:               store,
		Customers:            store,
		Effects:              effects,
		Log:                  log,
		RestoreStockOnCancel: cfg.RestoreStockOnCancel,
	}

	router := httpx.NewRouter(log)
	oh := &httpx.OrdersHandler{
		Service:  svc,
		Products: store,
		Cache:    cache,
		Timeout:  cfg.RequestTimeout,
		Log:      log,
	}
	oh.Register(router, httpx.Authenticate([]byte(cfg.JWTSecret)))

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		log.Info("http listening", zap.String("addr", cfg.HTTPAddr), zap.String("store", cfg.Store))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("listen", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	// HTTP is drained before the effects pipeline closes, so no request queues into it.
	shutdown()
	cancel()
}

func seedDemo(s *memstore.Store) {
	now := time.Now().UTC()
	for _, p := range []orders.Product{
		{ID: uuid.NewString(), Name: "Ballpoint Pen", SKU: "PEN-001", Category: "stationery", Price: decimal.RequireFromString("2.50"), Quantity: 500},
		{ID: uuid.NewString(), Name: "A5 Notebook", SKU: "NTB-A5", Category: "stationery", Price: decimal.RequireFromString("6.90"), Quantity: 120},
		{ID: uuid.NewString(), Name: "Desk Lamp", SKU: "LMP-010", Category: "office", Price: decimal.RequireFromString("34.00"), Quantity: 15},
	} {
		p.CreatedAt, p.UpdatedAt = now, now
		s.PutProduct(p)
	}
}

func notifier(cfg config.Config, log *zap.Logger) dispatch.Notifier {
	if cfg.SMTPAddr == "" {
		return dispatch.LogNotifier{Log: log}
	}
	n := dispatch.NewSMTPNotifier(cfg.SMTPAddr, cfg.SMTPFrom, cfg.SMTPUser, cfg.SMTPPassword)
	n.Timeout = cfg.SMTPTimeout
	return n
}
