package main

import (
    "context"
    "errors"
    "log"
    "net/http"
    "os"
    "os/signal"
    "syscall"
    "time"

    "github.com/joho/godotenv"
    "github.com/redis/go-redis/v9"
    "github.com/valyala/fasthttp"
    "go.uber.org/zap"

    "github.com/park285/omok-server/internal/account"
    appcfg "github.com/park285/omok-server/internal/config"
    "github.com/park285/omok-server/internal/httpapi"
    "github.com/park285/omok-server/internal/hub"
    "github.com/park285/omok-server/internal/msgcat"
    "github.com/park285/omok-server/internal/obslog"
    "github.com/park285/omok-server/internal/record"
    "github.com/park285/omok-server/internal/room"
    "github.com/park285/omok-server/internal/session"
    "github.com/park285/omok-server/internal/ws"
)

const shutdownTimeout = 10 * time.Second

func main() {
    // .env is optional; real environment wins.
    _ = godotenv.Load()

    if err := obslog.InitFromEnv(); err != nil {
        log.Fatalf("logger init error: %v", err)
    }
    defer obslog.Sync()
    logger := obslog.L()

    cfg, err := appcfg.Load()
    if err != nil {
        logger.Fatal("config_error", zap.Error(err))
    }

    msgs, err := msgcat.New(cfg.MessagesDir)
    if err != nil {
        logger.Fatal("messages_error", zap.String("dir", cfg.MessagesDir), zap.Error(err))
    }

    var (
        accountStore account.Store
        presence     session.Presence
        lister       record.Lister
        recorders    record.Fanout
        rdb          *redis.Client
        repo         *record.Repository
    )

    if cfg.RedisURL != "" {
        opt, perr := redis.ParseURL(cfg.RedisURL)
        if perr != nil {
            logger.Fatal("redis_url_invalid", zap.Error(perr))
        }
        rdb = redis.NewClient(opt)
        pctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
        err = rdb.Ping(pctx).Err()
        cancel()
        if err != nil {
            logger.Fatal("redis_ping_error", zap.Error(err))
        }
        rp := session.NewRedisPresence(rdb, cfg.RedisPrefix, logger.Named("presence"))
        rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
        if err := rp.Reset(rctx); err != nil {
            logger.Warn("presence_reset_error", zap.Error(err))
        }
        cancel()
        presence = rp
        accountStore = account.NewRedisStore(rdb, cfg.RedisPrefix)
        rl := record.NewRedisList(rdb, cfg.RedisPrefix, cfg.RecentMatchesLimit)
        recorders = append(recorders, rl)
        lister = rl
    }

    if cfg.DatabaseURL != "" {
        repo, err = record.NewRepository(cfg.DatabaseURL)
        if err != nil {
            logger.Fatal("postgres_init_error", zap.Error(err))
        }
        sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
        err = repo.EnsureSchema(sctx)
        cancel()
        if err != nil {
            logger.Fatal("postgres_schema_error", zap.Error(err))
        }
        recorders = append(recorders, repo)
        lister = repo
    }

    if cfg.MatchWebhookURL != "" {
        recorders = append(recorders, record.NewWebhook(cfg.MatchWebhookURL, record.WithRetry(2)))
    }

    if lister == nil {
        mem := record.NewMemory(cfg.RecentMatchesLimit)
        recorders = append(recorders, mem)
        lister = mem
    }
    async := record.NewAsync(recorders, 256, 10*time.Second, logger.Named("record"))

    accounts := account.NewService(accountStore, account.WithLogger(logger.Named("account")))
    lctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
    err = accounts.Load(lctx)
    cancel()
    if err != nil {
        logger.Fatal("accounts_load_error", zap.Error(err))
    }

    h := hub.New(hub.Deps{
        Accounts:        accounts,
        Recorder:        async,
        Catalog:         msgs,
        Presence:        presence,
        RequireAccounts: cfg.RequireAccounts,
        SweepSpec:       cfg.SweepSpec,
        StatsSpec:       cfg.StatsSpec,
        Logger:          logger.Named("hub"),
        RoomOptions: []room.Option{
            room.WithTurnTimeout(cfg.TurnTimeout),
            room.WithChatHistory(cfg.ChatHistoryLimit),
        },
    })
    if err := h.Start(); err != nil {
        logger.Fatal("scheduler_error", zap.Error(err))
    }

    wsSrv := ws.NewServer(h,
        ws.WithOriginPatterns(cfg.AllowedOrigins),
        ws.WithSendBuffer(cfg.WSSendBuffer),
        ws.WithPingInterval(cfg.WSPingInterval),
        ws.WithLogger(logger.Named("ws")),
    )
    mux := http.NewServeMux()
    mux.Handle("/ws", wsSrv)
    httpSrv := &http.Server{Addr: cfg.WSAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

    api := httpapi.New(h.Rooms(),
        httpapi.WithRecent(lister, cfg.RecentMatchesLimit),
        httpapi.WithStats(h.Stats),
        httpapi.WithLogger(logger.Named("http")),
    )
    apiSrv := &fasthttp.Server{
        Handler:      api.Handle,
        Name:         "omok-server",
        ReadTimeout:  10 * time.Second,
        WriteTimeout: 10 * time.Second,
    }

    errCh := make(chan error, 2)
    go func() {
        logger.Info("ws_listen", zap.String("addr", cfg.WSAddr))
        if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
            errCh <- err
        }
    }()
    go func() {
        logger.Info("http_listen", zap.String("addr", cfg.HTTPAddr))
        if err := apiSrv.ListenAndServe(cfg.HTTPAddr); err != nil {
            errCh <- err
        }
    }()

    // Wait for termination signal
    sigCh := make(chan os.Signal, 1)
    signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
    select {
    case sig := <-sigCh:
        logger.Info("shutdown_signal", zap.String("signal", sig.String()))
    case err := <-errCh:
        logger.Error("listener_error", zap.Error(err))
    }

    ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
    defer cancel()
    if err := wsSrv.Shutdown(ctx); err != nil {
        logger.Warn("ws_shutdown_error", zap.Error(err))
    }
    _ = httpSrv.Shutdown(ctx)
    _ = apiSrv.ShutdownWithContext(ctx)
    if err := h.Stop(ctx); err != nil {
        logger.Warn("scheduler_stop_error", zap.Error(err))
    }
    if err := async.Close(ctx); err != nil {
        logger.Warn("record_drain_error", zap.Error(err))
    }
    _ = repo.Close()
    if rdb != nil {
        _ = rdb.Close()
    }
    logger.Info("shutdown_complete")
}
