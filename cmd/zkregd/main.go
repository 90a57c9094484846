package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"ZKIPFS-Registry/internal/api"
	"ZKIPFS-Registry/internal/auth"
	"ZKIPFS-Registry/internal/config"
	"ZKIPFS-Registry/internal/ledger"
	"ZKIPFS-Registry/internal/notify"
	"ZKIPFS-Registry/internal/observability/metrics"
	"ZKIPFS-Registry/internal/proof"
	"ZKIPFS-Registry/internal/queue"
	"ZKIPFS-Registry/internal/registry"
	"ZKIPFS-Registry/internal/storage/mysql"
	"ZKIPFS-Registry/internal/verifier"
	"ZKIPFS-Registry/pkg/logger"
	"ZKIPFS-Registry/pkg/plugin"
)

// main 是注册中心守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("zkregd 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	configPath := os.Getenv("ZKREG_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("configs", "zkreg.json")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := initLogging(cfg.Logging); err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	// 组装证明系统能力集：devmode 内建，其余由插件贡献。
	caps := proof.NewCapabilitySet()
	host, err := buildVerifierHost(cfg, caps)
	if err != nil {
		return err
	}
	if err := host.Start(ctx); err != nil {
		return err
	}
	defer func() {
		_ = host.Stop(context.Background())
	}()

	supported := cfg.Registry.SupportedSystems
	if cfg.Systems.Path != "" {
		defs, err := proof.LoadSystemDefinitions(cfg.Systems.Path)
		if err != nil {
			return err
		}
		supported = append(supported, defs.Enabled()...)
	}

	store, err := buildStore(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer store.Close()

	book, err := buildLedger(ctx, cfg.Ledger)
	if err != nil {
		return err
	}

	publisher, err := buildPublisher(cfg.Notify)
	if err != nil {
		return err
	}
	defer publisher.Close()

	reg, err := registry.New(registry.Config{
		MinSecurityLevel: cfg.Registry.MinSecurityLevel,
		MaxProofAge:      cfg.Registry.MaxProofAge,
		VerificationFee:  cfg.Registry.VerificationFee,
		FeeRecipient:     cfg.Registry.FeeRecipient,
		SupportedSystems: supported,
		AdminIdentity:    cfg.Registry.AdminIdentity,
		VerifierIdentity: cfg.Registry.VerifierIdentity,
	}, store, caps, book, registry.WithPublisher(publisher))
	if err != nil {
		return err
	}

	submitQueue, err := buildQueue(cfg.Queue)
	if err != nil {
		return err
	}
	defer func() {
		if err := submitQueue.Close(); err != nil {
			log.Printf("关闭提交队列失败: %v", err)
		}
	}()

	processor := queue.NewProcessor(reg, submitQueue,
		queue.WithWorkerCount(cfg.Queue.Workers),
	)

	processorCtx, processorCancel := context.WithCancel(ctx)
	defer processorCancel()

	go func() {
		if err := processor.Start(processorCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.L().Error("提交处理器异常退出", slog.Any("error", err))
		}
	}()

	if cfg.Metrics.Address != "" {
		go func() {
			if err := metrics.StartServer(ctx, cfg.Metrics.Address); err != nil && !errors.Is(err, context.Canceled) {
				logger.L().Error("指标服务异常退出", slog.Any("error", err))
			}
		}()
	}

	authService, err := buildAuth(cfg.Auth)
	if err != nil {
		return err
	}

	server := api.NewServer(cfg.Server.Address, reg,
		api.WithProducer(submitQueue),
		api.WithAuthService(authService),
	)

	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func initLogging(cfg config.LoggingConfig) error {
	logCfg := logger.Config{Level: cfg.Level}
	if cfg.Dir != "" {
		logCfg.OutputPaths = []string{"stdout", filepath.Join(cfg.Dir, "zkregd.log")}
	}
	if cfg.AuditDir != "" {
		logCfg.Audit = logger.AuditConfig{
			Enabled: true,
			Path:    filepath.Join(cfg.AuditDir, "audit.log"),
		}
	}
	return logger.Init(logCfg)
}

func buildVerifierHost(cfg *config.Config, caps *proof.CapabilitySet) (*verifier.Host, error) {
	var manager *plugin.Manager
	if cfg.Plugins.Path != "" {
		managerCfg, err := plugin.LoadManagerConfig(cfg.Plugins.Path)
		if err != nil {
			return nil, err
		}
		manager, err = plugin.NewManager(managerCfg)
		if err != nil {
			return nil, err
		}
	}
	host := verifier.NewHost(manager, caps)
	if err := host.RegisterProvider("devmode", verifier.DevmodeProvider{}); err != nil {
		return nil, err
	}
	return host, nil
}

func buildStore(ctx context.Context, cfg config.StorageConfig) (registry.Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return registry.NewMemoryStore(), nil
	case "mysql":
		return mysql.NewRegistryStore(ctx, mysql.Config{
			DSN:             cfg.DSN,
			MaxOpenConns:    cfg.MaxOpenConns,
			MaxIdleConns:    cfg.MaxIdleConns,
			ConnMaxLifetime: cfg.ConnMaxLifetimeDuration(),
		})
	default:
		return nil, fmt.Errorf("未知的存储驱动: %s", cfg.Driver)
	}
}

func buildLedger(ctx context.Context, cfg config.LedgerConfig) (ledger.Ledger, error) {
	switch cfg.Driver {
	case "", "memory":
		return ledger.NewMemoryLedger(), nil
	case "ethereum":
		return ledger.NewEthereumLedger(ctx, ledger.EthereumConfig{
			RPCURL:      cfg.RPCURL,
			ChainID:     cfg.ChainID,
			OperatorKey: cfg.OperatorKey,
			Accounts:    cfg.Accounts,
			GasLimit:    cfg.GasLimit,
		})
	default:
		return nil, fmt.Errorf("未知的账本驱动: %s", cfg.Driver)
	}
}

func buildPublisher(cfg config.NotifyConfig) (notify.Publisher, error) {
	switch cfg.Driver {
	case "", "log":
		return notify.LogPublisher{}, nil
	case "redis":
		return notify.NewRedisPublisher(notify.RedisConfig{
			Address:  cfg.Address,
			Password: cfg.Password,
			DB:       cfg.DB,
			Channel:  cfg.Channel,
		})
	case "rabbitmq":
		return notify.NewRabbitMQPublisher(notify.RabbitMQConfig{
			URL:      cfg.URL,
			Exchange: cfg.Exchange,
			Durable:  true,
		})
	default:
		return nil, fmt.Errorf("未知的通知驱动: %s", cfg.Driver)
	}
}

func buildQueue(cfg config.QueueConfig) (queue.Queue, error) {
	switch cfg.Driver {
	case "", "memory":
		return queue.NewMemoryQueue(1024), nil
	case "redis":
		return queue.NewRedisQueue(queue.RedisQueueConfig{
			Address:   cfg.Address,
			Password:  cfg.Password,
			DB:        cfg.DB,
			Queue:     cfg.Name,
			BlockWait: 5 * time.Second,
		})
	case "rabbitmq":
		return queue.NewRabbitMQQueue(queue.RabbitMQConfig{
			URL:      cfg.URL,
			Queue:    cfg.Name,
			Prefetch: cfg.Workers,
			Durable:  true,
		})
	default:
		return nil, fmt.Errorf("未知的队列驱动: %s", cfg.Driver)
	}
}

func buildAuth(cfg config.AuthConfig) (*auth.Service, error) {
	seeds := make([]auth.TokenSeed, 0, len(cfg.Tokens))
	for _, token := range cfg.Tokens {
		seeds = append(seeds, auth.TokenSeed{
			Token:    token.Token,
			Identity: token.Identity,
			Admin:    token.Admin,
		})
	}
	return auth.NewService(auth.Config{
		Mode:   auth.Mode(cfg.Mode),
		Tokens: seeds,
	}, logger.Audit())
}
