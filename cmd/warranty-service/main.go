package main

import (
	"flag"
	"fmt"

	"google.golang.org/grpc"

	"github.com/EVWarrantyLink/EVWarrantyLink/internal/app"
	"github.com/EVWarrantyLink/EVWarrantyLink/internal/common/config"
	"github.com/EVWarrantyLink/EVWarrantyLink/internal/common/db"
	"github.com/EVWarrantyLink/EVWarrantyLink/internal/common/logger"
	"github.com/EVWarrantyLink/EVWarrantyLink/internal/common/server"
	"github.com/EVWarrantyLink/EVWarrantyLink/internal/common/tracing"
)

var (
	configPath  = flag.String("config", "configs/warranty-service.json", "配置文件路径")
	consulAddr  = flag.String("consul-addr", "", "从 Consul KV 拉配置时的地址，如 localhost")
	consulPort  = flag.Int("consul-port", 8500, "Consul 端口")
	consulKVKey = flag.String("consul-kv-key", "", "Consul KV 配置键，设置后优先于本地配置文件")
)

func main() {
	flag.Parse()

	// 加载配置：优先 Consul KV，其次本地文件
	var cfg *config.Config
	var err error
	if *consulKVKey != "" {
		cfg, err = config.LoadConfigFromConsulKV(*consulAddr, *consulPort, *consulKVKey)
	} else {
		cfg, err = config.LoadConfig(*configPath)
	}
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	// 初始化日志
	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, cfg.Log.Output, cfg.Log.Path)
	if err != nil {
		panic(fmt.Sprintf("failed to init logger: %v", err))
	}

	// 初始化链路追踪
	tracer, closer, err := tracing.InitTracer(
		cfg.Server.Name,
		cfg.Jaeger.Endpoint,
		cfg.Jaeger.Sampler,
	)
	if err != nil {
		log.Warnf("failed to init tracer: %v", err)
	} else {
		defer closer.Close()
	}
	_ = tracer

	// 初始化数据库
	gormDB, err := db.NewMySQL(
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Database,
		cfg.Database.MaxIdle,
		cfg.Database.MaxOpen,
	)
	if err != nil {
		log.Fatalf("failed to init mysql: %v", err)
	}
	if err := app.Migrate(gormDB); err != nil {
		log.Fatalf("failed to migrate mysql schema: %v", err)
	}

	// 组装业务服务
	application := app.New(cfg, gormDB, log)

	// 启动统一的 gRPC 服务模板（业务方法由 proto 生成代码接入）
	if err := server.RunGRPCServer(cfg, log, func(s *grpc.Server) error {
		return app.RegisterGRPC(s, application)
	}); err != nil {
		log.Fatalf("warranty-service exited with error: %v", err)
	}
}
