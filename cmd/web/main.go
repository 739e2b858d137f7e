package main

import (
	"os"

	"github.com/kataras/iris/v12"
	"go.uber.org/zap"

	"github.com/example/storecore/internal/config"
	"github.com/example/storecore/internal/logger"
	"github.com/example/storecore/internal/server"
)

func main() {
	cfg, err := config.Load(os.Getenv("STORECORE_CONFIG_DIR"))
	if err != nil {
		panic(err)
	}
	logger.Init(cfg.Env)
	defer zap.L().Sync()

	app := iris.New()
	server.RegisterRoutes(app, cfg)

	addr := cfg.Server.Addr()
	zap.L().Info("storefront server listening", zap.String("addr", addr))
	if err := app.Run(iris.Addr(addr)); err != nil {
		zap.L().Fatal("server exited", zap.Error(err))
	}
}
