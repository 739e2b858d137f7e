package logger

import (
	"sync"

	"go.uber.org/zap"
)

var once sync.Once

// Init 初始化全局 zap 日志器，进程内只执行一次
// env 为 production 时使用生产配置（JSON 输出），否则使用开发配置
func Init(env string) {
	once.Do(func() {
		var (
			l   *zap.Logger
			err error
		)
		if env == "production" {
			l, err = zap.NewProduction()
		} else {
			l, err = zap.NewDevelopment()
		}
		if err != nil {
			panic(err)
		}
		zap.ReplaceGlobals(l)
	})
}
