package mysql

import (
	"log"
	"sync"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/example/storecore/internal/config"
	"github.com/example/storecore/internal/datamodels/customer"
	"github.com/example/storecore/internal/datamodels/dunning"
	"github.com/example/storecore/internal/datamodels/order"
	"github.com/example/storecore/internal/datamodels/tenant"
)

var (
	db   *gorm.DB
	once sync.Once
)

// Init 初始化全局 GORM 实例并自动迁移表结构
// 进程内只建立一次连接，后续请求复用，不允许按请求重连
func Init(cfg *config.MySQLConfig) *gorm.DB {
	once.Do(func() {
		var err error
		db, err = gorm.Open(mysql.Open(cfg.DSN), &gorm.Config{})
		if err != nil {
			log.Fatalf("failed to connect mysql: %v", err)
		}

		if err = db.AutoMigrate(
			&order.Order{},
			&tenant.Credential{},
			&dunning.FailedPayment{},
			&customer.Customer{},
		); err != nil {
			log.Fatalf("auto migrate failed: %v", err)
		}
	})
	return db
}

// DB 获取全局 DB
func DB() *gorm.DB {
	return db
}
