// Package testutil 提供测试用的内存数据库、Redis 和假支付网关
package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"hostelsystem/internal/config"
	"hostelsystem/internal/gateway"
	"hostelsystem/internal/infrastructure/database"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const GatewaySecret = "test_secret"

// NewDB 内存 SQLite，单连接保证所有 goroutine 看到同一个库
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("打开测试数据库失败: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("获取底层 DB 失败: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxLifetime(0)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := database.Migrate(db); err != nil {
		t.Fatalf("迁移失败: %v", err)
	}
	return db
}

func NewRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func Config() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Env: "test"},
		Kafka: config.KafkaConfig{
			Topic: config.KafkaTopicConfig{
				BookingEvents: "hostel.booking",
				PaymentEvents: "hostel.payment",
			},
		},
		Gateway: config.GatewayConfig{
			KeyID:     "rzp_test_key",
			KeySecret: GatewaySecret,
			Currency:  "INR",
		},
		Auth: config.AuthConfig{
			JWTSecret: "jwt_test_secret",
			JWTIssuer: "hostel-test",
		},
		Business: config.BusinessConfig{
			OrderExpireMinutes:       30,
			VerificationStaleMinutes: 5,
			MaxRetryCount:            3,
		},
	}
}

// FakeGateway 内存版支付网关
type FakeGateway struct {
	mu        sync.Mutex
	seq       int
	orders    map[string]*gateway.Order
	byReceipt map[string]string

	CreateErr  error
	FetchErr   error
	FetchCalls int
}

func NewFakeGateway() *FakeGateway {
	return &FakeGateway{
		orders:    make(map[string]*gateway.Order),
		byReceipt: make(map[string]string),
	}
}

func (g *FakeGateway) KeyID() string {
	return "rzp_test_key"
}

func (g *FakeGateway) CreateOrder(_ context.Context, amount int64, currency, receipt string) (*gateway.Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.CreateErr != nil {
		return nil, g.CreateErr
	}
	if id, ok := g.byReceipt[receipt]; ok {
		o := *g.orders[id]
		return &o, nil
	}

	g.seq++
	o := &gateway.Order{
		ID:        fmt.Sprintf("order_%d", g.seq),
		Amount:    amount,
		AmountDue: amount,
		Currency:  currency,
		Receipt:   receipt,
		Status:    gateway.OrderStatusCreated,
		CreatedAt: time.Now().Unix(),
	}
	g.orders[o.ID] = o
	g.byReceipt[receipt] = o.ID
	cp := *o
	return &cp, nil
}

func (g *FakeGateway) FetchOrder(_ context.Context, orderID string) (*gateway.Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.FetchCalls++
	if g.FetchErr != nil {
		return nil, g.FetchErr
	}
	o, ok := g.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("order %s not found", orderID)
	}
	cp := *o
	return &cp, nil
}

// Pay 模拟用户在网关完成支付，返回回调参数
func (g *FakeGateway) Pay(orderID string, amount int64) (paymentID, signature string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	o := g.orders[orderID]
	o.AmountPaid = amount
	o.AmountDue = o.Amount - amount
	o.Status = gateway.OrderStatusPaid
	paymentID = "pay_" + orderID
	return paymentID, gateway.Sign(GatewaySecret, orderID, paymentID)
}

func (g *FakeGateway) SetFetchErr(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.FetchErr = err
}
