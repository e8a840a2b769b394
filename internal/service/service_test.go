package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"procurement/internal/config"
	"procurement/internal/database"
	"procurement/internal/model"
	"procurement/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// testEnv wires the full repository/service stack against an in-memory
// sqlite database, one per test.
type testEnv struct {
	db *gorm.DB

	orderRepo       repository.OrderRepository
	receiptRepo     repository.ReceiptRepository
	ledgerRepo      repository.LedgerRepository
	auditRepo       repository.AuditRepository
	supplierRepo    repository.SupplierRepository
	userRepo        repository.UserRepository
	inviteRepo      repository.InviteRepository
	idempotencyRepo repository.IdempotencyRepository

	orders     OrderService
	receipts   ReceiptService
	settlement SettlementService
	ledger     LedgerService
	users      UserService
	audit      AuditService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	t.Cleanup(func() {
		sqlDB, dbErr := db.DB()
		if dbErr == nil {
			_ = sqlDB.Close()
		}
	})

	txm := repository.NewTransactionManager(db)
	env := &testEnv{
		db:              db,
		orderRepo:       repository.NewOrderRepository(db),
		receiptRepo:     repository.NewReceiptRepository(db),
		ledgerRepo:      repository.NewLedgerRepository(db),
		auditRepo:       repository.NewAuditRepository(db),
		supplierRepo:    repository.NewSupplierRepository(db),
		userRepo:        repository.NewUserRepository(db),
		inviteRepo:      repository.NewInviteRepository(db),
		idempotencyRepo: repository.NewIdempotencyRepository(db),
	}

	env.orders = NewOrderService(env.orderRepo, env.supplierRepo, env.auditRepo, txm)
	env.receipts = NewReceiptService(env.receiptRepo, env.orderRepo, env.auditRepo, txm)
	env.settlement = NewSettlementService(env.receiptRepo, env.orderRepo, env.ledgerRepo, env.auditRepo, txm, nil)
	env.ledger = NewLedgerService(env.ledgerRepo, env.auditRepo, txm)
	env.users = NewUserService(env.userRepo, env.inviteRepo, env.auditRepo, txm,
		config.JWTConfig{Secret: "test-secret", AccessTTL: time.Hour, RefreshTTL: 24 * time.Hour},
		config.InviteConfig{TTL: 72 * time.Hour},
	)
	env.audit = NewAuditService(env.auditRepo)

	return env
}

func (e *testEnv) createSupplier(t *testing.T, name string) *model.Supplier {
	t.Helper()
	supplier := &model.Supplier{Name: name, IsActive: true}
	require.NoError(t, e.supplierRepo.Create(context.Background(), supplier))
	return supplier
}

type orderSpec struct {
	partPrice     float64
	deliveryCost  float64
	receiptFee    float64
	codAmount     float64
	transportCost float64
	currency      string
	paymentType   string
}

func (e *testEnv) createOrder(t *testing.T, supplier *model.Supplier, spec orderSpec) *model.Order {
	t.Helper()
	if spec.currency == "" {
		spec.currency = model.CurrencyPLN
	}
	if spec.paymentType == "" {
		spec.paymentType = model.PaymentTypeCashOnDelivery
	}
	order := &model.Order{
		ClientRef:     fmt.Sprintf("REF-%d", time.Now().UnixNano()),
		SupplierID:    supplier.ID,
		PartPrice:     decimal.NewFromFloat(spec.partPrice),
		DeliveryCost:  decimal.NewFromFloat(spec.deliveryCost),
		ReceiptFee:    decimal.NewFromFloat(spec.receiptFee),
		CodAmount:     decimal.NewFromFloat(spec.codAmount),
		TransportCost: decimal.NewFromFloat(spec.transportCost),
		Currency:      spec.currency,
		PaymentType:   spec.paymentType,
		Status:        model.OrderStatusNew,
	}
	require.NoError(t, e.orderRepo.Create(context.Background(), order))
	return order
}

func (e *testEnv) createDraftReceipt(t *testing.T, supplier *model.Supplier, orders ...*model.Order) ReceiptResponse {
	t.Helper()
	ids := make([]string, 0, len(orders))
	for _, o := range orders {
		ids = append(ids, o.ID.String())
	}
	receipt, err := e.receipts.Create(context.Background(), "", CreateReceiptRequest{
		SupplierID: supplier.ID.String(),
		OrderIDs:   ids,
	})
	require.NoError(t, err)
	return receipt
}

func (e *testEnv) reloadOrder(t *testing.T, order *model.Order) *model.Order {
	t.Helper()
	reloaded, err := e.orderRepo.FindByID(context.Background(), order.ID)
	require.NoError(t, err)
	return reloaded
}
