package repository

import (
	"context"

	"procurement/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type TransactionFilter struct {
	SupplierID *uuid.UUID
	ReceiptID  *uuid.UUID
	Page       int
	Limit      int
}

type LedgerRepository interface {
	CreateTransaction(ctx context.Context, tx *model.Transaction) error
	FindTransaction(ctx context.Context, id uuid.UUID) (*model.Transaction, error)
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]model.Transaction, int64, error)
	MarkReversed(ctx context.Context, id uuid.UUID) error
	FindByReceiptStage(ctx context.Context, receiptID uuid.UUID, stage string) ([]model.Transaction, error)

	CreateCardTransaction(ctx context.Context, tx *model.CardTransaction) error
	MarkCardReversed(ctx context.Context, id uuid.UUID) error
	FindCardByReceiptStage(ctx context.Context, receiptID uuid.UUID, stage string) ([]model.CardTransaction, error)
	ListCardTransactions(ctx context.Context, filter TransactionFilter) ([]model.CardTransaction, int64, error)

	SumBalance(ctx context.Context, supplierID uuid.UUID, balanceType, currency string) (decimal.Decimal, error)
	SumCardBalance(ctx context.Context, supplierID uuid.UUID, currency string) (decimal.Decimal, error)
	AddToBalance(ctx context.Context, supplierID uuid.UUID, balanceType, currency string, delta decimal.Decimal) error
	ListBalances(ctx context.Context, supplierID uuid.UUID) ([]model.SupplierBalance, error)
}

type ledgerRepository struct {
	db *gorm.DB
}

func NewLedgerRepository(db *gorm.DB) LedgerRepository {
	return &ledgerRepository{db: db}
}

func (r *ledgerRepository) CreateTransaction(ctx context.Context, tx *model.Transaction) error {
	return GetDB(ctx, r.db).Create(tx).Error
}

func (r *ledgerRepository) FindTransaction(ctx context.Context, id uuid.UUID) (*model.Transaction, error) {
	var tx model.Transaction
	if err := GetDB(ctx, r.db).First(&tx, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &tx, nil
}

func (r *ledgerRepository) ListTransactions(ctx context.Context, filter TransactionFilter) ([]model.Transaction, int64, error) {
	var txs []model.Transaction
	var total int64

	query := GetDB(ctx, r.db).Model(&model.Transaction{})
	if filter.SupplierID != nil {
		query = query.Where("supplier_id = ?", *filter.SupplierID)
	}
	if filter.ReceiptID != nil {
		query = query.Where("receipt_id = ?", *filter.ReceiptID)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (filter.Page - 1) * filter.Limit
	if err := query.Order("created_at DESC").Offset(offset).Limit(filter.Limit).Find(&txs).Error; err != nil {
		return nil, 0, err
	}
	return txs, total, nil
}

func (r *ledgerRepository) MarkReversed(ctx context.Context, id uuid.UUID) error {
	return GetDB(ctx, r.db).Model(&model.Transaction{}).
		Where("id = ?", id).
		Update("reversed", true).Error
}

func (r *ledgerRepository) FindByReceiptStage(ctx context.Context, receiptID uuid.UUID, stage string) ([]model.Transaction, error) {
	var txs []model.Transaction
	err := GetDB(ctx, r.db).
		Where("receipt_id = ? AND stage = ? AND reversed = ? AND reversal_of IS NULL", receiptID, stage, false).
		Find(&txs).Error
	if err != nil {
		return nil, err
	}
	return txs, nil
}

func (r *ledgerRepository) CreateCardTransaction(ctx context.Context, tx *model.CardTransaction) error {
	return GetDB(ctx, r.db).Create(tx).Error
}

func (r *ledgerRepository) MarkCardReversed(ctx context.Context, id uuid.UUID) error {
	return GetDB(ctx, r.db).Model(&model.CardTransaction{}).
		Where("id = ?", id).
		Update("reversed", true).Error
}

func (r *ledgerRepository) FindCardByReceiptStage(ctx context.Context, receiptID uuid.UUID, stage string) ([]model.CardTransaction, error) {
	var txs []model.CardTransaction
	err := GetDB(ctx, r.db).
		Where("receipt_id = ? AND stage = ? AND reversed = ? AND reversal_of IS NULL", receiptID, stage, false).
		Find(&txs).Error
	if err != nil {
		return nil, err
	}
	return txs, nil
}

func (r *ledgerRepository) ListCardTransactions(ctx context.Context, filter TransactionFilter) ([]model.CardTransaction, int64, error) {
	var txs []model.CardTransaction
	var total int64

	query := GetDB(ctx, r.db).Model(&model.CardTransaction{})
	if filter.SupplierID != nil {
		query = query.Where("supplier_id = ?", *filter.SupplierID)
	}
	if filter.ReceiptID != nil {
		query = query.Where("receipt_id = ?", *filter.ReceiptID)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (filter.Page - 1) * filter.Limit
	if err := query.Order("created_at DESC").Offset(offset).Limit(filter.Limit).Find(&txs).Error; err != nil {
		return nil, 0, err
	}
	return txs, total, nil
}

// SumBalance computes the current balance from the ledger itself: charges
// minus payments over every entry. Reversed entries stay in the sum; their
// compensating twins cancel them out, which keeps the computed figure equal
// to the running balance row.
func (r *ledgerRepository) SumBalance(ctx context.Context, supplierID uuid.UUID, balanceType, currency string) (decimal.Decimal, error) {
	var sum decimal.Decimal
	row := GetDB(ctx, r.db).Model(&model.Transaction{}).
		Select("COALESCE(SUM(CASE WHEN type = ? THEN amount ELSE -amount END), 0)", model.TxTypeCharge).
		Where("supplier_id = ? AND balance_type = ? AND currency = ?",
			supplierID, balanceType, currency).
		Row()
	if err := row.Scan(&sum); err != nil {
		return decimal.Zero, err
	}
	return sum, nil
}

func (r *ledgerRepository) SumCardBalance(ctx context.Context, supplierID uuid.UUID, currency string) (decimal.Decimal, error) {
	var sum decimal.Decimal
	row := GetDB(ctx, r.db).Model(&model.CardTransaction{}).
		Select("COALESCE(SUM(CASE WHEN type = ? THEN amount ELSE -amount END), 0)", model.TxTypeCharge).
		Where("supplier_id = ? AND currency = ?", supplierID, currency).
		Row()
	if err := row.Scan(&sum); err != nil {
		return decimal.Zero, err
	}
	return sum, nil
}

// AddToBalance adds delta to the supplier's running balance row, creating it
// on first use.
func (r *ledgerRepository) AddToBalance(ctx context.Context, supplierID uuid.UUID, balanceType, currency string, delta decimal.Decimal) error {
	db := GetDB(ctx, r.db)

	var balance model.SupplierBalance
	err := db.Where("supplier_id = ? AND balance_type = ? AND currency = ?",
		supplierID, balanceType, currency).
		First(&balance).Error
	if err == gorm.ErrRecordNotFound {
		balance = model.SupplierBalance{
			SupplierID:  supplierID,
			BalanceType: balanceType,
			Currency:    currency,
			Amount:      delta,
		}
		return db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "supplier_id"}, {Name: "balance_type"}, {Name: "currency"}},
			DoUpdates: clause.Assignments(map[string]interface{}{"amount": gorm.Expr("supplier_balances.amount + ?", delta)}),
		}).Create(&balance).Error
	}
	if err != nil {
		return err
	}

	return db.Model(&model.SupplierBalance{}).
		Where("id = ?", balance.ID).
		Update("amount", gorm.Expr("amount + ?", delta)).Error
}

func (r *ledgerRepository) ListBalances(ctx context.Context, supplierID uuid.UUID) ([]model.SupplierBalance, error) {
	var balances []model.SupplierBalance
	err := GetDB(ctx, r.db).
		Where("supplier_id = ?", supplierID).
		Order("balance_type ASC, currency ASC").
		Find(&balances).Error
	if err != nil {
		return nil, err
	}
	return balances, nil
}
