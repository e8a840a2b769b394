package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"procurement/internal/model"
	"procurement/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

type PostEntryRequest struct {
	SupplierID  string          `json:"supplier_id" binding:"required,uuid"`
	Type        string          `json:"type" binding:"required,oneof=CHARGE PAYMENT"`
	BalanceType string          `json:"balance_type" binding:"required,oneof=parts delivery receipt_fee cod transport card"`
	Amount      decimal.Decimal `json:"amount" binding:"required"`
	Currency    string          `json:"currency" binding:"required,oneof=PLN USD"`
	Note        string          `json:"note"`
}

type TransactionResponse struct {
	ID          string          `json:"id"`
	SupplierID  string          `json:"supplier_id"`
	ReceiptID   *string         `json:"receipt_id,omitempty"`
	Type        string          `json:"type"`
	BalanceType string          `json:"balance_type"`
	Stage       string          `json:"stage"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Reversed    bool            `json:"reversed"`
	ReversalOf  *string         `json:"reversal_of,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

type BalanceResponse struct {
	SupplierID string                     `json:"supplier_id"`
	Balances   map[string]decimal.Decimal `json:"balances"`
}

// LedgerService exposes the supplier ledger: manual entries, per-entry
// reversal and computed balances. Receipt-driven entries are posted by the
// settlement service, never through here.
type LedgerService interface {
	PostEntry(ctx context.Context, userID string, req PostEntryRequest) (TransactionResponse, error)
	ReverseEntry(ctx context.Context, userID, entryID string) (TransactionResponse, error)
	ListTransactions(ctx context.Context, filter repository.TransactionFilter) ([]TransactionResponse, int64, error)
	ListCardTransactions(ctx context.Context, filter repository.TransactionFilter) ([]model.CardTransaction, int64, error)
	Balance(ctx context.Context, supplierID, currency string) (BalanceResponse, error)
}

type ledgerService struct {
	ledger repository.LedgerRepository
	audit  repository.AuditRepository
	txm    repository.TransactionManager
}

func NewLedgerService(ledger repository.LedgerRepository, audit repository.AuditRepository, txm repository.TransactionManager) LedgerService {
	return &ledgerService{ledger: ledger, audit: audit, txm: txm}
}

func (s *ledgerService) PostEntry(ctx context.Context, userID string, req PostEntryRequest) (TransactionResponse, error) {
	if !req.Amount.IsPositive() {
		return TransactionResponse{}, ErrNonPositiveAmount
	}
	supplierID, err := uuid.Parse(req.SupplierID)
	if err != nil {
		return TransactionResponse{}, fmt.Errorf("invalid supplier id: %w", err)
	}
	actorID := parseActor(userID)

	tx := model.Transaction{
		SupplierID:  supplierID,
		Type:        req.Type,
		BalanceType: req.BalanceType,
		Stage:       model.StageManual,
		Amount:      req.Amount,
		Currency:    req.Currency,
		CreatedBy:   actorID,
	}

	err = s.txm.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.ledger.CreateTransaction(txCtx, &tx); err != nil {
			return fmt.Errorf("failed to post ledger entry: %w", err)
		}

		// Manual entries move the running balance directly. A PAYMENT
		// reduces what the supplier is owed.
		delta := req.Amount
		if req.Type == model.TxTypePayment {
			delta = delta.Neg()
		}
		if err := s.ledger.AddToBalance(txCtx, supplierID, req.BalanceType, req.Currency, delta); err != nil {
			return fmt.Errorf("failed to update balance: %w", err)
		}

		details, _ := json.Marshal(map[string]interface{}{
			"type": req.Type, "balance_type": req.BalanceType,
			"amount": req.Amount, "currency": req.Currency, "note": req.Note,
		})
		entry := model.AuditLog{
			UserID:     actorID,
			Action:     model.ActionPostLedgerEntry,
			EntityType: "transaction",
			EntityID:   tx.ID.String(),
			Details:    string(details),
		}
		return s.audit.Log(txCtx, &entry)
	})
	if err != nil {
		return TransactionResponse{}, err
	}

	return toTransactionResponse(&tx), nil
}

// ReverseEntry reverses one manual ledger entry. Reversing an entry that is
// already reversed is a no-op, not an error, so retried requests converge.
func (s *ledgerService) ReverseEntry(ctx context.Context, userID, entryID string) (TransactionResponse, error) {
	id, err := uuid.Parse(entryID)
	if err != nil {
		return TransactionResponse{}, fmt.Errorf("invalid entry id: %w", err)
	}
	actorID := parseActor(userID)

	var result *model.Transaction
	err = s.txm.RunInTx(ctx, func(txCtx context.Context) error {
		original, findErr := s.ledger.FindTransaction(txCtx, id)
		if findErr != nil {
			return fmt.Errorf("entry not found: %w", findErr)
		}
		if original.Reversed {
			log.Warn().Str("entry_id", entryID).Msg("ledger entry already reversed, skipping")
			result = original
			return nil
		}

		if err := s.ledger.MarkReversed(txCtx, original.ID); err != nil {
			return fmt.Errorf("failed to flag entry: %w", err)
		}

		compensating := model.Transaction{
			SupplierID:  original.SupplierID,
			ReceiptID:   original.ReceiptID,
			Type:        oppositeType(original.Type),
			BalanceType: original.BalanceType,
			Stage:       original.Stage,
			Amount:      original.Amount,
			Currency:    original.Currency,
			ReversalOf:  &original.ID,
			CreatedBy:   actorID,
		}
		if err := s.ledger.CreateTransaction(txCtx, &compensating); err != nil {
			return fmt.Errorf("failed to post compensating entry: %w", err)
		}

		// Undo the running-balance effect of the original entry.
		delta := original.Amount
		if original.Type == model.TxTypeCharge {
			delta = delta.Neg()
		}
		if err := s.ledger.AddToBalance(txCtx, original.SupplierID, original.BalanceType, original.Currency, delta); err != nil {
			return fmt.Errorf("failed to update balance: %w", err)
		}

		details, _ := json.Marshal(map[string]interface{}{"reversal_of": original.ID})
		entry := model.AuditLog{
			UserID:     actorID,
			Action:     model.ActionReverseLedgerEntry,
			EntityType: "transaction",
			EntityID:   compensating.ID.String(),
			Details:    string(details),
		}
		if err := s.audit.Log(txCtx, &entry); err != nil {
			return err
		}

		result = &compensating
		return nil
	})
	if err != nil {
		return TransactionResponse{}, err
	}

	return toTransactionResponse(result), nil
}

func (s *ledgerService) ListTransactions(ctx context.Context, filter repository.TransactionFilter) ([]TransactionResponse, int64, error) {
	txs, total, err := s.ledger.ListTransactions(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list transactions: %w", err)
	}
	responses := make([]TransactionResponse, 0, len(txs))
	for i := range txs {
		responses = append(responses, toTransactionResponse(&txs[i]))
	}
	return responses, total, nil
}

func (s *ledgerService) ListCardTransactions(ctx context.Context, filter repository.TransactionFilter) ([]model.CardTransaction, int64, error) {
	return s.ledger.ListCardTransactions(ctx, filter)
}

// Balance computes the supplier's balances for one currency from the ledger
// itself. The card balance comes from the dedicated card ledger.
func (s *ledgerService) Balance(ctx context.Context, supplierID, currency string) (BalanceResponse, error) {
	sID, err := uuid.Parse(supplierID)
	if err != nil {
		return BalanceResponse{}, fmt.Errorf("invalid supplier id: %w", err)
	}

	balances := make(map[string]decimal.Decimal)
	for _, balanceType := range []string{
		model.BalanceParts, model.BalanceDelivery, model.BalanceReceiptFee,
		model.BalanceCod, model.BalanceTransport,
	} {
		sum, sumErr := s.ledger.SumBalance(ctx, sID, balanceType, currency)
		if sumErr != nil {
			return BalanceResponse{}, fmt.Errorf("failed to sum %s balance: %w", balanceType, sumErr)
		}
		balances[balanceType] = sum
	}

	cardSum, err := s.ledger.SumCardBalance(ctx, sID, currency)
	if err != nil {
		return BalanceResponse{}, fmt.Errorf("failed to sum card balance: %w", err)
	}
	balances[model.BalanceCard] = cardSum

	return BalanceResponse{SupplierID: supplierID, Balances: balances}, nil
}

func toTransactionResponse(tx *model.Transaction) TransactionResponse {
	resp := TransactionResponse{
		ID:          tx.ID.String(),
		SupplierID:  tx.SupplierID.String(),
		Type:        tx.Type,
		BalanceType: tx.BalanceType,
		Stage:       tx.Stage,
		Amount:      tx.Amount,
		Currency:    tx.Currency,
		Reversed:    tx.Reversed,
		CreatedAt:   tx.CreatedAt,
	}
	if tx.ReceiptID != nil {
		id := tx.ReceiptID.String()
		resp.ReceiptID = &id
	}
	if tx.ReversalOf != nil {
		id := tx.ReversalOf.String()
		resp.ReversalOf = &id
	}
	return resp
}
