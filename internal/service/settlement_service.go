package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"procurement/internal/model"
	"procurement/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Broadcaster pushes receipt lifecycle events to connected SPA clients.
type Broadcaster interface {
	BroadcastEvent(event interface{})
}

// ReceiptEvent is the payload fanned out over the websocket hub after a
// committed transition.
type ReceiptEvent struct {
	Type      string `json:"type"`
	ReceiptID string `json:"receipt_id"`
	Number    string `json:"number"`
	Status    string `json:"status"`
}

// SettlementService is the receipt state machine. It is the only component
// allowed to change Receipt.Status; every transition runs inside a single
// database transaction with an optimistic version check, and the ledger and
// supplier balances move only as a side effect of a transition.
type SettlementService interface {
	Approve(ctx context.Context, userID, receiptID string) (ReceiptResponse, error)
	SendForSettlement(ctx context.Context, userID, receiptID string) (ReceiptResponse, error)
	Settle(ctx context.Context, userID, receiptID string) (ReceiptResponse, error)
	Reverse(ctx context.Context, userID, receiptID string) (ReceiptResponse, error)
}

type settlementService struct {
	receipts repository.ReceiptRepository
	orders   repository.OrderRepository
	ledger   repository.LedgerRepository
	audit    repository.AuditRepository
	txm      repository.TransactionManager
	hub      Broadcaster // optional
}

func NewSettlementService(
	receipts repository.ReceiptRepository,
	orders repository.OrderRepository,
	ledger repository.LedgerRepository,
	audit repository.AuditRepository,
	txm repository.TransactionManager,
	hub Broadcaster,
) SettlementService {
	return &settlementService{
		receipts: receipts,
		orders:   orders,
		ledger:   ledger,
		audit:    audit,
		txm:      txm,
		hub:      hub,
	}
}

// --- Transitions ---

// Approve moves draft -> approved: freezes the members' numeric fields,
// writes one AcceptedOrder per member and flips each member to ACCEPTED.
func (s *settlementService) Approve(ctx context.Context, userID, receiptID string) (ReceiptResponse, error) {
	return s.transition(ctx, userID, receiptID, model.ReceiptStatusApproved, s.executeApprove)
}

// SendForSettlement moves approved -> sent_for_settlement: splits the
// card-eligible subtotal from the cash-settled one, posts one ledger charge
// per cost category for the cash side (and a card charge when applicable)
// and moves the supplier's running balances by the same amounts.
func (s *settlementService) SendForSettlement(ctx context.Context, userID, receiptID string) (ReceiptResponse, error) {
	return s.transition(ctx, userID, receiptID, model.ReceiptStatusSentForSettlement, s.executeSendForSettlement)
}

// Settle moves sent_for_settlement -> settled: posts the charge for the
// paid-order subtotal and stamps the settler.
func (s *settlementService) Settle(ctx context.Context, userID, receiptID string) (ReceiptResponse, error) {
	return s.transition(ctx, userID, receiptID, model.ReceiptStatusSettled, s.executeSettle)
}

// Reverse walks one step backwards (settled -> sent_for_settlement, or
// sent_for_settlement -> approved). Ledger entries of the undone transition
// are flagged reversed and compensated with opposite-sign entries; nothing
// is ever deleted.
func (s *settlementService) Reverse(ctx context.Context, userID, receiptID string) (ReceiptResponse, error) {
	rID, err := uuid.Parse(receiptID)
	if err != nil {
		return ReceiptResponse{}, fmt.Errorf("invalid receipt id: %w", err)
	}

	// Resolve the reversal target outside the transition helper: it depends
	// on the current status.
	receipt, err := s.receipts.FindByID(ctx, rID)
	if err != nil {
		return ReceiptResponse{}, fmt.Errorf("receipt not found: %w", err)
	}

	switch receipt.Status {
	case model.ReceiptStatusSettled:
		return s.transition(ctx, userID, receiptID, model.ReceiptStatusSentForSettlement, s.executeReverseSettle)
	case model.ReceiptStatusSentForSettlement:
		return s.transition(ctx, userID, receiptID, model.ReceiptStatusApproved, s.executeReverseSend)
	default:
		return ReceiptResponse{}, ErrInvalidTransition
	}
}

// --- Transition plumbing ---

type transitionFn func(txCtx context.Context, receipt *model.Receipt, actorID *uuid.UUID, updates map[string]interface{}) error

func (s *settlementService) transition(ctx context.Context, userID, receiptID, target string, execute transitionFn) (ReceiptResponse, error) {
	rID, err := uuid.Parse(receiptID)
	if err != nil {
		return ReceiptResponse{}, fmt.Errorf("invalid receipt id: %w", err)
	}
	actorID := parseActor(userID)

	var number string
	err = s.txm.RunInTx(ctx, func(txCtx context.Context) error {
		receipt, findErr := s.receipts.FindByID(txCtx, rID)
		if findErr != nil {
			return fmt.Errorf("receipt not found: %w", findErr)
		}
		if !model.CanTransition(receipt.Status, target) {
			return ErrInvalidTransition
		}
		number = receipt.Number

		updates := map[string]interface{}{"status": target}
		if execErr := execute(txCtx, receipt, actorID, updates); execErr != nil {
			return execErr
		}

		if updErr := s.receipts.UpdateWithVersion(txCtx, receipt, updates); updErr != nil {
			return updErr
		}

		action := transitionAction(receipt.Status, target)
		return s.logTransition(txCtx, actorID, action, receipt, map[string]interface{}{
			"from": receipt.Status,
			"to":   target,
		})
	})
	if err != nil {
		return ReceiptResponse{}, err
	}

	if s.hub != nil {
		s.hub.BroadcastEvent(ReceiptEvent{
			Type:      "receipt_transition",
			ReceiptID: rID.String(),
			Number:    number,
			Status:    target,
		})
	}

	receipt, err := s.receipts.FindByID(ctx, rID)
	if err != nil {
		return ReceiptResponse{}, fmt.Errorf("failed to reload receipt: %w", err)
	}
	return toReceiptResponse(receipt), nil
}

func (s *settlementService) executeApprove(txCtx context.Context, receipt *model.Receipt, actorID *uuid.UUID, updates map[string]interface{}) error {
	members, err := s.receipts.MemberOrders(txCtx, receipt.ID)
	if err != nil {
		return fmt.Errorf("failed to load member orders: %w", err)
	}
	if len(members) == 0 {
		return ErrNoMemberOrders
	}

	for i := range members {
		accepted := model.AcceptedOrder{
			ReceiptID:  receipt.ID,
			OrderID:    members[i].ID,
			Amount:     members[i].EditableTotal(),
			AcceptedBy: actorID,
		}
		if err := s.receipts.CreateAcceptedOrder(txCtx, &accepted); err != nil {
			return fmt.Errorf("failed to record accepted order: %w", err)
		}
		if err := s.orders.UpdateStatus(txCtx, members[i].ID, model.OrderStatusAccepted, members[i].PreviousStatus); err != nil {
			return fmt.Errorf("failed to update order status: %w", err)
		}
	}

	now := time.Now()
	updates["approved_by"] = actorID
	updates["approved_at"] = &now
	return nil
}

func (s *settlementService) executeSendForSettlement(txCtx context.Context, receipt *model.Receipt, actorID *uuid.UUID, updates map[string]interface{}) error {
	members, err := s.receipts.MemberOrders(txCtx, receipt.ID)
	if err != nil {
		return fmt.Errorf("failed to load member orders: %w", err)
	}

	for _, currency := range []string{model.CurrencyPLN, model.CurrencyUSD} {
		// The cash side is posted per cost category, with the running
		// balance moved by the same amount, so the append-only ledger and
		// the balance rows reconcile one-for-one.
		sums := cashCategorySums(members, currency)
		for _, balanceType := range settlementCategories {
			amount := sums[balanceType]
			if amount.IsZero() {
				continue
			}
			tx := model.Transaction{
				SupplierID:  receipt.SupplierID,
				ReceiptID:   &receipt.ID,
				Type:        model.TxTypeCharge,
				BalanceType: balanceType,
				Stage:       model.StageSendForSettlement,
				Amount:      amount,
				Currency:    currency,
				CreatedBy:   actorID,
			}
			if err := s.ledger.CreateTransaction(txCtx, &tx); err != nil {
				return fmt.Errorf("failed to post settlement debit: %w", err)
			}
			if err := s.ledger.AddToBalance(txCtx, receipt.SupplierID, balanceType, currency, amount); err != nil {
				return fmt.Errorf("failed to update %s balance: %w", balanceType, err)
			}
		}

		card, _ := splitSubtotals(members, currency)
		if card.IsPositive() {
			cardTx := model.CardTransaction{
				SupplierID: receipt.SupplierID,
				ReceiptID:  &receipt.ID,
				Type:       model.TxTypeCharge,
				Stage:      model.StageSendForSettlement,
				Amount:     card,
				Currency:   currency,
				CreatedBy:  actorID,
			}
			if err := s.ledger.CreateCardTransaction(txCtx, &cardTx); err != nil {
				return fmt.Errorf("failed to post card charge: %w", err)
			}
			if err := s.ledger.AddToBalance(txCtx, receipt.SupplierID, model.BalanceCard, currency, card); err != nil {
				return fmt.Errorf("failed to update card balance: %w", err)
			}
		}
	}

	// Members drop to "under review" unless another open receipt still
	// claims them.
	for i := range members {
		claims, claimErr := s.receipts.CountOtherOpenClaims(txCtx, members[i].ID, receipt.ID)
		if claimErr != nil {
			return fmt.Errorf("failed to check order claims: %w", claimErr)
		}
		if claims > 0 {
			continue
		}
		if err := s.orders.UpdateStatus(txCtx, members[i].ID, model.OrderStatusUnderReview, members[i].PreviousStatus); err != nil {
			return fmt.Errorf("failed to update order status: %w", err)
		}
	}

	return nil
}

func (s *settlementService) executeSettle(txCtx context.Context, receipt *model.Receipt, actorID *uuid.UUID, updates map[string]interface{}) error {
	members, err := s.receipts.MemberOrders(txCtx, receipt.ID)
	if err != nil {
		return fmt.Errorf("failed to load member orders: %w", err)
	}

	for _, currency := range []string{model.CurrencyPLN, model.CurrencyUSD} {
		card, _ := splitSubtotals(members, currency)
		if !card.IsPositive() {
			continue
		}
		tx := model.Transaction{
			SupplierID:  receipt.SupplierID,
			ReceiptID:   &receipt.ID,
			Type:        model.TxTypeCharge,
			BalanceType: model.BalanceCard,
			Stage:       model.StageSettle,
			Amount:      card,
			Currency:    currency,
			CreatedBy:   actorID,
		}
		if err := s.ledger.CreateTransaction(txCtx, &tx); err != nil {
			return fmt.Errorf("failed to post settlement charge: %w", err)
		}
	}

	now := time.Now()
	updates["settled_by"] = actorID
	updates["settled_at"] = &now
	return nil
}

func (s *settlementService) executeReverseSettle(txCtx context.Context, receipt *model.Receipt, actorID *uuid.UUID, updates map[string]interface{}) error {
	if err := s.reverseStage(txCtx, receipt, model.StageSettle, actorID); err != nil {
		return err
	}
	updates["settled_by"] = nil
	updates["settled_at"] = nil
	return nil
}

func (s *settlementService) executeReverseSend(txCtx context.Context, receipt *model.Receipt, actorID *uuid.UUID, updates map[string]interface{}) error {
	if err := s.reverseStage(txCtx, receipt, model.StageSendForSettlement, actorID); err != nil {
		return err
	}

	members, err := s.receipts.MemberOrders(txCtx, receipt.ID)
	if err != nil {
		return fmt.Errorf("failed to load member orders: %w", err)
	}

	// Undo the running-balance additions of the send step.
	for _, currency := range []string{model.CurrencyPLN, model.CurrencyUSD} {
		sums := cashCategorySums(members, currency)
		for _, balanceType := range settlementCategories {
			amount := sums[balanceType]
			if amount.IsZero() {
				continue
			}
			if err := s.ledger.AddToBalance(txCtx, receipt.SupplierID, balanceType, currency, amount.Neg()); err != nil {
				return fmt.Errorf("failed to revert %s balance: %w", balanceType, err)
			}
		}
		card, _ := splitSubtotals(members, currency)
		if card.IsPositive() {
			if err := s.ledger.AddToBalance(txCtx, receipt.SupplierID, model.BalanceCard, currency, card.Neg()); err != nil {
				return fmt.Errorf("failed to revert card balance: %w", err)
			}
		}
	}

	// Restore members to their pre-transition status unless another open
	// receipt still claims them.
	for i := range members {
		claims, claimErr := s.receipts.CountOtherOpenClaims(txCtx, members[i].ID, receipt.ID)
		if claimErr != nil {
			return fmt.Errorf("failed to check order claims: %w", claimErr)
		}
		if claims > 0 {
			continue
		}
		if err := s.orders.UpdateStatus(txCtx, members[i].ID, model.OrderStatusAccepted, members[i].PreviousStatus); err != nil {
			return fmt.Errorf("failed to restore order status: %w", err)
		}
	}

	return nil
}

// reverseStage flags every live ledger entry of the given stage as reversed
// and inserts a compensating entry with the opposite type.
func (s *settlementService) reverseStage(txCtx context.Context, receipt *model.Receipt, stage string, actorID *uuid.UUID) error {
	txs, err := s.ledger.FindByReceiptStage(txCtx, receipt.ID, stage)
	if err != nil {
		return fmt.Errorf("failed to load ledger entries: %w", err)
	}
	for i := range txs {
		if err := s.ledger.MarkReversed(txCtx, txs[i].ID); err != nil {
			return fmt.Errorf("failed to flag ledger entry: %w", err)
		}
		compensating := model.Transaction{
			SupplierID:  txs[i].SupplierID,
			ReceiptID:   txs[i].ReceiptID,
			Type:        oppositeType(txs[i].Type),
			BalanceType: txs[i].BalanceType,
			Stage:       stage,
			Amount:      txs[i].Amount,
			Currency:    txs[i].Currency,
			ReversalOf:  &txs[i].ID,
			CreatedBy:   actorID,
		}
		if err := s.ledger.CreateTransaction(txCtx, &compensating); err != nil {
			return fmt.Errorf("failed to post compensating entry: %w", err)
		}
	}

	cardTxs, err := s.ledger.FindCardByReceiptStage(txCtx, receipt.ID, stage)
	if err != nil {
		return fmt.Errorf("failed to load card ledger entries: %w", err)
	}
	for i := range cardTxs {
		if err := s.ledger.MarkCardReversed(txCtx, cardTxs[i].ID); err != nil {
			return fmt.Errorf("failed to flag card ledger entry: %w", err)
		}
		compensating := model.CardTransaction{
			SupplierID: cardTxs[i].SupplierID,
			ReceiptID:  cardTxs[i].ReceiptID,
			Type:       oppositeType(cardTxs[i].Type),
			Stage:      stage,
			Amount:     cardTxs[i].Amount,
			Currency:   cardTxs[i].Currency,
			ReversalOf: &cardTxs[i].ID,
			CreatedBy:  actorID,
		}
		if err := s.ledger.CreateCardTransaction(txCtx, &compensating); err != nil {
			return fmt.Errorf("failed to post compensating card entry: %w", err)
		}
	}

	return nil
}

// settlementCategories fixes the posting order of the per-category charges.
var settlementCategories = []string{
	model.BalanceParts,
	model.BalanceDelivery,
	model.BalanceReceiptFee,
	model.BalanceCod,
	model.BalanceTransport,
}

// cashCategorySums totals the editable fields of the cash-settled members
// for one currency, keyed by balance type. Card-paid members are excluded;
// their whole value moves through the card ledger instead.
func cashCategorySums(members []model.Order, currency string) map[string]decimal.Decimal {
	sums := map[string]decimal.Decimal{
		model.BalanceParts:      decimal.Zero,
		model.BalanceDelivery:   decimal.Zero,
		model.BalanceReceiptFee: decimal.Zero,
		model.BalanceCod:        decimal.Zero,
		model.BalanceTransport:  decimal.Zero,
	}
	for i := range members {
		if members[i].Currency != currency || members[i].PaidByCard() {
			continue
		}
		sums[model.BalanceParts] = sums[model.BalanceParts].Add(members[i].PartPrice)
		sums[model.BalanceDelivery] = sums[model.BalanceDelivery].Add(members[i].DeliveryCost)
		sums[model.BalanceReceiptFee] = sums[model.BalanceReceiptFee].Add(members[i].ReceiptFee)
		sums[model.BalanceCod] = sums[model.BalanceCod].Add(members[i].CodAmount)
		sums[model.BalanceTransport] = sums[model.BalanceTransport].Add(members[i].TransportCost)
	}
	return sums
}

func (s *settlementService) logTransition(txCtx context.Context, actorID *uuid.UUID, action string, receipt *model.Receipt, payload map[string]interface{}) error {
	payload["number"] = receipt.Number
	details, _ := json.Marshal(payload)
	entry := model.AuditLog{
		UserID:     actorID,
		Action:     action,
		EntityType: "receipt",
		EntityID:   receipt.ID.String(),
		Details:    string(details),
	}
	if err := s.audit.Log(txCtx, &entry); err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}

// splitSubtotals returns the card-eligible and cash-settled subtotals for
// one currency. Card eligibility uses the single canonical predicate.
func splitSubtotals(members []model.Order, currency string) (card, cash decimal.Decimal) {
	card, cash = decimal.Zero, decimal.Zero
	for i := range members {
		if members[i].Currency != currency {
			continue
		}
		if members[i].PaidByCard() {
			card = card.Add(members[i].EditableTotal())
		} else {
			cash = cash.Add(members[i].EditableTotal())
		}
	}
	return card, cash
}

func oppositeType(txType string) string {
	if txType == model.TxTypeCharge {
		return model.TxTypePayment
	}
	return model.TxTypeCharge
}

func transitionAction(from, to string) string {
	if model.IsReversal(from, to) {
		return model.ActionReverseReceipt
	}
	switch to {
	case model.ReceiptStatusApproved:
		return model.ActionApproveReceipt
	case model.ReceiptStatusSentForSettlement:
		return model.ActionSendForSettlement
	case model.ReceiptStatusSettled:
		return model.ActionSettleReceipt
	}
	return model.ActionReverseReceipt
}
