package service

import (
	"context"
	"fmt"

	"procurement/internal/model"
	"procurement/internal/repository"

	"github.com/google/uuid"
)

type CreateSupplierRequest struct {
	Name          string `json:"name" binding:"required,max=255"`
	ContactPerson string `json:"contact_person"`
	Phone         string `json:"phone"`
	Email         string `json:"email" binding:"omitempty,email"`
	BankAccount   string `json:"bank_account"`
}

type UpdateSupplierRequest struct {
	Name          *string `json:"name,omitempty"`
	ContactPerson *string `json:"contact_person,omitempty"`
	Phone         *string `json:"phone,omitempty"`
	Email         *string `json:"email,omitempty" binding:"omitempty,email"`
	BankAccount   *string `json:"bank_account,omitempty"`
	IsActive      *bool   `json:"is_active,omitempty"`
}

type SupplierService interface {
	Create(ctx context.Context, req CreateSupplierRequest) (*model.Supplier, error)
	Get(ctx context.Context, id string) (*model.Supplier, error)
	List(ctx context.Context, page, limit int) ([]model.Supplier, int64, error)
	Update(ctx context.Context, id string, req UpdateSupplierRequest) (*model.Supplier, error)
	Delete(ctx context.Context, id string) error
	Balances(ctx context.Context, id string) ([]model.SupplierBalance, error)
}

type supplierService struct {
	suppliers repository.SupplierRepository
	ledger    repository.LedgerRepository
}

func NewSupplierService(suppliers repository.SupplierRepository, ledger repository.LedgerRepository) SupplierService {
	return &supplierService{suppliers: suppliers, ledger: ledger}
}

func (s *supplierService) Create(ctx context.Context, req CreateSupplierRequest) (*model.Supplier, error) {
	supplier := model.Supplier{
		Name:          req.Name,
		ContactPerson: req.ContactPerson,
		Phone:         req.Phone,
		Email:         req.Email,
		BankAccount:   req.BankAccount,
		IsActive:      true,
	}
	if err := s.suppliers.Create(ctx, &supplier); err != nil {
		return nil, fmt.Errorf("failed to create supplier: %w", err)
	}
	return &supplier, nil
}

func (s *supplierService) Get(ctx context.Context, id string) (*model.Supplier, error) {
	sid, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid supplier id: %w", err)
	}
	supplier, err := s.suppliers.FindByID(ctx, sid)
	if err != nil {
		return nil, fmt.Errorf("supplier not found: %w", err)
	}
	return supplier, nil
}

func (s *supplierService) List(ctx context.Context, page, limit int) ([]model.Supplier, int64, error) {
	return s.suppliers.List(ctx, page, limit)
}

func (s *supplierService) Update(ctx context.Context, id string, req UpdateSupplierRequest) (*model.Supplier, error) {
	sid, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid supplier id: %w", err)
	}
	supplier, err := s.suppliers.FindByID(ctx, sid)
	if err != nil {
		return nil, fmt.Errorf("supplier not found: %w", err)
	}

	if req.Name != nil {
		supplier.Name = *req.Name
	}
	if req.ContactPerson != nil {
		supplier.ContactPerson = *req.ContactPerson
	}
	if req.Phone != nil {
		supplier.Phone = *req.Phone
	}
	if req.Email != nil {
		supplier.Email = *req.Email
	}
	if req.BankAccount != nil {
		supplier.BankAccount = *req.BankAccount
	}
	if req.IsActive != nil {
		supplier.IsActive = *req.IsActive
	}

	if err := s.suppliers.Update(ctx, supplier); err != nil {
		return nil, fmt.Errorf("failed to update supplier: %w", err)
	}
	return supplier, nil
}

func (s *supplierService) Delete(ctx context.Context, id string) error {
	sid, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("invalid supplier id: %w", err)
	}
	if err := s.suppliers.Delete(ctx, sid); err != nil {
		return fmt.Errorf("failed to delete supplier: %w", err)
	}
	return nil
}

// Balances returns the supplier's running balance rows as maintained by the
// settlement flow and manual ledger entries.
func (s *supplierService) Balances(ctx context.Context, id string) ([]model.SupplierBalance, error) {
	sid, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid supplier id: %w", err)
	}
	return s.ledger.ListBalances(ctx, sid)
}
