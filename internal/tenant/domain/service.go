package domain

import (
	"context"
	"errors"

	"github.com/smallbiznis/dormhub/pkg/db/pagination"
)

type CreateTenantRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

type ListTenantRequest struct {
	PageToken string
	PageSize  int
	Email     string
}

type ListTenantFilter struct {
	Email string
}

type ListTenantResponse struct {
	pagination.PageInfo
	Tenants []Tenant `json:"tenants"`
}

type Service interface {
	Create(context.Context, CreateTenantRequest) (Tenant, error)
	GetByID(context.Context, string) (Tenant, error)
	List(context.Context, ListTenantRequest) (ListTenantResponse, error)
}

var (
	ErrInvalidID    = errors.New("invalid_tenant_id")
	ErrInvalidName  = errors.New("invalid_tenant_name")
	ErrInvalidEmail = errors.New("invalid_tenant_email")
	ErrNotFound     = errors.New("tenant_not_found")
)
