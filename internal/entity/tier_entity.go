package entity

import "github.com/google/uuid"

// Tier is a purchasable membership level. Owned by the catalog; read-only here.
type Tier struct {
	Id         uuid.UUID
	ServerId   string
	RoleId     string
	Name       string
	PriceCents int64
	PeriodDays int
	Currency   string
}

// Member links an internal member to the community platform account.
// ExternalUserId stays nil until the member connects the platform.
type Member struct {
	Id             uuid.UUID
	ExternalUserId *string
	DisplayName    string
}
