package models

import "time"

// TransactionType classifies the direction of a ledger entry.
type TransactionType string

const (
	TransactionIncome  TransactionType = "income"
	TransactionExpense TransactionType = "expense"
)

// TransactionCategory classifies what a ledger entry paid for.
type TransactionCategory string

const (
	CategorySponsorship    TransactionCategory = "sponsorship"
	CategoryAPICost        TransactionCategory = "api_cost"
	CategoryStorageCost    TransactionCategory = "storage_cost"
	CategoryCommunityGrant TransactionCategory = "community_grant"
	CategoryRollback       TransactionCategory = "rollback"
	CategoryOther          TransactionCategory = "other"
)

// Wallet is the financial state of one account. It is mutated only
// through ledger transactions, never written directly by callers.
type Wallet struct {
	Address     string    `json:"address"      validate:"required"`
	Balance     float64   `json:"balance"      validate:"gte=0"`
	UnitBalance float64   `json:"unit_balance"`
	Currency    string    `json:"currency"`
	LastUpdated time.Time `json:"last_updated"`
}

// Transaction is a single immutable ledger entry. History is append-only
// per account.
type Transaction struct {
	ID          string              `json:"id"          validate:"required"`
	Type        TransactionType     `json:"type"        validate:"required,oneof=income expense"`
	Category    TransactionCategory `json:"category"    validate:"required"`
	Amount      float64             `json:"amount"      validate:"required,gt=0"`
	Currency    string              `json:"currency"`
	Description string              `json:"description" validate:"required"`
	Timestamp   time.Time           `json:"timestamp"`
	Metadata    map[string]any      `json:"metadata,omitempty"`
}

// Signed returns the amount with the sign implied by the type.
func (t *Transaction) Signed() float64 {
	if t.Type == TransactionExpense {
		return -t.Amount
	}

	return t.Amount
}

// SolvencyCheck is the verdict on a prospective expenditure. It is
// computed fresh per request and never persisted.
type SolvencyCheck struct {
	Authorized           bool    `json:"is_authorized"`
	ProjectedBalance     float64 `json:"projected_balance"`
	Reasoning            string  `json:"reasoning"`
	CircuitBreakerActive bool    `json:"circuit_breaker_active"`
}

// HealthStatus grades the account's financial condition.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthCaution  HealthStatus = "caution"
	HealthCritical HealthStatus = "critical"
)

// FinancialSummary is a point-in-time report of account health derived
// from the wallet and recent history.
type FinancialSummary struct {
	Balance        float64      `json:"balance"`
	RecentExpenses float64      `json:"recent_expenses"`
	HourlyBurnRate float64      `json:"hourly_burn_rate"`
	Status         HealthStatus `json:"status"`
}
