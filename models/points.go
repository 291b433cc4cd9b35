// models/points.go
package models

import "time"

type CreditStatus string

const (
	CreditActive  CreditStatus = "active"
	CreditExpired CreditStatus = "expired"
	CreditRevoked CreditStatus = "revoked"
)

// PointCredit is owned by exactly one of PlayerID or GroupID (XOR).
type PointCredit struct {
	ID        string       `json:"id" gorm:"primaryKey;size:36"`
	PlayerID  *uint        `json:"player_id,omitempty" gorm:"index"`
	GroupID   *uint        `json:"group_id,omitempty" gorm:"index"`
	Source    string       `json:"source"`
	Amount    int          `json:"amount"`
	Remaining int          `json:"remaining"`
	EarnedAt  time.Time    `json:"earned_at" gorm:"autoCreateTime"`
	ExpiresAt *time.Time   `json:"expires_at,omitempty" gorm:"index"`
	Status    CreditStatus `json:"status" gorm:"default:active"`
}

func (PointCredit) TableName() string { return "point_credits" }

// Allocation records a (credit, amount) slice consumed for a single debit.
type Allocation struct {
	CreditID string `json:"credit_id"`
	Amount   int    `json:"amount"`
}

type DebitReason string

const (
	DebitFeatureActivation DebitReason = "feature_activation"
	DebitManual            DebitReason = "manual"
)

// PointDebit is owned by exactly one of PlayerID or GroupID (XOR).
// Allocations is stored as JSON text via the gorm serializer.
type PointDebit struct {
	ID              string      `json:"id" gorm:"primaryKey;size:36"`
	PlayerID        *uint       `json:"player_id,omitempty" gorm:"index"`
	GroupID         *uint       `json:"group_id,omitempty" gorm:"index"`
	SpentByPlayerID *uint       `json:"spent_by_player_id,omitempty"`
	Amount          int         `json:"amount"`
	Reason          DebitReason `json:"reason"`
	Allocations     []Allocation `json:"allocations" gorm:"serializer:json"`
	ActivationID    *string     `json:"activation_id,omitempty"`
	CreatedAt       time.Time   `json:"created_at" gorm:"autoCreateTime"`
}

func (PointDebit) TableName() string { return "point_debits" }

type FeatureScope string

const (
	FeatureScopePlayer FeatureScope = "player"
	FeatureScopeGroup  FeatureScope = "group"
	FeatureScopeBoth   FeatureScope = "both"
)

type PremiumFeature struct {
	ID            string       `json:"id" gorm:"primaryKey;size:36"`
	Key           string       `json:"key" gorm:"uniqueIndex"`
	Name          string       `json:"name"`
	Scope         FeatureScope `json:"scope"`
	CostPoints    int          `json:"cost_points"`
	DurationDays  int          `json:"duration_days"`
	AllowMultiple bool         `json:"allow_multiple"`
	Active        bool         `json:"active" gorm:"default:true"`
}

func (PremiumFeature) TableName() string { return "premium_features" }

type ActivationStatus string

const (
	ActivationActive    ActivationStatus = "active"
	ActivationExpired   ActivationStatus = "expired"
	ActivationCancelled ActivationStatus = "cancelled"
)

// FeatureActivation is owned by exactly one of PlayerID or GroupID (XOR).
type FeatureActivation struct {
	ID         string           `json:"id" gorm:"primaryKey;size:36"`
	PlayerID   *uint            `json:"player_id,omitempty" gorm:"index"`
	GroupID    *uint            `json:"group_id,omitempty" gorm:"index"`
	FeatureID  string           `json:"feature_id" gorm:"index"`
	StartAt    time.Time        `json:"start_at"`
	EndAt      time.Time        `json:"end_at" gorm:"index"`
	AutoRenew  bool             `json:"auto_renew"`
	Status     ActivationStatus `json:"status" gorm:"default:active"`
}

func (FeatureActivation) TableName() string { return "feature_activations" }

type GrantSource string

const (
	GrantSubscription GrantSource = "subscription"
	GrantNitro        GrantSource = "nitro"
	GrantCustom       GrantSource = "custom"
)

type GrantStatus string

const (
	GrantActive    GrantStatus = "active"
	GrantPaused    GrantStatus = "paused"
	GrantCancelled GrantStatus = "cancelled"
)

// RecurringPointGrant awards PlayerID AmountPerPeriod points every month,
// swept by points.Ledger.RunRecurringGrants on the scheduler's tick.
type RecurringPointGrant struct {
	ID              string      `json:"id" gorm:"primaryKey;size:36"`
	PlayerID        uint        `json:"player_id" gorm:"index;not null"`
	Source          GrantSource `json:"source"`
	ExternalRef     string      `json:"external_ref,omitempty"`
	AmountPerPeriod int         `json:"amount_per_period"`
	Cadence         string      `json:"cadence" gorm:"default:monthly"`
	LastGrantedAt   *time.Time  `json:"last_granted_at,omitempty"`
	NextDueAt       *time.Time  `json:"next_due_at,omitempty" gorm:"index"`
	Status          GrantStatus `json:"status" gorm:"default:active"`
}

func (RecurringPointGrant) TableName() string { return "recurring_point_grants" }
