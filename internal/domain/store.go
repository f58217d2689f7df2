package domain

import (
	"context"
	"time"
)

// UserStore persists users, auth nonces, and the whitelist.
type UserStore interface {
	UpsertUser(ctx context.Context, address string, role Role) (User, error)
	GetUser(ctx context.Context, address string) (User, error)
	CreateNonce(ctx context.Context) (string, error)
	ConsumeNonce(ctx context.Context, nonce string) (bool, error)
	IsWhitelisted(ctx context.Context, address string) (bool, error)
	AddWhitelist(ctx context.Context, address, addedBy string) error
	RemoveWhitelist(ctx context.Context, address string) error
	ListWhitelist(ctx context.Context) ([]WhitelistEntry, error)
	ClaimLegacyData(ctx context.Context, owner string) error
}

// TradeStore persists downstream trades and derived aggregates.
type TradeStore interface {
	RecordTrade(ctx context.Context, t Trade) (int64, error)
	ListTrades(ctx context.Context, f TradeFilter) ([]Trade, error)
	// DailyExecutedSpend sums executed USD for the current UTC day; trader
	// narrows to copies of one followed wallet when non-empty.
	DailyExecutedSpend(ctx context.Context, user string, strategy Strategy, trader string) (float64, error)
	PnLSeries(ctx context.Context, user string, strategy Strategy, days int) ([]PnLPoint, error)
	CopyStats(ctx context.Context, user string) (CopyStats, error)
	ArbStats(ctx context.Context, user string) (ArbStats, error)
	CountByFingerprint(ctx context.Context, user, fingerprint string) (int, error)
}

// TraderStore persists the followed-trader relations.
type TraderStore interface {
	AddFollow(ctx context.Context, user, address, alias string) (bool, error)
	RemoveFollow(ctx context.Context, user, address string) (bool, error)
	ListFollows(ctx context.Context, user string, includeInactive bool) ([]FollowedTrader, error)
	UpdateFollowOverrides(ctx context.Context, user, address string, o TraderOverrides) error
	IncrementFollowCounters(ctx context.Context, user, address string, spent float64) error
}

// DedupStore is the seen-fingerprint ledger shared by all engines.
type DedupStore interface {
	MarkSeen(ctx context.Context, fingerprint string) error
	IsSeen(ctx context.Context, fingerprint string) (bool, error)
	ExpireSeen(ctx context.Context, olderThan time.Duration) (int64, error)
}

// PriceUpdate pairs a position id with a freshly observed price.
type PriceUpdate struct {
	PositionID int64
	Price      float64
}

// PositionStore persists positions, applying the position-delta rule on
// every executed trade.
type PositionStore interface {
	UpsertPosition(ctx context.Context, user, tokenID, market string, side Side, usd, price float64, strategy Strategy, copiedFrom string) error
	ListOpenPositions(ctx context.Context, user string) ([]Position, error)
	ListAllOpenPositions(ctx context.Context) ([]Position, error)
	ListClosedPositions(ctx context.Context, user string, limit int) ([]Position, error)
	GetPosition(ctx context.Context, id int64) (Position, error)
	ClosePosition(ctx context.Context, id int64) error
	BatchUpdatePrices(ctx context.Context, updates []PriceUpdate) error
}

// FundStore persists funds, allocations, investments, and performance.
type FundStore interface {
	CreateFund(ctx context.Context, f Fund) (Fund, error)
	UpdateFund(ctx context.Context, f Fund) error
	GetFund(ctx context.Context, id string) (Fund, error)
	ListFunds(ctx context.Context, activeOnly bool) ([]Fund, error)
	ReplaceAllocations(ctx context.Context, fundID string, allocs []FundAllocation) error
	ListAllocations(ctx context.Context, fundID string) ([]FundAllocation, error)
	Invest(ctx context.Context, fundID, investor string, amount float64) (FundInvestment, error)
	Withdraw(ctx context.Context, investmentID, investor string) (float64, error)
	ListInvestments(ctx context.Context, fundID string) ([]FundInvestment, error)
	RecordPerformance(ctx context.Context, p FundPerformance) error
	ListPerformance(ctx context.Context, fundID string, days int) ([]FundPerformance, error)
	RecordFundTrade(ctx context.Context, ft FundTrade) error
	ListFundTrades(ctx context.Context, fundID string, limit int) ([]FundTrade, error)
}

// PrefStore persists opaque preferences and encrypted API credentials.
type PrefStore interface {
	GetPreferences(ctx context.Context, user string) (Preferences, error)
	MergePreferences(ctx context.Context, user string, p Preferences) (Preferences, error)
	GetCreds(ctx context.Context, user string) (APICredentials, error)
	// SaveCreds applies a partial update: empty fields keep stored values.
	SaveCreds(ctx context.Context, c APICredentials) error
	DeleteCreds(ctx context.Context, user string) error
}

// EventStore persists the engine audit log.
type EventStore interface {
	RecordEvent(ctx context.Context, e EngineEvent) error
	ListEvents(ctx context.Context, f EventFilter) ([]EngineEvent, error)
}
