package economy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/zhouzirui/toddler-chat/backend/internal/metrics"
	"github.com/zhouzirui/toddler-chat/backend/internal/model/catalog"
	"github.com/zhouzirui/toddler-chat/backend/internal/storage/kv"
)

const (
	StartingCoins = 50
	// UnlockThreshold is the lifetime message count that unlocks the
	// sibling mode and the chatter milestones.
	UnlockThreshold = 10
)

// InsufficientFundsNotice is shown to the user when a purchase is refused.
const InsufficientFundsNotice = "Not enough coins! Watch an ad?"

var ErrInsufficientFunds = errors.New(InsufficientFundsNotice)

// State is a read-only copy of the ledger.
type State struct {
	Coins            int                 `json:"coins"`
	Inventory        []string            `json:"inventory"`
	EquippedClothing string              `json:"equippedClothing,omitempty"`
	EquippedToy      string              `json:"equippedToy,omitempty"`
	MessageCount     int                 `json:"messageCount"`
	CanUnlockBoth    bool                `json:"canUnlockBoth"`
	Milestones       []catalog.Milestone `json:"milestones"`
}

// Ledger owns coins, inventory, equipment and milestones of one household.
// Coins, message count and inventory are written through to the KV store
// after every mutation.
type Ledger struct {
	mu     sync.Mutex
	store  kv.Store
	prefix string
	logger *zap.Logger

	coins            int
	inventory        []string
	equippedClothing string
	equippedToy      string
	messageCount     int
	canUnlockBoth    bool
	milestones       []catalog.Milestone

	onUnlock func(catalog.Milestone)
}

// NewLedger returns a ledger with starting balances for household id.
func NewLedger(id string, store kv.Store, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		store:      store,
		prefix:     "toddler:" + id + ":",
		logger:     logger.Named("Ledger").With(zap.String("session", id)),
		coins:      StartingCoins,
		inventory:  []string{},
		milestones: catalog.Milestones(),
	}
}

// OnUnlock registers fn to be called after every locked→unlocked transition.
// Milestones restored by Load do not trigger it.
func (l *Ledger) OnUnlock(fn func(catalog.Milestone)) {
	l.mu.Lock()
	l.onUnlock = fn
	l.mu.Unlock()
}

func (l *Ledger) key(name string) string { return l.prefix + name }

// Load reads persisted progress. Missing keys keep the defaults; unreadable
// values are logged and ignored.
func (l *Ledger) Load(ctx context.Context) error {
	coins, coinsOK, err := l.store.Get(ctx, l.key("coins"))
	if err != nil {
		return fmt.Errorf("load coins: %w", err)
	}
	count, countOK, err := l.store.Get(ctx, l.key("msg_count"))
	if err != nil {
		return fmt.Errorf("load message count: %w", err)
	}
	inv, invOK, err := l.store.Get(ctx, l.key("inventory"))
	if err != nil {
		return fmt.Errorf("load inventory: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if coinsOK {
		if n, err := strconv.Atoi(coins); err == nil {
			l.coins = n
		} else {
			l.logger.Warn("ignoring unreadable coins", zap.String("value", coins), zap.Error(err))
		}
	}
	if countOK {
		if n, err := strconv.Atoi(count); err == nil {
			l.messageCount = n
		} else {
			l.logger.Warn("ignoring unreadable message count", zap.String("value", count), zap.Error(err))
		}
	}
	if invOK {
		var ids []string
		if err := json.Unmarshal([]byte(inv), &ids); err == nil {
			l.inventory = ids[:0:0]
			for _, id := range ids {
				if !slices.Contains(l.inventory, id) {
					l.inventory = append(l.inventory, id)
				}
			}
		} else {
			l.logger.Warn("ignoring unreadable inventory", zap.String("value", inv), zap.Error(err))
		}
	}

	// Restored achievements are re-derived without notifications.
	l.checkUnlockStatusLocked()
	l.checkWardrobeLocked()
	return nil
}

// AddCoins credits amount coins.
func (l *Ledger) AddCoins(ctx context.Context, amount int) int {
	l.mu.Lock()
	l.coins += amount
	coins := l.coins
	l.persistCoinsLocked(ctx)
	l.mu.Unlock()

	if amount > 0 {
		metrics.CoinsAwardedTotal.Add(float64(amount))
	}
	return coins
}

// Buy deducts the price of item and applies it. Food is consumed on the
// spot; toys and clothing join the inventory once and become equipped.
func (l *Ledger) Buy(ctx context.Context, item catalog.StoreItem) error {
	l.mu.Lock()
	if l.coins < item.Price {
		l.mu.Unlock()
		return fmt.Errorf("buy %s for %d with %d coins: %w", item.ID, item.Price, l.coins, ErrInsufficientFunds)
	}

	l.coins -= item.Price
	l.persistCoinsLocked(ctx)

	var unlocked []catalog.Milestone
	if item.Category != catalog.Food {
		if !slices.Contains(l.inventory, item.ID) {
			l.inventory = append(l.inventory, item.ID)
			l.persistInventoryLocked(ctx)
		}
		switch item.Category {
		case catalog.Clothing:
			l.equippedClothing = item.Name
		case catalog.Toy:
			l.equippedToy = item.Name
			if item.Musical {
				unlocked = l.unlockLocked(catalog.MilestoneMusician, unlocked)
			}
		}
		if l.ownsClothingLocked() {
			unlocked = l.unlockLocked(catalog.MilestoneFashionista, unlocked)
		}
	}
	l.mu.Unlock()

	metrics.PurchasesTotal.WithLabelValues(string(item.Category)).Inc()
	l.notify(unlocked)
	return nil
}

// RecordMessage counts one sent message towards the lifetime total.
func (l *Ledger) RecordMessage(ctx context.Context) int {
	l.mu.Lock()
	l.messageCount++
	count := l.messageCount
	l.persistLocked(ctx, "msg_count", strconv.Itoa(count))

	var unlocked []catalog.Milestone
	if count >= UnlockThreshold {
		l.canUnlockBoth = true
		unlocked = l.unlockLocked(catalog.MilestoneBestFriends, unlocked)
		unlocked = l.unlockLocked(catalog.MilestoneFirstWord, unlocked)
	}
	l.mu.Unlock()

	l.notify(unlocked)
	return count
}

// Unlock marks milestone id as achieved. It reports whether this call
// performed the transition.
func (l *Ledger) Unlock(id string) bool {
	l.mu.Lock()
	unlocked := l.unlockLocked(id, nil)
	l.mu.Unlock()

	l.notify(unlocked)
	return len(unlocked) > 0
}

func (l *Ledger) Coins() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.coins
}

func (l *Ledger) CanUnlockBoth() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.canUnlockBoth
}

// Equipped returns the names of the worn clothing and held toy.
func (l *Ledger) Equipped() (clothing, toy string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.equippedClothing, l.equippedToy
}

func (l *Ledger) Milestones() []catalog.Milestone {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.milestones)
}

func (l *Ledger) Snapshot() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return State{
		Coins:            l.coins,
		Inventory:        slices.Clone(l.inventory),
		EquippedClothing: l.equippedClothing,
		EquippedToy:      l.equippedToy,
		MessageCount:     l.messageCount,
		CanUnlockBoth:    l.canUnlockBoth,
		Milestones:       slices.Clone(l.milestones),
	}
}

func (l *Ledger) unlockLocked(id string, acc []catalog.Milestone) []catalog.Milestone {
	for i := range l.milestones {
		if l.milestones[i].ID == id && !l.milestones[i].Unlocked {
			l.milestones[i].Unlocked = true
			return append(acc, l.milestones[i])
		}
	}
	return acc
}

func (l *Ledger) checkUnlockStatusLocked() {
	if l.messageCount >= UnlockThreshold {
		l.canUnlockBoth = true
		l.unlockLocked(catalog.MilestoneBestFriends, nil)
		l.unlockLocked(catalog.MilestoneFirstWord, nil)
	}
}

func (l *Ledger) checkWardrobeLocked() {
	if l.ownsClothingLocked() {
		l.unlockLocked(catalog.MilestoneFashionista, nil)
	}
}

func (l *Ledger) ownsClothingLocked() bool {
	for _, id := range l.inventory {
		if item, ok := catalog.FindItem(id); ok && item.Category == catalog.Clothing {
			return true
		}
	}
	return false
}

func (l *Ledger) notify(unlocked []catalog.Milestone) {
	if len(unlocked) == 0 {
		return
	}
	l.mu.Lock()
	fn := l.onUnlock
	l.mu.Unlock()

	for _, m := range unlocked {
		metrics.MilestonesUnlockedTotal.WithLabelValues(m.ID).Inc()
		l.logger.Info("milestone unlocked", zap.String("milestone", m.ID))
		if fn != nil {
			fn(m)
		}
	}
}

// persistLocked writes one key. The in-memory mutation already happened, so
// the write must not die with the caller's request.
func (l *Ledger) persistLocked(ctx context.Context, name, value string) {
	if err := l.store.Set(context.WithoutCancel(ctx), l.key(name), value); err != nil {
		l.logger.Error("failed to persist progress", zap.String("key", name), zap.Error(err))
	}
}

func (l *Ledger) persistCoinsLocked(ctx context.Context) {
	l.persistLocked(ctx, "coins", strconv.Itoa(l.coins))
}

func (l *Ledger) persistInventoryLocked(ctx context.Context) {
	data, err := json.Marshal(l.inventory)
	if err != nil {
		l.logger.Error("failed to encode inventory", zap.Error(err))
		return
	}
	l.persistLocked(ctx, "inventory", string(data))
}
