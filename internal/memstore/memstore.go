// Package memstore is an in-process implementation of service.Store. A
// single mutex serializes every unit of work; a failed unit is rolled back
// by restoring a snapshot taken when it began. It backs local runs
// (STORE_DRIVER=memory) and tests.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/digkill/faithtrain/internal/models"
	"github.com/digkill/faithtrain/internal/service"
)

type usageKey struct {
	userID  int64
	feature string
	period  time.Time
}

type activityKey struct {
	userID int64
	kind   models.ActivityKind
	day    time.Time
}

type dayKey struct {
	userID int64
	day    time.Time
}

type prefKey struct {
	userID int64
	key    string
}

type data struct {
	nextUserID   int64
	nextEntryID  int64
	nextRewardID int64
	nextCodeID   int64

	users           map[int64]models.User
	usersByTelegram map[int64]int64
	usage           map[usageKey]int
	activities      map[activityKey]struct{}
	bridges         map[dayKey]struct{}
	streaks         map[int64]models.StreakState
	balances        map[int64]int64
	entries         []models.LedgerEntry
	boosters        []models.ActiveBooster
	rewards         map[int64]models.Reward
	grants          []models.UserRewardGrant
	subs            map[int64]models.SubscriptionRecord
	codes           map[string]models.RedemptionCode
	codeRedemptions map[[2]int64]struct{}
	prefs           map[prefKey]string
}

func newData() *data {
	return &data{
		users:           make(map[int64]models.User),
		usersByTelegram: make(map[int64]int64),
		usage:           make(map[usageKey]int),
		activities:      make(map[activityKey]struct{}),
		bridges:         make(map[dayKey]struct{}),
		streaks:         make(map[int64]models.StreakState),
		balances:        make(map[int64]int64),
		rewards:         make(map[int64]models.Reward),
		subs:            make(map[int64]models.SubscriptionRecord),
		codes:           make(map[string]models.RedemptionCode),
		codeRedemptions: make(map[[2]int64]struct{}),
		prefs:           make(map[prefKey]string),
	}
}

// clone copies every table. Records are stored by value and pointer fields
// inside them are replaced, never written through, so a shallow copy of
// each record is enough.
func (d *data) clone() *data {
	c := *d
	c.users = cloneMap(d.users)
	c.usersByTelegram = cloneMap(d.usersByTelegram)
	c.usage = cloneMap(d.usage)
	c.activities = cloneMap(d.activities)
	c.bridges = cloneMap(d.bridges)
	c.streaks = cloneMap(d.streaks)
	c.balances = cloneMap(d.balances)
	c.entries = append([]models.LedgerEntry(nil), d.entries...)
	c.boosters = append([]models.ActiveBooster(nil), d.boosters...)
	c.rewards = cloneMap(d.rewards)
	c.grants = append([]models.UserRewardGrant(nil), d.grants...)
	c.subs = cloneMap(d.subs)
	c.codes = cloneMap(d.codes)
	c.codeRedemptions = cloneMap(d.codeRedemptions)
	c.prefs = cloneMap(d.prefs)
	return &c
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

type Store struct {
	mu    *sync.Mutex
	d     *data
	clock clockwork.Clock
	inTx  bool
}

var _ service.Store = (*Store)(nil)

func New(clock clockwork.Clock) *Store {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Store{mu: &sync.Mutex{}, d: newData(), clock: clock}
}

func (s *Store) lock() func() {
	if s.inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *Store) now() time.Time {
	return s.clock.Now().UTC()
}

func (s *Store) InTx(ctx context.Context, fn func(tx service.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	snapshot := s.d.clone()
	tx := &Store{mu: s.mu, d: s.d, clock: s.clock, inTx: true}
	if err := fn(tx); err != nil {
		*s.d = *snapshot
		return err
	}
	return nil
}

func (s *Store) Users() service.UserStore { return users{s} }
func (s *Store) Usage() service.UsageStore { return usage{s} }
func (s *Store) Streaks() service.StreakStore { return streaks{s} }
func (s *Store) Ledger() service.LedgerStore { return ledger{s} }
func (s *Store) Boosters() service.BoosterStore { return boosters{s} }
func (s *Store) Rewards() service.RewardStore { return rewards{s} }
func (s *Store) Subscriptions() service.SubscriptionStore { return subscriptions{s} }
func (s *Store) Codes() service.CodeStore { return codes{s} }
func (s *Store) Preferences() service.PreferenceStore { return preferences{s} }

type users struct{ s *Store }

func (r users) GetByID(_ context.Context, id int64) (*models.User, error) {
	defer r.s.lock()()
	u, ok := r.s.d.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (r users) FindByTelegramID(_ context.Context, telegramID int64) (*models.User, error) {
	defer r.s.lock()()
	id, ok := r.s.d.usersByTelegram[telegramID]
	if !ok {
		return nil, nil
	}
	u := r.s.d.users[id]
	return &u, nil
}

func (r users) Create(_ context.Context, user *models.User) (*models.User, error) {
	defer r.s.lock()()
	if _, ok := r.s.d.usersByTelegram[user.TelegramID]; ok && user.TelegramID != 0 {
		return nil, service.ErrDuplicate
	}
	r.s.d.nextUserID++
	u := *user
	u.ID = r.s.d.nextUserID
	u.CreatedAt = r.s.now()
	u.UpdatedAt = u.CreatedAt
	r.s.d.users[u.ID] = u
	if u.TelegramID != 0 {
		r.s.d.usersByTelegram[u.TelegramID] = u.ID
	}
	return &u, nil
}

func (r users) UpdateProfile(_ context.Context, userID int64, username, firstName string) error {
	defer r.s.lock()()
	u, ok := r.s.d.users[userID]
	if !ok {
		return nil
	}
	u.Username, u.FirstName, u.UpdatedAt = username, firstName, r.s.now()
	r.s.d.users[userID] = u
	return nil
}

type usage struct{ s *Store }

func (r usage) Count(_ context.Context, userID int64, feature string, periodStart time.Time) (int, error) {
	defer r.s.lock()()
	return r.s.d.usage[usageKey{userID, feature, periodStart}], nil
}

func (r usage) IncrementBelow(_ context.Context, userID int64, feature string, periodStart time.Time, limit int) (int, bool, error) {
	defer r.s.lock()()
	key := usageKey{userID, feature, periodStart}
	count := r.s.d.usage[key]
	if count >= limit {
		return count, false, nil
	}
	count++
	r.s.d.usage[key] = count
	return count, true, nil
}

type streaks struct{ s *Store }

func (r streaks) RecordActivity(_ context.Context, userID int64, kind models.ActivityKind, day time.Time) (bool, error) {
	defer r.s.lock()()
	key := activityKey{userID, kind, day}
	if _, ok := r.s.d.activities[key]; ok {
		return false, nil
	}
	r.s.d.activities[key] = struct{}{}
	return true, nil
}

func (r streaks) ActivityDays(_ context.Context, userID int64) ([]time.Time, error) {
	defer r.s.lock()()
	var days []time.Time
	for k := range r.s.d.activities {
		if k.userID == userID {
			days = append(days, k.day)
		}
	}
	sort.Slice(days, func(i, j int) bool { return days[i].After(days[j]) })
	return days, nil
}

func (r streaks) BridgedDays(_ context.Context, userID int64) ([]time.Time, error) {
	defer r.s.lock()()
	var days []time.Time
	for k := range r.s.d.bridges {
		if k.userID == userID {
			days = append(days, k.day)
		}
	}
	return days, nil
}

func (r streaks) RecordBridge(_ context.Context, userID int64, day time.Time) (bool, error) {
	defer r.s.lock()()
	key := dayKey{userID, day}
	if _, ok := r.s.d.bridges[key]; ok {
		return false, nil
	}
	r.s.d.bridges[key] = struct{}{}
	return true, nil
}

func (r streaks) GetState(_ context.Context, userID int64) (*models.StreakState, error) {
	defer r.s.lock()()
	st, ok := r.s.d.streaks[userID]
	if !ok {
		return nil, nil
	}
	return &st, nil
}

func (r streaks) SaveState(_ context.Context, state *models.StreakState) error {
	defer r.s.lock()()
	r.s.d.streaks[state.UserID] = *state
	return nil
}

type ledger struct{ s *Store }

func (r ledger) Balance(_ context.Context, userID int64) (int64, error) {
	defer r.s.lock()()
	return r.s.d.balances[userID], nil
}

func (r ledger) Credit(_ context.Context, userID int64, amount int64, reason string) (*models.LedgerEntry, error) {
	defer r.s.lock()()
	balance := r.s.d.balances[userID] + amount
	r.s.d.balances[userID] = balance
	return r.appendEntry(userID, models.LedgerCredit, amount, balance, reason), nil
}

func (r ledger) Debit(_ context.Context, userID int64, amount int64, reason string) (*models.LedgerEntry, bool, error) {
	defer r.s.lock()()
	balance := r.s.d.balances[userID]
	if amount > balance {
		return nil, false, nil
	}
	balance -= amount
	r.s.d.balances[userID] = balance
	return r.appendEntry(userID, models.LedgerDebit, amount, balance, reason), true, nil
}

func (r ledger) appendEntry(userID int64, dir models.LedgerDirection, amount, balance int64, reason string) *models.LedgerEntry {
	r.s.d.nextEntryID++
	e := models.LedgerEntry{
		ID:           r.s.d.nextEntryID,
		UserID:       userID,
		Direction:    dir,
		Amount:       amount,
		BalanceAfter: balance,
		Reason:       reason,
		CreatedAt:    r.s.now(),
	}
	r.s.d.entries = append(r.s.d.entries, e)
	return &e
}

func (r ledger) Entries(_ context.Context, userID int64, limit int) ([]models.LedgerEntry, error) {
	defer r.s.lock()()
	var out []models.LedgerEntry
	for i := len(r.s.d.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if e := r.s.d.entries[i]; e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r ledger) EntriesBetween(_ context.Context, from, to time.Time) ([]models.LedgerEntry, error) {
	defer r.s.lock()()
	var out []models.LedgerEntry
	for _, e := range r.s.d.entries {
		if !e.CreatedAt.Before(from) && e.CreatedAt.Before(to) {
			out = append(out, e)
		}
	}
	return out, nil
}

type boosters struct{ s *Store }

func (r boosters) ListActive(_ context.Context, userID int64, now time.Time) ([]models.ActiveBooster, error) {
	defer r.s.lock()()
	var out []models.ActiveBooster
	for _, b := range r.s.d.boosters {
		if b.UserID == userID && b.IsActive(now) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (r boosters) FindActive(_ context.Context, userID int64, kind models.EffectKind, now time.Time) (*models.ActiveBooster, error) {
	defer r.s.lock()()
	for _, b := range r.s.d.boosters {
		if b.UserID == userID && b.Kind == kind && b.IsActive(now) {
			return &b, nil
		}
	}
	return nil, nil
}

func (r boosters) Create(_ context.Context, booster *models.ActiveBooster) error {
	defer r.s.lock()()
	r.s.d.boosters = append(r.s.d.boosters, *booster)
	return nil
}

func (r boosters) update(id string, fn func(b *models.ActiveBooster) bool) bool {
	for i := range r.s.d.boosters {
		if r.s.d.boosters[i].ID == id {
			b := r.s.d.boosters[i]
			if !fn(&b) {
				return false
			}
			b.UpdatedAt = r.s.now()
			r.s.d.boosters[i] = b
			return true
		}
	}
	return false
}

func (r boosters) ExtendUntil(_ context.Context, id string, expiresAt time.Time) error {
	defer r.s.lock()()
	r.update(id, func(b *models.ActiveBooster) bool {
		t := expiresAt
		b.ExpiresAt = &t
		return true
	})
	return nil
}

func (r boosters) AddUses(_ context.Context, id string, uses int) error {
	defer r.s.lock()()
	r.update(id, func(b *models.ActiveBooster) bool {
		total := uses
		if b.UsesRemaining != nil {
			total += *b.UsesRemaining
		}
		b.UsesRemaining = &total
		return true
	})
	return nil
}

func (r boosters) ConsumeUse(_ context.Context, id string) (bool, error) {
	defer r.s.lock()()
	return r.update(id, func(b *models.ActiveBooster) bool {
		if b.UsesRemaining == nil || *b.UsesRemaining <= 0 {
			return false
		}
		left := *b.UsesRemaining - 1
		b.UsesRemaining = &left
		return true
	}), nil
}

type rewards struct{ s *Store }

func (r rewards) List(_ context.Context, activeOnly bool) ([]models.Reward, error) {
	defer r.s.lock()()
	out := make([]models.Reward, 0, len(r.s.d.rewards))
	for _, rw := range r.s.d.rewards {
		if activeOnly && !rw.Active {
			continue
		}
		out = append(out, rw)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r rewards) GetByID(_ context.Context, id int64) (*models.Reward, error) {
	defer r.s.lock()()
	rw, ok := r.s.d.rewards[id]
	if !ok {
		return nil, nil
	}
	return &rw, nil
}

// Lock is a plain read: the unit already holds the store mutex.
func (r rewards) Lock(ctx context.Context, id int64) (*models.Reward, error) {
	return r.GetByID(ctx, id)
}

// slugTaken mirrors the unique key on rewards.slug.
func (r rewards) slugTaken(slug string, except int64) bool {
	for id, rw := range r.s.d.rewards {
		if id != except && rw.Slug == slug {
			return true
		}
	}
	return false
}

func (r rewards) Create(_ context.Context, reward *models.Reward) (*models.Reward, error) {
	defer r.s.lock()()
	if r.slugTaken(reward.Slug, 0) {
		return nil, fmt.Errorf("create reward %q: %w", reward.Slug, service.ErrDuplicate)
	}
	r.s.d.nextRewardID++
	rw := *reward
	rw.ID = r.s.d.nextRewardID
	rw.TimesRedeemed = 0
	rw.CreatedAt = r.s.now()
	rw.UpdatedAt = rw.CreatedAt
	r.s.d.rewards[rw.ID] = rw
	return &rw, nil
}

func (r rewards) Update(_ context.Context, reward *models.Reward) (*models.Reward, error) {
	defer r.s.lock()()
	existing, ok := r.s.d.rewards[reward.ID]
	if !ok {
		return nil, nil
	}
	if r.slugTaken(reward.Slug, reward.ID) {
		return nil, fmt.Errorf("update reward %q: %w", reward.Slug, service.ErrDuplicate)
	}
	existing.Title = reward.Title
	existing.Slug = reward.Slug
	existing.Description = reward.Description
	existing.PremiumOnly = reward.PremiumOnly
	existing.Active = reward.Active
	existing.UpdatedAt = r.s.now()
	r.s.d.rewards[reward.ID] = existing
	return &existing, nil
}

func (r rewards) IncrementRedeemed(_ context.Context, id int64) (bool, error) {
	defer r.s.lock()()
	rw, ok := r.s.d.rewards[id]
	if !ok || rw.StockExhausted() {
		return false, nil
	}
	rw.TimesRedeemed++
	r.s.d.rewards[id] = rw
	return true, nil
}

func (r rewards) CreateGrant(_ context.Context, grant *models.UserRewardGrant) error {
	defer r.s.lock()()
	r.s.d.grants = append(r.s.d.grants, *grant)
	return nil
}

func (r rewards) LockGrant(_ context.Context, id string) (*models.UserRewardGrant, error) {
	defer r.s.lock()()
	for _, g := range r.s.d.grants {
		if g.ID == id {
			return &g, nil
		}
	}
	return nil, nil
}

func (r rewards) HasGrant(_ context.Context, userID, rewardID int64) (bool, error) {
	defer r.s.lock()()
	for _, g := range r.s.d.grants {
		if g.UserID == userID && g.RewardID == rewardID {
			return true, nil
		}
	}
	return false, nil
}

func (r rewards) ListGrants(_ context.Context, userID int64) ([]models.UserRewardGrant, error) {
	defer r.s.lock()()
	var out []models.UserRewardGrant
	for _, g := range r.s.d.grants {
		if g.UserID == userID {
			out = append(out, g)
		}
	}
	return out, nil
}

func (r rewards) SetEquipped(_ context.Context, grantID string, equipped bool) error {
	defer r.s.lock()()
	for i := range r.s.d.grants {
		if r.s.d.grants[i].ID == grantID {
			r.s.d.grants[i].IsEquipped = equipped
		}
	}
	return nil
}

func (r rewards) MarkActivated(_ context.Context, grantID string, at time.Time) (bool, error) {
	defer r.s.lock()()
	for i := range r.s.d.grants {
		g := &r.s.d.grants[i]
		if g.ID != grantID {
			continue
		}
		if g.ActivatedAt != nil {
			return false, nil
		}
		t := at
		g.ActivatedAt = &t
		return true, nil
	}
	return false, nil
}

type subscriptions struct{ s *Store }

func (r subscriptions) Get(_ context.Context, userID int64) (*models.SubscriptionRecord, error) {
	defer r.s.lock()()
	rec, ok := r.s.d.subs[userID]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (r subscriptions) Upsert(_ context.Context, record *models.SubscriptionRecord) error {
	defer r.s.lock()()
	r.s.d.subs[record.UserID] = *record
	return nil
}

type codes struct{ s *Store }

func (r codes) Create(_ context.Context, code *models.RedemptionCode) (*models.RedemptionCode, error) {
	defer r.s.lock()()
	if _, ok := r.s.d.codes[code.Code]; ok {
		return nil, service.ErrDuplicate
	}
	r.s.d.nextCodeID++
	c := *code
	c.ID = r.s.d.nextCodeID
	c.Uses = 0
	c.CreatedAt = r.s.now()
	r.s.d.codes[c.Code] = c
	return &c, nil
}

func (r codes) List(_ context.Context) ([]models.RedemptionCode, error) {
	defer r.s.lock()()
	out := make([]models.RedemptionCode, 0, len(r.s.d.codes))
	for _, c := range r.s.d.codes {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r codes) Lock(_ context.Context, code string) (*models.RedemptionCode, error) {
	defer r.s.lock()()
	c, ok := r.s.d.codes[code]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (r codes) RecordRedemption(_ context.Context, userID, codeID int64) (bool, error) {
	defer r.s.lock()()
	key := [2]int64{userID, codeID}
	if _, ok := r.s.d.codeRedemptions[key]; ok {
		return false, nil
	}
	r.s.d.codeRedemptions[key] = struct{}{}
	return true, nil
}

func (r codes) IncrementUses(_ context.Context, codeID int64) (bool, error) {
	defer r.s.lock()()
	for k, c := range r.s.d.codes {
		if c.ID != codeID {
			continue
		}
		if c.Uses >= c.MaxUses {
			return false, nil
		}
		c.Uses++
		r.s.d.codes[k] = c
		return true, nil
	}
	return false, nil
}

type preferences struct{ s *Store }

func (r preferences) Get(_ context.Context, userID int64, key string) (string, bool, error) {
	defer r.s.lock()()
	v, ok := r.s.d.prefs[prefKey{userID, key}]
	return v, ok, nil
}

func (r preferences) Set(_ context.Context, userID int64, key, value string) error {
	defer r.s.lock()()
	r.s.d.prefs[prefKey{userID, key}] = value
	return nil
}
