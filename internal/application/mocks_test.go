package application

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/sanosuguru/go-space-reservation/internal/config"
	"github.com/sanosuguru/go-space-reservation/internal/domain/notification"
	"github.com/sanosuguru/go-space-reservation/internal/domain/opening"
	"github.com/sanosuguru/go-space-reservation/internal/domain/permission"
	"github.com/sanosuguru/go-space-reservation/internal/domain/reservation"
	"github.com/sanosuguru/go-space-reservation/internal/domain/resource"
	"github.com/sanosuguru/go-space-reservation/internal/domain/transaction"
	"github.com/sanosuguru/go-space-reservation/internal/domain/unit"
	"github.com/sanosuguru/go-space-reservation/internal/pkg/timeutil"
)

// === Mock implementations ===

// MockTxManager implements transaction.Manager
type MockTxManager struct {
	mock.Mock
}

func (m *MockTxManager) Begin(ctx context.Context) (transaction.Tx, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(transaction.Tx), args.Error(1)
}

// MockTx implements transaction.Tx
type MockTx struct {
	mock.Mock
}

func (m *MockTx) Commit() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockTx) Rollback() error {
	args := m.Called()
	return args.Error(0)
}

// MockReservationRepository implements reservation.Repository
type MockReservationRepository struct {
	mock.Mock
}

func (m *MockReservationRepository) Create(ctx context.Context, tx transaction.Tx, r *reservation.Reservation) error {
	args := m.Called(ctx, tx, r)
	return args.Error(0)
}

func (m *MockReservationRepository) Update(ctx context.Context, tx transaction.Tx, r *reservation.Reservation) error {
	args := m.Called(ctx, tx, r)
	return args.Error(0)
}

func (m *MockReservationRepository) GetByID(ctx context.Context, id string) (*reservation.Reservation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reservation.Reservation), args.Error(1)
}

func (m *MockReservationRepository) GetByIDForUpdate(ctx context.Context, tx transaction.Tx, id string) (*reservation.Reservation, error) {
	args := m.Called(ctx, tx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reservation.Reservation), args.Error(1)
}

func (m *MockReservationRepository) ListOverlapping(ctx context.Context, tx transaction.Tx, resourceID string, begin, end time.Time, excludeID string) ([]*reservation.Reservation, error) {
	args := m.Called(ctx, tx, resourceID, begin, end, excludeID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*reservation.Reservation), args.Error(1)
}

func (m *MockReservationRepository) CountActiveForUser(ctx context.Context, tx transaction.Tx, resourceID, userID string, now time.Time) (int, error) {
	args := m.Called(ctx, tx, resourceID, userID, now)
	return args.Int(0), args.Error(1)
}

func (m *MockReservationRepository) ListForRange(ctx context.Context, resourceID string, begin, end time.Time) ([]*reservation.Reservation, error) {
	args := m.Called(ctx, resourceID, begin, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*reservation.Reservation), args.Error(1)
}

func (m *MockReservationRepository) List(ctx context.Context, filter reservation.ListFilter) ([]*reservation.Reservation, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*reservation.Reservation), args.Error(1)
}

func (m *MockReservationRepository) ListExpiredWaiting(ctx context.Context, olderThan time.Time) ([]*reservation.Reservation, error) {
	args := m.Called(ctx, olderThan)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*reservation.Reservation), args.Error(1)
}

// MockResourceRepository implements resource.Repository
type MockResourceRepository struct {
	mock.Mock
}

func (m *MockResourceRepository) GetByID(ctx context.Context, id string) (*resource.Resource, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*resource.Resource), args.Error(1)
}

func (m *MockResourceRepository) Create(ctx context.Context, r *resource.Resource) error {
	args := m.Called(ctx, r)
	return args.Error(0)
}

func (m *MockResourceRepository) ListByUnit(ctx context.Context, unitID string) ([]*resource.Resource, error) {
	args := m.Called(ctx, unitID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*resource.Resource), args.Error(1)
}

func (m *MockResourceRepository) List(ctx context.Context, limit, offset int) ([]*resource.Resource, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*resource.Resource), args.Error(1)
}

func (m *MockResourceRepository) LockForUpdate(ctx context.Context, tx transaction.Tx, id string) error {
	args := m.Called(ctx, tx, id)
	return args.Error(0)
}

// MockUnitRepository implements unit.Repository
type MockUnitRepository struct {
	mock.Mock
}

func (m *MockUnitRepository) GetByID(ctx context.Context, id string) (*unit.Unit, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*unit.Unit), args.Error(1)
}

func (m *MockUnitRepository) Create(ctx context.Context, u *unit.Unit) error {
	args := m.Called(ctx, u)
	return args.Error(0)
}

func (m *MockUnitRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockUnitRepository) GetGroupsContaining(ctx context.Context, unitID string) ([]*unit.UnitGroup, error) {
	args := m.Called(ctx, unitID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*unit.UnitGroup), args.Error(1)
}

// MockMetadataRepository implements reservation.MetadataRepository
type MockMetadataRepository struct {
	mock.Mock
}

func (m *MockMetadataRepository) GetSetByID(ctx context.Context, id string) (*reservation.MetadataSet, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reservation.MetadataSet), args.Error(1)
}

// MockPermissionRepository implements permission.Repository
type MockPermissionRepository struct {
	mock.Mock
}

func (m *MockPermissionRepository) LoadSnapshot(ctx context.Context, userID string) (*permission.Snapshot, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*permission.Snapshot), args.Error(1)
}

// MockPeriodRepository implements opening.PeriodRepository
type MockPeriodRepository struct {
	mock.Mock
}

func (m *MockPeriodRepository) GetByID(ctx context.Context, id string) (*opening.Period, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*opening.Period), args.Error(1)
}

func (m *MockPeriodRepository) ListForResource(ctx context.Context, resourceID string) ([]*opening.Period, error) {
	args := m.Called(ctx, resourceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*opening.Period), args.Error(1)
}

func (m *MockPeriodRepository) ListForUnit(ctx context.Context, unitID string) ([]*opening.Period, error) {
	args := m.Called(ctx, unitID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*opening.Period), args.Error(1)
}

func (m *MockPeriodRepository) Create(ctx context.Context, tx transaction.Tx, p *opening.Period) error {
	args := m.Called(ctx, tx, p)
	return args.Error(0)
}

func (m *MockPeriodRepository) Update(ctx context.Context, tx transaction.Tx, p *opening.Period) error {
	args := m.Called(ctx, tx, p)
	return args.Error(0)
}

func (m *MockPeriodRepository) Delete(ctx context.Context, tx transaction.Tx, id string) error {
	args := m.Called(ctx, tx, id)
	return args.Error(0)
}

// MockIntervalRepository implements opening.IntervalRepository
type MockIntervalRepository struct {
	mock.Mock
}

func (m *MockIntervalRepository) ListForRange(ctx context.Context, resourceID string, from, to timeutil.Date) ([]opening.Interval, error) {
	args := m.Called(ctx, resourceID, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]opening.Interval), args.Error(1)
}

func (m *MockIntervalRepository) ListAll(ctx context.Context, tx transaction.Tx, resourceID string) ([]opening.Interval, error) {
	args := m.Called(ctx, tx, resourceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]opening.Interval), args.Error(1)
}

func (m *MockIntervalRepository) ApplyDiff(ctx context.Context, tx transaction.Tx, resourceID string, toDelete, toInsert []opening.Interval) error {
	args := m.Called(ctx, tx, resourceID, toDelete, toInsert)
	return args.Error(0)
}

// fakeIntervalCache is an in-memory IntervalCache for cache interaction tests
type fakeIntervalCache struct {
	mu          sync.Mutex
	entries     map[string][]opening.Interval
	invalidated []string
	hits        int
	sets        int
}

func newFakeIntervalCache() *fakeIntervalCache {
	return &fakeIntervalCache{entries: make(map[string][]opening.Interval)}
}

func cacheKey(resourceID string, from, to timeutil.Date) string {
	return resourceID + "/" + from.String() + "/" + to.String()
}

func (c *fakeIntervalCache) Get(ctx context.Context, resourceID string, from, to timeutil.Date) ([]opening.Interval, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ivs, ok := c.entries[cacheKey(resourceID, from, to)]
	if ok {
		c.hits++
	}
	return ivs, ok, nil
}

func (c *fakeIntervalCache) Set(ctx context.Context, resourceID string, from, to timeutil.Date, intervals []opening.Interval) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cacheKey(resourceID, from, to)] = intervals
	c.sets++
	return nil
}

func (c *fakeIntervalCache) Invalidate(ctx context.Context, resourceID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	prefix := resourceID + "/"
	for key := range c.entries {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			delete(c.entries, key)
		}
	}
	c.invalidated = append(c.invalidated, resourceID)
	return nil
}

// fakeOpenings implements OpeningReader with fixed intervals
type fakeOpenings struct {
	intervals []ResolvedInterval
	err       error
}

func (f *fakeOpenings) IntervalsForRange(ctx context.Context, resourceID string, from, to time.Time, loc *time.Location) ([]ResolvedInterval, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.intervals, nil
}

// recordingDispatcher captures dispatched events for assertions
type recordingDispatcher struct {
	mu     sync.Mutex
	events []notification.Event
	err    error
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, event notification.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, event)
	return d.err
}

func (d *recordingDispatcher) Kinds() []notification.Kind {
	d.mu.Lock()
	defer d.mu.Unlock()
	kinds := make([]notification.Kind, len(d.events))
	for i, ev := range d.events {
		kinds[i] = ev.Kind
	}
	return kinds
}

// === Test fixtures ===

var testNow = time.Date(2026, 7, 10, 6, 0, 0, 0, time.UTC) // ヘルシンキ 9:00

func testLocation() *time.Location {
	loc, _ := time.LoadLocation("Europe/Helsinki")
	return loc
}

// helsinkiTime は 2026-07-10 を基準日とするヘルシンキ壁時計時刻
func helsinkiTime(day, hour, minute int) time.Time {
	return time.Date(2026, 7, day, hour, minute, 0, 0, testLocation())
}

func testReservationConfig() config.ReservationConfig {
	return config.ReservationConfig{
		DefaultTimeZone:     "Europe/Helsinki",
		PaymentWaitingTTL:   15 * time.Minute,
		TransactionDeadline: 10 * time.Second,
		SweeperInterval:     time.Minute,
		OpeningHorizonDays:  365,
		OpeningCacheTTL:     5 * time.Minute,
	}
}

func newTestResource() *resource.Resource {
	return &resource.Resource{
		ID:         "res-1",
		UnitID:     "unit-1",
		Type:       resource.TypeSpace,
		Name:       map[string]string{"fi": "Kokoushuone"},
		Reservable: true,
		Public:     true,
		MinPeriod:  30 * time.Minute,
		SlotSize:   30 * time.Minute,
	}
}

func newTestUnit() *unit.Unit {
	return &unit.Unit{
		ID:       "unit-1",
		Name:     map[string]string{"fi": "Kirjasto"},
		TimeZone: "Europe/Helsinki",
	}
}

// openAllWeek は基準日前後の 8:00〜18:00 開館インターバル
func openAllWeek() []ResolvedInterval {
	var ivs []ResolvedInterval
	for day := 8; day <= 13; day++ {
		ivs = append(ivs, ResolvedInterval{
			OpensUTC:  helsinkiTime(day, 8, 0).UTC(),
			ClosesUTC: helsinkiTime(day, 18, 0).UTC(),
		})
	}
	return ivs
}

func checkerFor(snap *permission.Snapshot) *permission.Checker {
	if snap.GroupMembers == nil {
		snap.GroupMembers = make(map[string][]string)
	}
	return permission.NewChecker(snap)
}

func userChecker(userID string) *permission.Checker {
	return checkerFor(&permission.Snapshot{User: permission.User{ID: userID}})
}

func adminChecker(userID, unitID string) *permission.Checker {
	return checkerFor(&permission.Snapshot{
		User:      permission.User{ID: userID},
		UnitAuths: []permission.UnitAuthorization{{UserID: userID, UnitID: unitID, Level: permission.RoleAdmin}},
	})
}

func grantChecker(userID, unitID string, perms ...permission.Permission) *permission.Checker {
	snap := &permission.Snapshot{User: permission.User{ID: userID}}
	for _, p := range perms {
		snap.Grants = append(snap.Grants, permission.Grant{UserID: userID, Permission: p, UnitID: unitID})
	}
	return checkerFor(snap)
}

// === Test dependency bundle ===

type testDeps struct {
	txManager  *MockTxManager
	tx         *MockTx
	rsvRepo    *MockReservationRepository
	resRepo    *MockResourceRepository
	unitRepo   *MockUnitRepository
	metaRepo   *MockMetadataRepository
	permRepo   *MockPermissionRepository
	openings   *fakeOpenings
	dispatcher *recordingDispatcher
	service    *ReservationService
}

func newTestDeps() *testDeps {
	deps := &testDeps{
		txManager:  new(MockTxManager),
		tx:         new(MockTx),
		rsvRepo:    new(MockReservationRepository),
		resRepo:    new(MockResourceRepository),
		unitRepo:   new(MockUnitRepository),
		metaRepo:   new(MockMetadataRepository),
		permRepo:   new(MockPermissionRepository),
		openings:   &fakeOpenings{intervals: openAllWeek()},
		dispatcher: &recordingDispatcher{},
	}
	deps.service = NewReservationService(
		deps.txManager, deps.rsvRepo, deps.resRepo, deps.unitRepo,
		deps.metaRepo, deps.permRepo, deps.openings, deps.dispatcher,
		testReservationConfig(), config.FeatureFlags{CommentsEnabled: true})
	deps.service.SetClock(func() time.Time { return testNow })
	return deps
}

// expectResourceLoad は作成系の典型的な読み込みモックを張る
func (d *testDeps) expectResourceLoad(res *resource.Resource, u *unit.Unit) {
	d.resRepo.On("GetByID", mock.Anything, res.ID).Return(res, nil)
	d.unitRepo.On("GetByID", mock.Anything, u.ID).Return(u, nil)
}

// expectTx はトランザクション開始・ロック・コミットのモックを張る
func (d *testDeps) expectTx(resourceID string) {
	d.txManager.On("Begin", mock.Anything).Return(d.tx, nil)
	d.tx.On("Rollback").Return(nil)
	d.tx.On("Commit").Return(nil)
	d.resRepo.On("LockForUpdate", mock.Anything, d.tx, resourceID).Return(nil)
}

func (d *testDeps) expectNoOverlap() {
	d.rsvRepo.On("ListOverlapping", mock.Anything, d.tx, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return([]*reservation.Reservation{}, nil)
}

// === Opening service test bundle ===

type openingTestDeps struct {
	txManager    *MockTxManager
	tx           *MockTx
	periodRepo   *MockPeriodRepository
	intervalRepo *MockIntervalRepository
	resRepo      *MockResourceRepository
	unitRepo     *MockUnitRepository
	cache        *fakeIntervalCache
	service      *OpeningService
}

func newOpeningTestDeps() *openingTestDeps {
	deps := &openingTestDeps{
		txManager:    new(MockTxManager),
		tx:           new(MockTx),
		periodRepo:   new(MockPeriodRepository),
		intervalRepo: new(MockIntervalRepository),
		resRepo:      new(MockResourceRepository),
		unitRepo:     new(MockUnitRepository),
		cache:        newFakeIntervalCache(),
	}
	deps.service = NewOpeningService(
		deps.txManager, deps.periodRepo, deps.intervalRepo,
		deps.resRepo, deps.unitRepo, deps.cache, testReservationConfig())
	deps.service.SetClock(func() time.Time { return testNow })
	return deps
}
