package repository_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"requisition-backend/internal/cache"
	"requisition-backend/internal/config"
	"requisition-backend/internal/database"
	"requisition-backend/internal/events"
	"requisition-backend/internal/ledger"
	"requisition-backend/internal/logger"
	"requisition-backend/internal/model"
	"requisition-backend/internal/repository"
	"requisition-backend/internal/service"
	"requisition-backend/internal/workflow"
	"requisition-backend/pkg/apperror"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// startPostgres runs a throwaway PostgreSQL and returns a migrated connection.
// Tests are skipped with -short or when no container runtime is available.
func startPostgres(t *testing.T) *gorm.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("integration test")
	}
	logger.Set(zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("requisition"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := database.Open(dsn, config.DatabaseConfig{MaxOpenConns: 10, MaxIdleConns: 2, SlowQuery: time.Second})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	return db
}

type catalogFixture struct {
	store    model.Store
	material model.Material
}

func seedCatalog(t *testing.T, db *gorm.DB) catalogFixture {
	t.Helper()
	ctx := context.Background()
	sites := repository.NewSiteRepository(db)
	materials := repository.NewMaterialRepository(db)

	site := model.Site{Code: "S-" + uuid.NewString()[:8], Name: "North yard"}
	require.NoError(t, sites.CreateSite(ctx, &site))
	store := model.Store{SiteID: site.ID, Code: "ST-" + uuid.NewString()[:8], Name: "Main store"}
	require.NoError(t, sites.CreateStore(ctx, &store))

	category := model.Category{Name: "Cement " + uuid.NewString()[:8]}
	require.NoError(t, materials.CreateCategory(ctx, &category))
	unit := model.Unit{Code: "bag-" + uuid.NewString()[:6], Name: "Bag"}
	require.NoError(t, materials.CreateUnit(ctx, &unit))

	material := model.Material{
		Code:         "M-" + uuid.NewString()[:8],
		Name:         "Portland cement",
		CategoryID:   category.ID,
		UnitID:       unit.ID,
		ReorderLevel: decimal.NewFromInt(5),
	}
	require.NoError(t, materials.Create(ctx, &material))
	return catalogFixture{store: store, material: material}
}

func TestPostgresRepositories(t *testing.T) {
	db := startPostgres(t)
	fx := seedCatalog(t, db)

	txm := repository.NewTransactionManager(db, 3)
	stocks := repository.NewStockRepository(db)
	numbers := repository.NewNumberGenerator(db)
	svc := newServices(db, txm)

	t.Run("movements keep the balance equal to the ledger", func(t *testing.T) {
		ctx := context.Background()
		post := func(in service.MovementInput) {
			in.StoreID, in.MaterialID = fx.store.ID, fx.material.ID
			_, err := svc.stock.RecordMovement(ctx, in)
			require.NoError(t, err)
		}

		post(service.MovementInput{Type: ledger.MovementIn, Source: ledger.GRNRef{ID: uuid.New()}, Qty: decimal.NewFromInt(10)})
		post(service.MovementInput{Type: ledger.MovementOut, Source: ledger.IssueRef{ID: uuid.New()}, Qty: decimal.RequireFromString("3.5")})
		post(service.MovementInput{Type: ledger.MovementAdjustment, Direction: ledger.DirectionDecrease, Source: ledger.AdjustmentRef{ID: uuid.New()}, Qty: decimal.NewFromInt(1)})

		stock, err := stocks.Find(ctx, fx.store.ID, fx.material.ID)
		require.NoError(t, err)
		assert.True(t, stock.QtyOnHand.Equal(decimal.RequireFromString("5.5")), "got %s", stock.QtyOnHand)

		sums, err := stocks.LedgerSums(ctx, &fx.store.ID)
		require.NoError(t, err)
		require.Len(t, sums, 1)
		assert.True(t, sums[0].LedgerSum.Equal(sums[0].QtyOnHand))

		low, err := stocks.CountLow(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 0, low)

		movements, total, err := stocks.ListMovements(ctx, repository.MovementFilter{StoreID: &fx.store.ID}, 1, 10)
		require.NoError(t, err)
		assert.EqualValues(t, 3, total)
		assert.Len(t, movements, 3)
	})

	t.Run("document numbers are sequential per day", func(t *testing.T) {
		ctx := context.Background()
		var first, second string
		err := txm.RunInTx(ctx, func(txCtx context.Context) error {
			var err error
			first, err = numbers.Next(txCtx, repository.PrefixAdjustment)
			if err != nil {
				return err
			}
			adj := &model.StockAdjustment{
				Number:     first,
				StoreID:    fx.store.ID,
				MaterialID: fx.material.ID,
				Direction:  ledger.DirectionIncrease,
				Qty:        decimal.NewFromInt(1),
				Reason:     "count",
			}
			if err := stocks.CreateAdjustment(txCtx, adj); err != nil {
				return err
			}
			second, err = numbers.Next(txCtx, repository.PrefixAdjustment)
			return err
		})
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(first, "ADJ-"+time.Now().Format("20060102")+"-"))
		assert.NotEqual(t, first, second)
		assert.Greater(t, second, first)
	})

	t.Run("unique violations surface as conflicts", func(t *testing.T) {
		ctx := context.Background()
		sites := repository.NewSiteRepository(db)
		dup := model.Store{SiteID: fx.store.SiteID, Code: fx.store.Code, Name: "Copy"}
		err := sites.CreateStore(ctx, &dup)
		require.Error(t, err)
		assert.True(t, apperror.KindOf(err) == apperror.KindConflict, "got %v", err)
	})

	t.Run("unknown rows are not found", func(t *testing.T) {
		_, err := stocks.Find(context.Background(), fx.store.ID, uuid.New())
		assert.True(t, apperror.KindOf(err) == apperror.KindNotFound, "got %v", err)
	})
}

type services struct {
	stock    service.StockService
	requests service.RequestService
	roles    service.RoleService
}

func newServices(db *gorm.DB, txm repository.TransactionManager) services {
	stocks := repository.NewStockRepository(db)
	sites := repository.NewSiteRepository(db)
	materials := repository.NewMaterialRepository(db)
	audits := repository.NewAuditRepository(db)
	users := repository.NewUserRepository(db)
	numbers := repository.NewNumberGenerator(db)
	policy := ledger.Policy{}

	return services{
		stock: service.NewStockService(stocks, sites, materials, audits, numbers, txm, policy, events.Nop{}),
		requests: service.NewRequestService(repository.NewRequestRepository(db), repository.NewIssueRepository(db),
			users, sites, materials, stocks, audits, numbers, txm, policy, events.Nop{}),
		roles: service.NewRoleService(repository.NewRoleRepository(db), users, txm, cache.NewMemoryPermissionCache(time.Minute)),
	}
}

// seedUser creates an active user holding one of the default roles.
func seedUser(t *testing.T, db *gorm.DB, roleName string) model.User {
	t.Helper()
	ctx := context.Background()
	role, err := repository.NewRoleRepository(db).FindByName(ctx, roleName)
	require.NoError(t, err)

	name := roleName + "-" + uuid.NewString()[:8]
	u := model.User{Username: name, Email: name + "@site.test", Password: "x", RoleID: role.ID, IsActive: true}
	require.NoError(t, repository.NewUserRepository(db).Create(ctx, &u))
	return u
}

func outcomes(errs []error, kind apperror.Kind) (succeeded, refused int) {
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case apperror.KindOf(err) == kind:
			refused++
		}
	}
	return succeeded, refused
}

func TestPostgresConcurrentWriters(t *testing.T) {
	db := startPostgres(t)
	txm := repository.NewTransactionManager(db, 3)
	svc := newServices(db, txm)
	stocks := repository.NewStockRepository(db)
	require.NoError(t, svc.roles.SeedDefaultRolesAndPermissions(context.Background()))

	balanced := func(t *testing.T, storeID uuid.UUID) {
		t.Helper()
		sums, err := stocks.LedgerSums(context.Background(), &storeID)
		require.NoError(t, err)
		for _, s := range sums {
			assert.True(t, s.LedgerSum.Equal(s.QtyOnHand), "ledger %s vs on hand %s", s.LedgerSum, s.QtyOnHand)
		}
	}

	t.Run("two OUT movements cannot overdraw the balance", func(t *testing.T) {
		ctx := context.Background()
		fx := seedCatalog(t, db)
		_, err := svc.stock.RecordMovement(ctx, service.MovementInput{
			StoreID: fx.store.ID, MaterialID: fx.material.ID,
			Type: ledger.MovementIn, Source: ledger.GRNRef{ID: uuid.New()}, Qty: decimal.NewFromInt(10),
		})
		require.NoError(t, err)

		var wg sync.WaitGroup
		errs := make([]error, 2)
		for i := range errs {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = svc.stock.RecordMovement(ctx, service.MovementInput{
					StoreID: fx.store.ID, MaterialID: fx.material.ID,
					Type: ledger.MovementOut, Source: ledger.IssueRef{ID: uuid.New()}, Qty: decimal.NewFromInt(6),
				})
			}(i)
		}
		wg.Wait()

		succeeded, refused := outcomes(errs, apperror.KindInsufficientStock)
		assert.Equal(t, 1, succeeded, "errors: %v", errs)
		assert.Equal(t, 1, refused, "errors: %v", errs)

		stock, err := stocks.Find(ctx, fx.store.ID, fx.material.ID)
		require.NoError(t, err)
		assert.True(t, stock.QtyOnHand.Equal(decimal.NewFromInt(4)), "got %s", stock.QtyOnHand)
		balanced(t, fx.store.ID)
	})

	t.Run("two issues cannot exceed the approved quantity", func(t *testing.T) {
		ctx := context.Background()
		fx := seedCatalog(t, db)
		requester := seedUser(t, db, model.RoleRequester)
		dse := seedUser(t, db, model.RoleDSE)
		padiri := seedUser(t, db, model.RolePadiri)
		keeper := seedUser(t, db, model.RoleStorekeeper)

		_, err := svc.stock.RecordMovement(ctx, service.MovementInput{
			StoreID: fx.store.ID, MaterialID: fx.material.ID,
			Type: ledger.MovementIn, Source: ledger.GRNRef{ID: uuid.New()}, Qty: decimal.NewFromInt(50),
		})
		require.NoError(t, err)

		req, err := svc.requests.Create(ctx, requester.ID, service.CreateRequestRequest{
			SiteID:  fx.store.SiteID.String(),
			StoreID: fx.store.ID.String(),
			Purpose: "footings",
			Items:   []service.RequestItemInput{{MaterialID: fx.material.ID.String(), Qty: decimal.NewFromInt(10)}},
		})
		require.NoError(t, err)
		_, err = svc.requests.Submit(ctx, requester.ID, req.ID)
		require.NoError(t, err)
		_, err = svc.requests.Review(ctx, dse.ID, req.ID, service.ReviewRequest{
			Level: string(workflow.LevelDSE), Action: string(workflow.ActionApproved),
		})
		require.NoError(t, err)
		approved, err := svc.requests.Review(ctx, padiri.ID, req.ID, service.ReviewRequest{
			Level: string(workflow.LevelPadiri), Action: string(workflow.ActionApproved),
		})
		require.NoError(t, err)
		require.Equal(t, workflow.StatusApproved, approved.Status)
		itemID := req.Items[0].ID

		var wg sync.WaitGroup
		errs := make([]error, 2)
		for i := range errs {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = svc.requests.IssueAgainstItem(ctx, keeper.ID, itemID, service.IssueItemRequest{Qty: decimal.NewFromInt(6)})
			}(i)
		}
		wg.Wait()

		succeeded, refused := outcomes(errs, apperror.KindOverIssue)
		assert.Equal(t, 1, succeeded, "errors: %v", errs)
		assert.Equal(t, 1, refused, "errors: %v", errs)

		detail, err := svc.requests.Get(ctx, req.ID)
		require.NoError(t, err)
		assert.Equal(t, workflow.StatusPartiallyIssued, detail.Status)
		assert.True(t, detail.Items[0].QtyIssued.Equal(decimal.NewFromInt(6)))
		assert.True(t, detail.Items[0].QtyRemaining.Equal(decimal.NewFromInt(4)))

		stock, err := stocks.Find(ctx, fx.store.ID, fx.material.ID)
		require.NoError(t, err)
		assert.True(t, stock.QtyOnHand.Equal(decimal.NewFromInt(44)), "got %s", stock.QtyOnHand)
		balanced(t, fx.store.ID)
	})
}
