package admin

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/flip-bot/internal/common"
	"serotonyl.ru/flip-bot/internal/features/payments"
	"serotonyl.ru/flip-bot/internal/httpx"
	"serotonyl.ru/flip-bot/internal/ledger"
)

var now = time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)

func clock() time.Time { return now }

type fakeCache struct {
	st          *ledger.Stats
	hits, sets  int
	invalidated int
}

func (f *fakeCache) Get(context.Context) (*ledger.Stats, bool) {
	if f.st == nil {
		return nil, false
	}
	f.hits++
	return f.st, true
}

func (f *fakeCache) Set(_ context.Context, st *ledger.Stats) { f.st = st; f.sets++ }

func (f *fakeCache) Invalidate(context.Context) { f.st = nil; f.invalidated++ }

func setup(t *testing.T, roles ...ledger.Role) (*ledger.MemoryStore, *Service, *fakeCache, []int64) {
	t.Helper()
	store := ledger.NewMemoryStore()
	ids := make([]int64, 0, len(roles))
	err := store.Atomic(context.Background(), func(ctx context.Context, tx ledger.Tx) error {
		for i, r := range roles {
			a := &ledger.Account{
				TelegramID: int64(1000 + i),
				Nickname:   "user" + string(rune('a'+i)),
				Balance:    ledger.StartingBalance,
				Locale:     ledger.LocaleEN,
				Role:       r,
				CreatedAt:  now.Add(time.Duration(i) * time.Minute),
			}
			if err := tx.InsertAccount(ctx, a); err != nil {
				return err
			}
			ids = append(ids, a.ID)
		}
		return nil
	})
	require.NoError(t, err)
	cache := &fakeCache{}
	paySvc := payments.NewService(store, clock, "flipcoin_bot")
	return store, NewService(store, paySvc, cache, clock), cache, ids
}

func TestAllowed(t *testing.T) {
	caps := []Capability{CapManageCatalog, CapManageUsers, CapSetBalance, CapViewStats, CapSeed, CapManagePayments}
	for _, c := range caps {
		assert.True(t, Allowed(ledger.RoleAdmin, c), c)
		assert.False(t, Allowed(ledger.RoleUser, c), c)
		assert.Equal(t, c == CapManageCatalog, Allowed(ledger.RoleTester, c), c)
	}
}

func TestSeed_OnlyIntoEmptyCatalog(t *testing.T) {
	store, svc, _, _ := setup(t)
	ctx := context.Background()

	res, err := svc.Seed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, res.TasksCreated)
	assert.Equal(t, 4, res.RewardsCreated)

	tasks, err := store.ListTasks(ctx, true)
	require.NoError(t, err)
	require.Len(t, tasks, 7)
	assert.Equal(t, ledger.TaskDaily, tasks[0].Kind)
	assert.Equal(t, 5, tasks[0].RequiredCount)
	assert.Nil(t, tasks[4].RequiredGame)

	rewards, err := store.ListRewards(ctx, true)
	require.NoError(t, err)
	require.Len(t, rewards, 4)
	require.NotNil(t, rewards[0].Stock)
	assert.Equal(t, 100, *rewards[0].Stock)

	_, err = svc.Seed(ctx)
	assert.ErrorIs(t, err, ErrAlreadySeeded)
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestSeed_ParallelSeedsOnce(t *testing.T) {
	store, svc, _, _ := setup(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Seed(ctx)
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
		} else {
			assert.ErrorIs(t, err, ErrAlreadySeeded)
		}
	}
	assert.Equal(t, 1, ok)

	n, err := store.CountTasks(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
}

func TestSeed_StoreUnavailableLeavesCatalogEmpty(t *testing.T) {
	store, svc, _, _ := setup(t)
	ctx := context.Background()

	store.SetUnavailable(true)
	_, err := svc.Seed(ctx)
	assert.ErrorIs(t, err, common.ErrStoreUnavailable)

	store.SetUnavailable(false)
	n, err := store.CountTasks(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestUpdateUser(t *testing.T) {
	store, svc, _, ids := setup(t, ledger.RoleAdmin, ledger.RoleUser)
	ctx := context.Background()
	target := ids[1]

	balance, nick, role := int64(7), "renamed", "tester"
	acc, err := svc.UpdateUser(ctx, ledger.RoleAdmin, target, UserUpdate{Balance: &balance, Nickname: &nick, Role: &role})
	require.NoError(t, err)
	assert.Equal(t, int64(7), acc.Balance)
	assert.Equal(t, ledger.RoleTester, acc.Role)

	got, err := store.GetAccount(ctx, target)
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.Balance)
	assert.Equal(t, "renamed", got.Nickname)

	negative := int64(-1)
	_, err = svc.UpdateUser(ctx, ledger.RoleAdmin, target, UserUpdate{Balance: &negative})
	assert.ErrorIs(t, err, common.ErrInvalidInput)

	_, err = svc.UpdateUser(ctx, ledger.RoleTester, target, UserUpdate{Balance: &balance})
	assert.ErrorIs(t, err, common.ErrUnauthorized)

	badRole := "root"
	_, err = svc.UpdateUser(ctx, ledger.RoleAdmin, target, UserUpdate{Role: &badRole})
	assert.ErrorIs(t, err, common.ErrInvalidInput)

	_, err = svc.UpdateUser(ctx, ledger.RoleAdmin, 999, UserUpdate{Nickname: &nick})
	assert.ErrorIs(t, err, common.ErrAccountNotFound)
}

func TestListUsers_RoleFilterNewestFirst(t *testing.T) {
	_, svc, _, ids := setup(t, ledger.RoleUser, ledger.RoleTester, ledger.RoleUser)
	ctx := context.Background()

	users, err := svc.ListUsers(ctx, "user", 0)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, ids[2], users[0].ID)

	_, err = svc.ListUsers(ctx, "nobody", 0)
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestStats_CachedAndInvalidated(t *testing.T) {
	_, svc, cache, _ := setup(t, ledger.RoleAdmin, ledger.RoleUser)
	ctx := context.Background()

	st, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), st.Users.Total)
	assert.Equal(t, int64(200), st.Tokens.TotalInSystem)
	assert.Equal(t, 1, cache.sets)

	_, err = svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.hits)

	_, err = svc.CreateReward(ctx, RewardInput{NameEN: "Hat", Cost: 5})
	require.NoError(t, err)
	assert.Equal(t, 1, cache.invalidated)

	st, err = svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), st.Rewards.Total)
}

func TestTaskAndRewardCRUD(t *testing.T) {
	store, svc, _, _ := setup(t)
	ctx := context.Background()

	_, err := svc.CreateTask(ctx, TaskInput{Kind: "monthly", TitleEN: "x", RewardTokens: 1})
	assert.ErrorIs(t, err, common.ErrInvalidInput)
	_, err = svc.CreateTask(ctx, TaskInput{Kind: "daily", TitleEN: "x", RewardTokens: 0})
	assert.ErrorIs(t, err, common.ErrInvalidInput)

	game := "flip_coin"
	task, err := svc.CreateTask(ctx, TaskInput{Kind: "daily", TitleEN: "Flip", RewardTokens: 5, RequiredGame: &game})
	require.NoError(t, err)
	require.NotNil(t, task.RequiredGame)
	assert.Equal(t, ledger.GameCoin, *task.RequiredGame)
	assert.Equal(t, 1, task.RequiredCount)
	assert.True(t, task.Active)

	inactive := false
	upd, err := svc.UpdateTask(ctx, task.ID, TaskInput{Kind: "weekly", TitleEN: "Flip more", RewardTokens: 9, Active: &inactive})
	require.NoError(t, err)
	assert.Nil(t, upd.RequiredGame)
	active, err := store.ListTasks(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, active)

	_, err = svc.UpdateTask(ctx, 999, TaskInput{Kind: "daily", TitleEN: "x", RewardTokens: 1})
	assert.ErrorIs(t, err, common.ErrTaskNotFound)
	require.NoError(t, svc.DeleteTask(ctx, task.ID))
	assert.ErrorIs(t, svc.DeleteTask(ctx, task.ID), common.ErrTaskNotFound)

	negative := -1
	_, err = svc.CreateReward(ctx, RewardInput{NameEN: "Hat", Cost: 5, Stock: &negative})
	assert.ErrorIs(t, err, common.ErrInvalidInput)
	_, err = svc.CreateReward(ctx, RewardInput{NameEN: "Hat", Cost: 0})
	assert.ErrorIs(t, err, common.ErrInvalidInput)

	stock := 3
	r, err := svc.CreateReward(ctx, RewardInput{NameEN: "Hat", Cost: 5, Stock: &stock})
	require.NoError(t, err)
	list, err := svc.ListRewards(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.NoError(t, svc.DeleteReward(ctx, r.ID))
	assert.ErrorIs(t, svc.DeleteReward(ctx, r.ID), common.ErrRewardNotFound)
}

func TestPayments_ListWithNicknamesAndManualStatus(t *testing.T) {
	store, svc, _, ids := setup(t, ledger.RoleUser, ledger.RoleUser)
	ctx := context.Background()

	created, err := svc.payments.Create(ctx, ids[0], "small")
	require.NoError(t, err)

	list, err := svc.ListPayments(ctx, "pending", 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "usera", list[0].UserNickname)

	_, err = svc.payments.Create(ctx, ids[1], "large")
	require.NoError(t, err)
	_, err = svc.payments.Create(ctx, ids[0], "medium")
	require.NoError(t, err)
	all, err := svc.ListPayments(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	for _, p := range all {
		want := map[int64]string{ids[0]: "usera", ids[1]: "userb"}[p.AccountID]
		assert.Equal(t, want, p.UserNickname)
	}

	_, err = svc.ListPayments(ctx, "lost", 0)
	assert.ErrorIs(t, err, common.ErrInvalidInput)

	res, err := svc.SetPaymentStatus(ctx, created.Payment.ID, "completed")
	require.NoError(t, err)
	assert.True(t, res.Applied)
	acc, err := store.GetAccount(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, int64(200), acc.Balance)
}

func TestHandler_RequiresCurrentRole(t *testing.T) {
	gin.SetMode(gin.TestMode)
	_, svc, _, ids := setup(t, ledger.RoleAdmin, ledger.RoleTester, ledger.RoleUser)

	r := gin.New()
	var actor int64
	g := r.Group("/api/admin", func(c *gin.Context) {
		// в токене всегда admin: решает роль из хранилища
		httpx.SetIdentity(c, actor, ledger.RoleAdmin)
	})
	NewHandler(svc).Register(g)

	do := func(method, path, body string) int {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)
		return w.Code
	}

	actor = ids[0]
	assert.Equal(t, http.StatusOK, do(http.MethodGet, "/api/admin/stats", ""))

	actor = ids[1]
	assert.Equal(t, http.StatusForbidden, do(http.MethodGet, "/api/admin/stats", ""))
	assert.Equal(t, http.StatusCreated, do(http.MethodPost, "/api/admin/rewards", `{"name_en":"Hat","cost":5}`))
	assert.Equal(t, http.StatusForbidden, do(http.MethodPut, "/api/admin/users/3", `{"flip_tokens":1000}`))

	actor = ids[2]
	assert.Equal(t, http.StatusForbidden, do(http.MethodGet, "/api/admin/tasks", ""))
}
