package pipeline

import (
	"context"
	"sync"
	"testing"

	accountdomain "github.com/smallbiznis/ledgerbridge/internal/account/domain"
	"github.com/smallbiznis/ledgerbridge/internal/cegid"
	"github.com/smallbiznis/ledgerbridge/internal/holded"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticAccounts struct {
	accountdomain.Service
	accounts []accountdomain.Account
}

func (s staticAccounts) List(context.Context) ([]accountdomain.Account, error) {
	return s.accounts, nil
}

func (s staticAccounts) Get(_ context.Context, id string) (accountdomain.Account, error) {
	for _, a := range s.accounts {
		if a.ID == id {
			return a, nil
		}
	}
	return accountdomain.Account{}, accountdomain.ErrNotFound
}

type fakeLocker struct {
	mu       sync.Mutex
	held     map[string]bool
	released []string
}

func (l *fakeLocker) TryLockAccount(_ context.Context, account string) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[account] {
		return "", false, nil
	}
	if l.held == nil {
		l.held = map[string]bool{}
	}
	l.held[account] = true
	return "token-" + account, true, nil
}

func (l *fakeLocker) ReleaseAccount(_ context.Context, account, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, account)
	l.released = append(l.released, token)
	return nil
}

type runnerFixture struct {
	*driverFixture
	sources map[string]*fakeSource
	targets map[string]*fakeTarget
	runner  *Runner
	locker  *fakeLocker
}

func newRunnerFixture(t *testing.T, accounts ...accountdomain.Account) *runnerFixture {
	t.Helper()
	f := &runnerFixture{
		driverFixture: newDriverFixture(t, DefaultDriverConfig(), nil),
		sources:       map[string]*fakeSource{},
		targets:       map[string]*fakeTarget{},
		locker:        &fakeLocker{},
	}
	for _, a := range accounts {
		f.sources[a.ID] = newFakeSource(2)
		f.targets[a.ID] = &fakeTarget{}
	}
	f.runner = NewRunnerWith(
		f.driver,
		staticAccounts{accounts: accounts},
		func(a accountdomain.Account) Source { return f.sources[a.ID] },
		func(a accountdomain.Account) Target { return f.targets[a.ID] },
		f.locker,
		nil,
	)
	return f
}

func testAccount(id, name string, docTypes ...string) accountdomain.Account {
	return accountdomain.Account{ID: id, Name: name, CegidCompanyCode: "E-" + id, Mode: accountdomain.ModeNewSystem, DocTypes: docTypes}
}

func TestProcessAllAccountsIsolatesFailures(t *testing.T) {
	good := testAccount("acc-1", "Hermanos Pastor", holded.DocTypeInvoice, holded.DocTypePurchase)
	bad := testAccount("acc-2", "Semillando Sotillo", holded.DocTypeInvoice)
	f := newRunnerFixture(t, good, bad)
	f.targets[bad.ID].authErr = cegid.ErrAuthFailed

	results, err := f.runner.ProcessAllAccounts(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, cegid.ErrAuthFailed)
	assert.Contains(t, err.Error(), "Semillando Sotillo")

	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, good.ID, r.AccountID)
		assert.Equal(t, 2, r.Submitted)
	}
	assert.Equal(t, 1, f.targets[good.ID].authCalls)
	assert.Len(t, f.targets[good.ID].submissions, 4)
	assert.Empty(t, f.targets[bad.ID].submissions)
	assert.Equal(t, int64(4), f.offsets.GetDocumentCounter(context.Background(), good.ID))
	assert.ElementsMatch(t, []string{"token-acc-1", "token-acc-2"}, f.locker.released)
}

func TestProcessAccountSkipsBusyAccount(t *testing.T) {
	account := testAccount("acc-1", "Hermanos Pastor", holded.DocTypeInvoice)
	f := newRunnerFixture(t, account)
	f.locker.held = map[string]bool{account.ID: true}

	results, err := f.runner.ProcessAccount(context.Background(), account)
	assert.ErrorIs(t, err, ErrAccountBusy)
	assert.Empty(t, results)
	assert.Zero(t, f.targets[account.ID].authCalls)
}

func TestProcessAccountByID(t *testing.T) {
	account := testAccount("acc-1", "Hermanos Pastor", holded.DocTypeInvoice)
	f := newRunnerFixture(t, account)

	results, err := f.runner.ProcessAccountByID(context.Background(), account.ID)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 2, results[0].Processed)

	_, err = f.runner.ProcessAccountByID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestProcessAccountJoinsDocTypeErrors(t *testing.T) {
	account := testAccount("acc-1", "Hermanos Pastor", holded.DocTypeInvoice, holded.DocTypeEstimate)
	f := newRunnerFixture(t, account)
	f.sources[account.ID].listErr = &holded.StatusError{StatusCode: 503, Path: "/documents"}

	results, err := f.runner.ProcessAccount(context.Background(), account)
	assert.ErrorIs(t, err, ErrListDocuments)
	require.Len(t, results, 2)
	assert.Equal(t, holded.DocTypeInvoice, results[0].DocType)
	assert.Equal(t, holded.DocTypeEstimate, results[1].DocType)
}
