package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/go-playground/validator/v10"
	"github.com/smallbiznis/ledgerbridge/internal/account/domain"
	"github.com/smallbiznis/ledgerbridge/internal/account/repository"
	"github.com/smallbiznis/ledgerbridge/internal/clock"
	"github.com/smallbiznis/ledgerbridge/internal/offset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (domain.Service, *offset.MemoryStore) {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&domain.Account{}))

	offsets := offset.NewMemoryStore()
	svc := New(Params{
		DB:      conn,
		Log:     zap.NewNop(),
		Clock:   clock.NewFakeClock(time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)),
		Repo:    repository.Provide(),
		Offsets: offsets,
	})
	return svc, offsets
}

func validRequest() domain.CreateAccountRequest {
	return domain.CreateAccountRequest{
		Name:             "Frutas Garcia SL",
		HoldedAPIKey:     "hk_123",
		CegidCompanyCode: "E001",
		Mode:             domain.ModeLegacy,
		DocTypes:         []string{"invoice", "purchase"},
		DocumentCounter:  120,
		Cursors:          map[string]int64{"invoice": 9},
	}
}

func TestCreateSeedsOffsets(t *testing.T) {
	svc, offsets := newTestService(t)
	ctx := context.Background()

	acc, err := svc.Create(ctx, validRequest())
	require.NoError(t, err)
	assert.NotEmpty(t, acc.ID)
	assert.Equal(t, []string{"invoice", "purchase"}, []string(acc.DocTypes))

	assert.Equal(t, int64(120), offsets.GetDocumentCounter(ctx, acc.ID))
	assert.Equal(t, int64(9), offsets.GetCursor(ctx, acc.ID, "invoice"))

	cursors, err := svc.Cursors(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"invoice": 9, "purchase": offset.InitialCursor}, cursors)
}

func TestCreateValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	cases := map[string]func(*domain.CreateAccountRequest){
		"missing name":     func(r *domain.CreateAccountRequest) { r.Name = " " },
		"missing key":      func(r *domain.CreateAccountRequest) { r.HoldedAPIKey = "" },
		"bad mode":         func(r *domain.CreateAccountRequest) { r.Mode = "hybrid" },
		"no doc types":     func(r *domain.CreateAccountRequest) { r.DocTypes = nil },
		"bad doc type":     func(r *domain.CreateAccountRequest) { r.DocTypes = []string{"receipt"} },
		"negative cursor":  func(r *domain.CreateAccountRequest) { r.Cursors = map[string]int64{"invoice": -1} },
		"negative counter": func(r *domain.CreateAccountRequest) { r.DocumentCounter = -3 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := validRequest()
			mutate(&req)
			_, err := svc.Create(ctx, req)
			require.ErrorIs(t, err, domain.ErrInvalidRequest)
			var verrs validator.ValidationErrors
			assert.True(t, errors.As(err, &verrs))
		})
	}
}

func TestCreateRejectsDuplicateName(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, validRequest())
	require.NoError(t, err)
	_, err = svc.Create(ctx, validRequest())
	assert.ErrorIs(t, err, domain.ErrNameTaken)
}

func TestDuplicateCopiesCursors(t *testing.T) {
	svc, offsets := newTestService(t)
	ctx := context.Background()

	acc, err := svc.Create(ctx, validRequest())
	require.NoError(t, err)
	require.NoError(t, offsets.AdvanceCursor(ctx, acc.ID, "purchase"))

	dup, err := svc.Duplicate(ctx, acc.ID)
	require.NoError(t, err)
	assert.NotEqual(t, acc.ID, dup.ID)
	assert.Equal(t, "Frutas Garcia SL (copia)", dup.Name)
	assert.Equal(t, acc.HoldedAPIKey, dup.HoldedAPIKey)
	assert.Equal(t, int64(9), offsets.GetCursor(ctx, dup.ID, "invoice"))
	assert.Equal(t, int64(2), offsets.GetCursor(ctx, dup.ID, "purchase"))
	assert.Equal(t, int64(120), offsets.GetDocumentCounter(ctx, dup.ID))

	require.NoError(t, offsets.AdvanceDocumentCounter(ctx, dup.ID))
	assert.Equal(t, int64(120), offsets.GetDocumentCounter(ctx, acc.ID))
}

func TestRenameKeepsDocumentCounter(t *testing.T) {
	svc, offsets := newTestService(t)
	ctx := context.Background()

	acc, err := svc.Create(ctx, validRequest())
	require.NoError(t, err)
	for range 3 {
		require.NoError(t, offsets.AdvanceDocumentCounter(ctx, acc.ID))
	}

	req := validRequest()
	req.Name = "Frutas Garcia e Hijos SL"
	req.DocumentCounter = 0
	renamed, err := svc.Update(ctx, domain.UpdateAccountRequest{ID: acc.ID, CreateAccountRequest: req})
	require.NoError(t, err)
	assert.Equal(t, acc.ID, renamed.ID)
	assert.Equal(t, "Frutas Garcia e Hijos SL", renamed.Name)
	assert.Equal(t, int64(123), offsets.GetDocumentCounter(ctx, renamed.ID))

	// the old name is free and a new account under it starts its own counter
	req.Name = "Frutas Garcia SL"
	other, err := svc.Create(ctx, req)
	require.NoError(t, err)
	assert.Zero(t, offsets.GetDocumentCounter(ctx, other.ID))
}

func TestUpdateAndDelete(t *testing.T) {
	svc, offsets := newTestService(t)
	ctx := context.Background()

	acc, err := svc.Create(ctx, validRequest())
	require.NoError(t, err)

	req := validRequest()
	req.Mode = domain.ModeNewSystem
	req.DocTypes = []string{"estimate"}
	req.Cursors = map[string]int64{"estimate": 4}
	updated, err := svc.Update(ctx, domain.UpdateAccountRequest{ID: acc.ID, CreateAccountRequest: req})
	require.NoError(t, err)
	assert.Equal(t, domain.ModeNewSystem, updated.Mode)
	assert.Equal(t, int64(4), offsets.GetCursor(ctx, acc.ID, "estimate"))

	got, err := svc.Get(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"estimate"}, []string(got.DocTypes))

	require.NoError(t, svc.Delete(ctx, acc.ID))
	assert.ErrorIs(t, svc.Delete(ctx, acc.ID), domain.ErrNotFound)
	_, err = svc.Get(ctx, acc.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestImportUpsertsByName(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	first := validRequest()
	second := validRequest()
	second.Name = "Bodega Norte SA"

	created, err := svc.Import(ctx, []domain.CreateAccountRequest{first, second})
	require.NoError(t, err)
	assert.Equal(t, 2, created)

	first.CegidCompanyCode = "E999"
	created, err = svc.Import(ctx, []domain.CreateAccountRequest{first})
	require.NoError(t, err)
	assert.Equal(t, 0, created)

	accounts, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, "Bodega Norte SA", accounts[0].Name)
	assert.Equal(t, "E999", accounts[1].CegidCompanyCode)
}

func TestUsesLegacyEndpoint(t *testing.T) {
	acc := domain.Account{Mode: domain.ModeLegacy}
	assert.True(t, acc.UsesLegacyEndpoint(domain.DocTypeInvoice))
	assert.True(t, acc.UsesLegacyEndpoint(domain.DocTypeEstimate))
	assert.False(t, acc.UsesLegacyEndpoint(domain.DocTypePurchase))

	acc.Mode = domain.ModeNewSystem
	assert.False(t, acc.UsesLegacyEndpoint(domain.DocTypeInvoice))
}
