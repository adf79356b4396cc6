package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/smallbiznis/ledgerbridge/internal/account/domain"
	"github.com/smallbiznis/ledgerbridge/internal/clock"
	"github.com/smallbiznis/ledgerbridge/internal/offset"
	"github.com/smallbiznis/ledgerbridge/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Clock   clock.Clock
	Repo    domain.Repository
	Offsets offset.Store
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	clock    clock.Clock
	repo     domain.Repository
	offsets  offset.Store
	validate *validator.Validate
}

func New(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("account.service"),
		clock:    p.Clock,
		repo:     p.Repo,
		offsets:  p.Offsets,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateAccountRequest) (domain.Account, error) {
	req = normalize(req)
	if err := s.validate.StructCtx(ctx, req); err != nil {
		return domain.Account{}, fmt.Errorf("%w: %w", domain.ErrInvalidRequest, err)
	}

	existing, err := s.repo.FindByName(ctx, s.db, req.Name)
	if err != nil {
		return domain.Account{}, err
	}
	if existing != nil {
		return domain.Account{}, domain.ErrNameTaken
	}

	now := s.clock.Now()
	account := domain.Account{
		ID:               uuid.NewString(),
		Name:             req.Name,
		HoldedAPIKey:     req.HoldedAPIKey,
		CegidCompanyCode: req.CegidCompanyCode,
		Mode:             req.Mode,
		DocTypes:         datatypes.JSONSlice[string](req.DocTypes),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.repo.Insert(ctx, s.db, &account); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.Account{}, domain.ErrNameTaken
		}
		return domain.Account{}, err
	}

	if err := s.applyOffsets(ctx, account, req.DocumentCounter, req.Cursors); err != nil {
		return domain.Account{}, err
	}

	s.log.Info("account created",
		zap.String("account_id", account.ID),
		zap.String("mode", string(account.Mode)),
		zap.Strings("doc_types", account.DocTypes),
	)
	return account, nil
}

func (s *Service) Update(ctx context.Context, req domain.UpdateAccountRequest) (domain.Account, error) {
	req.ID = strings.TrimSpace(req.ID)
	req.CreateAccountRequest = normalize(req.CreateAccountRequest)
	if err := s.validate.StructCtx(ctx, req); err != nil {
		return domain.Account{}, fmt.Errorf("%w: %w", domain.ErrInvalidRequest, err)
	}

	account, err := s.find(ctx, req.ID)
	if err != nil {
		return domain.Account{}, err
	}

	if req.Name != account.Name {
		other, err := s.repo.FindByName(ctx, s.db, req.Name)
		if err != nil {
			return domain.Account{}, err
		}
		if other != nil && other.ID != account.ID {
			return domain.Account{}, domain.ErrNameTaken
		}
	}

	account.Name = req.Name
	account.HoldedAPIKey = req.HoldedAPIKey
	account.CegidCompanyCode = req.CegidCompanyCode
	account.Mode = req.Mode
	account.DocTypes = datatypes.JSONSlice[string](req.DocTypes)
	account.UpdatedAt = s.clock.Now()

	if err := s.repo.Update(ctx, s.db, &account); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.Account{}, domain.ErrNameTaken
		}
		return domain.Account{}, err
	}
	if err := s.applyOffsets(ctx, account, req.DocumentCounter, req.Cursors); err != nil {
		return domain.Account{}, err
	}
	return account, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.ErrInvalidID
	}
	deleted, err := s.repo.Delete(ctx, s.db, id)
	if err != nil {
		return err
	}
	if !deleted {
		return domain.ErrNotFound
	}
	s.log.Info("account deleted", zap.String("account_id", id))
	return nil
}

// Duplicate copies an account under a new id, carrying its cursors and
// seeding its own document counter from the source's.
func (s *Service) Duplicate(ctx context.Context, id string) (domain.Account, error) {
	source, err := s.find(ctx, id)
	if err != nil {
		return domain.Account{}, err
	}

	cursors := make(map[string]int64, len(source.DocTypes))
	for _, docType := range source.DocTypes {
		cursors[docType] = s.offsets.GetCursor(ctx, source.ID, docType)
	}

	return s.Create(ctx, domain.CreateAccountRequest{
		Name:             source.Name + domain.DuplicateSuffix,
		HoldedAPIKey:     source.HoldedAPIKey,
		CegidCompanyCode: source.CegidCompanyCode,
		Mode:             source.Mode,
		DocTypes:         append([]string(nil), source.DocTypes...),
		DocumentCounter:  s.offsets.GetDocumentCounter(ctx, source.ID),
		Cursors:          cursors,
	})
}

func (s *Service) Get(ctx context.Context, id string) (domain.Account, error) {
	return s.find(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]domain.Account, error) {
	items, err := s.repo.List(ctx, s.db)
	if err != nil {
		return nil, err
	}
	accounts := make([]domain.Account, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		accounts = append(accounts, *item)
	}
	return accounts, nil
}

func (s *Service) Cursors(ctx context.Context, id string) (map[string]int64, error) {
	account, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(account.DocTypes))
	for _, docType := range account.DocTypes {
		out[docType] = s.offsets.GetCursor(ctx, account.ID, docType)
	}
	return out, nil
}

func (s *Service) Import(ctx context.Context, reqs []domain.CreateAccountRequest) (int, error) {
	created := 0
	for i, req := range reqs {
		req = normalize(req)
		existing, err := s.repo.FindByName(ctx, s.db, req.Name)
		if err != nil {
			return created, err
		}
		if existing == nil {
			if _, err := s.Create(ctx, req); err != nil {
				return created, fmt.Errorf("account %d (%s): %w", i, req.Name, err)
			}
			created++
			continue
		}
		if _, err := s.Update(ctx, domain.UpdateAccountRequest{ID: existing.ID, CreateAccountRequest: req}); err != nil {
			return created, fmt.Errorf("account %d (%s): %w", i, req.Name, err)
		}
	}
	return created, nil
}

func (s *Service) find(ctx context.Context, id string) (domain.Account, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Account{}, domain.ErrInvalidID
	}
	account, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Account{}, err
	}
	if account == nil {
		return domain.Account{}, domain.ErrNotFound
	}
	return *account, nil
}

// applyOffsets seeds the account's document counter and overwrites the given cursors.
// An existing counter is never lowered by a seed.
func (s *Service) applyOffsets(ctx context.Context, account domain.Account, counter int64, cursors map[string]int64) error {
	if err := s.offsets.SeedDocumentCounter(ctx, account.ID, counter); err != nil {
		return fmt.Errorf("seed document counter: %w", err)
	}
	for docType, value := range cursors {
		if err := s.offsets.SetCursor(ctx, account.ID, docType, value); err != nil {
			return fmt.Errorf("set cursor %s: %w", docType, err)
		}
	}
	return nil
}

func normalize(req domain.CreateAccountRequest) domain.CreateAccountRequest {
	req.Name = strings.TrimSpace(req.Name)
	req.HoldedAPIKey = strings.TrimSpace(req.HoldedAPIKey)
	req.CegidCompanyCode = strings.TrimSpace(req.CegidCompanyCode)
	req.Mode = domain.Mode(strings.ToLower(strings.TrimSpace(string(req.Mode))))
	if req.Mode == "" {
		req.Mode = domain.ModeNewSystem
	}
	docTypes := make([]string, 0, len(req.DocTypes))
	for _, dt := range req.DocTypes {
		dt = strings.ToLower(strings.TrimSpace(dt))
		if dt != "" {
			docTypes = append(docTypes, dt)
		}
	}
	req.DocTypes = docTypes
	return req
}
