package transform

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/smallbiznis/ledgerbridge/internal/cegid"
	"github.com/smallbiznis/ledgerbridge/internal/config"
	"github.com/smallbiznis/ledgerbridge/internal/holded"
	"github.com/smallbiznis/ledgerbridge/internal/offset"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Request is a transform call scoped to one document counter. CounterKey is
// the account id, so renaming an account keeps its numbering.
type Request struct {
	CounterKey  string
	Invoice     holded.Invoice
	Contact     *holded.Contact
	AccountCode string
	DocType     string
}

// Service numbers entries from the per-account document counter.
type Service struct {
	offsets offset.Store
	loc     *time.Location
	log     *zap.Logger

	// counters serializes counter read-and-advance per key.
	counters sync.Map
}

type Params struct {
	fx.In

	Config  config.Config
	Offsets offset.Store
	Log     *zap.Logger
}

func New(p Params) (*Service, error) {
	loc, err := time.LoadLocation(p.Config.Sync.Timezone)
	if err != nil {
		return nil, err
	}
	return NewService(p.Offsets, loc, p.Log), nil
}

func NewService(offsets offset.Store, loc *time.Location, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{offsets: offsets, loc: loc, log: log.Named("transform")}
}

// Location is the timezone dates are rendered in.
func (s *Service) Location() *time.Location { return s.loc }

// Transform reads the account's document counter, builds the entry with it and
// advances the counter once, whether or not the build succeeded.
func (s *Service) Transform(ctx context.Context, req Request) (*cegid.Entry, error) {
	unlock := s.lockCounter(req.CounterKey)
	defer unlock()

	document := s.offsets.GetDocumentCounter(ctx, req.CounterKey)
	entry, err := Transform(Input{
		Invoice:     req.Invoice,
		Contact:     req.Contact,
		AccountCode: req.AccountCode,
		DocType:     req.DocType,
		Document:    document,
		Location:    s.loc,
	})
	if advErr := s.offsets.AdvanceDocumentCounter(ctx, req.CounterKey); advErr != nil {
		s.log.Error("transform.counter.advance_failed",
			zap.String("counter_key", req.CounterKey),
			zap.Int64("document", document),
			zap.Error(advErr),
		)
		err = errors.Join(err, advErr)
	}
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// Bump moves entry to the next document number and advances the counter.
func (s *Service) Bump(ctx context.Context, counterKey string, entry *cegid.Entry) (int64, error) {
	unlock := s.lockCounter(counterKey)
	defer unlock()

	next := entry.BumpDocument()
	if err := s.offsets.AdvanceDocumentCounter(ctx, counterKey); err != nil {
		return next, err
	}
	return next, nil
}

func (s *Service) lockCounter(key string) func() {
	v, _ := s.counters.LoadOrStore(key, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
