package runlog

import (
	"context"
	"encoding/json"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Recorder persists document runs. A failed write is logged and returned but
// never changes the outcome of the document it describes.
type Recorder struct {
	db    *gorm.DB
	repo  Repository
	genID *snowflake.Node
	log   *zap.Logger
}

type Params struct {
	fx.In

	DB    *gorm.DB
	Repo  Repository
	GenID *snowflake.Node
	Log   *zap.Logger
}

func NewRecorder(p Params) *Recorder {
	return &Recorder{
		db:    p.DB,
		repo:  p.Repo,
		genID: p.GenID,
		log:   p.Log.Named("runlog"),
	}
}

func (r *Recorder) Record(ctx context.Context, run *DocumentRun, metadata map[string]any) error {
	if run.ID == 0 {
		run.ID = r.genID.Generate()
	}
	if len(metadata) > 0 {
		raw, err := json.Marshal(metadata)
		if err == nil {
			run.Metadata = datatypes.JSON(raw)
		}
	}
	if err := r.repo.Insert(ctx, r.db, run); err != nil {
		r.log.Warn("runlog.insert_failed",
			zap.String("account_id", run.AccountID),
			zap.String("source_id", run.SourceID),
			zap.Error(err),
		)
		return err
	}
	return nil
}

func (r *Recorder) List(ctx context.Context, accountID string, filter ListFilter) ([]DocumentRun, error) {
	return r.repo.List(ctx, r.db, accountID, filter)
}

func (r *Recorder) CountByState(ctx context.Context, accountID string) (map[string]int64, error) {
	return r.repo.CountByState(ctx, r.db, accountID)
}
