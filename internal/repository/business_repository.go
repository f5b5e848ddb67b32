package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tigerroll/loancob/internal/domain/entity"
	gormadapter "github.com/tigerroll/loancob/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/loancob/pkg/batch/support/util/exception"
)

// BusinessStepRepository stores the configured business steps per job type.
type BusinessStepRepository interface {
	// FindByJobType returns the steps of jobType in ascending order.
	FindByJobType(ctx context.Context, jobType string) ([]entity.BusinessStepNameAndOrder, error)
	// Replace swaps the steps of jobType for steps.
	Replace(ctx context.Context, jobType string, steps []entity.BusinessStepNameAndOrder) error
}

type gormBusinessStepRepository struct {
	db *gorm.DB
}

// NewBusinessStepRepository creates a BusinessStepRepository on db.
func NewBusinessStepRepository(db *gorm.DB) BusinessStepRepository {
	return &gormBusinessStepRepository{db: db}
}

func (r *gormBusinessStepRepository) FindByJobType(ctx context.Context, jobType string) ([]entity.BusinessStepNameAndOrder, error) {
	var steps []entity.BusinessStepNameAndOrder
	err := gormadapter.DBFromContext(ctx, r.db).
		Model(&entity.BatchBusinessStep{}).
		Select("step_name, step_order").
		Where("job_type = ?", jobType).
		Order("step_order, id").
		Scan(&steps).Error
	if err != nil {
		return nil, exception.NewBatchError("BusinessStepRepository.FindByJobType",
			fmt.Sprintf("failed to load business steps of '%s'", jobType), err, false, false)
	}
	return steps, nil
}

func (r *gormBusinessStepRepository) Replace(ctx context.Context, jobType string, steps []entity.BusinessStepNameAndOrder) error {
	const op = "BusinessStepRepository.Replace"
	return gormadapter.DBFromContext(ctx, r.db).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("job_type = ?", jobType).Delete(&entity.BatchBusinessStep{}).Error; err != nil {
			return exception.NewBatchError(op, fmt.Sprintf("failed to clear business steps of '%s'", jobType), err, false, false)
		}
		if len(steps) == 0 {
			return nil
		}
		rows := make([]entity.BatchBusinessStep, len(steps))
		for i, s := range steps {
			rows[i] = entity.BatchBusinessStep{JobType: jobType, StepName: s.Name, StepOrder: s.Order}
		}
		if err := tx.Create(&rows).Error; err != nil {
			return exception.NewBatchError(op, fmt.Sprintf("failed to store business steps of '%s'", jobType), err, false, false)
		}
		return nil
	})
}

// ErrBusinessDateNotFound is returned when no row of the requested type exists.
var ErrBusinessDateNotFound = errors.New("business date not found")

// BusinessDateRepository stores the current business date and the optional explicit COB date.
type BusinessDateRepository interface {
	Find(ctx context.Context, dateType entity.BusinessDateType) (*entity.BusinessDate, error)
	Save(ctx context.Context, dateType entity.BusinessDateType, date time.Time) error
}

type gormBusinessDateRepository struct {
	db *gorm.DB
}

// NewBusinessDateRepository creates a BusinessDateRepository on db.
func NewBusinessDateRepository(db *gorm.DB) BusinessDateRepository {
	return &gormBusinessDateRepository{db: db}
}

func (r *gormBusinessDateRepository) Find(ctx context.Context, dateType entity.BusinessDateType) (*entity.BusinessDate, error) {
	var bd entity.BusinessDate
	err := gormadapter.DBFromContext(ctx, r.db).Where("type = ?", dateType).Take(&bd).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrBusinessDateNotFound, dateType)
	}
	if err != nil {
		return nil, exception.NewBatchError("BusinessDateRepository.Find", fmt.Sprintf("failed to load %s", dateType), err, false, false)
	}
	bd.Date = entity.DateOnly(bd.Date)
	return &bd, nil
}

func (r *gormBusinessDateRepository) Save(ctx context.Context, dateType entity.BusinessDateType, date time.Time) error {
	row := entity.BusinessDate{Type: dateType, Date: entity.DateOnly(date)}
	err := gormadapter.DBFromContext(ctx, r.db).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "type"}},
			DoUpdates: clause.Set{
				{Column: clause.Column{Name: "date"}, Value: row.Date},
				{Column: clause.Column{Name: "version"}, Value: gorm.Expr("business_dates.version + 1")},
			},
		}).
		Create(&row).Error
	if err != nil {
		return exception.NewBatchError("BusinessDateRepository.Save", fmt.Sprintf("failed to save %s", dateType), err, false, false)
	}
	return nil
}
