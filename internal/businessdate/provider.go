// Package businessdate resolves the business date a close-of-business run works on.
package businessdate

import (
	"context"
	"errors"
	"time"

	"github.com/tigerroll/loancob/internal/domain/entity"
	"github.com/tigerroll/loancob/internal/repository"
	config "github.com/tigerroll/loancob/pkg/batch/core/config"
	"github.com/tigerroll/loancob/pkg/batch/support/util/logger"
)

// Provider returns the current business date and the date close of business closes.
type Provider interface {
	CurrentBusinessDate(ctx context.Context) (time.Time, error)
	// COBDate is the explicit COB date when one is stored, else the day before the current
	// business date.
	COBDate(ctx context.Context) (time.Time, error)
}

// StoredProvider reads the dates from the business_dates table. Without a stored business
// date it falls back to today in the configured timezone.
type StoredProvider struct {
	repo     repository.BusinessDateRepository
	location *time.Location
	now      func() time.Time
}

// NewStoredProvider creates a StoredProvider.
func NewStoredProvider(repo repository.BusinessDateRepository, system config.SystemConfig) *StoredProvider {
	loc := time.UTC
	if system.Timezone != "" {
		if l, err := time.LoadLocation(system.Timezone); err == nil {
			loc = l
		} else {
			logger.Warnf("Unknown timezone '%s', business dates fall back to UTC: %v", system.Timezone, err)
		}
	}
	return &StoredProvider{repo: repo, location: loc, now: time.Now}
}

// WithClock replaces the wall clock.
func (p *StoredProvider) WithClock(now func() time.Time) *StoredProvider {
	p.now = now
	return p
}

func (p *StoredProvider) CurrentBusinessDate(ctx context.Context) (time.Time, error) {
	bd, err := p.repo.Find(ctx, entity.BusinessDateTypeBusiness)
	if errors.Is(err, repository.ErrBusinessDateNotFound) {
		return entity.DateOnly(p.now().In(p.location)), nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return bd.Date, nil
}

func (p *StoredProvider) COBDate(ctx context.Context) (time.Time, error) {
	cob, err := p.repo.Find(ctx, entity.BusinessDateTypeCOB)
	if err == nil {
		return cob.Date, nil
	}
	if !errors.Is(err, repository.ErrBusinessDateNotFound) {
		return time.Time{}, err
	}
	current, err := p.CurrentBusinessDate(ctx)
	if err != nil {
		return time.Time{}, err
	}
	return current.AddDate(0, 0, -1), nil
}

// Fixed is a Provider pinned to one business date.
type Fixed time.Time

func (f Fixed) CurrentBusinessDate(context.Context) (time.Time, error) {
	return entity.DateOnly(time.Time(f)), nil
}

func (f Fixed) COBDate(context.Context) (time.Time, error) {
	return entity.DateOnly(time.Time(f)).AddDate(0, 0, -1), nil
}

var (
	_ Provider = (*StoredProvider)(nil)
	_ Provider = Fixed{}
)
