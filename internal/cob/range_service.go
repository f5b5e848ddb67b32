package cob

import (
	"context"
	"time"

	"github.com/tigerroll/loancob/internal/domain/entity"
	"github.com/tigerroll/loancob/internal/repository"
	"github.com/tigerroll/loancob/pkg/batch/support/util/logger"
)

// LoanIDRangeService pages the eligible loan ids into contiguous id ranges.
type LoanIDRangeService struct {
	loans repository.LoanRepository
}

func NewLoanIDRangeService(loans repository.LoanRepository) *LoanIDRangeService {
	return &LoanIDRangeService{loans: loans}
}

// ComputeRanges returns one range per pageSize eligible loans, in id order. When no loan is
// eligible it returns a single range with Count 0.
func (s *LoanIDRangeService) ComputeRanges(ctx context.Context, jobRunnerID string, businessDate time.Time, isCatchUp bool, pageSize int) ([]entity.IdRangePartition, error) {
	ranges, err := s.loans.FindIDRanges(ctx, businessDate, isCatchUp, pageSize)
	if err != nil {
		return nil, err
	}
	if len(ranges) == 0 {
		ranges = []entity.IdRangePartition{{MinID: 0, MaxID: 0, SequenceNumber: 1, Count: 0}}
	}
	logger.Infof("Job runner %s: %d loan id ranges for business date %s (catch-up: %t, page size: %d).",
		jobRunnerID, len(ranges), businessDate.Format(dateLayout), isCatchUp, pageSize)
	return ranges, nil
}
