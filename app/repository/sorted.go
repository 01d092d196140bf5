package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
)

// ErrSortUnavailable reports that the store could not order a result set
// itself. Listings recover from it by sorting locally.
var ErrSortUnavailable = errors.New("server-side sort unavailable")

// mysqlErrOutOfSortMemory is ER_OUT_OF_SORTMEMORY.
const mysqlErrOutOfSortMemory = 1038

// classifySortError maps driver specific failures of an ORDER BY query to
// ErrSortUnavailable and returns every other error unchanged.
func classifySortError(err error) error {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlErrOutOfSortMemory {
		return fmt.Errorf("%w: %v", ErrSortUnavailable, err)
	}
	return err
}

// sortedLister lists rows newest first. With serverSort disabled, or when
// the store reports ErrSortUnavailable, it reads unsorted rows and sorts
// them by creation time in memory before applying the limit.
type sortedLister struct {
	serverSort bool
}

func listNewestFirst[T any](ctx context.Context, l *sortedLister, db *gorm.DB, where map[string]interface{}, limit int, createdAt func(*T) time.Time) ([]T, error) {
	if l == nil || l.serverSort {
		var rows []T
		q := db.WithContext(ctx).Where(where).Order("created_at DESC")
		if limit > 0 {
			q = q.Limit(limit)
		}
		err := q.Find(&rows).Error
		if err == nil {
			return rows, nil
		}
		if err = classifySortError(err); !errors.Is(err, ErrSortUnavailable) {
			return nil, err
		}
		log.Warnf("[Repository] %v, falling back to local sort", err)
	}

	var rows []T
	if err := db.WithContext(ctx).Where(where).Find(&rows).Error; err != nil {
		return nil, err
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return createdAt(&rows[i]).After(createdAt(&rows[j]))
	})
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

// equality builds a where map from pairs, skipping empty values.
func equality(pairs ...string) map[string]interface{} {
	where := make(map[string]interface{}, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		if pairs[i+1] != "" {
			where[pairs[i]] = pairs[i+1]
		}
	}
	return where
}
