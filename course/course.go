package course

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/guregu/dynamo/v2"
	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

type Course struct {
	CourseID      string `dynamo:"courseId,hash"`
	CourseName    string `dynamo:"courseName"`
	EducatorName  string `dynamo:"educatorName"`
	EducatorEmail string `dynamo:"educatorEmail"`
}

type CourseRepo interface {
	// Get returns nil without error when the course does not exist.
	Get(ctx context.Context, courseID string) (*Course, error)
}

type DynamoDbCourseTable struct {
	table dynamo.Table
}

func NewDynamoDbCourseTable(ddbClient *dynamodb.Client, tableName string) *DynamoDbCourseTable {
	db := dynamo.NewFromIface(ddbClient)
	return &DynamoDbCourseTable{table: db.Table(tableName)}
}

func (t *DynamoDbCourseTable) Get(ctx context.Context, courseID string) (*Course, error) {
	c := new(Course)
	err := t.table.Get("courseId", courseID).One(ctx, c)
	if err != nil {
		if errors.Is(err, dynamo.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get course %s: %w", courseID, err)
	}
	return c, nil
}

const (
	defaultTTL      = 10 * time.Minute
	cleanupInterval = 30 * time.Minute
)

// Lookup caches course reads. Misses are cached too so that a deleted
// course does not turn every notification into a table read.
type Lookup struct {
	repo    CourseRepo
	cache   *cache.Cache
	sfGroup singleflight.Group
}

func NewLookup(repo CourseRepo) *Lookup {
	return &Lookup{
		repo:  repo,
		cache: cache.New(defaultTTL, cleanupInterval),
	}
}

func (l *Lookup) Get(ctx context.Context, courseID string) (*Course, error) {
	if cached, found := l.cache.Get(courseID); found {
		c, _ := cached.(*Course)
		return c, nil
	}

	result, err, _ := l.sfGroup.Do(courseID, func() (interface{}, error) {
		if cached, found := l.cache.Get(courseID); found {
			return cached, nil
		}
		c, err := l.repo.Get(ctx, courseID)
		if err != nil {
			return nil, err
		}
		l.cache.SetDefault(courseID, c)
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	c, _ := result.(*Course)
	return c, nil
}
