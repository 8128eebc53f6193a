package course_test

import (
	"context"
	"errors"
	"testing"

	"github.com/programme-lv/handin/course"
	"github.com/stretchr/testify/require"
)

type courseRepoMock struct {
	calls int
	get   func(ctx context.Context, courseID string) (*course.Course, error)
}

func (m *courseRepoMock) Get(ctx context.Context, courseID string) (*course.Course, error) {
	m.calls++
	return m.get(ctx, courseID)
}

func TestLookupCachesHitsAndMisses(t *testing.T) {
	repo := &courseRepoMock{
		get: func(ctx context.Context, courseID string) (*course.Course, error) {
			if courseID == "c1" {
				return &course.Course{CourseID: "c1", CourseName: "Algorithms", EducatorEmail: "prof@example.com"}, nil
			}
			return nil, nil
		},
	}
	lookup := course.NewLookup(repo)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		c, err := lookup.Get(ctx, "c1")
		require.NoError(t, err)
		require.Equal(t, "Algorithms", c.CourseName)
	}
	require.Equal(t, 1, repo.calls)

	for i := 0; i < 2; i++ {
		c, err := lookup.Get(ctx, "gone")
		require.NoError(t, err)
		require.Nil(t, c)
	}
	require.Equal(t, 2, repo.calls)
}

func TestLookupDoesNotCacheErrors(t *testing.T) {
	repo := &courseRepoMock{
		get: func(ctx context.Context, courseID string) (*course.Course, error) {
			return nil, errors.New("throttled")
		},
	}
	lookup := course.NewLookup(repo)

	_, err := lookup.Get(context.Background(), "c1")
	require.Error(t, err)
	_, err = lookup.Get(context.Background(), "c1")
	require.Error(t, err)
	require.Equal(t, 2, repo.calls)
}
