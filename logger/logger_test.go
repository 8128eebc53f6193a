package logger

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWithSubmissionID(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, nil))
	ctx := WithLogger(context.Background(), base)
	ctx = WithSubmissionID(ctx, "s1")
	ctx = WithRequestID(ctx, "r1")

	FromContext(ctx).Info("hello")
	require.Contains(t, buf.String(), "submission_id=s1")
	require.Contains(t, buf.String(), "request_id=r1")
}

func TestFromContextDefault(t *testing.T) {
	require.Equal(t, slog.Default(), FromContext(context.Background()))
}
