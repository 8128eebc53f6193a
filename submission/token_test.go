package submission_test

import (
	"testing"
	"time"

	"github.com/programme-lv/handin/submission"
	"github.com/stretchr/testify/require"
)

func TestAssignTokensKeepsExistingValues(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	expires := now.Add(time.Hour)
	files := []submission.FileRecord{
		{ObjectKey: "a", DownloadToken: "keep-me", ExpiresAt: &expires},
		{ObjectKey: "b"},
		{ObjectKey: "c", DownloadToken: "only-token"},
	}

	out, changed, err := submission.AssignTokens(files, now, submission.DefaultTokenTTL)
	require.NoError(t, err)
	require.True(t, changed)

	require.Equal(t, "keep-me", out[0].DownloadToken)
	require.Equal(t, expires, *out[0].ExpiresAt)

	require.NotEmpty(t, out[1].DownloadToken)
	require.Equal(t, now.Add(28*24*time.Hour), *out[1].ExpiresAt)

	require.Equal(t, "only-token", out[2].DownloadToken)
	require.NotNil(t, out[2].ExpiresAt)

	// input slice is not modified
	require.Empty(t, files[1].DownloadToken)

	again, changed, err := submission.AssignTokens(out, now.Add(time.Minute), submission.DefaultTokenTTL)
	require.NoError(t, err)
	require.False(t, changed)
	require.Equal(t, out, again)
}

func TestAssignTokensUniqueWithinSubmission(t *testing.T) {
	now := time.Now()
	files := make([]submission.FileRecord, 50)
	for i := range files {
		files[i].ObjectKey = "k"
	}
	files[3].DownloadToken = "dup"
	files[7].DownloadToken = "dup"

	out, _, err := submission.AssignTokens(files, now, submission.DefaultTokenTTL)
	require.NoError(t, err)

	seen := map[string]bool{}
	for _, f := range out {
		require.NotEmpty(t, f.DownloadToken)
		require.False(t, seen[f.DownloadToken], "duplicate token %s", f.DownloadToken)
		seen[f.DownloadToken] = true
	}
	require.Equal(t, "dup", out[3].DownloadToken)
}

func TestFindByTokenAndExpiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	expires := now.Add(28 * 24 * time.Hour)
	files := []submission.FileRecord{{ObjectKey: "a", DownloadToken: "t1", ExpiresAt: &expires}}

	f, ok := submission.FindByToken(files, "t1")
	require.True(t, ok)
	require.False(t, f.Expired(now))
	require.False(t, f.Expired(expires))
	require.True(t, f.Expired(now.Add(29*24*time.Hour)))

	_, ok = submission.FindByToken(files, "t2")
	require.False(t, ok)
	_, ok = submission.FindByToken(files, "")
	require.False(t, ok)

	require.True(t, submission.FileRecord{DownloadToken: "x"}.Expired(now))
}

func TestGenerateTokenIsURLSafe(t *testing.T) {
	tok, err := submission.GenerateToken()
	require.NoError(t, err)
	require.Len(t, tok, 32)
	require.NotContains(t, tok, "/")
	require.NotContains(t, tok, "+")
	require.NotContains(t, tok, "=")
}
