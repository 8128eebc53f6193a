package submission

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"
)

// DefaultTokenTTL is how long a freshly assigned download token stays valid.
const DefaultTokenTTL = 28 * 24 * time.Hour

const tokenBytes = 24

// GenerateToken returns an opaque, URL-safe random token.
func GenerateToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// uniqueToken generates tokens until one is not in used, then records it.
func uniqueToken(used map[string]bool) (string, error) {
	for {
		token, err := GenerateToken()
		if err != nil {
			return "", err
		}
		if !used[token] {
			used[token] = true
			return token, nil
		}
	}
}

// AssignTokens fills in a missing download token or expiry for every file.
// Existing values are kept so that a retried job never rotates links that
// may already have been sent out. A token shared by two files is replaced
// on the later file. The returned bool reports whether anything changed.
func AssignTokens(files []FileRecord, now time.Time, ttl time.Duration) ([]FileRecord, bool, error) {
	out := make([]FileRecord, len(files))
	copy(out, files)

	used := make(map[string]bool, len(out))
	changed := false
	for i := range out {
		f := &out[i]
		if f.DownloadToken == "" || used[f.DownloadToken] {
			token, err := uniqueToken(used)
			if err != nil {
				return nil, false, err
			}
			f.DownloadToken = token
			changed = true
		} else {
			used[f.DownloadToken] = true
		}
		if f.ExpiresAt == nil {
			f.ExpiresAt = ptr(now.Add(ttl))
			changed = true
		}
	}
	return out, changed, nil
}

// NewTokenizedFile returns f with a fresh token and an expiry of now+ttl.
func NewTokenizedFile(f FileRecord, now time.Time, ttl time.Duration) (FileRecord, error) {
	token, err := GenerateToken()
	if err != nil {
		return FileRecord{}, err
	}
	f.DownloadToken = token
	f.ExpiresAt = ptr(now.Add(ttl))
	return f, nil
}

// FindByToken scans files for an exact token match.
func FindByToken(files []FileRecord, token string) (FileRecord, bool) {
	if token == "" {
		return FileRecord{}, false
	}
	for _, f := range files {
		if f.DownloadToken == token {
			return f, true
		}
	}
	return FileRecord{}, false
}

// Expired reports whether the file's token can no longer be used.
// A token without an expiry is treated as expired.
func (f FileRecord) Expired(now time.Time) bool {
	return f.ExpiresAt == nil || now.After(*f.ExpiresAt)
}
