package s3bucket

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemBucket is an in-memory bucket for local runs and tests.
type MemBucket struct {
	mu      sync.Mutex
	objects map[string]memObject
	calls   []string
}

type memObject struct {
	content     []byte
	contentType string
}

func NewMemBucket() *MemBucket {
	return &MemBucket{objects: make(map[string]memObject)}
}

// Seed stores content under key without recording a call.
func (b *MemBucket) Seed(key string, content []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[key] = memObject{content: append([]byte(nil), content...)}
}

// Calls returns the operations performed so far, e.g. "get a.txt".
func (b *MemBucket) Calls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.calls...)
}

func (b *MemBucket) Keys() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	keys := make([]string, 0, len(b.objects))
	for k := range b.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (b *MemBucket) Content(key string) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	obj, ok := b.objects[key]
	return obj.content, ok
}

func (b *MemBucket) record(op string, key string) {
	b.calls = append(b.calls, op+" "+key)
}

func (b *MemBucket) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("get", key)
	obj, ok := b.objects[key]
	if !ok {
		return nil, fmt.Errorf("failed to get object %s: %w", key, ErrObjectNotFound)
	}
	return io.NopCloser(bytes.NewReader(obj.content)), nil
}

func (b *MemBucket) Put(ctx context.Context, key string, body io.Reader, contentType string) (int64, error) {
	content, err := io.ReadAll(body)
	if err != nil {
		return 0, fmt.Errorf("failed to upload object %s: %w", key, err)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("put", key)
	b.objects[key] = memObject{content: content, contentType: contentType}
	return int64(len(content)), nil
}

func (b *MemBucket) HeadSize(ctx context.Context, key string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("head", key)
	obj, ok := b.objects[key]
	if !ok {
		return 0, fmt.Errorf("failed to head object %s: %w", key, ErrObjectNotFound)
	}
	return int64(len(obj.content)), nil
}

func (b *MemBucket) Delete(ctx context.Context, keys []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, key := range keys {
		b.record("delete", key)
		delete(b.objects, key)
	}
	return nil
}

func (b *MemBucket) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("presign", key)
	return fmt.Sprintf("https://mem.bucket.local/%s?X-Amz-Expires=%d",
		url.PathEscape(key), int(ttl.Seconds())), nil
}

func (b *MemBucket) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("list", prefix)
	var keys []string
	for k := range b.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}
