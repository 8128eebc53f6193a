package archive

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
	"github.com/programme-lv/handin/submission"
)

// entryNames decides the name of every zip entry. If any original file
// name contains a "/", all entries are placed under "<submissionID>/" so
// that nested folder uploads cannot collide with flat ones; otherwise the
// bare file names are used.
func entryNames(submissionID string, files []submission.FileRecord) []string {
	nested := false
	for _, f := range files {
		if strings.Contains(f.FileName, "/") {
			nested = true
			break
		}
	}

	names := make([]string, len(files))
	taken := make(map[string]bool, len(files))
	for i, f := range files {
		name := cleanEntryName(f)
		if nested {
			name = submissionID + "/" + name
		}
		names[i] = dedupe(name, taken)
	}
	return names
}

func cleanEntryName(f submission.FileRecord) string {
	name := f.FileName
	if name == "" {
		name = path.Base(f.ObjectKey)
	}
	name = path.Clean("/" + name)[1:]
	if name == "" {
		name = path.Base(f.ObjectKey)
	}
	return name
}

// dedupe appends " (n)" before the extension until name is unused.
func dedupe(name string, taken map[string]bool) string {
	candidate := name
	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for n := 2; taken[candidate]; n++ {
		candidate = fmt.Sprintf("%s (%d)%s", stem, n, ext)
	}
	taken[candidate] = true
	return candidate
}

// writeZip streams every file, one at a time, from the object store into a
// zip written to dst. Only one object stream is open at any moment.
func writeZip(
	ctx context.Context,
	dst io.Writer,
	objects ObjectStore,
	files []submission.FileRecord,
	names []string,
	modified time.Time,
) error {
	zw := zip.NewWriter(dst)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.DefaultCompression)
	})

	for i, f := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := addEntry(ctx, zw, objects, f, names[i], modified); err != nil {
			return err
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finish zip: %w", err)
	}
	return nil
}

func addEntry(
	ctx context.Context,
	zw *zip.Writer,
	objects ObjectStore,
	f submission.FileRecord,
	name string,
	modified time.Time,
) error {
	rc, err := objects.Get(ctx, f.ObjectKey)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", f.ObjectKey, err)
	}
	defer rc.Close()

	w, err := zw.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: modified,
	})
	if err != nil {
		return fmt.Errorf("failed to create zip entry %s: %w", name, err)
	}
	if _, err := io.Copy(w, rc); err != nil {
		return fmt.Errorf("failed to copy %s into zip: %w", f.ObjectKey, err)
	}
	return nil
}
