package memory

import (
	"context"
	"testing"
)

func TestArchivePutObjectCopiesData(t *testing.T) {
	t.Parallel()

	archive := NewArchive()
	payload := []byte("<html>listing</html>")
	uri, err := archive.PutObject(context.Background(), "keejob/2025-06-12/page-001.html", "text/html", payload)
	if err != nil {
		t.Fatalf("PutObject() error = %v", err)
	}
	if uri != "memory://keejob/2025-06-12/page-001.html" {
		t.Fatalf("unexpected uri %s", uri)
	}
	payload[0] = 'X'
	stored, contentType, ok := archive.Object("keejob/2025-06-12/page-001.html")
	if !ok || string(stored) != "<html>listing</html>" || contentType != "text/html" {
		t.Fatalf("expected immutable stored copy, got %q (%s, %v)", stored, contentType, ok)
	}
	if paths := archive.Paths(); len(paths) != 1 {
		t.Fatalf("expected one path, got %v", paths)
	}
	if _, _, ok := archive.Object("missing"); ok {
		t.Fatal("expected missing object")
	}
}

func TestArchiveRejectsEmptyPath(t *testing.T) {
	t.Parallel()

	if _, err := NewArchive().PutObject(context.Background(), "", "text/html", nil); err == nil {
		t.Fatal("expected error for empty path")
	}
}
