package persistence

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"

	"github.com/gitter-badger/urfiles/icons/domain"
)

func newTestFileStore(t *testing.T) (*LocalFileStore, string) {
	t.Helper()
	base := t.TempDir()
	store, err := NewLocalFileStore(base)
	if err != nil {
		t.Fatalf("NewLocalFileStore() error = %v", err)
	}
	return store, base
}

func readStored(t *testing.T, store *LocalFileStore, key domain.Key) []byte {
	t.Helper()
	rc, _, err := store.Open(context.Background(), key)
	if err != nil {
		t.Fatalf("Open(%s) error = %v", key, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	return data
}

func TestLocalFileStore_StoreCreatesServiceDirectory(t *testing.T) {
	store, base := newTestFileStore(t)
	key := domain.Key{Service: "users", Name: "icon.png"}
	content := []byte("icon bytes")

	written, err := store.Store(context.Background(), key, bytes.NewReader(content), false)
	if err != nil {
		t.Fatalf("Store() error = %v", err)
	}

	sum := sha256.Sum256(content)
	if written.Hash != hex.EncodeToString(sum[:]) {
		t.Errorf("Hash = %q, want sha256 of content", written.Hash)
	}
	if written.Size != int64(len(content)) {
		t.Errorf("Size = %d, want %d", written.Size, len(content))
	}

	onDisk, err := os.ReadFile(filepath.Join(base, "users", "icon.png"))
	if err != nil {
		t.Fatalf("icon not at expected path: %v", err)
	}
	if !bytes.Equal(onDisk, content) {
		t.Errorf("stored content = %q, want %q", onDisk, content)
	}

	entries, err := os.ReadDir(filepath.Join(base, "users"))
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("service directory has %d entries, want 1 (temp files left behind?)", len(entries))
	}
}

func TestLocalFileStore_StoreWithoutOverwrite(t *testing.T) {
	store, _ := newTestFileStore(t)
	ctx := context.Background()
	key := domain.Key{Service: "users", Name: "icon.png"}

	if _, err := store.Store(ctx, key, strings.NewReader("first"), false); err != nil {
		t.Fatalf("first Store() error = %v", err)
	}

	_, err := store.Store(ctx, key, strings.NewReader("second"), false)
	if !errors.Is(err, domain.ErrAlreadyExists) {
		t.Fatalf("second Store() error = %v, want %v", err, domain.ErrAlreadyExists)
	}

	if got := readStored(t, store, key); string(got) != "first" {
		t.Errorf("content = %q, want %q", got, "first")
	}
}

func TestLocalFileStore_StoreWithOverwrite(t *testing.T) {
	store, _ := newTestFileStore(t)
	ctx := context.Background()
	key := domain.Key{Service: "users", Name: "icon.png"}

	if _, err := store.Store(ctx, key, strings.NewReader("first"), false); err != nil {
		t.Fatalf("first Store() error = %v", err)
	}
	if _, err := store.Store(ctx, key, strings.NewReader("second"), true); err != nil {
		t.Fatalf("overwriting Store() error = %v", err)
	}

	if got := readStored(t, store, key); string(got) != "second" {
		t.Errorf("content = %q, want %q", got, "second")
	}
}

func TestLocalFileStore_ConcurrentCreateHasOneWinner(t *testing.T) {
	store, _ := newTestFileStore(t)
	ctx := context.Background()
	key := domain.Key{Service: "users", Name: "icon.png"}

	const writers = 8
	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = store.Store(ctx, key, strings.NewReader(strings.Repeat("x", 4096)), false)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case !errors.Is(err, domain.ErrAlreadyExists):
			t.Errorf("Store() error = %v, want nil or %v", err, domain.ErrAlreadyExists)
		}
	}
	if succeeded != 1 {
		t.Errorf("%d writers succeeded, want exactly 1", succeeded)
	}
}

type brokenReader struct{}

func (brokenReader) Read([]byte) (int, error) {
	return 0, errors.New("connection reset")
}

func TestLocalFileStore_StoreCopyFailure(t *testing.T) {
	store, base := newTestFileStore(t)
	key := domain.Key{Service: "users", Name: "icon.png"}

	_, err := store.Store(context.Background(), key, brokenReader{}, false)
	if !errors.Is(err, ErrWrite) {
		t.Fatalf("Store() error = %v, want %v", err, ErrWrite)
	}

	entries, _ := os.ReadDir(filepath.Join(base, "users"))
	if len(entries) != 0 {
		t.Errorf("service directory has %d entries after failed copy, want 0", len(entries))
	}
}

func TestLocalFileStore_StoreDirectoryFailure(t *testing.T) {
	store, base := newTestFileStore(t)

	// a regular file where the service directory should be
	if err := os.WriteFile(filepath.Join(base, "users"), []byte("not a dir"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	_, err := store.Store(context.Background(), domain.Key{Service: "users", Name: "icon.png"}, strings.NewReader("x"), false)
	if !errors.Is(err, ErrCreateDirectory) {
		t.Errorf("Store() error = %v, want %v", err, ErrCreateDirectory)
	}
}

func TestLocalFileStore_Path(t *testing.T) {
	store, base := newTestFileStore(t)

	tests := []struct {
		name    string
		key     domain.Key
		want    string
		wantErr bool
	}{
		{name: "plain key", key: domain.Key{Service: "users", Name: "icon.png"}, want: filepath.Join(base, "users", "icon.png")},
		{name: "parent service", key: domain.Key{Service: "..", Name: "icon.png"}, wantErr: true},
		{name: "parent name", key: domain.Key{Service: "users", Name: ".."}, wantErr: true},
		{name: "separator in name", key: domain.Key{Service: "users", Name: "../../etc/passwd"}, wantErr: true},
		{name: "empty service", key: domain.Key{Name: "icon.png"}, wantErr: true},
		{name: "upload in progress", key: domain.Key{Service: "users", Name: domain.TempFilePrefix + "123"}, wantErr: true},
		{name: "upload prefix service", key: domain.Key{Service: domain.TempFilePrefix + "x", Name: "icon.png"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.Path(tt.key)
			if tt.wantErr {
				if !errors.Is(err, domain.ErrInvalidKey) {
					t.Errorf("Path() error = %v, want %v", err, domain.ErrInvalidKey)
				}
				return
			}
			if err != nil {
				t.Fatalf("Path() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Path() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLocalFileStore_OpenMissing(t *testing.T) {
	store, _ := newTestFileStore(t)

	_, _, err := store.Open(context.Background(), domain.Key{Service: "users", Name: "missing.png"})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Open() error = %v, want %v", err, domain.ErrNotFound)
	}
}

func TestLocalFileStore_Remove(t *testing.T) {
	store, _ := newTestFileStore(t)
	ctx := context.Background()
	key := domain.Key{Service: "users", Name: "icon.png"}

	if err := store.Remove(ctx, key); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Remove() on missing icon error = %v, want %v", err, domain.ErrNotFound)
	}

	if _, err := store.Store(ctx, key, strings.NewReader("x"), false); err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	if err := store.Remove(ctx, key); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}

	exists, err := store.Exists(ctx, key)
	if err != nil {
		t.Fatalf("Exists() error = %v", err)
	}
	if exists {
		t.Error("icon still exists after Remove()")
	}
}

func TestLocalFileStore_RemoveNotPermitted(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("directory permissions are not enforced")
	}

	store, base := newTestFileStore(t)
	ctx := context.Background()
	key := domain.Key{Service: "users", Name: "icon.png"}

	if _, err := store.Store(ctx, key, strings.NewReader("x"), false); err != nil {
		t.Fatalf("Store() error = %v", err)
	}

	dir := filepath.Join(base, "users")
	if err := os.Chmod(dir, 0555); err != nil {
		t.Fatalf("Chmod() error = %v", err)
	}
	t.Cleanup(func() { os.Chmod(dir, 0755) })

	if err := store.Remove(ctx, key); !errors.Is(err, domain.ErrNotModified) {
		t.Errorf("Remove() error = %v, want %v", err, domain.ErrNotModified)
	}
}

func TestLocalFileStore_TempFilesNotAddressable(t *testing.T) {
	store, base := newTestFileStore(t)
	ctx := context.Background()

	dir := filepath.Join(base, "users")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	partial, err := os.CreateTemp(dir, domain.TempFilePrefix+"*")
	if err != nil {
		t.Fatalf("CreateTemp() error = %v", err)
	}
	partial.Close()
	key := domain.Key{Service: "users", Name: filepath.Base(partial.Name())}

	if _, _, err := store.Open(ctx, key); !errors.Is(err, domain.ErrInvalidKey) {
		t.Errorf("Open() error = %v, want %v", err, domain.ErrInvalidKey)
	}
	if err := store.Remove(ctx, key); !errors.Is(err, domain.ErrInvalidKey) {
		t.Errorf("Remove() error = %v, want %v", err, domain.ErrInvalidKey)
	}
	if _, err := os.Stat(partial.Name()); err != nil {
		t.Errorf("partial upload was touched: %v", err)
	}
}

func TestLocalFileStore_FileInPlaceOfService(t *testing.T) {
	store, base := newTestFileStore(t)
	ctx := context.Background()

	// the default database lives next to the service directories
	if err := os.WriteFile(filepath.Join(base, "urfiles.db"), []byte("sqlite"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	key := domain.Key{Service: "urfiles.db", Name: "icon.png"}

	if _, _, err := store.Open(ctx, key); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Open() error = %v, want %v", err, domain.ErrNotFound)
	}
	exists, err := store.Exists(ctx, key)
	if err != nil {
		t.Fatalf("Exists() error = %v", err)
	}
	if exists {
		t.Error("Exists() = true, want false")
	}
	if err := store.Remove(ctx, key); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Remove() error = %v, want %v", err, domain.ErrNotFound)
	}
}
