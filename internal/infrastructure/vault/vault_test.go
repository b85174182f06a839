package vault

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/kirillkom/cardscan/internal/core/domain"
	"github.com/kirillkom/cardscan/internal/infrastructure/security"
)

var testMaster = []byte("0123456789abcdef0123456789abcdef")

func newTestVault(t *testing.T) (*Vault, *MemoryStorage) {
	t.Helper()
	storage := NewMemoryStorage()
	v, err := New(storage, security.NewGate(), testMaster, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("new vault: %v", err)
	}
	return v, storage
}

func TestNewValidatesInputs(t *testing.T) {
	gate := security.NewGate()
	if _, err := New(nil, gate, testMaster, nil); err == nil {
		t.Fatal("accepted nil storage")
	}
	if _, err := New(NewMemoryStorage(), nil, testMaster, nil); err == nil {
		t.Fatal("accepted nil checker")
	}
	if _, err := New(NewMemoryStorage(), gate, []byte("short"), nil); err == nil {
		t.Fatal("accepted short master secret")
	}
}

func TestStoreGetRoundTrip(t *testing.T) {
	v, _ := newTestVault(t)
	ctx := context.Background()

	if err := v.Store(ctx, "openai", "sk-test-1234567890"); err != nil {
		t.Fatalf("store: %v", err)
	}
	got, err := v.Get(ctx, "openai")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != "sk-test-1234567890" {
		t.Fatalf("round trip mismatch: %q", got)
	}
}

func TestStoredBlobIsNotPlaintext(t *testing.T) {
	v, storage := newTestVault(t)
	ctx := context.Background()

	const key = "sk-test-1234567890"
	if err := v.Store(ctx, "openai", key); err != nil {
		t.Fatalf("store: %v", err)
	}
	blob, err := storage.Read(ctx, "credential/openai")
	if err != nil {
		t.Fatalf("read blob: %v", err)
	}
	if strings.Contains(blob, key) {
		t.Fatal("blob contains the plaintext key")
	}
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		t.Fatalf("blob is not base64: %v", err)
	}
	if strings.Contains(string(raw), key) {
		t.Fatal("decoded blob contains the plaintext key")
	}
}

func TestSealUsesFreshNoncePerStore(t *testing.T) {
	v, storage := newTestVault(t)
	ctx := context.Background()

	if err := v.Store(ctx, "a", "sk-same-key-12345"); err != nil {
		t.Fatalf("store a: %v", err)
	}
	if err := v.Store(ctx, "b", "sk-same-key-12345"); err != nil {
		t.Fatalf("store b: %v", err)
	}
	blobA, _ := storage.Read(ctx, "credential/a")
	blobB, _ := storage.Read(ctx, "credential/b")
	if blobA == blobB {
		t.Fatal("identical plaintexts produced identical blobs")
	}
}

func TestStoreReplacesExisting(t *testing.T) {
	v, _ := newTestVault(t)
	ctx := context.Background()

	if err := v.Store(ctx, "openai", "sk-old-1234567890"); err != nil {
		t.Fatalf("store: %v", err)
	}
	if err := v.Store(ctx, "openai", "sk-new-1234567890"); err != nil {
		t.Fatalf("replace: %v", err)
	}
	got, err := v.Get(ctx, "openai")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != "sk-new-1234567890" {
		t.Fatalf("replacement not visible: %q", got)
	}
}

func TestStoreRejectsBadServiceNames(t *testing.T) {
	v, _ := newTestVault(t)
	ctx := context.Background()

	for _, service := range []string{"", "1service", "svc-dash", "svc name", "svc;drop"} {
		if err := v.Store(ctx, service, "sk-test-1234567890"); !domain.IsKind(err, domain.ErrInvalidInput) {
			t.Errorf("service %q: expected invalid input, got %v", service, err)
		}
	}
}

func TestStoreRejectsBadKeys(t *testing.T) {
	v, _ := newTestVault(t)
	ctx := context.Background()

	if err := v.Store(ctx, "svc", "short"); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("short key: expected invalid input, got %v", err)
	}
	if err := v.Store(ctx, "svc", "key with spaces!"); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("bad charset: expected invalid input, got %v", err)
	}
}

func TestGetMissingService(t *testing.T) {
	v, _ := newTestVault(t)

	_, err := v.Get(context.Background(), "absent")
	if !domain.IsKind(err, domain.ErrCredentialNotFound) {
		t.Fatalf("expected credential not found, got %v", err)
	}
}

func TestGetTamperedBlobFailsIntegrity(t *testing.T) {
	v, storage := newTestVault(t)
	ctx := context.Background()

	if err := v.Store(ctx, "openai", "sk-test-1234567890"); err != nil {
		t.Fatalf("store: %v", err)
	}
	blob, _ := storage.Read(ctx, "credential/openai")
	raw, _ := base64.StdEncoding.DecodeString(blob)
	raw[len(raw)-1] ^= 0xff
	storage.Write(ctx, "credential/openai", base64.StdEncoding.EncodeToString(raw))

	_, err := v.Get(ctx, "openai")
	if !domain.IsKind(err, domain.ErrIntegrityCheck) {
		t.Fatalf("expected integrity failure, got %v", err)
	}
}

func TestGetGarbageBlobFailsIntegrity(t *testing.T) {
	v, storage := newTestVault(t)
	ctx := context.Background()

	storage.Write(ctx, "credential/openai", "not base64 at all!!!")
	if _, err := v.Get(ctx, "openai"); !domain.IsKind(err, domain.ErrIntegrityCheck) {
		t.Fatalf("expected integrity failure, got %v", err)
	}

	storage.Write(ctx, "credential/openai", base64.StdEncoding.EncodeToString([]byte("tiny")))
	if _, err := v.Get(ctx, "openai"); !domain.IsKind(err, domain.ErrIntegrityCheck) {
		t.Fatalf("expected integrity failure for short blob, got %v", err)
	}
}

func TestGetWrongMasterFailsIntegrity(t *testing.T) {
	storage := NewMemoryStorage()
	gate := security.NewGate()
	ctx := context.Background()

	first, err := New(storage, gate, testMaster, nil)
	if err != nil {
		t.Fatalf("new vault: %v", err)
	}
	if err := first.Store(ctx, "openai", "sk-test-1234567890"); err != nil {
		t.Fatalf("store: %v", err)
	}

	other, err := New(storage, gate, []byte("ffffffffffffffffffffffffffffffff"), nil)
	if err != nil {
		t.Fatalf("new vault: %v", err)
	}
	if _, err := other.Get(ctx, "openai"); !domain.IsKind(err, domain.ErrIntegrityCheck) {
		t.Fatalf("expected integrity failure, got %v", err)
	}
}

func TestDeleteAndList(t *testing.T) {
	v, _ := newTestVault(t)
	ctx := context.Background()

	for _, service := range []string{"openai", "azure", "google"} {
		if err := v.Store(ctx, service, "sk-test-1234567890"); err != nil {
			t.Fatalf("store %s: %v", service, err)
		}
	}

	services, err := v.ListServices(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(services) != 3 || services[0] != "azure" || services[1] != "google" || services[2] != "openai" {
		t.Fatalf("unexpected listing %v", services)
	}

	if err := v.Delete(ctx, "azure"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := v.Get(ctx, "azure"); !domain.IsKind(err, domain.ErrCredentialNotFound) {
		t.Fatal("deleted credential still readable")
	}

	if err := v.ClearAll(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	services, _ = v.ListServices(ctx)
	if len(services) != 0 {
		t.Fatalf("clear left services behind: %v", services)
	}
}

func TestFileStorageRoundTrip(t *testing.T) {
	storage, err := NewFileStorage(t.TempDir())
	if err != nil {
		t.Fatalf("new file storage: %v", err)
	}
	ctx := context.Background()

	if err := storage.Write(ctx, "credential/openai", "blob-data"); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := storage.Read(ctx, "credential/openai")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got != "blob-data" {
		t.Fatalf("round trip mismatch: %q", got)
	}

	keys, err := storage.Keys(ctx)
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	if len(keys) != 1 || keys[0] != "credential/openai" {
		t.Fatalf("unexpected keys %v", keys)
	}

	if err := storage.Delete(ctx, "credential/openai"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := storage.Read(ctx, "credential/openai"); !domain.IsKind(err, domain.ErrCredentialNotFound) {
		t.Fatalf("expected credential not found, got %v", err)
	}
	if err := storage.Delete(ctx, "credential/openai"); err != nil {
		t.Fatalf("deleting absent key should be a no-op, got %v", err)
	}
}

func TestVaultOverFileStorage(t *testing.T) {
	storage, err := NewFileStorage(t.TempDir())
	if err != nil {
		t.Fatalf("new file storage: %v", err)
	}
	v, err := New(storage, security.NewGate(), testMaster, nil)
	if err != nil {
		t.Fatalf("new vault: %v", err)
	}
	ctx := context.Background()

	if err := v.Store(ctx, "openai", "sk-test-1234567890"); err != nil {
		t.Fatalf("store: %v", err)
	}
	got, err := v.Get(ctx, "openai")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != "sk-test-1234567890" {
		t.Fatalf("round trip mismatch: %q", got)
	}
}

type failingStorage struct{ err error }

func (f failingStorage) Read(context.Context, string) (string, error) { return "", f.err }
func (f failingStorage) Write(context.Context, string, string) error  { return f.err }
func (f failingStorage) Delete(context.Context, string) error         { return f.err }
func (f failingStorage) Keys(context.Context) ([]string, error)       { return nil, f.err }

func TestGetStorageFailureIsDataSource(t *testing.T) {
	v, err := New(failingStorage{err: errors.New("disk unreadable")}, security.NewGate(), testMaster, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("new vault: %v", err)
	}

	_, err = v.Get(context.Background(), "openai")
	if !domain.IsKind(err, domain.ErrDataSource) {
		t.Fatalf("expected data source error, got %v", err)
	}
	if domain.IsKind(err, domain.ErrCredentialNotFound) {
		t.Fatalf("storage failure must not read as missing credential: %v", err)
	}
}
