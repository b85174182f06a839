// Package vault encrypts per-service credentials before they reach the
// underlying secret storage. Values are sealed with AES-256-GCM using a
// key derived per entry from the master secret.
package vault

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/crypto/hkdf"

	"github.com/kirillkom/cardscan/internal/core/domain"
	"github.com/kirillkom/cardscan/internal/core/ports"
)

const (
	minKeyLength    = 10
	minMasterLength = 16
	storagePrefix   = "credential/"
	hkdfInfo        = "cardscan credential vault v1"
	nonceSize       = 12
	gcmOverhead     = 16
)

var (
	serviceNamePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)
	apiKeyPattern      = regexp.MustCompile(`^[a-zA-Z0-9\-_.]+$`)
)

// InjectionChecker rejects values carrying injection payloads.
type InjectionChecker interface {
	CheckInjection(text string) error
}

// Vault implements ports.CredentialStore over an opaque secret storage.
type Vault struct {
	storage ports.SecretStorage
	checker InjectionChecker
	master  []byte
	logger  *slog.Logger
}

func New(storage ports.SecretStorage, checker InjectionChecker, masterSecret []byte, logger *slog.Logger) (*Vault, error) {
	if storage == nil {
		return nil, errors.New("vault: storage is required")
	}
	if checker == nil {
		return nil, errors.New("vault: injection checker is required")
	}
	if len(masterSecret) < minMasterLength {
		return nil, fmt.Errorf("vault: master secret must be at least %d bytes", minMasterLength)
	}
	if logger == nil {
		logger = slog.Default()
	}
	master := make([]byte, len(masterSecret))
	copy(master, masterSecret)
	return &Vault{storage: storage, checker: checker, master: master, logger: logger}, nil
}

// Store validates the service name and api key, seals the key and
// writes the blob. An existing entry for the service is replaced.
func (v *Vault) Store(ctx context.Context, service, key string) error {
	if err := validateService(service); err != nil {
		return err
	}
	if err := v.validateKey(key); err != nil {
		return err
	}

	blob, err := v.seal(key)
	if err != nil {
		return domain.WrapError(domain.ErrDataSource, "vault store", err)
	}
	if err := v.storage.Write(ctx, storagePrefix+service, blob); err != nil {
		return domain.WrapError(domain.ErrDataSource, "vault store", err)
	}
	v.logger.InfoContext(ctx, "credential stored", "service", service)
	return nil
}

// Get returns the plaintext key for the service. A missing entry maps
// to ErrCredentialNotFound, a storage read failure to ErrDataSource,
// and a blob that fails authentication to ErrIntegrityCheck.
func (v *Vault) Get(ctx context.Context, service string) (string, error) {
	if err := validateService(service); err != nil {
		return "", err
	}

	blob, err := v.storage.Read(ctx, storagePrefix+service)
	if err != nil {
		if domain.IsKind(err, domain.ErrCredentialNotFound) {
			return "", err
		}
		return "", domain.WrapError(domain.ErrDataSource, "vault get", err)
	}

	key, err := v.open(blob)
	if err != nil {
		return "", domain.WrapError(domain.ErrIntegrityCheck, "vault get", err)
	}
	return key, nil
}

func (v *Vault) Delete(ctx context.Context, service string) error {
	if err := validateService(service); err != nil {
		return err
	}
	if err := v.storage.Delete(ctx, storagePrefix+service); err != nil {
		return domain.WrapError(domain.ErrDataSource, "vault delete", err)
	}
	v.logger.InfoContext(ctx, "credential removed", "service", service)
	return nil
}

func (v *Vault) ListServices(ctx context.Context) ([]string, error) {
	keys, err := v.storage.Keys(ctx)
	if err != nil {
		return nil, domain.WrapError(domain.ErrDataSource, "vault list", err)
	}
	services := make([]string, 0, len(keys))
	for _, k := range keys {
		if strings.HasPrefix(k, storagePrefix) {
			services = append(services, strings.TrimPrefix(k, storagePrefix))
		}
	}
	sort.Strings(services)
	return services, nil
}

func (v *Vault) ClearAll(ctx context.Context) error {
	services, err := v.ListServices(ctx)
	if err != nil {
		return err
	}
	for _, service := range services {
		if err := v.storage.Delete(ctx, storagePrefix+service); err != nil {
			return domain.WrapError(domain.ErrDataSource, "vault clear", err)
		}
	}
	v.logger.InfoContext(ctx, "credentials cleared", "count", len(services))
	return nil
}

func validateService(service string) error {
	if !serviceNamePattern.MatchString(service) {
		return domain.WrapError(domain.ErrInvalidInput, "vault service name",
			fmt.Errorf("service name %q must start with a letter and use letters, digits or underscores", service))
	}
	return nil
}

func (v *Vault) validateKey(key string) error {
	if len(key) < minKeyLength {
		return domain.WrapError(domain.ErrInvalidInput, "vault api key",
			fmt.Errorf("api key shorter than %d characters", minKeyLength))
	}
	if !apiKeyPattern.MatchString(key) {
		return domain.WrapError(domain.ErrInvalidInput, "vault api key",
			errors.New("api key contains characters outside the allowed set"))
	}
	if err := v.checker.CheckInjection(key); err != nil {
		return err
	}
	return nil
}

// seal encrypts the plaintext under a key derived from the master
// secret and a fresh random nonce, then base64-encodes nonce||sealed.
func (v *Vault) seal(plaintext string) (string, error) {
	aead, nonce, err := v.aead(nil)
	if err != nil {
		return "", err
	}
	sealed := aead.Seal(nil, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(append(nonce, sealed...)), nil
}

func (v *Vault) open(blob string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return "", fmt.Errorf("decode blob: %w", err)
	}

	if len(raw) < nonceSize+gcmOverhead {
		return "", errors.New("blob too short")
	}
	nonce, sealed := raw[:nonceSize], raw[nonceSize:]

	aead, _, err := v.aead(nonce)
	if err != nil {
		return "", err
	}
	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("authenticate blob: %w", err)
	}
	return string(plaintext), nil
}

// aead builds an AES-256-GCM cipher whose key comes from
// HKDF-SHA256(master, salt=nonce). With a nil nonce a fresh random one
// is generated, so every sealed blob uses a distinct derived key.
func (v *Vault) aead(nonce []byte) (cipher.AEAD, []byte, error) {
	if nonce == nil {
		nonce = make([]byte, nonceSize)
		if _, err := rand.Read(nonce); err != nil {
			return nil, nil, fmt.Errorf("generate nonce: %w", err)
		}
	}

	derived := make([]byte, 32)
	kdf := hkdf.New(sha256.New, v.master, nonce, []byte(hkdfInfo))
	if _, err := io.ReadFull(kdf, derived); err != nil {
		return nil, nil, fmt.Errorf("derive key: %w", err)
	}

	block, err := aes.NewCipher(derived)
	if err != nil {
		return nil, nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, err
	}
	return aead, nonce, nil
}
