package artifacts

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"path"
	"strings"
	"time"

	"github.com/BaSui01/finflow/types"
)

// ContentKind describes how an artifact's bytes are meant to be read.
type ContentKind string

const (
	KindStructured ContentKind = "structured" // JSON
	KindText       ContentKind = "text"       // markdown or plain text
)

// ContentType returns the MIME type stored alongside the artifact.
func (k ContentKind) ContentType() string {
	if k == KindStructured {
		return "application/json"
	}
	return "text/markdown; charset=utf-8"
}

// KindForLocator guesses the content kind from the locator extension.
func KindForLocator(locator string) ContentKind {
	if strings.EqualFold(path.Ext(locator), ".json") {
		return KindStructured
	}
	return KindText
}

// Ref describes a committed artifact. Refs are immutable once returned.
type Ref struct {
	Producer    string      `json:"producer"`
	Locator     string      `json:"locator"`
	Kind        ContentKind `json:"kind"`
	Size        int64       `json:"size"`
	Checksum    string      `json:"checksum"`
	CommittedAt time.Time   `json:"committed_at"`
}

// Store persists artifacts addressed by locator.
type Store interface {
	// Commit writes data atomically under locator and returns its ref.
	Commit(ctx context.Context, producer, locator string, kind ContentKind, data []byte) (*Ref, error)
	// Read returns the bytes and ref of a committed artifact.
	Read(ctx context.Context, locator string) ([]byte, *Ref, error)
	// Stat returns the ref without reading the content.
	Stat(ctx context.Context, locator string) (*Ref, error)
	// List returns refs whose locator starts with prefix.
	List(ctx context.Context, prefix string) ([]*Ref, error)
	// Delete removes an artifact; deleting a missing artifact is not an error.
	Delete(ctx context.Context, locator string) error
	Close() error
}

// NormalizeLocator cleans a locator and rejects absolute or escaping paths.
func NormalizeLocator(locator string) (string, error) {
	l := strings.ReplaceAll(strings.TrimSpace(locator), "\\", "/")
	l = strings.TrimPrefix(l, "./")
	if l == "" {
		return "", types.NewConfiguration("artifact locator is empty")
	}
	if strings.HasPrefix(l, "/") {
		return "", types.NewConfiguration("artifact locator %q must be relative", locator)
	}
	clean := path.Clean(l)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", types.NewConfiguration("artifact locator %q escapes the store", locator)
	}
	return clean, nil
}

// Checksum returns the hex sha256 of data.
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ValidateContent checks that structured artifacts hold valid JSON.
func ValidateContent(kind ContentKind, data []byte) error {
	if kind == KindStructured && !json.Valid(data) {
		return types.NewError(types.ErrInvalidRequest, "structured artifact is not valid JSON")
	}
	return nil
}
