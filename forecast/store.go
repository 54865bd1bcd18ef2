package forecast

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ArtifactInfo is the on-disk state of one (tenant, horizon) artifact
type ArtifactInfo struct {
	Exists    bool      `json:"exists"`
	CreatedAt time.Time `json:"created_at,omitempty"`
	SizeBytes int64     `json:"file_size_bytes,omitempty"`
}

// ModelStore persists artifacts keyed by (tenant, horizon)
type ModelStore interface {
	// Save overwrites the tenant's artifacts for the given horizons and returns a
	// reference to each stored copy. Nothing is replaced when encoding or writing fails.
	Save(ctx context.Context, tenantID string, artifacts map[Horizon]*Artifact) (map[Horizon]string, error)
	// Load returns a *ModelNotFoundError when nothing is stored
	Load(ctx context.Context, tenantID string, h Horizon) (*Artifact, error)
	Stat(ctx context.Context, tenantID string, h Horizon) (ArtifactInfo, error)
	Delete(ctx context.Context, tenantID string, h Horizon) error
	Location() string
}

// FileModelStore keeps one file per (tenant, horizon) under a directory
type FileModelStore struct {
	dir string
}

// NewFileModelStore creates the directory if needed
func NewFileModelStore(dir string) (*FileModelStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("NewFileModelStore: %w", err)
	}
	return &FileModelStore{dir: dir}, nil
}

// Location returns the models directory
func (s *FileModelStore) Location() string {
	return s.dir
}

// Path is the file an artifact for (tenant, horizon) lives in
func (s *FileModelStore) Path(tenantID string, h Horizon) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s_%s_model.bin", EscapeTenantID(tenantID), h))
}

// Save writes every artifact to a temp file first and renames them over the previous
// artifacts only once all of them are on disk
func (s *FileModelStore) Save(ctx context.Context, tenantID string, artifacts map[Horizon]*Artifact) (map[Horizon]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	staged := make(map[Horizon]string, len(artifacts))
	defer func() {
		for _, tmp := range staged {
			os.Remove(tmp)
		}
	}()

	for _, h := range AllHorizons {
		a, ok := artifacts[h]
		if !ok {
			continue
		}
		tmp, err := s.writeTemp(a)
		if err != nil {
			return nil, fmt.Errorf("Save %s/%s: %w", tenantID, h, err)
		}
		staged[h] = tmp
	}

	refs := make(map[Horizon]string, len(staged))
	for _, h := range AllHorizons {
		tmp, ok := staged[h]
		if !ok {
			continue
		}
		path := s.Path(tenantID, h)
		if err := os.Rename(tmp, path); err != nil {
			return refs, fmt.Errorf("Save %s/%s: rename: %w", tenantID, h, err)
		}
		delete(staged, h)
		refs[h] = path
	}
	return refs, nil
}

func (s *FileModelStore) writeTemp(a *Artifact) (string, error) {
	data, err := a.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("encode: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".artifact-*")
	if err != nil {
		return "", err
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return "", fmt.Errorf("write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(name)
		return "", fmt.Errorf("sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return "", fmt.Errorf("close: %w", err)
	}
	return name, nil
}

// Load reads and decodes an artifact
func (s *FileModelStore) Load(ctx context.Context, tenantID string, h Horizon) (*Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.Path(tenantID, h))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &ModelNotFoundError{TenantID: tenantID, Horizons: []Horizon{h}}
	}
	if err != nil {
		return nil, fmt.Errorf("Load: %w", err)
	}

	var a Artifact
	if err := a.UnmarshalBinary(data); err != nil {
		return nil, fmt.Errorf("Load %s/%s: %w", tenantID, h, err)
	}
	if a.Metadata.TenantID != tenantID || a.Metadata.Horizon != h {
		return nil, fmt.Errorf("Load %s/%s: %w: artifact belongs to %s/%s",
			tenantID, h, errForeignArtifact, a.Metadata.TenantID, a.Metadata.Horizon)
	}
	return &a, nil
}

// Stat reports whether an artifact exists, when it was written and its size
func (s *FileModelStore) Stat(ctx context.Context, tenantID string, h Horizon) (ArtifactInfo, error) {
	info, err := os.Stat(s.Path(tenantID, h))
	if errors.Is(err, fs.ErrNotExist) {
		return ArtifactInfo{}, nil
	}
	if err != nil {
		return ArtifactInfo{}, fmt.Errorf("Stat: %w", err)
	}
	return ArtifactInfo{Exists: true, CreatedAt: info.ModTime(), SizeBytes: info.Size()}, nil
}

// Delete removes an artifact; a missing file is not an error
func (s *FileModelStore) Delete(ctx context.Context, tenantID string, h Horizon) error {
	err := os.Remove(s.Path(tenantID, h))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("Delete: %w", err)
	}
	if err == nil {
		log.Printf("🗑️  Deleted %s model for tenant %s", h, tenantID)
	}
	return nil
}

var errForeignArtifact = errors.New("artifact of another tenant")

// EscapeTenantID turns a tenant id into a file and key component. Letters, digits, '-'
// and '_' pass through; every other byte becomes %XX, so distinct ids never collide and
// the result holds no path separators, dots or colons.
func EscapeTenantID(id string) string {
	if id == "" {
		return "%"
	}
	const hexDigits = "0123456789ABCDEF"
	var b strings.Builder
	for i := 0; i < len(id); i++ {
		c := id[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
			b.WriteByte(c)
		default:
			b.WriteByte('%')
			b.WriteByte(hexDigits[c>>4])
			b.WriteByte(hexDigits[c&0x0f])
		}
	}
	return b.String()
}
