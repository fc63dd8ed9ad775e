// Package course tracks which lecture collections exist and which videos
// were ingested into each.
package course

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	serrors "github.com/sweetpotato0/sensei/errors"
)

// Course is a named collection of lecture videos.
type Course struct {
	Name        string    `json:"name" bson:"_id"`
	PlaylistURL string    `json:"playlist_url,omitempty" bson:"playlist_url,omitempty"`
	VideoIDs    []string  `json:"video_ids" bson:"video_ids"`
	CreatedAt   time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" bson:"updated_at"`
}

// Registry stores courses.
type Registry interface {
	// Create registers a new course; ErrAlreadyExists if the name is taken.
	Create(ctx context.Context, c Course) error
	// Get returns a course or ErrNotFound.
	Get(ctx context.Context, name string) (*Course, error)
	// List returns all courses ordered by name.
	List(ctx context.Context) ([]Course, error)
	// AddVideo records an ingested video, creating the course if needed.
	AddVideo(ctx context.Context, name, videoID string) error
}

// ValidateName rejects names that cannot serve as collection names.
func ValidateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("course name: %w: empty", serrors.ErrInvalidInput)
	}
	if len(name) > 63 {
		return fmt.Errorf("course name: %w: longer than 63 characters", serrors.ErrInvalidInput)
	}
	for _, r := range name {
		if !(r == '-' || r == '_' || r == '.' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
			return fmt.Errorf("course name %q: %w: only letters, digits, '-', '_' and '.' are allowed", name, serrors.ErrInvalidInput)
		}
	}
	return nil
}

// MemoryRegistry is a process-local Registry.
type MemoryRegistry struct {
	mu      sync.RWMutex
	courses map[string]*Course
	now     func() time.Time
}

// NewMemoryRegistry creates an empty registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		courses: make(map[string]*Course),
		now:     time.Now,
	}
}

// Create implements Registry.
func (r *MemoryRegistry) Create(ctx context.Context, c Course) error {
	if err := ValidateName(c.Name); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.courses[c.Name]; ok {
		return fmt.Errorf("course %s: %w", c.Name, serrors.ErrAlreadyExists)
	}
	now := r.now()
	c.CreatedAt, c.UpdatedAt = now, now
	c.VideoIDs = slices.Clone(c.VideoIDs)
	r.courses[c.Name] = &c
	return nil
}

// Get implements Registry.
func (r *MemoryRegistry) Get(ctx context.Context, name string) (*Course, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.courses[name]
	if !ok {
		return nil, fmt.Errorf("course %s: %w", name, serrors.ErrNotFound)
	}
	out := *c
	out.VideoIDs = slices.Clone(c.VideoIDs)
	return &out, nil
}

// List implements Registry.
func (r *MemoryRegistry) List(ctx context.Context) ([]Course, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Course, 0, len(r.courses))
	for _, c := range r.courses {
		cp := *c
		cp.VideoIDs = slices.Clone(c.VideoIDs)
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// AddVideo implements Registry.
func (r *MemoryRegistry) AddVideo(ctx context.Context, name, videoID string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	c, ok := r.courses[name]
	if !ok {
		c = &Course{Name: name, CreatedAt: now}
		r.courses[name] = c
	}
	if !slices.Contains(c.VideoIDs, videoID) {
		c.VideoIDs = append(c.VideoIDs, videoID)
	}
	c.UpdatedAt = now
	return nil
}
