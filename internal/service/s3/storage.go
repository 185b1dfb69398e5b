package s3

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrObjectExists is returned by Put when the key is already taken.
	ErrObjectExists = errors.New("object already exists")
	// ErrObjectNotFound is returned by Modified for a missing key.
	ErrObjectNotFound = errors.New("object not found")
)

// Storage is the blob store used for version files and audio attachments.
type Storage interface {
	// Put writes data under path and fails with ErrObjectExists rather than
	// overwriting an existing object.
	Put(ctx context.Context, path string, data []byte, contentType string) error
	Remove(ctx context.Context, paths []string) error
	// Modified reports when the object at path was last written.
	Modified(ctx context.Context, path string) (time.Time, error)
	SignedURL(ctx context.Context, path string, ttl time.Duration) (string, error)
	PublicURL(path string) string
}

// RemoveError lists the keys a batch delete could not remove.
type RemoveError struct {
	Failed map[string]string
}

func (e *RemoveError) Error() string {
	keys := make([]string, 0, len(e.Failed))
	for k, reason := range e.Failed {
		keys = append(keys, fmt.Sprintf("%s (%s)", k, reason))
	}
	return "failed to remove objects: " + strings.Join(keys, ", ")
}
