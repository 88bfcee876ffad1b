//go:generate go run go.uber.org/mock/mockgen -source=interfaces.go -destination=../mocks/mock_transfer.go -package=mocks
package transfer

import (
	"context"
	"io"

	"teledrive/pkg/models"
	"teledrive/pkg/streaming"
)

// Source enumerates candidate items and opens them as byte streams
type Source interface {
	// Enumerate calls fn for every video in container, newest first.
	// Returning an error from fn stops the scan with that error.
	Enumerate(ctx context.Context, container string, fn func(models.TransferItem) error) error
	Open(ctx context.Context, item models.TransferItem, onProgress streaming.ProgressFunc) (streaming.Stream, error)
}

// WriteRequest is one upload into the sink
type WriteRequest struct {
	ContainerID string
	Name        string
	ContentType string
	Body        io.Reader
	Size        int64
	// OnProgress, when the sink can report acknowledged bytes
	OnProgress streaming.ProgressFunc
}

// WriteResult describes the object the sink created
type WriteResult struct {
	ID       string
	Checksum string // hex md5 when the sink reports one
	Size     int64
}

// Sink stores items in a named container
type Sink interface {
	EnsureContainer(ctx context.Context, name string) (string, error)
	ResolveUniqueName(ctx context.Context, containerID, proposed string) (string, error)
	Write(ctx context.Context, req WriteRequest) (WriteResult, error)
}

// Reauthenticator is implemented by sinks that can refresh credentials
// after an auth-expired failure.
type Reauthenticator interface {
	Reauthenticate(ctx context.Context) error
}

// Recorder persists completed transfers
type Recorder interface {
	Record(key string, rec models.TransferRecord) error
}
