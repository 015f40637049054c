package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"cloud.google.com/go/storage"
	"github.com/rs/zerolog"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrGenerationMismatch is returned by a GCSObject when a conditional write lost a race.
var ErrGenerationMismatch = errors.New("object generation changed")

const defaultGCSUpdateAttempts = 5

// ====================================================================================
// GCSObject abstracts the parts of a Cloud Storage object the snapshot needs, so
// GCSBlob can be tested without a real bucket.
// ====================================================================================

// GCSObject is a single object in a bucket with generation-aware reads and writes.
type GCSObject interface {
	// ReadAll returns the content and generation. A missing object returns (nil, 0, nil).
	ReadAll(ctx context.Context) (data []byte, generation int64, err error)
	// WriteIf writes data only if the object is still at generation.
	// generation 0 means the object must not exist yet.
	WriteIf(ctx context.Context, data []byte, generation int64) error
	fmt.Stringer
}

// gcsObjectAdapter wraps a *storage.ObjectHandle to satisfy GCSObject.
type gcsObjectAdapter struct {
	handle *storage.ObjectHandle
	name   string
}

// NewGCSObjectAdapter creates a GCSObject for bucket/object using client.
func NewGCSObjectAdapter(client *storage.Client, bucket, object string) GCSObject {
	if client == nil {
		return nil
	}
	return &gcsObjectAdapter{
		handle: client.Bucket(bucket).Object(object),
		name:   fmt.Sprintf("gs://%s/%s", bucket, object),
	}
}

func (a *gcsObjectAdapter) String() string { return a.name }

func (a *gcsObjectAdapter) ReadAll(ctx context.Context) ([]byte, int64, error) {
	r, err := a.handle.NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("opening %s: %w", a.name, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, 0, fmt.Errorf("reading %s: %w", a.name, err)
	}
	return data, r.Attrs.Generation, nil
}

func (a *gcsObjectAdapter) WriteIf(ctx context.Context, data []byte, generation int64) error {
	cond := storage.Conditions{GenerationMatch: generation}
	if generation == 0 {
		cond = storage.Conditions{DoesNotExist: true}
	}

	w := a.handle.If(cond).NewWriter(ctx)
	w.ContentType = "application/json"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return a.mapWriteErr(err)
	}
	if err := w.Close(); err != nil {
		return a.mapWriteErr(err)
	}
	return nil
}

// mapWriteErr turns a failed precondition from either transport into ErrGenerationMismatch.
func (a *gcsObjectAdapter) mapWriteErr(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusPreconditionFailed {
		return fmt.Errorf("%w: %s", ErrGenerationMismatch, a.name)
	}
	if status.Code(err) == codes.FailedPrecondition {
		return fmt.Errorf("%w: %s", ErrGenerationMismatch, a.name)
	}
	return fmt.Errorf("writing %s: %w", a.name, err)
}

// GCSBlob is a snapshot location in Cloud Storage. Updates use optimistic
// concurrency on the object generation and retry when another writer got there first.
type GCSBlob struct {
	object      GCSObject
	maxAttempts int
	logger      zerolog.Logger
}

// NewGCSBlob creates a GCSBlob over object.
func NewGCSBlob(object GCSObject, logger zerolog.Logger) (*GCSBlob, error) {
	if object == nil {
		return nil, errors.New("gcs object cannot be nil")
	}
	return &GCSBlob{
		object:      object,
		maxAttempts: defaultGCSUpdateAttempts,
		logger:      logger.With().Str("component", "GCSBlob").Str("object", object.String()).Logger(),
	}, nil
}

func (b *GCSBlob) String() string { return b.object.String() }

// Read returns the object content, or nil if it does not exist.
func (b *GCSBlob) Read(ctx context.Context) ([]byte, error) {
	data, _, err := b.object.ReadAll(ctx)
	return data, err
}

// Update applies merge to the current content and writes it back if nobody else
// wrote in between. Cloud Storage writes are durable once acknowledged, so the
// durable flag needs no extra work here.
func (b *GCSBlob) Update(ctx context.Context, merge func(current []byte) ([]byte, error), _ bool) error {
	for attempt := 1; attempt <= b.maxAttempts; attempt++ {
		current, generation, err := b.object.ReadAll(ctx)
		if err != nil {
			return err
		}
		next, err := merge(current)
		if err != nil {
			return err
		}

		err = b.object.WriteIf(ctx, next, generation)
		if err == nil {
			b.logger.Debug().Int("bytes", len(next)).Int("attempt", attempt).Msg("Snapshot object written.")
			return nil
		}
		if !errors.Is(err, ErrGenerationMismatch) {
			return err
		}
		b.logger.Debug().Int("attempt", attempt).Msg("Snapshot object changed concurrently, retrying.")
	}
	return fmt.Errorf("updating %s: gave up after %d attempts: %w", b.object, b.maxAttempts, ErrGenerationMismatch)
}
