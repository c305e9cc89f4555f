// Package imagehost layers an append-only blob store on top of a public
// image-hosting service. Payloads travel as PNG rasters produced by the
// pixel codec; "latest" is resolved by parsing the UTC timestamp embedded
// in each asset's filename, because the host offers nothing better.
//
// The store is a single shared, unsynchronized object: every write is a
// full fetch-modify-publish cycle with no transactions and no
// compare-and-swap. Two writers that both fetch the same state will each
// compute a divergent successor, and the later publish silently overwrites
// the earlier one. That lost-update behavior is an accepted property of
// this transport, not a defect.
package imagehost

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"pixelchat/pixel"
)

// ErrStoreUnavailable indicates the host was unreachable, returned a
// non-success response, or refused the upload.
var ErrStoreUnavailable = errors.New("imagehost: store unavailable")

// timestampPattern matches the UTC timestamp embedded in asset filenames.
var timestampPattern = regexp.MustCompile(`(\d+\.\d+)`)

// Asset is one hosted image candidate returned by a listing.
type Asset struct {
	// Ref locates the asset on the host: a URL for HTTP hosts, an
	// object key for bucket hosts.
	Ref string
	// Timestamp is the upload time parsed from the filename, the sole
	// ordering key for latest resolution.
	Timestamp float64
}

// Host is the minimal surface a hosting service must offer. Tests
// substitute an in-memory implementation; production uses the freehost or
// miniohost clients.
type Host interface {
	// Upload stores PNG bytes under the given filename.
	Upload(ctx context.Context, filename string, imageBytes []byte) error
	// List returns all assets matching the store's search tag, in any
	// order.
	List(ctx context.Context) ([]Asset, error)
	// Fetch downloads one asset's content.
	Fetch(ctx context.Context, asset Asset) ([]byte, error)
}

// Option customizes a Store.
type Option func(*Store)

// WithRetry installs a retry policy for publish uploads. The store
// performs no retries by default; this is the documented seam for callers
// that want backoff on a flaky host. The factory is invoked once per
// publish so policies start fresh.
func WithRetry(policy func() backoff.BackOff) Option {
	return func(s *Store) {
		s.retryPolicy = policy
	}
}

// WithLogger replaces the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// Store publishes payloads to and fetches them from a Host.
type Store struct {
	host        Host
	codec       *pixel.Codec
	retryPolicy func() backoff.BackOff
	logger      *slog.Logger
}

// NewStore returns a Store over the given host. The codec's marker doubles
// as the host search tag.
func NewStore(host Host, codec *pixel.Codec, opts ...Option) *Store {
	s := &Store{
		host:   host,
		codec:  codec,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// AssetName builds the upload filename for a point in time:
// "{tag}_{utcTimestamp}.png".
func AssetName(tag string, now time.Time) string {
	timestamp := float64(now.UTC().UnixMicro()) / 1e6
	return fmt.Sprintf("%s_%s.png", tag, strconv.FormatFloat(timestamp, 'f', 6, 64))
}

// ExtractTimestamp parses the embedded upload timestamp from an asset
// reference, returning 0 when none is present.
func ExtractTimestamp(ref string) float64 {
	match := timestampPattern.FindString(ref)
	if match == "" {
		return 0
	}
	timestamp, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0
	}

	return timestamp
}

// Publish pixel-encodes the payload and uploads it under a fresh
// timestamped filename. Encoding failures (including ErrPayloadTooLarge)
// propagate as-is; upload failures surface as ErrStoreUnavailable.
func (s *Store) Publish(ctx context.Context, payload []byte) error {
	imageBytes, err := s.codec.Encode(payload)
	if err != nil {
		return err
	}

	filename := AssetName(s.codec.Marker(), time.Now())
	upload := func() error {
		return s.host.Upload(ctx, filename, imageBytes)
	}

	if s.retryPolicy != nil {
		err = backoff.Retry(upload, backoff.WithContext(s.retryPolicy(), ctx))
	} else {
		err = upload()
	}
	if err != nil {
		return fmt.Errorf("%w: upload %q: %v", ErrStoreUnavailable, filename, err)
	}

	return nil
}

// FetchLatest returns the newest payload the host currently reports:
// assets are sorted by embedded timestamp descending and tried in order
// until one decodes with our marker. No matching asset is the valid
// "no data yet" state and yields an empty payload, not an error.
//
// The result is only as fresh as the host's own listing; indexing lag
// means FetchLatest can race arbitrarily with concurrent Publish calls.
func (s *Store) FetchLatest(ctx context.Context) ([]byte, error) {
	assets, err := s.host.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list assets: %v", ErrStoreUnavailable, err)
	}

	sort.SliceStable(assets, func(i, j int) bool {
		return assets[i].Timestamp > assets[j].Timestamp
	})

	for _, asset := range assets {
		imageBytes, err := s.host.Fetch(ctx, asset)
		if err != nil {
			s.logger.Debug("skipping unfetchable asset", "ref", asset.Ref, "error", err)
			continue
		}

		payload, ok, err := s.codec.Decode(imageBytes)
		if err != nil {
			s.logger.Debug("skipping undecodable asset", "ref", asset.Ref, "error", err)
			continue
		}
		if !ok {
			continue
		}

		return payload, nil
	}

	return nil, nil
}
