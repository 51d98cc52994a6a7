// Package intake turns source payloads into canonical, deduplicated events.
package intake

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rcliao/meridian/internal/logger"
	"github.com/rcliao/meridian/internal/model"
	"github.com/rcliao/meridian/internal/store"
	"github.com/rcliao/meridian/internal/textutil"
)

// ErrInvalidPayload is returned for payloads missing a headline or source.
var ErrInvalidPayload = errors.New("invalid payload")

// DefaultBucket is the dedup time bucket.
const DefaultBucket = time.Hour

// Payload is one raw source record.
type Payload struct {
	Source      string     `json:"source"`
	Headline    string     `json:"headline"`
	Body        string     `json:"body,omitempty"`
	URL         string     `json:"url,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
}

// EventStore is the persistence the normalizer needs.
type EventStore interface {
	UpsertEvent(ctx context.Context, p store.UpsertEventParams) (*model.Event, bool, error)
}

// Normalizer validates, keys and stores payloads.
type Normalizer struct {
	store  EventStore
	bucket time.Duration
	now    func() time.Time
}

// NewNormalizer creates a normalizer. A non-positive bucket means DefaultBucket.
func NewNormalizer(s EventStore, bucket time.Duration) *Normalizer {
	if bucket <= 0 {
		bucket = DefaultBucket
	}
	return &Normalizer{
		store:  s,
		bucket: bucket,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// DedupKey derives the canonical key of an event: the SHA-256 of the
// normalized headline, the source and the publish time truncated to the
// bucket in UTC.
func DedupKey(source, headline string, published time.Time, bucket time.Duration) string {
	slot := published.UTC().Truncate(bucket).Format(time.RFC3339)
	sum := sha256.Sum256([]byte(
		strings.ToLower(textutil.CollapseSpace(headline)) + "|" +
			strings.ToLower(strings.TrimSpace(source)) + "|" + slot))
	return hex.EncodeToString(sum[:])
}

// Ingest stores one payload. It returns the stored event and whether it was
// newly created; a payload matching an existing key only refreshes it.
func (n *Normalizer) Ingest(ctx context.Context, p Payload) (*model.Event, bool, error) {
	source := strings.ToLower(textutil.Clean(p.Source))
	headline := textutil.Clean(p.Headline)

	var missing []string
	if headline == "" {
		missing = append(missing, "headline")
	}
	if source == "" {
		missing = append(missing, "source")
	}
	if len(missing) > 0 {
		logger.Log.WithFields(logrus.Fields{
			"source":   p.Source,
			"headline": textutil.Truncate(p.Headline, 80),
			"url":      p.URL,
			"missing":  strings.Join(missing, ","),
		}).Warn("rejected intake payload")
		return nil, false, fmt.Errorf("%w: missing %s", ErrInvalidPayload, strings.Join(missing, ", "))
	}

	discovered := n.now()
	published := discovered
	if p.PublishedAt != nil && !p.PublishedAt.IsZero() {
		published = p.PublishedAt.UTC()
	} else {
		logger.Log.WithFields(logrus.Fields{
			"source":   source,
			"headline": textutil.Truncate(headline, 80),
		}).Warn("payload has no publish time, using discovery time")
	}

	e, created, err := n.store.UpsertEvent(ctx, store.UpsertEventParams{
		DedupKey:     DedupKey(source, headline, published, n.bucket),
		Source:       source,
		Headline:     headline,
		Body:         textutil.CleanBody(p.Body),
		URL:          strings.TrimSpace(p.URL),
		PublishedAt:  published,
		DiscoveredAt: discovered,
	})
	if err != nil {
		return nil, false, fmt.Errorf("ingest %q: %w", textutil.Truncate(headline, 80), err)
	}

	logger.Log.WithFields(logrus.Fields{
		"event_id": e.ID,
		"source":   source,
		"created":  created,
	}).Debug("ingested payload")
	return e, created, nil
}

// IngestBatch stores payloads one by one. A bad record is counted as failed
// and never blocks the rest. New events count as processed, refreshes of
// existing events as skipped.
func (n *Normalizer) IngestBatch(ctx context.Context, payloads []Payload) model.RunReport {
	var report model.RunReport
	for i, p := range payloads {
		if ctx.Err() != nil {
			report.Skipped += len(payloads) - i
			logger.Log.WithField("remaining", len(payloads)-i).Warn("intake batch cancelled")
			break
		}
		_, created, err := n.Ingest(ctx, p)
		switch {
		case err != nil:
			report.Failed++
			if !errors.Is(err, ErrInvalidPayload) {
				logger.Log.WithField("source", p.Source).Errorf("ingest failed: %v", err)
			}
		case created:
			report.Processed++
		default:
			report.Skipped++
		}
	}
	return report
}
