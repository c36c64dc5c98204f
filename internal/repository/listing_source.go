package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"SignalView/internal/domain/models"
	domrepo "SignalView/internal/domain/repository"
	applogger "SignalView/pkg/logger"
	"SignalView/pkg/objstore"
)

// ListingSource treats every parquet object under a prefix as a data file.
// Write order (last modified) is the only recency signal it has.
type ListingSource struct {
	store                  objstore.Store
	name                   string
	prefix                 string
	ext                    string
	logDir                 string
	fileBudget             int
	fileBudgetWithLookback int
	l                      *applogger.Logger
}

// ListingOption configures a ListingSource.
type ListingOption func(*ListingSource)

// WithFileBudget sets how many newest files a fetch reads, without and
// with an active lookback.
func WithFileBudget(plain, withLookback int) ListingOption {
	return func(s *ListingSource) {
		s.fileBudget = plain
		s.fileBudgetWithLookback = withLookback
	}
}

func NewListingSource(store objstore.Store, desc models.SourceDescriptor, prefix string, opts ...ListingOption) *ListingSource {
	s := &ListingSource{
		store:                  store,
		name:                   desc.Name,
		prefix:                 strings.TrimPrefix(prefix, "/"),
		ext:                    desc.FileExtension,
		logDir:                 desc.LogDir,
		fileBudget:             50,
		fileBudgetWithLookback: 100,
		l:                      applogger.Nop(),
	}
	if s.ext == "" {
		s.ext = ".parquet"
	}
	if s.logDir == "" {
		s.logDir = "_delta_log"
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetLogger injects a structured logger.
func (s *ListingSource) SetLogger(l *applogger.Logger) {
	if l != nil {
		s.l = l
	}
}

func (s *ListingSource) Name() string { return s.name }

// FileBudget is wider when a lookback is active.
func (s *ListingSource) FileBudget(lookback time.Duration) int {
	if lookback > 0 {
		return s.fileBudgetWithLookback
	}
	return s.fileBudget
}

func (s *ListingSource) ListFiles(ctx context.Context) ([]models.DataFileRef, error) {
	objs, err := s.store.List(ctx, s.prefix)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", s.prefix, err)
	}

	refs := make([]models.DataFileRef, 0, len(objs))
	for _, o := range objs {
		if !strings.HasSuffix(strings.ToLower(o.Key), s.ext) {
			continue
		}
		if s.inLogDir(o.Key) {
			continue
		}
		refs = append(refs, models.DataFileRef{Path: o.Key, LastModified: o.LastModified, Size: o.Size})
	}
	sort.SliceStable(refs, func(i, j int) bool {
		if !refs[i].LastModified.Equal(refs[j].LastModified) {
			return refs[i].LastModified.After(refs[j].LastModified)
		}
		return refs[i].Path > refs[j].Path
	})

	s.l.Debug("listed parquet objects",
		applogger.String("source", s.name),
		applogger.String("prefix", s.prefix),
		applogger.Int("objects", len(objs)),
		applogger.Int("files", len(refs)),
	)
	return refs, nil
}

func (s *ListingSource) ReadFile(ctx context.Context, ref models.DataFileRef, opts domrepo.ReadOptions) (*models.Batch, error) {
	b, err := s.store.Get(ctx, ref.Path)
	if err != nil {
		return nil, err
	}
	return DecodeParquet(ref.Path, b, opts.Columns)
}

func (s *ListingSource) inLogDir(key string) bool {
	for _, seg := range strings.Split(key, "/") {
		if seg == s.logDir {
			return true
		}
	}
	return false
}
