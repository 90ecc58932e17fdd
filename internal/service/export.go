package service

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"mime"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	_ "golang.org/x/image/webp"

	"github.com/timmy/artsync/internal/domain"
	"github.com/timmy/artsync/internal/logger"
	"github.com/timmy/artsync/internal/paging"
	"github.com/timmy/artsync/internal/repository"
	"github.com/timmy/artsync/internal/source/client"
	"github.com/timmy/artsync/internal/storage"
)

var (
	// ErrInvalidLimit is returned when neither a positive limit nor "all" is requested.
	ErrInvalidLimit = errors.New("limit must be positive unless exporting everything")

	// ErrJobNotRunning is returned when cancelling a job that is not in progress.
	ErrJobNotRunning = errors.New("export job is not running")

	errSkipExported = errors.New("skipped: already exported")
)

const (
	slugMaxLen     = 40
	progressEvery  = 25
	maxErrorLogLen = 4000
)

// ExportOptions holds options for one export run.
type ExportOptions struct {
	All     bool // export everything; limit is ignored
	Force   bool // re-export items already in the archive
	Partial bool // on a fetch failure, still export what was fetched
}

// ExportConfig holds configuration for the export service.
type ExportConfig struct {
	Workers              int
	MaxEmptyRounds       int
	ReturnPartialOnError bool
	DownloadTimeout      time.Duration
	RetryCount           int
	MaxMediaBytes        int64  // 0 uses the client default
	KeyPrefix            string // prepended to every storage key
}

// ExportService fetches items from a source and writes them, with JSON
// sidecars, to object storage, recording each in the archive index.
type ExportService struct {
	registry    *SourceRegistry
	archiveRepo *repository.ArchiveRepository
	jobRepo     *repository.JobRepository
	storage     storage.ObjectStorage
	media       *client.Client
	fs          afero.Fs
	logger      *logger.Logger
	cfg         ExportConfig

	mu      sync.Mutex
	running map[string]context.CancelFunc
	wg      sync.WaitGroup
}

// NewExportService creates a new export service.
// Parameters:
//   - registry: configured sources.
//   - archiveRepo: export index.
//   - jobRepo: job persistence.
//   - objectStorage: export destination.
//   - fs: filesystem for file:// media; nil means the OS filesystem.
//   - log: fallback logger.
//   - cfg: worker and retrieval settings.
//
// Returns:
//   - *ExportService: initialized service.
func NewExportService(
	registry *SourceRegistry,
	archiveRepo *repository.ArchiveRepository,
	jobRepo *repository.JobRepository,
	objectStorage storage.ObjectStorage,
	fs afero.Fs,
	log *logger.Logger,
	cfg *ExportConfig,
) *ExportService {
	c := *cfg
	if c.Workers < 1 {
		c.Workers = 1
	}
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &ExportService{
		registry:    registry,
		archiveRepo: archiveRepo,
		jobRepo:     jobRepo,
		storage:     objectStorage,
		media:       client.New(&client.Config{
			Timeout:      c.DownloadTimeout,
			RetryCount:   c.RetryCount,
			MaxBodyBytes: c.MaxMediaBytes,
		}),
		fs:          fs,
		logger:      log,
		cfg:         c,
		running:     make(map[string]context.CancelFunc),
	}
}

// log returns the request logger if ctx carries one, otherwise the service logger.
func (s *ExportService) log(ctx context.Context) *logger.Logger {
	return logger.FromContextOr(ctx, s.logger)
}

// Export runs an export to completion and returns the finished job.
// Parameters:
//   - ctx: cancelling it stops the run; the job ends as cancelled.
//   - sourceID: configured source to export from.
//   - limit: number of items to export unless opts.All is set.
//   - opts: export options.
//
// Returns:
//   - *domain.ExportJob: the job in its terminal state.
//   - error: non-nil only if the job could not be created or run at all.
func (s *ExportService) Export(ctx context.Context, sourceID string, limit int, opts ExportOptions) (*domain.ExportJob, error) {
	job, pager, err := s.prepare(ctx, sourceID, limit, opts)
	if err != nil {
		return nil, err
	}
	s.run(ctx, job, pager, limit, opts)
	return job, nil
}

// Start creates a job and runs it in the background. The returned job is a
// snapshot in the running state; poll GetJob for progress.
func (s *ExportService) Start(ctx context.Context, sourceID string, limit int, opts ExportOptions) (*domain.ExportJob, error) {
	job, pager, err := s.prepare(ctx, sourceID, limit, opts)
	if err != nil {
		return nil, err
	}
	snapshot := *job

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.mu.Lock()
	s.running[job.ID] = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		s.run(runCtx, job, pager, limit, opts)
	}()

	return &snapshot, nil
}

// Cancel stops a background job started by Start.
func (s *ExportService) Cancel(jobID string) error {
	s.mu.Lock()
	cancel, ok := s.running[jobID]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotRunning, jobID)
	}
	cancel()
	return nil
}

// Shutdown cancels background jobs and waits for them to record their state.
func (s *ExportService) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	for _, cancel := range s.running {
		cancel()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// GetJob returns a job by ID.
func (s *ExportService) GetJob(ctx context.Context, id string) (*domain.ExportJob, error) {
	return s.jobRepo.GetByID(ctx, id)
}

func (s *ExportService) prepare(ctx context.Context, sourceID string, limit int, opts ExportOptions) (*domain.ExportJob, paging.Pager[domain.Item], error) {
	if !opts.All && limit <= 0 {
		return nil, nil, ErrInvalidLimit
	}
	entry, err := s.registry.Get(sourceID)
	if err != nil {
		return nil, nil, err
	}
	pager, err := entry.NewPager()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create pager: %w", err)
	}

	now := time.Now()
	job := &domain.ExportJob{
		ID:        uuid.New().String(),
		SourceID:  sourceID,
		Status:    domain.JobStatusRunning,
		StartedAt: &now,
	}
	if !opts.All {
		job.Requested = limit
	}
	if err := s.jobRepo.Create(ctx, job); err != nil {
		return nil, nil, fmt.Errorf("failed to create export job: %w", err)
	}
	return job, pager, nil
}

func (s *ExportService) run(ctx context.Context, job *domain.ExportJob, pager paging.Pager[domain.Item], limit int, opts ExportOptions) {
	ctx = s.log(ctx).WithContext(ctx)
	ctx = logger.SetJobID(logger.SetSource(logger.SetComponent(ctx, "export"), job.SourceID), job.ID)
	start := time.Now()

	s.log(ctx).WithFields(logger.Fields{
		"limit": limit,
		"all":   opts.All,
		"force": opts.Force,
	}).Info("Starting export")

	agg := paging.NewAggregator(pager, &paging.BulkOptions{
		ReturnPartialOnError: opts.Partial || s.cfg.ReturnPartialOnError,
		MaxEmptyRounds:       s.cfg.MaxEmptyRounds,
		OnPage: func(fetched, total int, more bool) {
			s.log(ctx).WithFields(logger.Fields{
				logger.FieldCount: fetched,
				"total":           total,
				logger.FieldMore:  more,
			}).Debug("Fetched page for export")
		},
	})

	var res *paging.BulkResult[domain.Item]
	if opts.All {
		res, _ = agg.FetchAll(ctx)
	} else {
		res, _ = agg.FetchUpTo(ctx, limit)
	}

	job.FetchedItems = len(res.Items)
	if res.Err != nil && !paging.IsCancelled(res.Err) {
		job.ErrorLog = appendErrorLog(job.ErrorLog, "fetch: "+errorReason(res.Err))
	}

	// A cancelled fetch exports nothing.
	if res.Status != paging.StatusCancelled && len(res.Items) > 0 {
		s.exportItems(ctx, job, res.Items, opts)
	}

	switch {
	case res.Status == paging.StatusCancelled || ctx.Err() != nil:
		job.Status = domain.JobStatusCancelled
	case res.Status == paging.StatusFailed:
		job.Status = domain.JobStatusFailed
	default:
		job.Status = domain.JobStatusCompleted
	}
	completed := time.Now()
	job.CompletedAt = &completed

	// Drop the job from the cancellable set before its final state is visible.
	s.mu.Lock()
	delete(s.running, job.ID)
	s.mu.Unlock()

	// The run context may be cancelled; the final state must still be saved.
	if err := s.jobRepo.Update(context.WithoutCancel(ctx), job); err != nil {
		logger.CtxError(ctx, "Failed to save export job: %v", err)
	}

	s.log(ctx).WithFields(logger.Fields{
		logger.FieldStatus:     string(job.Status),
		"fetched":              job.FetchedItems,
		"exported":             job.ExportedItems,
		"skipped":              job.SkippedItems,
		"failed":               job.FailedItems,
		logger.FieldDurationMs: time.Since(start).Milliseconds(),
	}).Info("Export finished")
}

type exportResult struct {
	viewURL string
	skipped bool
	err     error
}

// exportItems feeds items to the worker pool and folds results into job.
func (s *ExportService) exportItems(ctx context.Context, job *domain.ExportJob, items []domain.Item, opts ExportOptions) {
	itemsChan := make(chan domain.Item, s.cfg.Workers*2)
	resultsChan := make(chan exportResult, s.cfg.Workers*2)

	var wg sync.WaitGroup
	for i := 0; i < s.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.worker(ctx, job.ID, job.SourceID, itemsChan, resultsChan, opts)
		}()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		seen := 0
		for result := range resultsChan {
			seen++
			switch {
			case result.skipped:
				job.SkippedItems++
			case result.err != nil:
				job.FailedItems++
				job.ErrorLog = appendErrorLog(job.ErrorLog, result.viewURL+": "+result.err.Error())
				s.log(ctx).WithField("view_url", result.viewURL).WithError(result.err).Warn("Failed to export item")
			default:
				job.ExportedItems++
			}
			if seen%progressEvery == 0 {
				if err := s.jobRepo.Update(ctx, job); err != nil {
					logger.CtxWarn(ctx, "Failed to save export progress: %v", err)
				}
			}
		}
	}()

feed:
	for _, item := range items {
		select {
		case itemsChan <- item:
		case <-ctx.Done():
			break feed
		}
	}

	close(itemsChan)
	wg.Wait()
	close(resultsChan)
	<-done
}

func (s *ExportService) worker(ctx context.Context, jobID, sourceID string, items <-chan domain.Item, results chan<- exportResult, opts ExportOptions) {
	for item := range items {
		if ctx.Err() != nil {
			return
		}
		result := exportResult{viewURL: item.GetViewURL()}
		if err := s.exportItem(ctx, jobID, sourceID, item, opts); err != nil {
			if errors.Is(err, errSkipExported) {
				result.skipped = true
			} else {
				result.err = err
			}
		}
		results <- result
	}
}

func (s *ExportService) exportItem(ctx context.Context, jobID, sourceID string, item domain.Item, opts ExportOptions) error {
	if !opts.Force {
		exists, err := s.archiveRepo.ExistsByViewURL(ctx, sourceID, item.GetViewURL())
		if err != nil {
			return fmt.Errorf("failed to check archive: %w", err)
		}
		if exists {
			return errSkipExported
		}
	}

	record := &domain.ArchivedItem{
		ID:              ArchiveItemID(sourceID, item.GetViewURL()),
		SourceID:        sourceID,
		ViewURL:         item.GetViewURL(),
		Kind:            item.Kind(),
		Title:           item.GetTitle(),
		DescriptionHTML: item.GetDescriptionHTML(),
		PostedAt:        item.GetTimestamp(),
		JobID:           jobID,
	}

	var mediaKey string
	uploaded := false

	post, isPost := item.(domain.ContentItem)
	if isPost {
		data, contentType, err := s.fetchMedia(ctx, post.MediaURL)
		if err != nil {
			return fmt.Errorf("failed to download media: %w", err)
		}

		md5Hash := calculateMD5(data)
		format, width, height := imageInfo(data)
		ext := extension(format, contentType, post.MediaURL)
		mediaKey = path.Join(s.cfg.KeyPrefix, sourceID, FileName(post.Timestamp, post.Title, md5Hash, ext))

		existsInStorage, err := s.storage.Exists(ctx, mediaKey)
		if err != nil {
			return fmt.Errorf("failed to check storage existence: %w", err)
		}
		if !existsInStorage {
			if err := s.storage.Upload(ctx, mediaKey, bytes.NewReader(data), int64(len(data)), getContentType(ext, contentType)); err != nil {
				return fmt.Errorf("failed to upload media: %w", err)
			}
			uploaded = true
		}

		record.Mature = post.Mature
		record.Adult = post.Adult
		record.Tags = post.TagSet()
		record.MediaURL = post.MediaURL
		record.ThumbnailURL = post.ThumbnailURL
		record.StorageKey = mediaKey
		record.MD5Hash = md5Hash
		record.Format = ext
		record.Width = width
		record.Height = height
		record.FileSize = int64(len(data))
	}

	sidecar, err := json.MarshalIndent(domain.NewExportRecord(item), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode sidecar: %w", err)
	}
	sidecarKey := mediaKey + ".json"
	if !isPost {
		digest := calculateMD5([]byte(item.GetViewURL()))
		sidecarKey = path.Join(s.cfg.KeyPrefix, sourceID, FileName(item.GetTimestamp(), item.GetTitle(), digest, "json"))
	}
	record.SidecarKey = sidecarKey

	if err := s.storage.Upload(ctx, sidecarKey, bytes.NewReader(sidecar), int64(len(sidecar)), "application/json"); err != nil {
		s.rollback(ctx, uploaded, mediaKey)
		return fmt.Errorf("failed to upload sidecar: %w", err)
	}

	if err := s.archiveRepo.Upsert(ctx, record); err != nil {
		s.rollback(ctx, uploaded, mediaKey)
		return fmt.Errorf("failed to record export: %w", err)
	}
	return nil
}

// rollback removes media this attempt uploaded. The sidecar is left: it is
// rewritten on the next attempt.
func (s *ExportService) rollback(ctx context.Context, uploaded bool, key string) {
	if !uploaded {
		return
	}
	if err := s.storage.Delete(context.WithoutCancel(ctx), key); err != nil {
		s.log(ctx).WithField("storage_key", key).WithError(err).Error("Failed to rollback media upload")
	}
}

// fetchMedia downloads http(s) media and reads file:// media from the
// local filesystem.
func (s *ExportService) fetchMedia(ctx context.Context, rawURL string) ([]byte, string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, "", fmt.Errorf("invalid media URL %q: %w", rawURL, err)
	}
	switch u.Scheme {
	case "http", "https":
		return s.media.GetBytes(ctx, rawURL)
	case "file":
		data, err := afero.ReadFile(s.fs, u.Path)
		if err != nil {
			return nil, "", err
		}
		return data, mime.TypeByExtension(path.Ext(u.Path)), nil
	default:
		return nil, "", fmt.Errorf("unsupported media URL scheme %q", u.Scheme)
	}
}

// ArchiveItemID derives a stable archive ID from source and view URL, so
// re-exports update the same row.
func ArchiveItemID(sourceID, viewURL string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(sourceID+"\n"+viewURL)).String()
}

// FileName builds "yyyyMMdd-<slug>-<hash8>.<ext>".
func FileName(ts time.Time, title, md5Hash, ext string) string {
	hash := md5Hash
	if len(hash) > 8 {
		hash = hash[:8]
	}
	return fmt.Sprintf("%s-%s-%s.%s", ts.UTC().Format("20060102"), Slug(title), hash, ext)
}

// Slug lowercases title and keeps letters and digits, joining runs of
// anything else with a single dash.
func Slug(title string) string {
	var b strings.Builder
	dash := false
	n := 0
	for _, r := range strings.ToLower(title) {
		if n >= slugMaxLen {
			break
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if dash && b.Len() > 0 {
				if n+2 > slugMaxLen {
					break
				}
				b.WriteByte('-')
				n++
			}
			b.WriteRune(r)
			n++
			dash = false
			continue
		}
		dash = true
	}
	if b.Len() == 0 {
		return "untitled"
	}
	return b.String()
}

func calculateMD5(data []byte) string {
	hash := md5.Sum(data)
	return hex.EncodeToString(hash[:])
}

// imageInfo returns the decoded format and dimensions, or zeros for data
// that is not a known image.
func imageInfo(data []byte) (string, int, int) {
	config, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", 0, 0
	}
	return format, config.Width, config.Height
}

// extension picks the file extension from the sniffed format, then the
// content type, then the URL.
func extension(format, contentType, rawURL string) string {
	switch format {
	case "jpeg":
		return "jpg"
	case "png", "gif", "webp":
		return format
	}
	if contentType != "" {
		if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
			switch mediaType {
			case "image/jpeg":
				return "jpg"
			case "image/png":
				return "png"
			case "image/gif":
				return "gif"
			case "image/webp":
				return "webp"
			}
		}
	}
	if u, err := url.Parse(rawURL); err == nil {
		if ext := strings.TrimPrefix(strings.ToLower(path.Ext(u.Path)), "."); ext != "" && len(ext) <= 5 {
			return ext
		}
	}
	return "bin"
}

func getContentType(ext, fallback string) string {
	switch ext {
	case "jpg", "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	case "webp":
		return "image/webp"
	}
	if fallback != "" {
		return fallback
	}
	return "application/octet-stream"
}

func appendErrorLog(log, line string) string {
	if len(log) >= maxErrorLogLen {
		return log
	}
	if log != "" {
		log += "\n"
	}
	log += line
	if len(log) > maxErrorLogLen {
		// Cut on a rune boundary so the column stays valid UTF-8.
		cut := maxErrorLogLen
		for cut > 0 && !utf8.RuneStart(log[cut]) {
			cut--
		}
		log = log[:cut]
	}
	return log
}
