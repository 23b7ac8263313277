package export

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/exportprofiles/internal/metrics"
	"github.com/shrimpsizemoose/exportprofiles/internal/models"
	"github.com/shrimpsizemoose/exportprofiles/internal/store"
)

var ErrProfileNotFound = errors.New("profile not found")

// ScheduledJob exports a saved profile of one user to a directory on a cron
// schedule.
type ScheduledJob struct {
	Name      string `toml:"name" validate:"required"`
	UserID    int64  `toml:"user_id" validate:"min=1"`
	CourseID  int64  `toml:"course_id" validate:"min=1"`
	Profile   string `toml:"profile" validate:"required"`
	Cron      string `toml:"cron" validate:"required"`
	OutputDir string `toml:"output_dir" validate:"required"`
}

// Scheduler runs ScheduledJobs. Scheduled runs only read profiles, they never
// move the last flag or touch Last State.
type Scheduler struct {
	store     store.Store
	exporters Registry
	defaults  models.ExportOptions
	display   models.DisplayType
	scheduler *gocron.Scheduler
	now       func() time.Time
}

func NewScheduler(s store.Store, exporters Registry, defaults models.ExportOptions, display models.DisplayType) *Scheduler {
	scheduler := gocron.NewScheduler(time.UTC)
	scheduler.SingletonModeAll()

	return &Scheduler{
		store:     s,
		exporters: exporters,
		defaults:  defaults,
		display:   display,
		scheduler: scheduler,
		now:       time.Now,
	}
}

func (s *Scheduler) Schedule(jobs []ScheduledJob) error {
	for _, job := range jobs {
		job := job
		_, err := s.scheduler.Cron(job.Cron).Tag(job.Name).Do(func() {
			path, err := s.RunJob(context.Background(), job)
			if err != nil {
				metrics.ScheduledExportsTotal.WithLabelValues(job.Name, "failed").Inc()
				logger.Error.Printf("Scheduled export %s failed: %v", job.Name, err)
				return
			}
			metrics.ScheduledExportsTotal.WithLabelValues(job.Name, "ok").Inc()
			logger.Info.Printf("Scheduled export %s written to %s", job.Name, path)
		})
		if err != nil {
			return fmt.Errorf("failed to schedule export %s: %w", job.Name, err)
		}
		logger.Info.Printf("Scheduled export %s (%s) of profile %q", job.Name, job.Cron, job.Profile)
	}
	return nil
}

func (s *Scheduler) Start() {
	s.scheduler.StartAsync()
}

func (s *Scheduler) Stop() {
	s.scheduler.Stop()
}

// RunJob exports the job's profile once and returns the written path.
func (s *Scheduler) RunJob(ctx context.Context, job ScheduledJob) (string, error) {
	owner := models.Owner{UserID: job.UserID, CourseID: job.CourseID}

	course, err := s.store.GetCourse(ctx, job.CourseID)
	if err != nil {
		return "", err
	}
	if course == nil {
		return "", fmt.Errorf("%w: %d", ErrCourseNotFound, job.CourseID)
	}

	id, ok, err := s.store.GetProfileIDByName(ctx, owner, job.Profile)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrProfileNotFound, job.Profile)
	}

	states, _, err := s.store.GetItemStates(ctx, owner, id)
	if err != nil {
		return "", fmt.Errorf("failed to get item states: %w", err)
	}
	stored, _, err := s.store.GetOptions(ctx, owner, id)
	if err != nil {
		return "", fmt.Errorf("failed to get options: %w", err)
	}
	opts := models.OptionsFromMap(stored, s.defaults)
	opts.EnsureDisplay(s.display)
	if err := opts.Validate(); err != nil {
		return "", fmt.Errorf("%w in profile %q: %v", ErrInvalidOptions, job.Profile, err)
	}

	exporter, err := s.exporters.Get(opts.FileFormat)
	if err != nil {
		return "", err
	}

	all, err := s.store.ListGradeItems(ctx, course.ID)
	if err != nil {
		return "", err
	}
	var items []models.GradeItem
	for _, item := range all {
		if models.ItemIncluded(states, item.ID) {
			items = append(items, item)
		}
	}

	rows, err := s.store.ListGradeRows(ctx, course.ID, 0, opts.OnlyActive)
	if err != nil {
		return "", err
	}
	sheet := BuildSheet(course, items, rows, opts, s.now())

	if err := os.MkdirAll(job.OutputDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output dir: %w", err)
	}
	path := filepath.Join(job.OutputDir, Filename(course, exporter))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create export file: %w", err)
	}
	if err := exporter.Write(f, sheet, opts); err != nil {
		f.Close()
		return "", fmt.Errorf("failed to export grades: %w", err)
	}
	info, statErr := f.Stat()
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close export file: %w", err)
	}

	format := opts.FileFormat.String()
	metrics.ExportsTotal.WithLabelValues(format).Inc()
	if statErr == nil {
		metrics.ExportSizeBytes.WithLabelValues(format).Observe(float64(info.Size()))
	}
	return path, nil
}
