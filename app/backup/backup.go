// Package backup dumps the whole collection to a portable JSON or YAML file
// on a cron schedule and restores from such dumps. Restore replaces the
// collection transactionally, a failed restore leaves everything as it was.
package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/google/uuid"
	"github.com/invopop/jsonschema"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/umputun/apptrack/app/domain"
)

// dumpVersion is bumped when the dump format changes shape
const dumpVersion = 1

// Repo is the repository surface backup depends on
type Repo interface {
	All() []domain.JobApplication
	ReplaceAll(apps []domain.JobApplication) error
	Updates() <-chan struct{}
}

// Format selects the dump encoding
type Format int

// supported dump encodings
const (
	FormatJSON Format = iota
	FormatYAML
)

func (f Format) String() string {
	if f == FormatYAML {
		return "yaml"
	}
	return "json"
}

// ParseFormat converts a string to Format
func ParseFormat(v string) (Format, error) {
	switch strings.ToLower(v) {
	case "json", "":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	}
	return FormatJSON, fmt.Errorf("unknown backup format %q", v)
}

// Record is the portable representation of one application
type Record struct {
	ID                     string     `json:"id" yaml:"id"`
	JobTitle               string     `json:"job_title" yaml:"job_title"`
	CompanyName            string     `json:"company_name" yaml:"company_name"`
	ApplicationDate        time.Time  `json:"application_date" yaml:"application_date"`
	Status                 string     `json:"status" yaml:"status"`
	Location               string     `json:"location" yaml:"location"`
	LocationKind           string     `json:"location_kind" yaml:"location_kind"`
	ApplicationLink        string     `json:"application_link,omitempty" yaml:"application_link,omitempty"`
	Notes                  string     `json:"notes,omitempty" yaml:"notes,omitempty"`
	JobDescription         string     `json:"job_description,omitempty" yaml:"job_description,omitempty"`
	DatePosted             *time.Time `json:"date_posted,omitempty" yaml:"date_posted,omitempty"`
	SalaryRange            string     `json:"salary_range,omitempty" yaml:"salary_range,omitempty"`
	RequiredQualifications string     `json:"required_qualifications,omitempty" yaml:"required_qualifications,omitempty"`
	CompanyDescription     string     `json:"company_description,omitempty" yaml:"company_description,omitempty"`
}

// Dump is the top-level backup file shape
type Dump struct {
	Version      int       `json:"version" yaml:"version"`
	CreatedAt    time.Time `json:"created_at" yaml:"created_at"`
	Applications []Record  `json:"applications" yaml:"applications"`
}

// Backup exports and restores dumps for the given repository
type Backup struct {
	repo   Repo
	path   string
	format Format
	dirty  atomic.Bool
	now    func() time.Time
}

// New creates a Backup writing to path in the given format
func New(repo Repo, path string, format Format) *Backup {
	res := &Backup{repo: repo, path: path, format: format, now: time.Now}
	res.dirty.Store(true) // first scheduled export always runs
	return res
}

// Export writes the current collection to the configured path, via a temp
// file and rename so a crash never leaves a truncated dump.
func (b *Backup) Export() error {
	dump := Dump{Version: dumpVersion, CreatedAt: b.now()}
	for _, app := range b.repo.All() {
		dump.Applications = append(dump.Applications, toRecord(app))
	}

	var data []byte
	var err error
	switch b.format {
	case FormatYAML:
		data, err = yaml.Marshal(dump)
	default:
		data, err = json.MarshalIndent(dump, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to marshal backup: %w", err)
	}

	tmp := b.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write backup file: %w", err)
	}
	if err := os.Rename(tmp, b.path); err != nil {
		return fmt.Errorf("failed to move backup file in place: %w", err)
	}

	log.Printf("[INFO] exported %d applications to %s", len(dump.Applications), b.path)
	return nil
}

// Restore replaces the collection from a dump file. The encoding is picked
// by file extension, .yml/.yaml is YAML, anything else JSON.
func (b *Backup) Restore(path string) error {
	data, err := os.ReadFile(path) // nolint:gosec // path comes from the operator
	if err != nil {
		return fmt.Errorf("failed to read backup file: %w", err)
	}

	var dump Dump
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml":
		err = yaml.Unmarshal(data, &dump)
	default:
		err = json.Unmarshal(data, &dump)
	}
	if err != nil {
		return fmt.Errorf("failed to parse backup file: %w", err)
	}
	if dump.Version > dumpVersion {
		return fmt.Errorf("backup version %d is newer than supported %d", dump.Version, dumpVersion)
	}

	apps := make([]domain.JobApplication, 0, len(dump.Applications))
	for _, rec := range dump.Applications {
		apps = append(apps, fromRecord(rec))
	}

	if err := b.repo.ReplaceAll(apps); err != nil {
		return fmt.Errorf("failed to restore applications: %w", err)
	}
	log.Printf("[INFO] restored %d applications from %s", len(apps), path)
	return nil
}

// Run exports on the given cron spec until the context is canceled,
// skipping runs when nothing changed since the last export. Blocking.
func (b *Backup) Run(ctx context.Context, spec string) error {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		if !b.dirty.Swap(false) {
			log.Printf("[DEBUG] backup skipped, no changes since last export")
			return
		}
		if err := b.Export(); err != nil {
			b.dirty.Store(true) // try again on the next tick
			log.Printf("[WARN] scheduled backup failed: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule backup %q: %w", spec, err)
	}

	go func() { // mark dirty on repository changes
		for {
			select {
			case <-ctx.Done():
				return
			case <-b.repo.Updates():
				b.dirty.Store(true)
			}
		}
	}()

	log.Printf("[INFO] backup scheduled %q to %s (%s)", spec, b.path, b.format)
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

// Schema returns the JSON schema of the dump format for external tooling
func Schema() ([]byte, error) {
	schema := jsonschema.Reflect(&Dump{})
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	return data, nil
}

func toRecord(app domain.JobApplication) Record {
	return Record{
		ID:                     app.ID,
		JobTitle:               app.JobTitle,
		CompanyName:            app.CompanyName,
		ApplicationDate:        app.ApplicationDate,
		Status:                 app.Status.String(),
		Location:               app.Location.DisplayString(),
		LocationKind:           app.Location.Kind.String(),
		ApplicationLink:        app.ApplicationLink,
		Notes:                  app.Notes,
		JobDescription:         app.JobDescription,
		DatePosted:             app.DatePosted,
		SalaryRange:            app.SalaryRange,
		RequiredQualifications: app.RequiredQualifications,
		CompanyDescription:     app.CompanyDescription,
	}
}

// fromRecord is tolerant the same way the store load path is, a damaged
// dump entry degrades to defaults instead of failing the whole restore
func fromRecord(rec Record) domain.JobApplication {
	app := domain.JobApplication{
		ID:                     rec.ID,
		JobTitle:               rec.JobTitle,
		CompanyName:            rec.CompanyName,
		ApplicationDate:        rec.ApplicationDate,
		ApplicationLink:        rec.ApplicationLink,
		Notes:                  rec.Notes,
		JobDescription:         rec.JobDescription,
		DatePosted:             rec.DatePosted,
		SalaryRange:            rec.SalaryRange,
		RequiredQualifications: rec.RequiredQualifications,
		CompanyDescription:     rec.CompanyDescription,
	}
	if app.ID == "" {
		app.ID = uuid.New().String()
	}
	if app.ApplicationDate.IsZero() {
		app.ApplicationDate = time.Now()
	}

	app.Status = domain.DefaultStatus
	if st, err := domain.ParseStatus(rec.Status); err == nil {
		app.Status = st
	} else if rec.Status != "" {
		log.Printf("[WARN] invalid status %q in backup record %s", rec.Status, app.ID)
	}

	app.Location = domain.MakeLocation(rec.LocationKind, rec.Location)
	return app
}
