package persistence

import (
	"database/sql"
	"fmt"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // sqlite driver

	"github.com/umputun/apptrack/app/domain"
)

// record is the sparse stored row shape. Every column beyond id is nullable,
// legacy rows may miss any of them and the load path substitutes defaults.
type record struct {
	ID                     sql.NullString `db:"id"`
	JobTitle               sql.NullString `db:"job_title"`
	CompanyName            sql.NullString `db:"company_name"`
	ApplicationDate        sql.NullInt64  `db:"application_date"`
	Status                 sql.NullString `db:"status"`
	Location               sql.NullString `db:"location"`
	LocationKind           sql.NullString `db:"location_kind"`
	ApplicationLink        sql.NullString `db:"application_link"`
	Notes                  sql.NullString `db:"notes"`
	JobDescription         sql.NullString `db:"job_description"`
	DatePosted             sql.NullInt64  `db:"date_posted"`
	SalaryRange            sql.NullString `db:"salary_range"`
	RequiredQualifications sql.NullString `db:"required_qualifications"`
	CompanyDescription     sql.NullString `db:"company_description"`
}

// SQLiteStore implements persistence using SQLite
type SQLiteStore struct {
	db  *sqlx.DB
	now func() time.Time // substituted in tests
}

// NewSQLiteStore opens the database, enables WAL mode and creates the schema
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to set WAL mode: %w (also failed to close db: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	res := &SQLiteStore{db: db, now: time.Now}
	if err := res.initialize(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to initialize schema: %w (also failed to close db: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return res, nil
}

// initialize creates the database schema
func (s *SQLiteStore) initialize() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS applications (
			id TEXT PRIMARY KEY,
			job_title TEXT,
			company_name TEXT,
			application_date INTEGER,
			status TEXT,
			location TEXT,
			location_kind TEXT,
			application_link TEXT,
			notes TEXT,
			job_description TEXT,
			date_posted INTEGER,
			salary_range TEXT,
			required_qualifications TEXT,
			company_description TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_applications_date ON applications(application_date)`,
	}

	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}
	return nil
}

// Load retrieves all applications ordered by application date, newest first.
// Malformed rows degrade to defaults and never fail the whole load, only
// storage-level errors (unreadable database) are returned.
func (s *SQLiteStore) Load() ([]domain.JobApplication, error) {
	rows, err := s.db.Queryx(`SELECT id, job_title, company_name, application_date, status, location, location_kind,
		application_link, notes, job_description, date_posted, salary_range, required_qualifications, company_description
		FROM applications ORDER BY application_date DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query applications: %w", err)
	}
	defer rows.Close()

	apps := []domain.JobApplication{}
	for rows.Next() {
		var rec record
		if err := rows.StructScan(&rec); err != nil {
			log.Printf("[WARN] failed to scan application row: %v", err)
			continue
		}
		apps = append(apps, s.fromRecord(rec))
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return apps, nil
}

// Save writes the whole record back, inserting or replacing by id. The
// location kind tag is always written so the round trip is exact for
// anything saved by this code.
func (s *SQLiteStore) Save(app domain.JobApplication) error {
	if _, err := s.db.NamedExec(`INSERT OR REPLACE INTO applications
		(id, job_title, company_name, application_date, status, location, location_kind, application_link, notes,
		 job_description, date_posted, salary_range, required_qualifications, company_description)
		VALUES (:id, :job_title, :company_name, :application_date, :status, :location, :location_kind, :application_link,
		 :notes, :job_description, :date_posted, :salary_range, :required_qualifications, :company_description)`,
		s.toRecord(app)); err != nil {
		return fmt.Errorf("failed to save application %s: %w", app.ID, err)
	}
	return nil
}

// Delete removes the record with the given id, no error if absent
func (s *SQLiteStore) Delete(id string) error {
	if _, err := s.db.Exec(`DELETE FROM applications WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete application %s: %w", id, err)
	}
	return nil
}

// ReplaceAll swaps the whole stored collection in a single transaction,
// used by backup restore. Either everything is replaced or nothing is.
func (s *SQLiteStore) ReplaceAll(apps []domain.JobApplication) error {
	tx, err := s.db.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // nolint:errcheck // rollback after commit is a no-op

	if _, err := tx.Exec(`DELETE FROM applications`); err != nil {
		return fmt.Errorf("failed to clear applications: %w", err)
	}

	for _, app := range apps {
		if _, err := tx.NamedExec(`INSERT INTO applications
			(id, job_title, company_name, application_date, status, location, location_kind, application_link, notes,
			 job_description, date_posted, salary_range, required_qualifications, company_description)
			VALUES (:id, :job_title, :company_name, :application_date, :status, :location, :location_kind, :application_link,
			 :notes, :job_description, :date_posted, :salary_range, :required_qualifications, :company_description)`,
			s.toRecord(app)); err != nil {
			return fmt.Errorf("failed to insert application %s: %w", app.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// fromRecord maps a stored row to the domain record, substituting defaults
// for anything absent. Revision awareness lives here and only here.
func (s *SQLiteStore) fromRecord(rec record) domain.JobApplication {
	app := domain.JobApplication{
		ID:                     rec.ID.String,
		JobTitle:               rec.JobTitle.String,
		CompanyName:            rec.CompanyName.String,
		ApplicationLink:        rec.ApplicationLink.String,
		Notes:                  rec.Notes.String,
		JobDescription:         rec.JobDescription.String,
		SalaryRange:            rec.SalaryRange.String,
		RequiredQualifications: rec.RequiredQualifications.String,
		CompanyDescription:     rec.CompanyDescription.String,
	}

	if app.ID == "" {
		app.ID = uuid.New().String()
		log.Printf("[WARN] stored application without id, assigned %s", app.ID)
	}

	app.ApplicationDate = s.now()
	if rec.ApplicationDate.Valid && rec.ApplicationDate.Int64 > 0 {
		app.ApplicationDate = time.Unix(rec.ApplicationDate.Int64, 0)
	}

	app.Status = domain.DefaultStatus
	if rec.Status.Valid && rec.Status.String != "" {
		if status, err := domain.ParseStatus(rec.Status.String); err == nil {
			app.Status = status
		} else {
			log.Printf("[WARN] invalid status %q for application %s: %v", rec.Status.String, app.ID, err)
		}
	}

	// kind tag wins when present, otherwise legacy string inference
	// (which collapses Other into City, the documented lossy behavior)
	if rec.LocationKind.Valid && rec.LocationKind.String != "" {
		app.Location = domain.MakeLocation(rec.LocationKind.String, rec.Location.String)
	} else {
		app.Location = domain.ParseLocation(rec.Location.String)
	}

	if rec.DatePosted.Valid && rec.DatePosted.Int64 > 0 {
		posted := time.Unix(rec.DatePosted.Int64, 0)
		app.DatePosted = &posted
	}

	return app
}

// toRecord maps a domain record to the stored row shape
func (s *SQLiteStore) toRecord(app domain.JobApplication) record {
	rec := record{
		ID:                     sql.NullString{String: app.ID, Valid: true},
		JobTitle:               sql.NullString{String: app.JobTitle, Valid: true},
		CompanyName:            sql.NullString{String: app.CompanyName, Valid: true},
		ApplicationDate:        sql.NullInt64{Int64: app.ApplicationDate.Unix(), Valid: true},
		Status:                 sql.NullString{String: app.Status.String(), Valid: true},
		Location:               sql.NullString{String: app.Location.DisplayString(), Valid: true},
		LocationKind:           sql.NullString{String: app.Location.Kind.String(), Valid: true},
		ApplicationLink:        sql.NullString{String: app.ApplicationLink, Valid: true},
		Notes:                  sql.NullString{String: app.Notes, Valid: true},
		JobDescription:         sql.NullString{String: app.JobDescription, Valid: true},
		SalaryRange:            sql.NullString{String: app.SalaryRange, Valid: true},
		RequiredQualifications: sql.NullString{String: app.RequiredQualifications, Valid: true},
		CompanyDescription:     sql.NullString{String: app.CompanyDescription, Valid: true},
	}
	if app.DatePosted != nil {
		rec.DatePosted = sql.NullInt64{Int64: app.DatePosted.Unix(), Valid: true}
	}
	return rec
}
