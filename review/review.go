// Package review implements the certificate submission lifecycle: students
// file certificates, admins accept or reject them, and accepted submissions
// accrue activity points derived from the activity category.
package review

import (
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"

	"certportal/apperr"
	"certportal/models"

	"github.com/google/uuid"
)

// PointsFor is the points rule: a pure function of review status and
// activity category. Only accepted certificates earn points.
func PointsFor(status models.ReviewStatus, activity models.ActivityType) int {
	if status != models.StatusAccepted {
		return 0
	}
	switch activity {
	case models.ActivityNCCNSS:
		return 50
	case models.ActivitySports:
		return 60
	case models.ActivityMusic:
		return 70
	}
	return 0
}

// Submission carries the fields of a certificate upload.
type Submission struct {
	Username     string
	Semester     string
	ActivityType models.ActivityType
	CertName     string
	IssueDate    string
	Issuer       string
	ImageName    string
	Image        []byte
}

// Stats aggregates a student's submissions.
type Stats struct {
	TotalCertificates    int `json:"total_certificates"`
	ApprovedCertificates int `json:"approved_certificates"`
	TotalActivityPoints  int `json:"total_activity_points"`
}

type Service struct {
	db *sql.DB
}

func NewService(database *sql.DB) *Service {
	return &Service{db: database}
}

func (s *Service) validate(sub Submission) error {
	if len(sub.Image) == 0 {
		return fmt.Errorf("%w: attachment is required", apperr.ErrValidation)
	}
	if sub.ImageName == "" {
		return fmt.Errorf("%w: attachment filename is required", apperr.ErrValidation)
	}
	if sub.CertName == "" || sub.IssueDate == "" || sub.Issuer == "" || sub.Semester == "" {
		return fmt.Errorf("%w: name, issue date, issuer and semester are required", apperr.ErrValidation)
	}
	if !sub.ActivityType.Valid() {
		return fmt.Errorf("%w: unknown activity type %q", apperr.ErrValidation, sub.ActivityType)
	}
	return nil
}

func (s *Service) ownerExists(username string) error {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM users WHERE username = ?", username).Scan(&count)
	if err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrStoreUnavailable, err)
	}
	if count == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// Submit files a new certificate with status pending and zero points. A
// certificate is keyed by (owner, filename); re-uploading the same filename
// overwrites the previous record and sends it back to review.
func (s *Service) Submit(sub Submission) (*models.Certificate, error) {
	if err := s.validate(sub); err != nil {
		return nil, err
	}
	if err := s.ownerExists(sub.Username); err != nil {
		return nil, err
	}

	encoded := base64.StdEncoding.EncodeToString(sub.Image)
	_, err := s.db.Exec(`
		INSERT INTO certificates (id, username, semester, activity_type, cert_name, issue_date, issuer, image_name, image_data, status, points)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 'pending', 0)
		ON CONFLICT (username, image_name) DO UPDATE SET
			semester = excluded.semester,
			activity_type = excluded.activity_type,
			cert_name = excluded.cert_name,
			issue_date = excluded.issue_date,
			issuer = excluded.issuer,
			image_data = excluded.image_data,
			status = 'pending',
			points = 0`,
		uuid.NewString(), sub.Username, sub.Semester, string(sub.ActivityType),
		sub.CertName, sub.IssueDate, sub.Issuer, sub.ImageName, encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrStoreUnavailable, err)
	}

	return s.Get(sub.Username, sub.ImageName)
}

// SetStatus transitions a certificate to the given review status and
// recomputes its points in the same transaction, so status and points are
// always observed together. The operation is idempotent.
func (s *Service) SetStatus(owner, imageName string, status models.ReviewStatus) (*models.Certificate, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", apperr.ErrValidation, status)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrStoreUnavailable, err)
	}
	defer tx.Rollback()

	var activity models.ActivityType
	err = tx.QueryRow("SELECT activity_type FROM certificates WHERE username = ? AND image_name = ?", owner, imageName).
		Scan(&activity)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrStoreUnavailable, err)
	}

	points := PointsFor(status, activity)
	_, err = tx.Exec("UPDATE certificates SET status = ?, points = ? WHERE username = ? AND image_name = ?",
		string(status), points, owner, imageName)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrStoreUnavailable, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrStoreUnavailable, err)
	}

	return s.Get(owner, imageName)
}

const certColumns = "id, username, semester, activity_type, cert_name, issue_date, issuer, image_name, status, points, created_at"

func scanCertificate(row *sql.Row) (*models.Certificate, error) {
	var c models.Certificate
	err := row.Scan(&c.ID, &c.Username, &c.Semester, &c.ActivityType, &c.CertName,
		&c.IssueDate, &c.Issuer, &c.ImageName, &c.Status, &c.Points, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrStoreUnavailable, err)
	}
	return &c, nil
}

// Get returns a certificate without its image payload.
func (s *Service) Get(owner, imageName string) (*models.Certificate, error) {
	row := s.db.QueryRow("SELECT "+certColumns+" FROM certificates WHERE username = ? AND image_name = ?", owner, imageName)
	return scanCertificate(row)
}

// GetImage returns the raw attachment bytes for a certificate.
func (s *Service) GetImage(owner, imageName string) ([]byte, error) {
	var encoded string
	err := s.db.QueryRow("SELECT image_data FROM certificates WHERE username = ? AND image_name = ?", owner, imageName).
		Scan(&encoded)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrStoreUnavailable, err)
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: corrupt image data: %v", apperr.ErrStoreUnavailable, err)
	}
	return data, nil
}

func (s *Service) list(query string, args ...any) ([]models.Certificate, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var certs []models.Certificate
	for rows.Next() {
		var c models.Certificate
		if err := rows.Scan(&c.ID, &c.Username, &c.Semester, &c.ActivityType, &c.CertName,
			&c.IssueDate, &c.Issuer, &c.ImageName, &c.Status, &c.Points, &c.CreatedAt); err != nil {
			continue
		}
		certs = append(certs, c)
	}
	return certs, nil
}

// ListByOwner returns a student's submissions, any status. The owner must
// exist.
func (s *Service) ListByOwner(owner string) ([]models.Certificate, error) {
	if err := s.ownerExists(owner); err != nil {
		return nil, err
	}
	return s.list("SELECT "+certColumns+" FROM certificates WHERE username = ? ORDER BY created_at", owner)
}

// ListAll returns every submission, for the admin review queue.
func (s *Service) ListAll() ([]models.Certificate, error) {
	return s.list("SELECT " + certColumns + " FROM certificates ORDER BY created_at")
}

// Aggregate computes a student's totals: all submissions, accepted ones, and
// the points sum over accepted ones.
func (s *Service) Aggregate(owner string) (*Stats, error) {
	if err := s.ownerExists(owner); err != nil {
		return nil, err
	}

	var st Stats
	err := s.db.QueryRow(`
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN status = 'accepted' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN status = 'accepted' THEN points ELSE 0 END), 0)
		FROM certificates WHERE username = ?`, owner).
		Scan(&st.TotalCertificates, &st.ApprovedCertificates, &st.TotalActivityPoints)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrStoreUnavailable, err)
	}
	return &st, nil
}
