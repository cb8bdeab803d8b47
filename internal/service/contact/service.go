package contact

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ekklesia/commhub/internal/domain"
	"github.com/ekklesia/commhub/internal/phone"
	"github.com/ekklesia/commhub/internal/pkg/logger"
)

// Service implements contact business logic.
type Service struct {
	repo    Repository
	archive Archive
}

// NewService creates a contact service. archive may be nil, in which case
// ArchiveExport and ListExports return ErrArchiveDisabled.
func NewService(repo Repository, archive Archive) *Service {
	return &Service{repo: repo, archive: archive}
}

// CreateInput holds the fields accepted when creating a contact.
type CreateInput struct {
	Name           *string         `json:"name"`
	Phone          string          `json:"phone"`
	Status         string          `json:"status"`
	OptOutSMS      bool            `json:"opt_out_sms"`
	OptOutWhatsApp bool            `json:"opt_out_whatsapp"`
	Tags           []string        `json:"tags"`
	Metadata       json.RawMessage `json:"metadata"`
}

// ImportError describes one skipped entry of a bulk import.
type ImportError struct {
	Contact string `json:"contact"`
	Error   string `json:"error"`
}

// ImportResult summarizes a bulk import.
type ImportResult struct {
	ImportedCount int           `json:"imported_count"`
	SkippedCount  int           `json:"skipped_count"`
	Total         int           `json:"total_contacts_in_list"`
	Errors        []ImportError `json:"errors"`
	Message       string        `json:"message"`
}

// Get returns a single contact.
func (s *Service) Get(ctx context.Context, id string) (*domain.Contact, error) {
	return s.repo.Get(ctx, id)
}

// List returns contacts matching the filter.
func (s *Service) List(ctx context.Context, f ListFilter) ([]domain.Contact, int, error) {
	f.Tag = strings.ToLower(strings.TrimSpace(f.Tag))
	return s.repo.List(ctx, f)
}

// Create normalizes the phone number and stores a new contact.
// Tags found in legacy metadata are merged into the tag set.
func (s *Service) Create(ctx context.Context, in CreateInput) (*domain.Contact, error) {
	p, err := phone.Normalize(in.Phone)
	if err != nil {
		return nil, err
	}
	if in.Name != nil {
		n := strings.TrimSpace(*in.Name)
		if n == "" {
			in.Name = nil
		} else {
			in.Name = &n
		}
	}
	status := strings.TrimSpace(in.Status)
	if status == "" {
		status = domain.ContactStatusActive
	}

	tags := domain.NewTags(in.Tags...)
	if legacy := domain.TagsFromMetadata(in.Metadata); len(legacy) > 0 {
		tags = domain.NewTags(append(tags, legacy...)...)
	}
	now := time.Now().UTC()
	c := &domain.Contact{
		ID:             uuid.New().String(),
		Name:           in.Name,
		Phone:          p,
		Status:         status,
		OptOutSMS:      in.OptOutSMS,
		OptOutWhatsApp: in.OptOutWhatsApp,
		Tags:           tags,
		Metadata:       in.Metadata,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Update modifies a contact. A new phone number is normalized first.
func (s *Service) Update(ctx context.Context, id string, u UpdateFields) (*domain.Contact, error) {
	if u.Phone != nil {
		p, err := phone.Normalize(*u.Phone)
		if err != nil {
			return nil, err
		}
		u.Phone = &p
	}
	if u.Status != nil && strings.TrimSpace(*u.Status) == "" {
		return nil, fmt.Errorf("%w: status cannot be empty", ErrValidation)
	}
	if u.Tags != nil {
		t := domain.NewTags(*u.Tags...)
		u.Tags = &t
	} else if len(u.Metadata) > 0 {
		if t := domain.TagsFromMetadata(u.Metadata); len(t) > 0 {
			u.Tags = &t
		}
	}
	if err := s.repo.Update(ctx, id, u); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, id)
}

// Delete removes a contact.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

// MassDelete removes the listed contacts and returns how many were deleted.
func (s *Service) MassDelete(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, fmt.Errorf("%w: no contact ids given", ErrValidation)
	}
	return s.repo.DeleteMany(ctx, ids)
}

// AddList creates every entry it can. Invalid or duplicate entries are
// skipped and reported; they never abort the import.
func (s *Service) AddList(ctx context.Context, list []CreateInput) (*ImportResult, error) {
	res := &ImportResult{Total: len(list), Errors: []ImportError{}}
	for _, in := range list {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		_, err := s.Create(ctx, in)
		if err == nil {
			res.ImportedCount++
			continue
		}
		if !errors.Is(err, ErrDuplicatePhone) && !errors.Is(err, phone.ErrInvalidFormat) {
			return nil, err
		}
		res.SkippedCount++
		label := in.Phone
		if in.Name != nil && *in.Name != "" {
			label = *in.Name
		}
		res.Errors = append(res.Errors, ImportError{Contact: label, Error: err.Error()})
	}
	if res.SkippedCount > 0 {
		res.Message = fmt.Sprintf("Imported %d contacts, skipped %d due to errors or duplicates.", res.ImportedCount, res.SkippedCount)
	} else {
		res.Message = fmt.Sprintf("Successfully imported %d contacts.", res.ImportedCount)
	}
	logger.Info("contact list imported", "imported", res.ImportedCount, "skipped", res.SkippedCount)
	return res, nil
}

// ImportVCard reads vCards from r and imports one contact per TEL entry.
// A card without a phone number is reported as skipped.
func (s *Service) ImportVCard(ctx context.Context, r io.Reader) (*ImportResult, error) {
	cards, err := readVCards(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	var list []CreateInput
	var missing []ImportError
	for _, c := range cards {
		if len(c.phones) == 0 {
			label := c.name
			if label == "" {
				label = "an unknown contact"
			}
			missing = append(missing, ImportError{Contact: label, Error: "card is missing a phone number"})
			continue
		}
		for _, p := range c.phones {
			in := CreateInput{Phone: p}
			if c.name != "" {
				name := c.name
				in.Name = &name
			}
			list = append(list, in)
		}
	}
	res, err := s.AddList(ctx, list)
	if err != nil {
		return nil, err
	}
	res.Total += len(missing)
	res.SkippedCount += len(missing)
	res.Errors = append(res.Errors, missing...)
	return res, nil
}

// Export renders every contact in format.
func (s *Service) Export(ctx context.Context, format domain.ExportFormat) ([]byte, int, error) {
	if !format.Valid() {
		return nil, 0, fmt.Errorf("%w: unsupported export format %q", ErrValidation, format)
	}
	contacts, err := s.repo.All(ctx)
	if err != nil {
		return nil, 0, err
	}
	var data []byte
	switch format {
	case domain.ExportVCard:
		data = writeVCards(contacts)
	default:
		data, err = writeCSV(contacts)
		if err != nil {
			return nil, 0, err
		}
	}
	return data, len(contacts), nil
}

// ArchiveExport renders an export and stores it in the archive.
func (s *Service) ArchiveExport(ctx context.Context, format domain.ExportFormat, createdBy string) (*domain.ExportRecord, error) {
	if s.archive == nil {
		return nil, ErrArchiveDisabled
	}
	data, n, err := s.Export(ctx, format)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	rec := domain.ExportRecord{
		Key:          exportKey(now, format),
		Format:       format,
		ContactCount: n,
		CreatedBy:    createdBy,
		CreatedAt:    now,
	}
	rec, err = s.archive.Save(ctx, rec, format.ContentType(), data)
	if err != nil {
		return nil, err
	}
	logger.Info("contact export archived", "key", rec.Key, "contacts", n, "location", rec.Location)
	return &rec, nil
}

// ListExports returns archived exports, newest first.
func (s *Service) ListExports(ctx context.Context, limit int) ([]domain.ExportRecord, error) {
	if s.archive == nil {
		return nil, ErrArchiveDisabled
	}
	return s.archive.List(ctx, limit)
}

// OpenExport returns an archived export file.
func (s *Service) OpenExport(ctx context.Context, key string) (io.ReadCloser, error) {
	if s.archive == nil {
		return nil, ErrArchiveDisabled
	}
	return s.archive.Open(ctx, key)
}

// LocationTags returns the known congregation location tags.
func (s *Service) LocationTags() []string {
	return append([]string(nil), domain.LocationTags...)
}

func exportKey(now time.Time, format domain.ExportFormat) string {
	return fmt.Sprintf("contacts/%s/contacts-%s-%s.%s",
		now.Format("2006/01/02"), now.Format("20060102T150405Z"), uuid.New().String()[:8], format)
}
