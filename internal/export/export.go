// Package export reads and writes the file-based interchange format:
// one profile and its complete action state as a versioned JSON
// document. Import merges rather than overwrites, so importing an older
// export never clobbers newer local edits.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/cradlekeeper/internal/common"
	"github.com/dmitrijs2005/cradlekeeper/internal/filex"
	"github.com/dmitrijs2005/cradlekeeper/internal/logging"
	"github.com/dmitrijs2005/cradlekeeper/internal/models"
	"github.com/dmitrijs2005/cradlekeeper/internal/services"
)

// FormatVersion is the document version this build writes. Documents
// with a higher version are rejected, not partially decoded.
const FormatVersion = 1

// Document is the on-disk export format.
type Document struct {
	FormatVersion int                  `json:"format_version"`
	ExportedAt    time.Time            `json:"exported_at"`
	Profile       *models.ChildProfile `json:"profile"`
	Actions       []*models.BabyAction `json:"actions"`
}

// Service exports profiles to files and merges imported documents back
// into the store.
type Service struct {
	profiles *services.ProfileService
	actions  *services.ActionService
	logger   logging.Logger
}

func New(profiles *services.ProfileService, actions *services.ActionService, logger logging.Logger) *Service {
	return &Service{profiles: profiles, actions: actions, logger: logger}
}

// Export writes the profile's document to w.
func (s *Service) Export(ctx context.Context, profileID uuid.UUID, w io.Writer) error {
	p, err := s.profiles.Profile(ctx, profileID)
	if err != nil {
		return err
	}
	state, err := s.actions.ActionState(ctx, profileID)
	if err != nil {
		return err
	}

	doc := &Document{
		FormatVersion: FormatVersion,
		ExportedAt:    time.Now(),
		Profile:       p,
		Actions:       state.All(),
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode export document: %w", err)
	}
	return nil
}

// ExportToFile writes the document into the export directory and
// returns the file path.
func (s *Service) ExportToFile(ctx context.Context, profileID uuid.UUID) (string, error) {
	p, err := s.profiles.Profile(ctx, profileID)
	if err != nil {
		return "", err
	}

	dir, err := filex.EnsureSubDir(filex.ExportDirName)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := s.Export(ctx, profileID, &buf); err != nil {
		return "", err
	}

	name := fmt.Sprintf("%s-%s.json", sanitizeName(p.Name), time.Now().Format("2006-01-02"))
	path := filepath.Join(dir, name)
	if err := filex.WriteFileAtomic(path, buf.Bytes()); err != nil {
		return "", err
	}

	s.logger.Info(ctx, "profile exported", "profile_id", profileID, "path", path)
	return path, nil
}

// Import decodes a document from r and merges it in. The profile and
// every action go through the regular remote-merge path, so a local
// copy with a newer UpdatedAt always survives the import.
func (s *Service) Import(ctx context.Context, r io.Reader) (*models.ChildProfile, error) {
	var doc Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode export document: %w", err)
	}
	if doc.FormatVersion > FormatVersion {
		return nil, fmt.Errorf("document version %d: %w", doc.FormatVersion, common.ErrUnsupportedExportVersion)
	}
	if doc.Profile == nil {
		return nil, fmt.Errorf("export document has no profile")
	}

	if _, err := s.profiles.ApplyRemote(ctx, doc.Profile); err != nil {
		return nil, err
	}
	for _, a := range doc.Actions {
		if a.ProfileID != doc.Profile.ID {
			s.logger.Warn(ctx, "skipping action from foreign profile", "action_id", a.ID)
			continue
		}
		if _, err := s.actions.ApplyRemote(ctx, a); err != nil {
			return nil, err
		}
	}

	s.logger.Info(ctx, "profile imported", "profile_id", doc.Profile.ID, "actions", len(doc.Actions))
	return doc.Profile, nil
}

// ImportFromFile merges the document at path.
func (s *Service) ImportFromFile(ctx context.Context, path string) (*models.ChildProfile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open export file: %w", err)
	}
	defer f.Close()
	return s.Import(ctx, f)
}

func sanitizeName(name string) string {
	if name == "" {
		return "profile"
	}
	out := make([]rune, 0, len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			out = append(out, r)
		case r == ' ':
			out = append(out, '-')
		}
	}
	if len(out) == 0 {
		return "profile"
	}
	return string(out)
}
