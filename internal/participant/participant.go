// Package participant stores the per-participant biodata record collected
// before a session begins.
package participant

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"battery/internal/faults"
	"battery/internal/fileutil"
)

// Record holds the biodata collected for one participant. A record is
// written once, at consent time, and never modified afterwards.
type Record struct {
	ID              string
	DateOfBirthOrAge string
	Sex             string
	Handedness      string
	PrimaryLanguage string
	EducationLevel  string
	VisionStatus    string
	ColorBlindness  string
	Notes           string
	Consented       bool
	CreatedAt       time.Time
}

const fileHeader = "CUSTOM TESTS BATTERY - PARTICIPANT BIODATA"

// ValidateID checks that id is usable as a directory name under the data root.
func ValidateID(id string) error {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return faults.Wrap(faults.ErrValidation, "participant", "validate", "participant ID is required", nil)
	}
	if trimmed != id {
		return faults.Wrap(faults.ErrValidation, "participant", "validate", "participant ID must not have surrounding whitespace", nil)
	}
	if strings.ContainsAny(id, `/\:*?"<>|`) || id == "." || id == ".." {
		return faults.Wrap(faults.ErrValidation, "participant", "validate",
			fmt.Sprintf("participant ID %q contains characters unusable in a folder name", id), nil)
	}
	return nil
}

// Validate checks the record is complete enough to persist.
func (r *Record) Validate() error {
	if err := ValidateID(r.ID); err != nil {
		return err
	}
	if !r.Consented {
		return faults.Wrap(faults.ErrValidation, "participant", "validate", "consent to participate is required", nil)
	}
	return nil
}

// BiodataPath returns the record location under the participant's folder.
func BiodataPath(participantDir string) string {
	return filepath.Join(participantDir, "biodata", "participant_biodata.txt")
}

// Save writes the record under participantDir. A consented record already on
// disk is immutable; attempting to overwrite one fails with a validation error.
func Save(participantDir string, rec *Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	path := BiodataPath(participantDir)
	if existing, err := Load(participantDir); err == nil && existing.Consented {
		return faults.Wrap(faults.ErrValidation, "participant", "save",
			fmt.Sprintf("biodata for %s already recorded at %s", rec.ID, path), nil)
	} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return faults.Wrap(faults.ErrWrite, "participant", "save", "read existing biodata", err)
	}

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	var b strings.Builder
	b.WriteString(fileHeader + "\n")
	b.WriteString(strings.Repeat("=", 50) + "\n\n")
	writeField(&b, "Data Collection Date", rec.CreatedAt.Format("2006-01-02 15:04:05"))
	writeField(&b, "Participant ID", rec.ID)
	writeField(&b, "Date of Birth or Age", rec.DateOfBirthOrAge)
	writeField(&b, "Gender/Sex", rec.Sex)
	writeField(&b, "Handedness", rec.Handedness)
	writeField(&b, "Primary Language", rec.PrimaryLanguage)
	writeField(&b, "Education Level", rec.EducationLevel)
	writeField(&b, "Vision Status", rec.VisionStatus)
	writeField(&b, "Color Blindness", rec.ColorBlindness)
	writeField(&b, "Consent to Participate", formatBool(rec.Consented))
	writeField(&b, "Additional Information/Notes", rec.Notes)
	b.WriteString("\n" + strings.Repeat("=", 50) + "\n")
	b.WriteString("End of Biodata Report\n")

	if err := fileutil.WriteFileAtomic(path, []byte(b.String()), 0o644); err != nil {
		return faults.Wrap(faults.ErrWrite, "participant", "save", "write biodata file", err)
	}
	return nil
}

// Load reads a previously saved record from participantDir. A missing file is
// reported with an error wrapping fs.ErrNotExist.
func Load(participantDir string) (*Record, error) {
	path := BiodataPath(participantDir)
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	rec := &Record{}
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if value == "[Not provided]" {
			value = ""
		}
		switch key {
		case "Participant ID":
			rec.ID = value
		case "Date of Birth or Age":
			rec.DateOfBirthOrAge = value
		case "Gender/Sex":
			rec.Sex = value
		case "Handedness":
			rec.Handedness = value
		case "Primary Language":
			rec.PrimaryLanguage = value
		case "Education Level":
			rec.EducationLevel = value
		case "Vision Status":
			rec.VisionStatus = value
		case "Color Blindness":
			rec.ColorBlindness = value
		case "Consent to Participate":
			rec.Consented = value == "Yes"
		case "Additional Information/Notes":
			rec.Notes = value
		case "Data Collection Date":
			if ts, parseErr := time.ParseInLocation("2006-01-02 15:04:05", value, time.Local); parseErr == nil {
				rec.CreatedAt = ts
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read biodata: %w", err)
	}
	if rec.ID == "" {
		return nil, faults.Wrap(faults.ErrValidation, "participant", "load",
			fmt.Sprintf("biodata file %s has no participant ID", path), nil)
	}
	return rec, nil
}

// Exists reports whether a biodata record is present under participantDir.
func Exists(participantDir string) bool {
	info, err := os.Stat(BiodataPath(participantDir))
	return err == nil && !info.IsDir()
}

func writeField(b *strings.Builder, name, value string) {
	if strings.TrimSpace(value) == "" {
		value = "[Not provided]"
	}
	fmt.Fprintf(b, "%-35s: %s\n", name, value)
}

func formatBool(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}
