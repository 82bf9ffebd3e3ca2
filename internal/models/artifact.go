package models

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

type MeetingType string

const (
	PlanningBoard        MeetingType = "PlanningBoard"
	BoardOfCommissioners MeetingType = "BoardOfCommissioners"
)

// Code is the short form used in object names.
func (m MeetingType) Code() string {
	if m == BoardOfCommissioners {
		return "BOC"
	}
	return "PB"
}

// DisplayName is the form stored in index metadata.
func (m MeetingType) DisplayName() string {
	switch m {
	case BoardOfCommissioners:
		return "Board of Commissioners"
	case PlanningBoard:
		return "Planning Board"
	default:
		return string(m)
	}
}

// ParseMeetingType accepts the enum name, the display name or the code.
func ParseMeetingType(s string) (MeetingType, error) {
	norm := strings.ToLower(strings.Join(strings.Fields(s), ""))
	switch norm {
	case "planningboard", "pb":
		return PlanningBoard, nil
	case "boardofcommissioners", "boc":
		return BoardOfCommissioners, nil
	}
	return "", fmt.Errorf("unknown meeting type %q", s)
}

type FileType string

const (
	Agenda  FileType = "Agenda"
	Minutes FileType = "Minutes"
	Audio   FileType = "Audio"
)

func ParseFileType(s string) (FileType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "agenda":
		return Agenda, nil
	case "minutes":
		return Minutes, nil
	case "audio":
		return Audio, nil
	}
	return "", fmt.Errorf("unknown file type %q", s)
}

// Namespace is one of the three object store areas an artifact moves through.
type Namespace string

const (
	NamespaceRaw   Namespace = "raw"
	NamespaceDirty Namespace = "dirty"
	NamespaceClean Namespace = "clean"
)

func (n Namespace) Valid() bool {
	switch n {
	case NamespaceRaw, NamespaceDirty, NamespaceClean:
		return true
	}
	return false
}

// Stage labels used as the last component of an object name.
const (
	StageRaw            = "Raw"
	StageTranscription  = "Transcription"
	StageTextExtraction = "TextExtraction"
	StageCleaned        = "Cleaned"
)

const DateLayout = "2006-01-02"

// Artifact is a single uploaded meeting file.
type Artifact struct {
	MeetingDate  time.Time
	MeetingType  MeetingType
	FileType     FileType
	Content      []byte
	OriginalName string
	MimeType     string
}

// BaseName returns {YYYY_MM_DD}_{PB|BOC}_{file_type}_{stage}.
func (a Artifact) BaseName(stage string) string {
	return fmt.Sprintf("%s_%s_%s_%s", a.MeetingDate.Format("2006_01_02"), a.MeetingType.Code(), a.FileType, stage)
}

// RawName keeps the uploaded file's extension.
func (a Artifact) RawName() string {
	return a.BaseName(StageRaw) + strings.ToLower(filepath.Ext(a.OriginalName))
}

// DirtyName depends on how the text was produced.
func (a Artifact) DirtyName() string {
	if a.FileType == Audio {
		return a.BaseName(StageTranscription) + ".txt"
	}
	return a.BaseName(StageTextExtraction) + ".txt"
}

func (a Artifact) CleanName() string {
	return a.BaseName(StageCleaned) + ".txt"
}

// Identity scopes the chunks produced from this artifact's clean text.
func (a Artifact) Identity() Identity {
	return Identity{
		MeetingDate:    a.MeetingDate.Format(DateLayout),
		MeetingType:    a.MeetingType.DisplayName(),
		FileType:       string(a.FileType),
		SourceDocument: a.CleanName(),
	}
}

// DateKey extracts the YYYY_MM_DD prefix of an object name, or "Unknown Date".
func DateKey(name string) string {
	parts := strings.Split(filepath.Base(name), "_")
	if len(parts) < 3 {
		return UnknownDate
	}
	key := strings.Join(parts[:3], "_")
	if _, err := time.Parse("2006_01_02", key); err != nil {
		return UnknownDate
	}
	return key
}

const UnknownDate = "Unknown Date"

// ParseArtifactName reverses BaseName. The returned artifact carries no
// content; its OriginalName is the given name.
func ParseArtifactName(name string) (Artifact, string, error) {
	base := filepath.Base(name)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	parts := strings.Split(stem, "_")
	if len(parts) != 6 {
		return Artifact{}, "", fmt.Errorf("malformed artifact name %q", name)
	}
	date, err := time.Parse("2006_01_02", strings.Join(parts[:3], "_"))
	if err != nil {
		return Artifact{}, "", fmt.Errorf("malformed artifact date in %q: %w", name, err)
	}
	mt, err := ParseMeetingType(parts[3])
	if err != nil {
		return Artifact{}, "", err
	}
	ft, err := ParseFileType(parts[4])
	if err != nil {
		return Artifact{}, "", err
	}
	return Artifact{MeetingDate: date, MeetingType: mt, FileType: ft, OriginalName: base}, parts[5], nil
}
