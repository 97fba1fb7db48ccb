package catalog

import (
	"fmt"
	"path"
	"strings"
	"time"

	"podium/internal/artifact"
)

// Bump selects which component of a version label to increment on append.
type Bump string

const (
	BumpMajor Bump = "major"
	BumpMinor Bump = "minor"
	BumpPatch Bump = "patch"
)

// ParseBump converts a string into a known Bump.
func ParseBump(value string) (Bump, bool) {
	switch Bump(strings.ToLower(strings.TrimSpace(value))) {
	case BumpMajor:
		return BumpMajor, true
	case BumpMinor:
		return BumpMinor, true
	case BumpPatch:
		return BumpPatch, true
	default:
		return "", false
	}
}

// Ensemble is the owning scope for arrangements, part identities, and books.
type Ensemble struct {
	ID                  int64
	Slug                string
	Name                string
	PartBooksGenerating bool
	LatestBookRevision  int
	CreatedAt           time.Time
}

// Arrangement is one piece within an ensemble's repertoire.
type Arrangement struct {
	ID         int64
	EnsembleID int64
	Slug       string
	Title      string
	CreatedAt  time.Time
}

// Version is one appended arrangement version. Immutable once created except
// for its audio slot and the derived is_latest flag.
type Version struct {
	ID            int64
	ArrangementID int64
	FileName      string
	Major         int
	Minor         int
	Patch         int
	IsLatest      bool
	AudioState    artifact.State
	AudioJob      string
	AudioError    string
	CreatedAt     time.Time

	// Denormalized slugs for storage-key construction.
	ArrangementSlug string
	EnsembleSlug    string
}

// Label renders the bare version label, e.g. "1.2.0".
func (v Version) Label() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// FullLabel includes the leading v, e.g. "v1.2.0".
func (v Version) FullLabel() string {
	return "v" + v.Label()
}

func (v Version) keyPrefix() string {
	return path.Join("ensembles", v.EnsembleSlug, v.ArrangementSlug, v.Label())
}

func (v Version) stem() string {
	return strings.TrimSuffix(v.FileName, path.Ext(v.FileName))
}

// RawKey is the storage key of the uploaded score source.
func (v Version) RawKey() string {
	return path.Join(v.keyPrefix(), "raw", v.FileName)
}

// ProcessedKey is the storage key of the engine-processed score file.
func (v Version) ProcessedKey() string {
	return path.Join(v.keyPrefix(), "processed", v.FileName)
}

// ScorePDFKey is the storage key of the rendered score+parts PDF.
func (v Version) ScorePDFKey() string {
	return path.Join(v.keyPrefix(), "processed", v.stem()+" - Score+Parts.pdf")
}

// PartPDFKey is the storage key of a single extracted part PDF.
func (v Version) PartPDFKey(partName string) string {
	return path.Join(v.keyPrefix(), "processed", v.stem()+" - "+partName+".pdf")
}

// AudioKey is the storage key of the synthesized audio file.
func (v Version) AudioKey() string {
	return path.Join(v.keyPrefix(), "processed", v.stem()+".mp3")
}

// LinksKey is the identifier handed to the engine when resolving download
// links for this version.
func (v Version) LinksKey() string {
	return v.keyPrefix()
}

// PartIdentity is one named instrument or vocal part within an ensemble.
// MergedInto is non-nil for absorbed identities, which survive only as
// redirects so historical part books stay resolvable.
type PartIdentity struct {
	ID          int64
	EnsembleID  int64
	DisplayName string
	SortOrder   *int
	MergedInto  *int64
	CreatedAt   time.Time
}

// Merged reports whether the identity has been absorbed by another.
func (p PartIdentity) Merged() bool {
	return p.MergedInto != nil
}

// PartAsset is one rendered per-version PDF: the score itself or a single
// part, tied to a part identity.
type PartAsset struct {
	ID             int64
	VersionID      int64
	PartIdentityID *int64
	Name           string
	FileKey        string
	IsScore        bool
}

// PartBook is one revision of a per-part book. Rows are terminal once
// rendered or failed; a regeneration allocates a new revision instead.
type PartBook struct {
	ID             int64
	EnsembleID     int64
	PartIdentityID int64
	Revision       int
	IsRendered     bool
	DownloadURL    string
	RenderError    string
	JobHandle      string
	CreatedAt      time.Time
}

// Settled reports whether the book reached a terminal state.
func (b PartBook) Settled() bool {
	return b.IsRendered || b.RenderError != ""
}

// BookBatch describes one allocated part-book regeneration.
type BookBatch struct {
	EnsembleID int64
	Revision   int
	Books      []*PartBook
}

// RenderFailure is one durable record of a terminal render error.
type RenderFailure struct {
	ID        int64
	Kind      artifact.Kind
	OwnerID   int64
	Message   string
	CreatedAt time.Time
}

// NormalizeName lowercases a part label and collapses runs of whitespace, the
// canonical form used for alias and identity lookup.
func NormalizeName(value string) string {
	return strings.Join(strings.Fields(strings.ToLower(value)), " ")
}
