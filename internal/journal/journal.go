// Package journal holds the persisted state of one companion: the
// conversation transcript and the user's settings.
//
// The [Store] interface abstracts persistence so deployments can choose the
// in-memory store (per-process, default) or the PostgreSQL store in the
// postgres subpackage.
package journal

import (
	"context"
	"time"

	"github.com/sentirlabs/sentir/pkg/provider/chat"
)

// VoiceID is the user-facing voice choice, persisted in settings.
type VoiceID string

const (
	VoiceFemale VoiceID = "female"
	VoiceMale   VoiceID = "male"
)

// Valid reports whether v is one of the known voice choices.
func (v VoiceID) Valid() bool {
	return v == VoiceFemale || v == VoiceMale
}

// Settings is the persisted user settings record. No schema versioning: the
// record is small and additive changes default sensibly.
type Settings struct {
	Voice    VoiceID `json:"voice"`
	AutoPlay bool    `json:"autoPlay"`
	Theme    string  `json:"theme"`
}

// DefaultSettings returns the settings a fresh journal starts with.
func DefaultSettings() Settings {
	return Settings{Voice: VoiceFemale, AutoPlay: true, Theme: "sage"}
}

// Entry is one turn of the conversation.
type Entry struct {
	ID   string `json:"id"`
	Role string `json:"role"` // chat.RoleUser or chat.RoleModel

	// Text is the display form of the turn.
	Text string `json:"text"`

	// VoiceText is the spoken form derived from a model turn; empty for user
	// turns and for model turns without a voice version.
	VoiceText string `json:"voiceText,omitempty"`

	// Symptoms are the lexicon terms recognised in the turn.
	Symptoms []string `json:"symptoms,omitempty"`

	// Citations are grounding sources attached to a model turn.
	Citations []chat.Citation `json:"citations,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// Store persists the journal. Implementations must be safe for concurrent
// use.
type Store interface {
	// Append adds an entry. A missing ID or CreatedAt is filled in.
	Append(ctx context.Context, e Entry) (Entry, error)

	// Recent returns up to n most recent entries in chronological order
	// (oldest first). n <= 0 returns everything.
	Recent(ctx context.Context, n int) ([]Entry, error)

	// Related returns up to limit entries relevant to the query text, most
	// relevant first.
	Related(ctx context.Context, query string, limit int) ([]Entry, error)

	// Clear removes every entry. Settings survive.
	Clear(ctx context.Context) error

	// LoadSettings returns the stored settings, or DefaultSettings when none
	// were saved yet.
	LoadSettings(ctx context.Context) (Settings, error)

	// SaveSettings replaces the stored settings.
	SaveSettings(ctx context.Context, s Settings) error
}

// DayGroup is one day's worth of entries, used by the history view.
type DayGroup struct {
	Date    string  `json:"date"` // YYYY-MM-DD, local time
	Entries []Entry `json:"entries"`
}

// ByDay groups chronologically ordered entries by calendar day, preserving
// order within and across groups.
func ByDay(entries []Entry) []DayGroup {
	var groups []DayGroup
	for _, e := range entries {
		date := e.CreatedAt.Local().Format("2006-01-02")
		if len(groups) == 0 || groups[len(groups)-1].Date != date {
			groups = append(groups, DayGroup{Date: date})
		}
		g := &groups[len(groups)-1]
		g.Entries = append(g.Entries, e)
	}
	return groups
}
