package models

import (
	"time"

	"github.com/google/uuid"
)

// Queue item lifecycle. A song enters the queue WAITING and moves to
// PLAYED exactly once, when the host pushes it to playback.
const (
	StatusWaiting = "WAITING"
	StatusPlayed  = "PLAYED"
)

// Host is the authenticated party owner. It is the only entity holding
// Spotify credentials; after login, the token refresher is the only
// writer of the token columns.
type Host struct {
	ID           uuid.UUID `json:"id" gorm:"primaryKey"`
	SpotifyID    string    `json:"spotify_id" gorm:"uniqueIndex"`
	DisplayName  string    `json:"display_name"`
	Email        string    `json:"email"`
	AccessToken  string    `json:"-"`
	RefreshToken string    `json:"-"`
	IsPremium    bool      `json:"is_premium"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Room is one party session. Codes are unique across all rooms ever
// issued; rooms are deactivated, never deleted, so a code is never
// handed out twice.
type Room struct {
	ID        uuid.UUID `json:"id" gorm:"primaryKey"`
	Code      string    `json:"code" gorm:"uniqueIndex;size:4"`
	HostID    uuid.UUID `json:"host_id" gorm:"index"`
	Name      string    `json:"name"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Guest is an anonymous participant. The ID is an opaque token minted by
// the guest's device; the first room it touches is the room it stays in.
type Guest struct {
	ID        string    `json:"id" gorm:"primaryKey"`
	RoomID    uuid.UUID `json:"room_id" gorm:"index"`
	Nickname  string    `json:"nickname"`
	CreatedAt time.Time `json:"created_at"`
}

// QueueItem is a candidate song. The integer primary key doubles as the
// arrival-order tiebreak when vote counts are equal, so it must stay
// auto-incremented. VoteCount always equals the number of Vote rows
// pointing at the item.
type QueueItem struct {
	ID        uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	RoomID    uuid.UUID `json:"room_id" gorm:"uniqueIndex:idx_room_track_waiting,priority:1"`
	TrackID   string    `json:"track_id" gorm:"uniqueIndex:idx_room_track_waiting,priority:2"`
	Title     string    `json:"title"`
	Artist    string    `json:"artist"`
	ImageURL  string    `json:"image_url"`
	VoteCount int       `json:"vote_count"`
	Status    string    `json:"status" gorm:"default:WAITING;index"`

	// Waiting mirrors Status for the uniqueness rule: true while
	// WAITING, NULL once PLAYED. NULLs never collide in a unique
	// index (MySQL and sqlite alike), so any number of PLAYED rows
	// may share a track while at most one WAITING row can exist per
	// (room, track) — enforced by the schema, not by a read.
	Waiting *bool `json:"-" gorm:"uniqueIndex:idx_room_track_waiting,priority:3"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Vote records one guest backing one queue item. The composite unique
// index is what makes toggling safe under concurrent requests.
type Vote struct {
	ID          uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	GuestID     string    `json:"guest_id" gorm:"uniqueIndex:idx_guest_item,priority:1"`
	QueueItemID uint      `json:"queue_item_id" gorm:"uniqueIndex:idx_guest_item,priority:2"`
	CreatedAt   time.Time `json:"created_at"`
}
