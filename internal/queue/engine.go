package queue

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/party-jam-system/internal/spotify"
	"github.com/party-jam-system/pkg/models"
)

// ErrTrackNotFound is returned when a vote targets a track that is not
// in the room's queue.
var ErrTrackNotFound = errors.New("track not found in queue")

// ErrQueueEmpty is returned by PopWinner when the room has no WAITING
// items.
var ErrQueueEmpty = errors.New("queue is empty")

// Store is the persistence surface the engine ranks and mutates over.
// Implemented by pkg/database.
type Store interface {
	GetWaitingItem(roomID uuid.UUID, trackID string) (*models.QueueItem, error)
	CreateQueueItemWithVote(item *models.QueueItem, guestID string) error
	GetQueue(roomID uuid.UUID) ([]*models.QueueItem, error)
	GetNextSong(roomID uuid.UUID) (*models.QueueItem, error)
	ToggleVote(guestID string, itemID uint) (action string, newCount int, err error)
}

// Engine owns every queue and vote mutation, so the vote_count column
// and the vote rows can only move together. It never touches playback
// or broadcast; those stay with the orchestrator.
type Engine struct {
	store Store
}

func NewEngine(store Store) *Engine {
	return &Engine{store: store}
}

// Upsert adds a track to the room's queue with the submitting guest's
// implicit first vote. If the track is already WAITING in this room the
// existing item comes back with existed == true and nothing changes.
// The read is only a fast path: when two submissions race past it, the
// unique index on (room, track, waiting) fails the second insert and
// the loser re-reads the winner's row.
func (e *Engine) Upsert(room *models.Room, guestID string, track spotify.Track) (*models.QueueItem, bool, error) {
	existing, err := e.store.GetWaitingItem(room.ID, track.ID)
	if err == nil {
		return existing, true, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	item := &models.QueueItem{
		RoomID:   room.ID,
		TrackID:  track.ID,
		Title:    track.Title,
		Artist:   track.Artist,
		ImageURL: track.ImageURL,
	}
	if err := e.store.CreateQueueItemWithVote(item, guestID); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			existing, rerr := e.store.GetWaitingItem(room.ID, track.ID)
			if rerr != nil {
				return nil, false, rerr
			}
			return existing, true, nil
		}
		return nil, false, err
	}
	return item, false, nil
}

// ToggleVote flips the guest's vote on the room's WAITING item for
// trackID and returns the action taken plus the resulting count.
func (e *Engine) ToggleVote(room *models.Room, guestID, trackID string) (string, int, error) {
	item, err := e.store.GetWaitingItem(room.ID, trackID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", 0, ErrTrackNotFound
		}
		return "", 0, err
	}

	return e.store.ToggleVote(guestID, item.ID)
}

// Rank returns the room's WAITING items, most votes first, earliest
// arrival breaking ties.
func (e *Engine) Rank(room *models.Room) ([]*models.QueueItem, error) {
	return e.store.GetQueue(room.ID)
}

// PopWinner reads the current head of the ranking. It deliberately does
// not change the item's status; the WAITING→PLAYED transition belongs
// to the play-next path, which must gate it on the playback call.
func (e *Engine) PopWinner(room *models.Room) (*models.QueueItem, error) {
	item, err := e.store.GetNextSong(room.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrQueueEmpty
		}
		return nil, err
	}
	return item, nil
}
