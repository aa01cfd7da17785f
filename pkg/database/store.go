package database

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/party-jam-system/pkg/models"
)

// Host operations
func (db *DB) CreateHost(host *models.Host) error {
	return db.Create(host).Error
}

func (db *DB) GetHostByID(id uuid.UUID) (*models.Host, error) {
	var host models.Host
	if err := db.First(&host, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &host, nil
}

func (db *DB) GetHostBySpotifyID(spotifyID string) (*models.Host, error) {
	var host models.Host
	if err := db.First(&host, "spotify_id = ?", spotifyID).Error; err != nil {
		return nil, err
	}
	return &host, nil
}

func (db *DB) UpdateHost(host *models.Host) error {
	return db.Save(host).Error
}

// ReplaceHostTokens swaps the credential pair in one statement. An empty
// refreshToken keeps the stored one, for providers that do not reissue
// it on refresh.
func (db *DB) ReplaceHostTokens(hostID uuid.UUID, accessToken, refreshToken string) error {
	cols := map[string]interface{}{"access_token": accessToken}
	if refreshToken != "" {
		cols["refresh_token"] = refreshToken
	}
	return db.Model(&models.Host{}).Where("id = ?", hostID).Updates(cols).Error
}

// Room operations
func (db *DB) CreateRoom(room *models.Room) error {
	return db.Create(room).Error
}

// DeactivateRooms closes every active room the host owns. Called before
// a new room is created so at most one party per host accepts joins.
func (db *DB) DeactivateRooms(hostID uuid.UUID) error {
	return db.Model(&models.Room{}).
		Where("host_id = ? AND active = ?", hostID, true).
		Update("active", false).Error
}

func (db *DB) GetRoomByCode(code string) (*models.Room, error) {
	var room models.Room
	if err := db.First(&room, "code = ?", code).Error; err != nil {
		return nil, err
	}
	return &room, nil
}

func (db *DB) GetActiveRoomByCode(code string) (*models.Room, error) {
	var room models.Room
	if err := db.First(&room, "code = ? AND active = ?", code, true).Error; err != nil {
		return nil, err
	}
	return &room, nil
}

// Guest operations

// GetOrCreateGuest binds the device token to a room on first contact.
// A guest that already exists keeps its original room, whatever room
// the current request came through.
func (db *DB) GetOrCreateGuest(guestID string, roomID uuid.UUID) (*models.Guest, error) {
	guest := models.Guest{ID: guestID, RoomID: roomID}
	if err := db.Where("id = ?", guestID).FirstOrCreate(&guest).Error; err != nil {
		return nil, err
	}
	return &guest, nil
}

// Queue operations
func (db *DB) GetWaitingItem(roomID uuid.UUID, trackID string) (*models.QueueItem, error) {
	var item models.QueueItem
	if err := db.Where("room_id = ? AND track_id = ? AND status = ?",
		roomID, trackID, models.StatusWaiting).First(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

func (db *DB) GetQueueItem(id uint) (*models.QueueItem, error) {
	var item models.QueueItem
	if err := db.First(&item, id).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

// CreateQueueItemWithVote inserts a new WAITING item together with the
// submitting guest's implicit vote, so vote_count and the vote rows can
// never disagree even if the process dies between the two writes. The
// waiting marker puts the row under the idx_room_track_waiting unique
// index: a second WAITING insert for the same (room, track) fails with
// gorm.ErrDuplicatedKey no matter how the submissions interleave.
func (db *DB) CreateQueueItemWithVote(item *models.QueueItem, guestID string) error {
	waiting := true
	item.VoteCount = 1
	item.Status = models.StatusWaiting
	item.Waiting = &waiting
	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(item).Error; err != nil {
			return err
		}
		return tx.Create(&models.Vote{GuestID: guestID, QueueItemID: item.ID}).Error
	})
}

// GetQueue returns the WAITING items ranked most-voted first, earliest
// arrival breaking ties. The id column is the arrival order.
func (db *DB) GetQueue(roomID uuid.UUID) ([]*models.QueueItem, error) {
	var items []*models.QueueItem
	if err := db.Where("room_id = ? AND status = ?", roomID, models.StatusWaiting).
		Order("vote_count DESC, id ASC").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (db *DB) GetNextSong(roomID uuid.UUID) (*models.QueueItem, error) {
	var item models.QueueItem
	if err := db.Where("room_id = ? AND status = ?", roomID, models.StatusWaiting).
		Order("vote_count DESC, id ASC").
		First(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

// MarkPlayed is the WAITING→PLAYED transition. The status predicate in
// the WHERE clause makes it a compare-and-swap: under racing play-next
// calls exactly one caller sees won == true.
func (db *DB) MarkPlayed(itemID uint) (won bool, err error) {
	res := db.Model(&models.QueueItem{}).
		Where("id = ? AND status = ?", itemID, models.StatusWaiting).
		Updates(map[string]interface{}{"status": models.StatusPlayed, "waiting": nil})
	return res.RowsAffected == 1, res.Error
}

// RevertPlayed is the compensation for a claim whose playback push
// failed: PLAYED goes back to WAITING so the song stays in contention.
// If a guest re-queued the same track between the claim and the revert,
// the unique index rejects the revert with gorm.ErrDuplicatedKey; the
// fresh row keeps the track in contention, so callers may treat that as
// reverted.
func (db *DB) RevertPlayed(itemID uint) error {
	return db.Model(&models.QueueItem{}).
		Where("id = ? AND status = ?", itemID, models.StatusPlayed).
		Updates(map[string]interface{}{"status": models.StatusWaiting, "waiting": true}).Error
}

// Vote operations

// ToggleVote flips the guest's vote on an item inside one transaction.
// The counter only ever moves by SQL expression, never read-modify-write,
// and the (guest, item) unique index rejects a doubled add, so the count
// stays equal to the live vote rows under any interleaving.
func (db *DB) ToggleVote(guestID string, itemID uint) (action string, newCount int, err error) {
	err = db.Transaction(func(tx *gorm.DB) error {
		var existing models.Vote
		found := tx.Where("guest_id = ? AND queue_item_id = ?", guestID, itemID).First(&existing)
		switch {
		case found.Error == nil:
			res := tx.Delete(&models.Vote{}, existing.ID)
			if res.Error != nil {
				return res.Error
			}
			action = "removed"
			if res.RowsAffected == 0 {
				// A racing toggle already removed it; nothing to uncount.
				break
			}
			if err := tx.Model(&models.QueueItem{}).Where("id = ?", itemID).
				UpdateColumn("vote_count", gorm.Expr("vote_count - ?", 1)).Error; err != nil {
				return err
			}
		case errors.Is(found.Error, gorm.ErrRecordNotFound):
			if err := tx.Create(&models.Vote{GuestID: guestID, QueueItemID: itemID}).Error; err != nil {
				return err
			}
			if err := tx.Model(&models.QueueItem{}).Where("id = ?", itemID).
				UpdateColumn("vote_count", gorm.Expr("vote_count + ?", 1)).Error; err != nil {
				return err
			}
			action = "added"
		default:
			return found.Error
		}

		var item models.QueueItem
		if err := tx.First(&item, itemID).Error; err != nil {
			return err
		}
		newCount = item.VoteCount
		return nil
	})
	return action, newCount, err
}

// CountVotes recomputes the live vote cardinality for an item. Used as
// a consistency check in tests; request paths trust vote_count.
func (db *DB) CountVotes(itemID uint) (int, error) {
	var n int64
	if err := db.Model(&models.Vote{}).Where("queue_item_id = ?", itemID).Count(&n).Error; err != nil {
		return 0, err
	}
	return int(n), nil
}
