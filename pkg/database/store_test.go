package database

import (
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/party-jam-system/pkg/models"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()

	g, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	// A single connection keeps the in-memory database alive and
	// serializes concurrent transactions the way MySQL row locks would.
	sqlDB, err := g.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	db, err := New(g)
	require.NoError(t, err)
	return db
}

func seedRoom(t *testing.T, db *DB) *models.Room {
	t.Helper()

	host := &models.Host{ID: uuid.New(), SpotifyID: "host-" + uuid.NewString(), DisplayName: "DJ"}
	require.NoError(t, db.CreateHost(host))

	room := &models.Room{ID: uuid.New(), Code: randomCode(), HostID: host.ID, Name: "Test party", Active: true}
	require.NoError(t, db.CreateRoom(room))
	return room
}

func randomCode() string {
	return uuid.NewString()[:4]
}

func seedItem(t *testing.T, db *DB, room *models.Room, trackID, guestID string) *models.QueueItem {
	t.Helper()

	_, err := db.GetOrCreateGuest(guestID, room.ID)
	require.NoError(t, err)

	item := &models.QueueItem{RoomID: room.ID, TrackID: trackID, Title: "Track " + trackID, Artist: "Artist"}
	require.NoError(t, db.CreateQueueItemWithVote(item, guestID))
	return item
}

func TestCreateQueueItemWithVote(t *testing.T) {
	db := newTestDB(t)
	room := seedRoom(t, db)

	item := seedItem(t, db, room, "track-1", "guest-1")

	assert.Equal(t, 1, item.VoteCount)
	assert.Equal(t, models.StatusWaiting, item.Status)

	votes, err := db.CountVotes(item.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, votes)
}

func TestDuplicateWaitingInsertRejected(t *testing.T) {
	db := newTestDB(t)
	room := seedRoom(t, db)
	first := seedItem(t, db, room, "track-1", "guest-1")

	_, err := db.GetOrCreateGuest("guest-2", room.ID)
	require.NoError(t, err)

	// The schema, not the caller's read, must block the second WAITING
	// row for the same (room, track).
	dup := &models.QueueItem{RoomID: room.ID, TrackID: "track-1", Title: "Track track-1", Artist: "Artist"}
	err = db.CreateQueueItemWithVote(dup, "guest-2")
	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)

	items, err := db.GetQueue(room.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, first.ID, items[0].ID)

	// Once the winner is PLAYED the track may be queued again, and that
	// new row may itself be played and replaced later.
	won, err := db.MarkPlayed(first.ID)
	require.NoError(t, err)
	require.True(t, won)

	again := &models.QueueItem{RoomID: room.ID, TrackID: "track-1", Title: "Track track-1", Artist: "Artist"}
	require.NoError(t, db.CreateQueueItemWithVote(again, "guest-2"))

	won, err = db.MarkPlayed(again.ID)
	require.NoError(t, err)
	require.True(t, won)

	third := &models.QueueItem{RoomID: room.ID, TrackID: "track-1", Title: "Track track-1", Artist: "Artist"}
	require.NoError(t, db.CreateQueueItemWithVote(third, "guest-1"))
}

func TestConcurrentSubmissionsSingleWaitingRow(t *testing.T) {
	db := newTestDB(t)
	room := seedRoom(t, db)

	const guests = 8
	for i := 0; i < guests; i++ {
		_, err := db.GetOrCreateGuest(fmt.Sprintf("guest-%d", i), room.ID)
		require.NoError(t, err)
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		inserted int
	)
	for i := 0; i < guests; i++ {
		guestID := fmt.Sprintf("guest-%d", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			item := &models.QueueItem{RoomID: room.ID, TrackID: "track-1", Title: "Track track-1", Artist: "Artist"}
			err := db.CreateQueueItemWithVote(item, guestID)
			if err == nil {
				mu.Lock()
				inserted++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, inserted)

	items, err := db.GetQueue(room.ID)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestToggleVoteAddRemove(t *testing.T) {
	db := newTestDB(t)
	room := seedRoom(t, db)
	item := seedItem(t, db, room, "track-1", "guest-1")

	_, err := db.GetOrCreateGuest("guest-2", room.ID)
	require.NoError(t, err)

	action, count, err := db.ToggleVote("guest-2", item.ID)
	require.NoError(t, err)
	assert.Equal(t, "added", action)
	assert.Equal(t, 2, count)

	action, count, err = db.ToggleVote("guest-2", item.ID)
	require.NoError(t, err)
	assert.Equal(t, "removed", action)
	assert.Equal(t, 1, count)

	// The counter must always equal the live vote rows.
	votes, err := db.CountVotes(item.ID)
	require.NoError(t, err)
	assert.Equal(t, count, votes)
}

func TestToggleVoteConcurrent(t *testing.T) {
	db := newTestDB(t)
	room := seedRoom(t, db)
	item := seedItem(t, db, room, "track-1", "guest-0")

	const guests = 20
	var wg sync.WaitGroup
	for i := 1; i <= guests; i++ {
		guestID := fmt.Sprintf("guest-%d", i)
		_, err := db.GetOrCreateGuest(guestID, room.ID)
		require.NoError(t, err)

		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := db.ToggleVote(guestID, item.ID)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := db.GetQueueItem(item.ID)
	require.NoError(t, err)

	votes, err := db.CountVotes(item.ID)
	require.NoError(t, err)

	// Every guest's last action was an add: implicit vote + N toggles.
	assert.Equal(t, 1+guests, got.VoteCount)
	assert.Equal(t, votes, got.VoteCount)
}

func TestQueueOrdering(t *testing.T) {
	db := newTestDB(t)
	room := seedRoom(t, db)

	x := seedItem(t, db, room, "track-x", "guest-1") // arrives first
	y := seedItem(t, db, room, "track-y", "guest-1") // arrives second
	z := seedItem(t, db, room, "track-z", "guest-1")

	// X and Y end up with 3 votes each, Z stays at 1.
	for _, guestID := range []string{"guest-2", "guest-3"} {
		_, err := db.GetOrCreateGuest(guestID, room.ID)
		require.NoError(t, err)
		for _, item := range []*models.QueueItem{x, y} {
			_, _, err := db.ToggleVote(guestID, item.ID)
			require.NoError(t, err)
		}
	}

	items, err := db.GetQueue(room.ID)
	require.NoError(t, err)
	require.Len(t, items, 3)

	// Ties break by arrival: X before Y, Z last.
	assert.Equal(t, x.ID, items[0].ID)
	assert.Equal(t, y.ID, items[1].ID)
	assert.Equal(t, z.ID, items[2].ID)
}

func TestMarkPlayedIsConditional(t *testing.T) {
	db := newTestDB(t)
	room := seedRoom(t, db)
	item := seedItem(t, db, room, "track-1", "guest-1")

	won, err := db.MarkPlayed(item.ID)
	require.NoError(t, err)
	assert.True(t, won)

	// Second transition is a no-op, not an error.
	won, err = db.MarkPlayed(item.ID)
	require.NoError(t, err)
	assert.False(t, won)

	items, err := db.GetQueue(room.ID)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestRevertPlayed(t *testing.T) {
	db := newTestDB(t)
	room := seedRoom(t, db)
	item := seedItem(t, db, room, "track-1", "guest-1")

	won, err := db.MarkPlayed(item.ID)
	require.NoError(t, err)
	require.True(t, won)

	require.NoError(t, db.RevertPlayed(item.ID))

	got, err := db.GetNextSong(room.ID)
	require.NoError(t, err)
	assert.Equal(t, item.ID, got.ID)
}

func TestRevertPlayedAfterRequeue(t *testing.T) {
	db := newTestDB(t)
	room := seedRoom(t, db)
	item := seedItem(t, db, room, "track-1", "guest-1")

	won, err := db.MarkPlayed(item.ID)
	require.NoError(t, err)
	require.True(t, won)

	// A guest re-queues the track before the revert lands. The revert
	// must not produce a second WAITING row.
	requeued := seedItem(t, db, room, "track-1", "guest-2")

	err = db.RevertPlayed(item.ID)
	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)

	items, err := db.GetQueue(room.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, requeued.ID, items[0].ID)
}

func TestRoomCodeUnique(t *testing.T) {
	db := newTestDB(t)
	room := seedRoom(t, db)

	dup := &models.Room{ID: uuid.New(), Code: room.Code, HostID: room.HostID, Name: "Dup"}
	err := db.CreateRoom(dup)
	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)
}

func TestGuestFirstWriteWins(t *testing.T) {
	db := newTestDB(t)
	roomA := seedRoom(t, db)
	roomB := seedRoom(t, db)

	first, err := db.GetOrCreateGuest("guest-1", roomA.ID)
	require.NoError(t, err)
	assert.Equal(t, roomA.ID, first.RoomID)

	// A later touch through another room must not re-home the guest.
	again, err := db.GetOrCreateGuest("guest-1", roomB.ID)
	require.NoError(t, err)
	assert.Equal(t, roomA.ID, again.RoomID)
}

func TestReplaceHostTokens(t *testing.T) {
	db := newTestDB(t)

	host := &models.Host{ID: uuid.New(), SpotifyID: "sp-1", AccessToken: "old-access", RefreshToken: "old-refresh"}
	require.NoError(t, db.CreateHost(host))

	require.NoError(t, db.ReplaceHostTokens(host.ID, "new-access", ""))

	got, err := db.GetHostByID(host.ID)
	require.NoError(t, err)
	assert.Equal(t, "new-access", got.AccessToken)
	assert.Equal(t, "old-refresh", got.RefreshToken)

	require.NoError(t, db.ReplaceHostTokens(host.ID, "newer-access", "new-refresh"))

	got, err = db.GetHostByID(host.ID)
	require.NoError(t, err)
	assert.Equal(t, "new-refresh", got.RefreshToken)
}
