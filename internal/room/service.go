package room

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/party-jam-system/internal/queue"
	"github.com/party-jam-system/internal/spotify"
	"github.com/party-jam-system/internal/token"
	"github.com/party-jam-system/internal/ws"
	"github.com/party-jam-system/pkg/database"
	"github.com/party-jam-system/pkg/events"
	"github.com/party-jam-system/pkg/models"
)

const (
	roomKeyPrefix = "room:"
	roomCacheTTL  = 24 * time.Hour
	codeLength    = 4
	codeCharset   = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	// 36^4 codes; collisions are rare but the unique index makes the
	// retry loop the authority, not the odds.
	maxCodeAttempts = 100

	searchLimit = 10
)

// MusicService is the playback/search half of the external music
// provider. Implemented by internal/spotify.
type MusicService interface {
	Search(ctx context.Context, accessToken, query string, limit int) ([]spotify.Track, error)
	Enqueue(ctx context.Context, accessToken, trackID string) error
}

// Notifier receives the room-changed pings after each committed
// mutation. Implemented by the websocket hub.
type Notifier interface {
	Notify(roomCode, event string)
}

// JoinInfo is what a guest learns when entering a room.
type JoinInfo struct {
	RoomID   uuid.UUID `json:"room_id"`
	RoomName string    `json:"room_name"`
	HostName string    `json:"host_name"`
}

// Service is the session orchestrator: it owns room lifecycle and runs
// every state-changing operation as validate → mutate → persist →
// notify, so a subscriber that re-fetches after a ping always sees the
// mutation that caused it.
type Service struct {
	db        *database.DB
	engine    *queue.Engine
	refresher *token.Refresher
	music     MusicService
	hub       Notifier
	cache     *redis.Client       // optional room-by-code cache
	events    *events.KafkaClient // optional activity stream
}

func NewService(db *database.DB, engine *queue.Engine, refresher *token.Refresher,
	music MusicService, hub Notifier, cache *redis.Client, ev *events.KafkaClient) *Service {
	return &Service{
		db:        db,
		engine:    engine,
		refresher: refresher,
		music:     music,
		hub:       hub,
		cache:     cache,
		events:    ev,
	}
}

// CreateRoom opens a new active room for the host and closes any other
// party the host still has running. Codes are sampled until the unique
// index accepts one; issued codes are never reused, rooms are only ever
// deactivated.
func (s *Service) CreateRoom(ctx context.Context, hostID uuid.UUID, name string) (*models.Room, error) {
	host, err := s.db.GetHostByID(hostID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrHostNotFound
		}
		return nil, fmt.Errorf("failed to load host: %w", err)
	}

	if err := s.db.DeactivateRooms(host.ID); err != nil {
		return nil, fmt.Errorf("failed to deactivate previous rooms: %w", err)
	}

	if name == "" {
		name = host.DisplayName + "'s party"
	}

	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		room := &models.Room{
			ID:     uuid.New(),
			Code:   generateRoomCode(),
			HostID: host.ID,
			Name:   name,
			Active: true,
		}
		err := s.db.CreateRoom(room)
		if err == nil {
			s.cacheRoom(ctx, room)
			return room, nil
		}
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			continue
		}
		return nil, fmt.Errorf("failed to create room: %w", err)
	}

	return nil, errors.New("exhausted room code attempts")
}

// JoinRoom is the one lookup restricted to active rooms: deactivation
// blocks new joins but guests already inside keep using the other
// endpoints, which resolve by code alone.
func (s *Service) JoinRoom(ctx context.Context, code string) (*JoinInfo, error) {
	room, err := s.db.GetActiveRoomByCode(normalizeCode(code))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, fmt.Errorf("failed to look up room: %w", err)
	}

	host, err := s.db.GetHostByID(room.HostID)
	if err != nil {
		return nil, fmt.Errorf("failed to load host: %w", err)
	}

	return &JoinInfo{RoomID: room.ID, RoomName: room.Name, HostName: host.DisplayName}, nil
}

// Search proxies a track search through the host's credentials, with
// one refresh-and-retry if the access token has gone stale.
func (s *Service) Search(ctx context.Context, code, query string) ([]spotify.Track, error) {
	room, err := s.roomByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	host, err := s.db.GetHostByID(room.HostID)
	if err != nil {
		return nil, fmt.Errorf("failed to load host: %w", err)
	}

	var tracks []spotify.Track
	err = s.refresher.WithValidToken(ctx, host, func(accessToken string) error {
		var searchErr error
		tracks, searchErr = s.music.Search(ctx, accessToken, query, searchLimit)
		return searchErr
	})
	if err != nil {
		if errors.Is(err, token.ErrSessionRenewal) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	return tracks, nil
}

// AddSong queues a track, coalescing with an already-WAITING entry for
// the same track. The first submission carries the guest's implicit
// vote; a coalesced duplicate changes nothing and sends no ping.
func (s *Service) AddSong(ctx context.Context, code, guestID string, track spotify.Track) (*models.QueueItem, bool, error) {
	room, err := s.roomByCode(ctx, code)
	if err != nil {
		return nil, false, err
	}

	if _, err := s.db.GetOrCreateGuest(guestID, room.ID); err != nil {
		return nil, false, fmt.Errorf("failed to register guest: %w", err)
	}

	item, existed, err := s.engine.Upsert(room, guestID, track)
	if err != nil {
		return nil, false, err
	}
	if existed {
		return item, true, nil
	}

	s.publish(ctx, events.Event{
		Type:     events.EventTypeSongAdded,
		RoomCode: room.Code,
		TrackID:  item.TrackID,
		Title:    item.Title,
		GuestID:  guestID,
	})
	s.hub.Notify(room.Code, ws.EventQueueUpdated)

	return item, false, nil
}

// ToggleVote flips the guest's vote on a queued track and reports the
// action taken plus the new count.
func (s *Service) ToggleVote(ctx context.Context, code, guestID, trackID string) (string, int, error) {
	room, err := s.roomByCode(ctx, code)
	if err != nil {
		return "", 0, err
	}

	if _, err := s.db.GetOrCreateGuest(guestID, room.ID); err != nil {
		return "", 0, fmt.Errorf("failed to register guest: %w", err)
	}

	action, count, err := s.engine.ToggleVote(room, guestID, trackID)
	if err != nil {
		return "", 0, err
	}

	s.publish(ctx, events.Event{
		Type:      events.EventTypeSongVoted,
		RoomCode:  room.Code,
		TrackID:   trackID,
		GuestID:   guestID,
		VoteCount: count,
	})
	s.hub.Notify(room.Code, ws.EventQueueUpdated)

	return action, count, nil
}

// GetQueue returns the ranked WAITING items. An unknown code yields an
// empty queue rather than an error, so a fresh room renders as empty.
func (s *Service) GetQueue(ctx context.Context, code string) ([]*models.QueueItem, error) {
	room, err := s.roomByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrRoomNotFound) {
			return []*models.QueueItem{}, nil
		}
		return nil, err
	}

	return s.engine.Rank(room)
}

// PlayNext claims the ranked winner and pushes it to the host's
// playback. The claim is a conditional WAITING→PLAYED update, so racing
// calls agree on a single winner and a single playback push; if the
// push fails the claim is rolled back and the item stays queued.
func (s *Service) PlayNext(ctx context.Context, code string) (*models.QueueItem, error) {
	room, err := s.roomByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	host, err := s.db.GetHostByID(room.HostID)
	if err != nil {
		return nil, fmt.Errorf("failed to load host: %w", err)
	}

	for {
		next, err := s.engine.PopWinner(room)
		if err != nil {
			return nil, err // includes queue.ErrQueueEmpty
		}

		won, err := s.db.MarkPlayed(next.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to mark song played: %w", err)
		}
		if !won {
			// A concurrent play-next claimed it first; rank again.
			continue
		}

		err = s.refresher.WithValidToken(ctx, host, func(accessToken string) error {
			return s.music.Enqueue(ctx, accessToken, next.TrackID)
		})
		if err != nil {
			s.revertPlayed(next.ID)
			if errors.Is(err, token.ErrSessionRenewal) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
		}

		s.publish(ctx, events.Event{
			Type:     events.EventTypeSongPlayed,
			RoomCode: room.Code,
			TrackID:  next.TrackID,
			Title:    next.Title,
		})
		s.hub.Notify(room.Code, ws.EventQueueUpdated)

		return next, nil
	}
}

// revertPlayed undoes a claim whose playback push failed, putting the
// song back in contention instead of silently losing it. A duplicate-key
// error means a guest re-queued the track meanwhile, so the room keeps a
// WAITING row either way.
func (s *Service) revertPlayed(itemID uint) {
	if err := s.db.RevertPlayed(itemID); err != nil && !errors.Is(err, gorm.ErrDuplicatedKey) {
		log.Error("failed to revert played status", "item", itemID, "err", err)
	}
}

// roomByCode resolves a room with no active filter, through the cache
// when one is configured. Join does not come through here; it must see
// the live active flag.
func (s *Service) roomByCode(ctx context.Context, code string) (*models.Room, error) {
	code = normalizeCode(code)

	if s.cache != nil {
		if data, err := s.cache.Get(ctx, roomKeyPrefix+code).Bytes(); err == nil {
			var room models.Room
			if err := json.Unmarshal(data, &room); err == nil {
				return &room, nil
			}
		}
	}

	room, err := s.db.GetRoomByCode(code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, fmt.Errorf("failed to look up room: %w", err)
	}

	s.cacheRoom(ctx, room)
	return room, nil
}

func (s *Service) cacheRoom(ctx context.Context, room *models.Room) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(room)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, roomKeyPrefix+room.Code, data, roomCacheTTL).Err(); err != nil {
		log.Warn("failed to cache room", "code", room.Code, "err", err)
	}
}

// publish writes an advisory activity event. Failures are logged and
// swallowed; analytics never fail a request.
func (s *Service) publish(ctx context.Context, event events.Event) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishEvent(ctx, event); err != nil {
		log.Warn("failed to publish activity event", "type", event.Type, "err", err)
	}
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func generateRoomCode() string {
	code := make([]byte, codeLength)
	for i := range code {
		code[i] = codeCharset[rand.Intn(len(codeCharset))]
	}
	return string(code)
}
