// Sentinel errors shared by the room service and its handlers. They let
// the HTTP layer tell "this no longer exists" (404) apart from "the
// upstream is unhappy, try again" (502) and "log in again" (401).
package room

import "errors"

// ErrRoomNotFound covers both an unknown code and, on the join path, a
// room that exists but is closed to new guests.
var ErrRoomNotFound = errors.New("room not found")

// ErrHostNotFound means the authenticated host id has no record, e.g. a
// stale session cookie after a database reset.
var ErrHostNotFound = errors.New("host not found")

// ErrUpstream wraps Spotify call failures that survived the one
// refresh-and-retry cycle.
var ErrUpstream = errors.New("music service failure")
