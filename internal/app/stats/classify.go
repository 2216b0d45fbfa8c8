package stats

import (
	"strings"
	"time"

	"github.com/dkeye/Presence/internal/core"
	"github.com/dkeye/Presence/internal/domain"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	BucketHome  = "home"
	BucketPost  = "post"
	BucketOther = "other"
)

// DefaultKnownBuckets always appear in a snapshot, at zero when empty.
var DefaultKnownBuckets = []string{"home", "about", "portfolio", "blog", "contact"}

// Snapshot maps a bucket id to its occupancy.
type Snapshot map[string]domain.RoomSnapshot

func (s Snapshot) clone() Snapshot {
	out := make(Snapshot, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Total is the number of users across all buckets.
func (s Snapshot) Total() int {
	n := 0
	for _, v := range s {
		n += v.UserCount
	}
	return n
}

// Classify maps a room name to its bucket. Rules apply in order:
// a name containing "lobby" is home, "page_<id>" is <id>, a name
// containing "post" is post, anything else is other.
func Classify(name domain.RoomName) string {
	n := string(name)
	switch {
	case strings.Contains(n, string(domain.KindLobby)):
		return BucketHome
	case strings.HasPrefix(n, domain.PagePrefix) && len(n) > len(domain.PagePrefix):
		return strings.TrimPrefix(n, domain.PagePrefix)
	case strings.Contains(n, string(domain.KindPost)):
		return BucketPost
	}
	return BucketOther
}

// DisplayName title-cases a bucket id, e.g. "portfolio" becomes "Portfolio".
func DisplayName(bucket string) string {
	return cases.Title(language.English).String(strings.ReplaceAll(bucket, "-", " "))
}

// Build sums live session counts per bucket. Rooms of the same bucket are
// added together; known buckets without rooms are reported at zero.
func Build(rooms []core.RoomInfo, known []string, now time.Time) Snapshot {
	snap := make(Snapshot, len(known)+len(rooms))
	for _, id := range known {
		snap[id] = bucket(id, 0, now)
	}
	for _, r := range rooms {
		id := Classify(r.Name)
		s, ok := snap[id]
		if !ok {
			s = bucket(id, 0, now)
		}
		s.UserCount += r.Clients
		snap[id] = s
	}
	return snap
}

func bucket(id string, users int, now time.Time) domain.RoomSnapshot {
	return domain.RoomSnapshot{
		RoomID:      id,
		RoomType:    id,
		DisplayName: DisplayName(id),
		UserCount:   users,
		LastUpdated: now,
	}
}
