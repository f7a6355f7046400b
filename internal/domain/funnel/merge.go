package funnel

import (
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// Channel is a transport that can carry funnel state between screens.
type Channel string

// Channels in descending priority.
const (
	ChannelNavigation Channel = "navigation"
	ChannelURL        Channel = "url"
	ChannelDurable    Channel = "durable"
)

func (c Channel) priority() int {
	switch c {
	case ChannelNavigation:
		return 0
	case ChannelURL:
		return 1
	case ChannelDurable:
		return 2
	default:
		return 3
	}
}

// Field names reported in MergeResult.Origins.
const (
	FieldSession  = "session_id"
	FieldRating   = "rating"
	FieldComment  = "comment"
	FieldLocation = "location_id"
	FieldDisplay  = "display"
)

// Snapshot is what one channel supplied. Nil fields were not supplied.
type Snapshot struct {
	Channel    Channel
	SessionID  *string
	Rating     *int
	Comment    *string
	LocationID *string
	Display    *Display
}

// Conflict records a lower-priority channel that named a different location.
type Conflict struct {
	Channel    Channel `json:"channel"`
	LocationID string  `json:"location_id"`
}

// MergeResult is the merged state plus where each field came from.
type MergeResult struct {
	State     State
	Origins   map[string]Channel
	Conflicts []Conflict
}

// Merge builds one State from the given snapshots. For each field the
// highest-priority channel that supplies a defined, valid value wins; a field
// is never assembled from two channels. The durable channel only contributes
// the rating.
func Merge(snapshots ...Snapshot) MergeResult {
	ordered := make([]Snapshot, len(snapshots))
	copy(ordered, snapshots)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Channel.priority() < ordered[j].Channel.priority()
	})

	result := MergeResult{Origins: make(map[string]Channel)}
	st := &result.State

	for _, snap := range ordered {
		durable := snap.Channel == ChannelDurable

		if _, done := result.Origins[FieldSession]; !done && !durable && snap.SessionID != nil {
			if id := strings.TrimSpace(*snap.SessionID); id != "" {
				st.SessionID = id
				result.Origins[FieldSession] = snap.Channel
			}
		}

		if _, done := result.Origins[FieldRating]; !done && snap.Rating != nil && ValidRating(*snap.Rating) {
			st.Rating = *snap.Rating
			result.Origins[FieldRating] = snap.Channel
		}

		if _, done := result.Origins[FieldComment]; !done && !durable && snap.Comment != nil {
			if strings.TrimSpace(*snap.Comment) != "" {
				st.Comment = *snap.Comment
				result.Origins[FieldComment] = snap.Channel
			}
		}

		if snap.LocationID != nil && !durable {
			id := strings.TrimSpace(*snap.LocationID)
			if id != "" {
				if _, done := result.Origins[FieldLocation]; !done {
					st.LocationID = id
					result.Origins[FieldLocation] = snap.Channel
				} else if id != st.LocationID {
					result.Conflicts = append(result.Conflicts, Conflict{Channel: snap.Channel, LocationID: id})
				}
			}
		}
	}

	// Display travels with the location it was resolved for, so it is picked
	// after the location is settled.
	for _, snap := range ordered {
		if snap.Channel == ChannelDurable || snap.Display == nil {
			continue
		}
		if snap.Display.LocationID != "" && snap.Display.LocationID != st.LocationID {
			continue
		}
		d := *snap.Display
		st.Display = &d
		result.Origins[FieldDisplay] = snap.Channel
		break
	}

	return result
}

// Query parameter names shared by the funnel's URLs.
const (
	QueryRating     = "rating"
	QueryComment    = "comment"
	QueryLocationID = "locationId"
)

// ParseQuery reads the URL channel. A non-numeric rating is treated as not
// supplied; range checking is left to Merge.
func ParseQuery(values url.Values) Snapshot {
	snap := Snapshot{Channel: ChannelURL}

	if raw := strings.TrimSpace(values.Get(QueryRating)); raw != "" {
		if r, err := strconv.Atoi(raw); err == nil {
			snap.Rating = &r
		}
	}
	if values.Has(QueryComment) {
		c := values.Get(QueryComment)
		snap.Comment = &c
	}
	if id := strings.TrimSpace(values.Get(QueryLocationID)); id != "" {
		snap.LocationID = &id
	}
	return snap
}

// EncodeQuery writes the URL channel for s. Unset fields are omitted.
func EncodeQuery(s State) url.Values {
	values := url.Values{}
	if ValidRating(s.Rating) {
		values.Set(QueryRating, strconv.Itoa(s.Rating))
	}
	if s.Comment != "" {
		values.Set(QueryComment, s.Comment)
	}
	if s.LocationID != "" {
		values.Set(QueryLocationID, s.LocationID)
	}
	return values
}

// SnapshotOf turns a State into a snapshot for channel c.
func SnapshotOf(c Channel, s State) Snapshot {
	snap := Snapshot{Channel: c}
	if s.SessionID != "" {
		id := s.SessionID
		snap.SessionID = &id
	}
	if s.Rating != 0 {
		r := s.Rating
		snap.Rating = &r
	}
	if s.Comment != "" {
		comment := s.Comment
		snap.Comment = &comment
	}
	if s.LocationID != "" {
		id := s.LocationID
		snap.LocationID = &id
	}
	if s.Display != nil {
		d := *s.Display
		snap.Display = &d
	}
	return snap
}
