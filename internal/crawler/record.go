package crawler

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// RecordType tags the payload carried by a Record.
type RecordType string

// Record types written to the result sink.
const (
	RecordProfile  RecordType = "profile"
	RecordPost     RecordType = "post"
	RecordHashtag  RecordType = "hashtag"
	RecordLocation RecordType = "location"
	RecordSummary  RecordType = "summary"
)

// Record is one extraction result. Exactly one payload pointer is set and it
// matches Type.
type Record struct {
	Type      RecordType
	URL       string
	ScrapedAt time.Time
	ReportURL string

	Profile  *Profile
	Post     *Post
	Hashtag  *Hashtag
	Location *Location
	Summary  *Summary
}

// Profile holds account-level fields. Counts are never negative and are zero
// when no strategy produced a parsable value.
type Profile struct {
	Username       string `json:"username"`
	FullName       string `json:"fullName,omitempty"`
	Biography      string `json:"biography,omitempty"`
	ExternalURL    string `json:"externalUrl,omitempty"`
	ProfilePic     string `json:"profilePic,omitempty"`
	FollowersCount int64  `json:"followersCount"`
	FollowingCount int64  `json:"followingCount"`
	PostsCount     int64  `json:"postsCount"`
	IsPrivate      bool   `json:"isPrivate"`
	IsVerified     bool   `json:"isVerified"`
}

// Comment is a single post comment; both fields are required.
type Comment struct {
	User string `json:"user"`
	Text string `json:"text"`
}

// Post holds a single post's fields.
type Post struct {
	Caption    string    `json:"caption,omitempty"`
	Timestamp  string    `json:"timestamp,omitempty"`
	Images     []string  `json:"images"`
	LikesCount int64     `json:"likesCount"`
	Owner      string    `json:"owner,omitempty"`
	Comments   []Comment `json:"comments"`
}

// Hashtag holds tag page fields.
type Hashtag struct {
	TagName    string `json:"tagName,omitempty"`
	PostsCount int64  `json:"postsCount"`
}

// Location holds location page fields.
type Location struct {
	LocationName string `json:"locationName,omitempty"`
	Address      string `json:"address,omitempty"`
}

// Summary aggregates a run.
type Summary struct {
	Profiles       int   `json:"profiles"`
	Posts          int   `json:"posts"`
	Hashtags       int   `json:"hashtags"`
	Locations      int   `json:"locations"`
	TotalRecords   int   `json:"totalRecords"`
	TotalFollowers int64 `json:"totalFollowers"`
	TotalLikes     int64 `json:"totalLikes"`
	FailedTasks    int   `json:"failedTasks"`
	NoData         bool  `json:"noData"`
}

type recordHeader struct {
	Type      RecordType `json:"type"`
	URL       string     `json:"url"`
	ScrapedAt time.Time  `json:"scrapedAt"`
	ReportURL string     `json:"reportUrl,omitempty"`
}

// MarshalJSON flattens the payload next to the common header fields.
func (r Record) MarshalJSON() ([]byte, error) {
	header := recordHeader{Type: r.Type, URL: r.URL, ScrapedAt: r.ScrapedAt, ReportURL: r.ReportURL}
	var (
		data []byte
		err  error
	)
	switch r.Type {
	case RecordProfile:
		data, err = json.Marshal(struct {
			recordHeader
			*Profile
		}{header, r.Profile})
	case RecordPost:
		data, err = json.Marshal(struct {
			recordHeader
			*Post
		}{header, r.Post})
	case RecordHashtag:
		data, err = json.Marshal(struct {
			recordHeader
			*Hashtag
		}{header, r.Hashtag})
	case RecordLocation:
		data, err = json.Marshal(struct {
			recordHeader
			*Location
		}{header, r.Location})
	case RecordSummary:
		data, err = json.Marshal(struct {
			recordHeader
			*Summary
		}{header, r.Summary})
	default:
		return nil, fmt.Errorf("unknown record type %q", r.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("marshal %s record: %w", r.Type, err)
	}
	return data, nil
}

// DisplayName returns the most human-friendly identifier for the record.
func (r Record) DisplayName() string {
	switch {
	case r.Profile != nil && r.Profile.Username != "":
		return "@" + r.Profile.Username
	case r.Hashtag != nil && r.Hashtag.TagName != "":
		return r.Hashtag.TagName
	case r.Location != nil && r.Location.LocationName != "":
		return r.Location.LocationName
	case r.Post != nil && r.Post.Owner != "":
		return "post by " + r.Post.Owner
	default:
		return r.URL
	}
}

// Metric returns the headline number for the record as display text.
func (r Record) Metric() string {
	switch {
	case r.Profile != nil:
		return strconv.FormatInt(r.Profile.FollowersCount, 10) + " followers"
	case r.Post != nil:
		return strconv.FormatInt(r.Post.LikesCount, 10) + " likes"
	case r.Hashtag != nil:
		return strconv.FormatInt(r.Hashtag.PostsCount, 10) + " posts"
	default:
		return "-"
	}
}
