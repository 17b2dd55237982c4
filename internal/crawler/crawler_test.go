package crawler

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNormalizeURL(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"HTTPS://WWW.Instagram.com:443/natgeo":      "https://www.instagram.com/natgeo/",
		"https://www.instagram.com/p/abc123/#x":     "https://www.instagram.com/p/abc123/",
		"https://www.instagram.com/natgeo/?b=2&a=1": "https://www.instagram.com/natgeo/?a=1&b=2",
	}
	for in, want := range cases {
		got, err := NormalizeURL(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got)
	}

	_, err := NormalizeURL("/relative/path")
	require.Error(t, err)
}

func TestParseLabelDefaultsToProfile(t *testing.T) {
	t.Parallel()

	require.Equal(t, LabelPost, ParseLabel("post"))
	require.Equal(t, LabelHashtag, ParseLabel(" HASHTAG "))
	require.Equal(t, LabelProfile, ParseLabel(""))
	require.Equal(t, LabelProfile, ParseLabel("unknown"))
}

func TestTaskIntParam(t *testing.T) {
	t.Parallel()

	task := NewTask("https://www.instagram.com/natgeo/", "", map[string]any{
		"limit":    float64(12),
		"maxPosts": "7",
		"bad":      []int{1},
	})
	require.Equal(t, LabelProfile, task.Label)
	require.Equal(t, 12, task.IntParam("limit", 5))
	require.Equal(t, 7, task.IntParam("maxPosts", 5))
	require.Equal(t, 5, task.IntParam("bad", 5))
	require.Equal(t, 5, task.IntParam("missing", 5))

	next := task.Retried()
	require.Equal(t, 1, next.Attempt)
	next.UserData["limit"] = 1
	require.Equal(t, 12, task.IntParam("limit", 0), "retry copies user data")
}

func TestTaskIntParamIgnoresKeyCase(t *testing.T) {
	t.Parallel()

	task := NewTask("https://www.instagram.com/natgeo/", LabelProfile, map[string]any{"maxposts": 3})
	require.Equal(t, 3, task.IntParam("maxPosts", 30))

	exact := NewTask("https://www.instagram.com/natgeo/", LabelProfile, map[string]any{"maxPosts": 4, "MAXPOSTS": 9})
	require.Equal(t, 4, exact.IntParam("maxPosts", 30), "an exact key wins")
}

func TestRecordMarshalFlattensPayload(t *testing.T) {
	t.Parallel()

	rec := Record{
		Type:      RecordProfile,
		URL:       "https://www.instagram.com/natgeo/",
		ScrapedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		ReportURL: "memory://runs/r1/REPORT",
		Profile:   &Profile{Username: "natgeo", FollowersCount: 13500000},
	}
	data, err := json.Marshal(rec)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, "profile", decoded["type"])
	require.Equal(t, "natgeo", decoded["username"])
	require.Equal(t, float64(13500000), decoded["followersCount"])
	require.Equal(t, "memory://runs/r1/REPORT", decoded["reportUrl"])
	require.NotContains(t, decoded, "fullName")

	_, err = json.Marshal(Record{Type: "bogus"})
	require.Error(t, err)
}

func TestRetryPolicy(t *testing.T) {
	t.Parallel()

	policy := NewExponentialRetryPolicy(2, 10*time.Millisecond, 40*time.Millisecond)
	retry := Retry(ReasonPlatformError, ErrPlatformError)
	fatal := Fatal(ReasonLoginRequired, ErrLoginRequired)

	require.True(t, policy.ShouldRetry(retry, 0))
	require.True(t, policy.ShouldRetry(retry, 1))
	require.False(t, policy.ShouldRetry(retry, 2))
	require.False(t, policy.ShouldRetry(fatal, 0))
	require.False(t, policy.ShouldRetry(Ok(Record{Type: RecordPost}), 0))
	require.True(t, errors.Is(fatal.Err, ErrLoginRequired))

	for attempt := 0; attempt < 6; attempt++ {
		d := policy.Backoff(attempt)
		require.GreaterOrEqual(t, d, time.Duration(0))
		require.LessOrEqual(t, d, 40*time.Millisecond)
	}
}

func TestURLHelpers(t *testing.T) {
	t.Parallel()

	require.Equal(t, "https://www.instagram.com/explore/tags/sunset/", HashtagURL("#sunset"))
	require.Equal(t, "https://www.instagram.com/p/Cx1/", PostURL("", "Cx1"))
	require.Equal(t, []string{"explore", "tags", "sunset"}, PathSegments("https://www.instagram.com/explore/tags/sunset/"))
	require.Equal(t, "runs/r1/REPORT", RunContext{ID: "r1"}.ArtifactPath("REPORT"))

	slug := URLSlug("https://www.instagram.com/natgeo/")
	require.Regexp(t, `^natgeo_[0-9a-f]{8}$`, slug)
}
