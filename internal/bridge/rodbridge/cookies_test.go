package rodbridge

import (
	"testing"
	"time"

	"github.com/go-rod/rod/lib/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/v0xg/shortweb/internal/session"
)

func TestCookiesFromProto(t *testing.T) {
	expires := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
	in := []*proto.NetworkCookie{
		{
			Name:     "sid",
			Value:    "abc",
			Domain:   ".example.com",
			Path:     "/",
			Expires:  proto.TimeSinceEpoch(expires.Unix()),
			HTTPOnly: true,
			Secure:   true,
			SameSite: proto.NetworkCookieSameSiteLax,
		},
		{Name: "tmp", Value: "1", Domain: "example.com", Path: "/", Expires: -1, Session: true},
		nil,
	}

	out := fromProto(in)
	require.Len(t, out, 2)
	assert.Equal(t, session.Cookie{
		Name:     "sid",
		Value:    "abc",
		Domain:   ".example.com",
		Path:     "/",
		Expires:  expires,
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	}, out[0])
	assert.True(t, out[1].Expires.IsZero())
}

func TestCookiesToProto(t *testing.T) {
	expires := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
	out := toProto([]session.Cookie{
		{Name: "sid", Value: "abc", Domain: "example.com", Path: "/", Expires: expires, Secure: true, SameSite: "Strict"},
		{Name: "tmp", Value: "1", Domain: "example.com", Path: "/"},
	})
	require.Len(t, out, 2)
	assert.Equal(t, proto.TimeSinceEpoch(expires.Unix()), out[0].Expires)
	assert.Equal(t, proto.NetworkCookieSameSiteStrict, out[0].SameSite)
	assert.True(t, out[0].Secure)
	assert.Zero(t, out[1].Expires)
}

func TestCookiesRoundTrip(t *testing.T) {
	in := []session.Cookie{{
		Name:    "a",
		Value:   "b",
		Domain:  "example.com",
		Path:    "/x",
		Expires: time.Date(2031, 5, 6, 7, 8, 9, 0, time.UTC),
	}}
	var browser []*proto.NetworkCookie
	for _, p := range toProto(in) {
		browser = append(browser, &proto.NetworkCookie{
			Name: p.Name, Value: p.Value, Domain: p.Domain, Path: p.Path, Expires: p.Expires,
		})
	}
	assert.Equal(t, in, fromProto(browser))
}
