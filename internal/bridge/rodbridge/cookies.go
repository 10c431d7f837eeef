package rodbridge

import (
	"time"

	"github.com/go-rod/rod/lib/proto"

	"github.com/v0xg/shortweb/internal/session"
)

// fromProto converts browser cookies, dropping the expiry of session cookies
func fromProto(in []*proto.NetworkCookie) []session.Cookie {
	out := make([]session.Cookie, 0, len(in))
	for _, c := range in {
		if c == nil {
			continue
		}
		sc := session.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: string(c.SameSite),
		}
		if !c.Session && c.Expires > 0 {
			sc.Expires = c.Expires.Time().UTC().Truncate(time.Millisecond)
		}
		out = append(out, sc)
	}
	return out
}

// toProto converts stored cookies into set-cookie params
func toProto(in []session.Cookie) []*proto.NetworkCookieParam {
	out := make([]*proto.NetworkCookieParam, 0, len(in))
	for _, c := range in {
		p := &proto.NetworkCookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: proto.NetworkCookieSameSite(c.SameSite),
		}
		if !c.Expires.IsZero() {
			p.Expires = proto.TimeSinceEpoch(float64(c.Expires.UnixMilli()) / 1000)
		}
		out = append(out, p)
	}
	return out
}
