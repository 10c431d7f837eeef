package cdpbridge

import (
	"math"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"

	"github.com/v0xg/shortweb/internal/session"
)

func fromNetwork(in []*network.Cookie) []session.Cookie {
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
			sec, frac := math.Modf(c.Expires)
			sc.Expires = time.Unix(int64(sec), int64(frac*1e9)).UTC().Truncate(time.Millisecond)
		}
		out = append(out, sc)
	}
	return out
}

func toNetwork(in []session.Cookie) []*network.CookieParam {
	out := make([]*network.CookieParam, 0, len(in))
	for _, c := range in {
		p := &network.CookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: network.CookieSameSite(c.SameSite),
		}
		if !c.Expires.IsZero() {
			t := cdp.TimeSinceEpoch(c.Expires)
			p.Expires = &t
		}
		out = append(out, p)
	}
	return out
}
