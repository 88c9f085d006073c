package browser

import (
	"net/url"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// resourceTypes maps config names (case-insensitive) to CDP resource types.
var resourceTypes = map[string]proto.NetworkResourceType{
	"image":      proto.NetworkResourceTypeImage,
	"stylesheet": proto.NetworkResourceTypeStylesheet,
	"font":       proto.NetworkResourceTypeFont,
	"media":      proto.NetworkResourceTypeMedia,
	"script":     proto.NetworkResourceTypeScript,
}

// adHosts lists ad and tracking domains blocked when BlockAds is set.
// Subdomains match too.
var adHosts = func() map[string]struct{} {
	list := []string{
		"doubleclick.net", "googlesyndication.com", "googleadservices.com",
		"google-analytics.com", "googletagmanager.com", "googletagservices.com",
		"facebook.net", "fbcdn.net", "adnxs.com", "adsrvr.org",
		"amazon-adsystem.com", "criteo.com", "criteo.net", "outbrain.com",
		"taboola.com", "moatads.com", "pubmatic.com", "rubiconproject.com",
		"scorecardresearch.com", "quantserve.com", "hotjar.com", "mixpanel.com",
		"segment.io", "segment.com", "ads-twitter.com", "chartbeat.com",
		"chartbeat.net", "optimizely.com", "media.net", "bidswitch.net",
		"openx.net", "casalemedia.com", "demdex.net", "krxd.net",
		"bluekai.com", "mathtag.com", "serving-sys.com", "rlcdn.com",
		"sharethis.com", "addthis.com", "consensu.org",
	}
	m := make(map[string]struct{}, len(list))
	for _, h := range list {
		m[h] = struct{}{}
	}
	return m
}()

// isAdDomain reports whether host or one of its parent domains is listed.
func isAdDomain(host string) bool {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	for host != "" {
		if _, ok := adHosts[host]; ok {
			return true
		}
		i := strings.IndexByte(host, '.')
		if i < 0 {
			return false
		}
		host = host[i+1:]
	}
	return false
}

// blockedTypeSet resolves config names, ignoring unknown ones.
func blockedTypeSet(names []string) map[proto.NetworkResourceType]struct{} {
	set := make(map[proto.NetworkResourceType]struct{}, len(names))
	for _, name := range names {
		if rt, ok := resourceTypes[strings.ToLower(strings.TrimSpace(name))]; ok {
			set[rt] = struct{}{}
		}
	}
	return set
}

// shouldBlock decides a single intercepted request.
func shouldBlock(blocked map[proto.NetworkResourceType]struct{}, blockAds bool, rt proto.NetworkResourceType, rawURL string) bool {
	if _, ok := blocked[rt]; ok {
		return true
	}
	if !blockAds {
		return false
	}
	u, err := url.Parse(rawURL)
	return err == nil && isAdDomain(u.Hostname())
}

// setupHijack intercepts every request on page and fails the blocked
// ones. It returns nil when nothing is blocked; otherwise the caller must
// Stop the router.
func setupHijack(page *rod.Page, blocked map[proto.NetworkResourceType]struct{}, blockAds bool) *rod.HijackRouter {
	if len(blocked) == 0 && !blockAds {
		return nil
	}
	router := page.HijackRequests()
	_ = router.Add("*", "", func(h *rod.Hijack) {
		if shouldBlock(blocked, blockAds, h.Request.Type(), h.Request.URL().String()) {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	})
	// Run blocks until Stop.
	go router.Run()
	return router
}
