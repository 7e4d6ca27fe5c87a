package tracking

import (
	"fmt"
	"html"
	"net/url"
	"strings"

	"github.com/sungwon/campaign-dispatch/internal/domain"
)

// Instrumenter builds tracking URLs and embeds the open beacon into outgoing
// content. All methods are pure string operations.
type Instrumenter struct {
	// TrackingURL is the GET endpoint that records beacon hits.
	TrackingURL string
	// BaseURL is the public application URL unsubscribe links point at.
	BaseURL string
	// UnsubscribePath is appended to BaseURL for unsubscribe links.
	UnsubscribePath string
}

// BeaconURL returns the open-tracking URL for one recipient of one campaign.
func (in Instrumenter) BeaconURL(campaignID, recipientID string) string {
	q := url.Values{}
	q.Set("campaignId", campaignID)
	q.Set("recipientId", recipientID)
	q.Set("eventType", string(domain.EventOpen))
	return joinQuery(in.TrackingURL, q.Encode())
}

// BeaconTag returns the invisible image element referencing BeaconURL.
func (in Instrumenter) BeaconTag(campaignID, recipientID string) string {
	return fmt.Sprintf(`<img src="%s" width="1" height="1" alt="" style="display:none;border:0" />`,
		html.EscapeString(in.BeaconURL(campaignID, recipientID)))
}

// InjectBeacon embeds the open beacon right before the last closing body tag,
// or appends it when the content has none. Content is returned unchanged when
// either id is empty or the beacon is already present.
func (in Instrumenter) InjectBeacon(content, campaignID, recipientID string) string {
	if campaignID == "" || recipientID == "" {
		return content
	}

	tag := in.BeaconTag(campaignID, recipientID)
	if strings.Contains(content, tag) {
		return content
	}

	if idx := lastClosingBody(content); idx >= 0 {
		return content[:idx] + tag + content[idx:]
	}
	return content + tag
}

// lastClosingBody returns the byte offset of the last "</body>" in s,
// matched ASCII case-insensitively, or -1.
func lastClosingBody(s string) int {
	const marker = "</body>"
	for i := len(s) - len(marker); i >= 0; i-- {
		if s[i] == '<' && strings.EqualFold(s[i:i+len(marker)], marker) {
			return i
		}
	}
	return -1
}

// UnsubscribeURL returns the recipient-specific unsubscribe link. The
// recipient id is the opaque token.
func (in Instrumenter) UnsubscribeURL(recipientID string) string {
	if recipientID == "" {
		return ""
	}
	q := url.Values{}
	q.Set("token", recipientID)
	return joinQuery(strings.TrimRight(in.BaseURL, "/")+in.UnsubscribePath, q.Encode())
}

func joinQuery(base, query string) string {
	if strings.Contains(base, "?") {
		return base + "&" + query
	}
	return base + "?" + query
}
