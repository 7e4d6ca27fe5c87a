package tracking

import (
	"net/url"
	"strings"
	"testing"
)

func newTestInstrumenter() Instrumenter {
	return Instrumenter{
		TrackingURL:     "https://t.example.com/api/v1/track",
		BaseURL:         "https://app.example.com/",
		UnsubscribePath: "/api/v1/unsubscribe",
	}
}

func TestBeaconURL_QueryParameters(t *testing.T) {
	in := newTestInstrumenter()

	raw := in.BeaconURL("c1", "r1")
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("beacon URL does not parse: %v", err)
	}
	if u.Host != "t.example.com" || u.Path != "/api/v1/track" {
		t.Errorf("unexpected endpoint: %s", raw)
	}
	q := u.Query()
	if q.Get("campaignId") != "c1" || q.Get("recipientId") != "r1" || q.Get("eventType") != "open" {
		t.Errorf("unexpected query: %v", q)
	}
}

func TestInjectBeacon_PresenceRequiresBothIDs(t *testing.T) {
	in := newTestInstrumenter()
	content := "<html><body><p>Hi</p></body></html>"

	tests := []struct {
		name        string
		campaignID  string
		recipientID string
		want        bool
	}{
		{"both ids", "c1", "r1", true},
		{"missing campaign", "", "r1", false},
		{"missing recipient", "c1", "", false},
		{"missing both", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := in.InjectBeacon(content, tt.campaignID, tt.recipientID)
			has := strings.Contains(out, "eventType=open")
			if has != tt.want {
				t.Errorf("beacon present = %v, want %v (output %q)", has, tt.want, out)
			}
			if !tt.want && out != content {
				t.Errorf("content changed without beacon: %q", out)
			}
		})
	}
}

func TestInjectBeacon_BeforeClosingBody(t *testing.T) {
	in := newTestInstrumenter()

	out := in.InjectBeacon("<html><BODY><p>Hi</p></BODY></html>", "c1", "r1")

	tag := in.BeaconTag("c1", "r1")
	if !strings.HasSuffix(out, tag+"</BODY></html>") {
		t.Errorf("beacon not placed before closing body: %q", out)
	}
}

func TestInjectBeacon_NonASCIIBodies(t *testing.T) {
	in := newTestInstrumenter()
	tag := in.BeaconTag("c1", "r1")

	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"latin1 byte", "<html><body>caf\xe9 latin1</body></html>", "<html><body>caf\xe9 latin1" + tag + "</body></html>"},
		{"dotted capital i", "<body>İİİİ hello</body>", "<body>İİİİ hello" + tag + "</body>"},
		{"mixed case marker after utf8", "<body>日本語 ☃</Body>", "<body>日本語 ☃" + tag + "</Body>"},
		{"last of two markers", "<body>a</body>ß<body>b</BODY>", "<body>a</body>ß<body>b" + tag + "</BODY>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := in.InjectBeacon(tt.content, "c1", "r1"); got != tt.want {
				t.Errorf("InjectBeacon() =\n%q\nwant\n%q", got, tt.want)
			}
		})
	}
}

func TestInjectBeacon_AppendsWithoutBody(t *testing.T) {
	in := newTestInstrumenter()

	out := in.InjectBeacon("<p>Hi</p>", "c1", "r1")

	if !strings.HasPrefix(out, "<p>Hi</p><img ") {
		t.Errorf("beacon not appended: %q", out)
	}
	if !strings.Contains(out, `width="1" height="1"`) {
		t.Errorf("beacon is not zero-size: %q", out)
	}
}

func TestInjectBeacon_Idempotent(t *testing.T) {
	in := newTestInstrumenter()

	once := in.InjectBeacon("<body>x</body>", "c1", "r1")
	twice := in.InjectBeacon(once, "c1", "r1")

	if once != twice {
		t.Errorf("second injection changed content:\n%q\n%q", once, twice)
	}
}

func TestUnsubscribeURL(t *testing.T) {
	in := newTestInstrumenter()

	got := in.UnsubscribeURL("r1")
	want := "https://app.example.com/api/v1/unsubscribe?token=r1"
	if got != want {
		t.Errorf("UnsubscribeURL = %q, want %q", got, want)
	}

	if in.UnsubscribeURL("") != "" {
		t.Error("expected empty URL without a recipient id")
	}
}
