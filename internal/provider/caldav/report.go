package caldav

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
)

// Raw WebDAV report plumbing. The go-webdav client covers discovery,
// calendar-query and calendar-multiget; the sync-collection report (RFC 6578)
// and the enriched collection PROPFIND (getctag, calendar-color) are not
// exposed by it, so their bodies and multistatus parsing live here.

const (
	nsDAV          = "DAV:"
	nsCalendarSrv  = "http://calendarserver.org/ns/"
	depthHeader    = "Depth"
	reportMethod   = "REPORT"
	propfindMethod = "PROPFIND"
)

const principalPropfindBody = `<?xml version="1.0" encoding="UTF-8"?>
<d:propfind xmlns:d="DAV:">
  <d:prop>
    <d:current-user-principal/>
  </d:prop>
</d:propfind>`

const collectionPropfindBody = `<?xml version="1.0" encoding="UTF-8"?>
<d:propfind xmlns:d="DAV:" xmlns:cs="http://calendarserver.org/ns/" xmlns:ical="http://apple.com/ns/ical/">
  <d:prop>
    <d:displayname/>
    <d:resourcetype/>
    <d:current-user-privilege-set/>
    <cs:getctag/>
    <d:sync-token/>
    <ical:calendar-color/>
  </d:prop>
</d:propfind>`

func syncCollectionBody(syncToken string) string {
	var tok string
	if syncToken != "" {
		_ = xml.EscapeText(&tokenWriter{&tok}, []byte(syncToken))
	}
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<d:sync-collection xmlns:d="DAV:">
  <d:sync-token>%s</d:sync-token>
  <d:sync-level>1</d:sync-level>
  <d:prop>
    <d:getetag/>
  </d:prop>
</d:sync-collection>`, tok)
}

type tokenWriter struct{ s *string }

func (w *tokenWriter) Write(p []byte) (int, error) {
	*w.s += string(p)
	return len(p), nil
}

type multistatus struct {
	XMLName   xml.Name      `xml:"DAV: multistatus"`
	Responses []msResponse  `xml:"response"`
	SyncToken string        `xml:"sync-token"`
}

type msResponse struct {
	Href      string       `xml:"href"`
	Status    string       `xml:"status"`
	Propstats []msPropstat `xml:"propstat"`
}

type msPropstat struct {
	Status string `xml:"status"`
	Prop   msProp `xml:"prop"`
}

type msProp struct {
	ETag          string          `xml:"getetag"`
	Principal     *msHref         `xml:"current-user-principal"`
	DisplayName   string          `xml:"displayname"`
	CTag          string          `xml:"http://calendarserver.org/ns/ getctag"`
	SyncToken     string          `xml:"sync-token"`
	CalendarColor string          `xml:"http://apple.com/ns/ical/ calendar-color"`
	ResourceType  *msResourceType `xml:"resourcetype"`
	Privileges    *msPrivilegeSet `xml:"current-user-privilege-set"`
}

type msHref struct {
	Href string `xml:"href"`
}

type msResourceType struct {
	Calendar *struct{} `xml:"urn:ietf:params:xml:ns:caldav calendar"`
}

type msPrivilegeSet struct {
	Privileges []msPrivilege `xml:"privilege"`
}

type msPrivilege struct {
	Write *struct{} `xml:"write"`
	Bind  *struct{} `xml:"bind"`
}

// Writable reports whether the privilege set allows modifying the
// collection. An absent set is treated as writable.
func (p *msPrivilegeSet) Writable() bool {
	if p == nil || len(p.Privileges) == 0 {
		return true
	}
	for _, priv := range p.Privileges {
		if priv.Write != nil || priv.Bind != nil {
			return true
		}
	}
	return false
}

func parseMultistatus(data []byte) (*multistatus, error) {
	var ms multistatus
	if err := xml.Unmarshal(data, &ms); err != nil {
		return nil, fmt.Errorf("parse multistatus: %w", err)
	}
	return &ms, nil
}

// statusCode extracts the numeric code from a status line such as
// "HTTP/1.1 404 Not Found". Zero means no status was present.
func statusCode(status string) int {
	fields := strings.Fields(status)
	if len(fields) < 2 {
		return 0
	}
	code, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0
	}
	return code
}

// okPropstat returns the successful propstat of a response, if any.
func (r msResponse) okPropstat() *msPropstat {
	for i, ps := range r.Propstats {
		code := statusCode(ps.Status)
		if code == 0 || code == 200 {
			return &r.Propstats[i]
		}
	}
	return nil
}

// gone reports whether the response marks a removed resource inside a
// sync-collection report.
func (r msResponse) gone() bool {
	code := statusCode(r.Status)
	return code == 404 || code == 410
}
