package caldav

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const syncReportXML = `<?xml version="1.0" encoding="UTF-8"?>
<d:multistatus xmlns:d="DAV:">
  <d:response>
    <d:href>/calendars/work/uid-1.ics</d:href>
    <d:propstat>
      <d:prop><d:getetag>"etag-1"</d:getetag></d:prop>
      <d:status>HTTP/1.1 200 OK</d:status>
    </d:propstat>
  </d:response>
  <d:response>
    <d:href>/calendars/work/uid-2.ics</d:href>
    <d:status>HTTP/1.1 404 Not Found</d:status>
  </d:response>
  <d:sync-token>http://example.com/sync/42</d:sync-token>
</d:multistatus>`

func TestParseMultistatus_SyncReport(t *testing.T) {
	ms, err := parseMultistatus([]byte(syncReportXML))
	require.NoError(t, err)

	assert.Equal(t, "http://example.com/sync/42", ms.SyncToken)
	require.Len(t, ms.Responses, 2)

	ok := ms.Responses[0]
	assert.Equal(t, "/calendars/work/uid-1.ics", ok.Href)
	assert.False(t, ok.gone())
	require.NotNil(t, ok.okPropstat())
	assert.Equal(t, `"etag-1"`, ok.okPropstat().Prop.ETag)

	deleted := ms.Responses[1]
	assert.True(t, deleted.gone())
	assert.Nil(t, deleted.okPropstat())
}

func TestParseMultistatus_CollectionProps(t *testing.T) {
	const body = `<?xml version="1.0" encoding="UTF-8"?>
<d:multistatus xmlns:d="DAV:" xmlns:cs="http://calendarserver.org/ns/"
               xmlns:c="urn:ietf:params:xml:ns:caldav" xmlns:ical="http://apple.com/ns/ical/">
  <d:response>
    <d:href>/calendars/work/</d:href>
    <d:propstat>
      <d:prop>
        <d:displayname>Work</d:displayname>
        <d:resourcetype><d:collection/><c:calendar/></d:resourcetype>
        <cs:getctag>ctag-7</cs:getctag>
        <d:sync-token>http://example.com/sync/7</d:sync-token>
        <ical:calendar-color>#FF0000</ical:calendar-color>
        <d:current-user-privilege-set>
          <d:privilege><d:read/></d:privilege>
        </d:current-user-privilege-set>
      </d:prop>
      <d:status>HTTP/1.1 200 OK</d:status>
    </d:propstat>
  </d:response>
</d:multistatus>`

	ms, err := parseMultistatus([]byte(body))
	require.NoError(t, err)
	require.Len(t, ms.Responses, 1)

	ps := ms.Responses[0].okPropstat()
	require.NotNil(t, ps)

	assert.Equal(t, "Work", ps.Prop.DisplayName)
	assert.Equal(t, "ctag-7", ps.Prop.CTag)
	assert.Equal(t, "http://example.com/sync/7", ps.Prop.SyncToken)
	assert.Equal(t, "#FF0000", ps.Prop.CalendarColor)
	require.NotNil(t, ps.Prop.ResourceType)
	assert.NotNil(t, ps.Prop.ResourceType.Calendar)
	assert.False(t, ps.Prop.Privileges.Writable(), "read-only privilege set")
}

func TestWritable(t *testing.T) {
	assert.True(t, (*msPrivilegeSet)(nil).Writable(), "absent set defaults to writable")

	write := &msPrivilegeSet{Privileges: []msPrivilege{{Write: &struct{}{}}}}
	assert.True(t, write.Writable())

	readOnly := &msPrivilegeSet{Privileges: []msPrivilege{{}}}
	assert.False(t, readOnly.Writable())
}

func TestStatusCode(t *testing.T) {
	assert.Equal(t, 404, statusCode("HTTP/1.1 404 Not Found"))
	assert.Equal(t, 200, statusCode("HTTP/1.1 200 OK"))
	assert.Zero(t, statusCode(""))
	assert.Zero(t, statusCode("garbage"))
}

func TestSyncCollectionBody_EscapesToken(t *testing.T) {
	body := syncCollectionBody(`http://example.com/sync?a=1&b=<2>`)
	assert.Contains(t, body, "&amp;b=&lt;2&gt;")
	assert.NotContains(t, body, "&b=<2>")
}
