package dns

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/hewenyu/kong-orchestrator/pkg/model"
	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// staticSource 固定的服务快照
type staticSource struct {
	infos []model.ServiceInfo
}

func (s *staticSource) GetInfo(id string) (model.ServiceInfo, bool) {
	for _, info := range s.infos {
		if info.ID == id {
			return info, true
		}
	}
	return model.ServiceInfo{}, false
}

func (s *staticSource) IDs() []string {
	ids := make([]string, 0, len(s.infos))
	for _, info := range s.infos {
		ids = append(ids, info.ID)
	}
	return ids
}

func newTestHandler() *Handler {
	source := &staticSource{infos: []model.ServiceInfo{
		{
			ID:         "db",
			Version:    "1.2.0",
			Status:     model.StatusRunning,
			LastHealth: &model.HealthStatus{Status: model.HealthStatusHealthy},
		},
		{
			ID:           "API",
			Version:      "2.0.0",
			Status:       model.StatusError,
			RestartCount: 3,
			Dependencies: []string{"db"},
			LastError:    "boom",
		},
	}}
	return NewHandler(source, "orchestrator.local", 0)
}

func query(h *Handler, name string, qtype uint16) *dns.Msg {
	m := new(dns.Msg)
	m.SetQuestion(name, qtype)
	return h.Resolve(m)
}

func TestHandler_ServiceStatus(t *testing.T) {
	h := newTestHandler()

	r := query(h, "db.orchestrator.local.", dns.TypeTXT)
	assert.Equal(t, dns.RcodeSuccess, r.Rcode)
	assert.True(t, r.Authoritative)
	require.Len(t, r.Answer, 1)

	txt, ok := r.Answer[0].(*dns.TXT)
	require.True(t, ok)
	assert.Equal(t, DefaultTTL, txt.Hdr.Ttl)
	fields := ParseTXT(txt.Txt)
	assert.Equal(t, "Running", fields["status"])
	assert.Equal(t, "1.2.0", fields["version"])
	assert.Equal(t, "0", fields["restarts"])
	assert.Equal(t, "healthy", fields["health"])
	assert.NotContains(t, fields, "deps")
}

func TestHandler_CaseInsensitive(t *testing.T) {
	h := newTestHandler()

	r := query(h, "Api.Orchestrator.Local.", dns.TypeTXT)
	require.Equal(t, dns.RcodeSuccess, r.Rcode)
	require.Len(t, r.Answer, 1)

	fields := ParseTXT(r.Answer[0].(*dns.TXT).Txt)
	assert.Equal(t, "Error", fields["status"])
	assert.Equal(t, "3", fields["restarts"])
	assert.Equal(t, "db", fields["deps"])
	assert.Equal(t, "boom", fields["error"])
}

func TestHandler_Index(t *testing.T) {
	h := newTestHandler()

	r := query(h, "orchestrator.local.", dns.TypeTXT)
	require.Equal(t, dns.RcodeSuccess, r.Rcode)
	require.Len(t, r.Answer, 1)
	assert.Equal(t, []string{"count=2", "service=db", "service=API"}, r.Answer[0].(*dns.TXT).Txt)
}

func TestHandler_Errors(t *testing.T) {
	h := newTestHandler()

	// 未知服务
	r := query(h, "ghost.orchestrator.local.", dns.TypeTXT)
	assert.Equal(t, dns.RcodeNameError, r.Rcode)

	// 本地域以外
	r = query(h, "example.com.", dns.TypeA)
	assert.Equal(t, dns.RcodeRefused, r.Rcode)

	// 名称存在但类型不匹配
	r = query(h, "db.orchestrator.local.", dns.TypeA)
	assert.Equal(t, dns.RcodeSuccess, r.Rcode)
	assert.Empty(t, r.Answer)

	// 非标准查询
	m := new(dns.Msg)
	m.SetQuestion("db.orchestrator.local.", dns.TypeTXT)
	m.Opcode = dns.OpcodeUpdate
	assert.Equal(t, dns.RcodeNotImplemented, h.Resolve(m).Rcode)

	// 没有问题
	m = new(dns.Msg)
	m.Id = dns.Id()
	assert.Equal(t, dns.RcodeFormatError, h.Resolve(m).Rcode)
}

func TestServiceName(t *testing.T) {
	assert.Equal(t, "db.orchestrator.local.", ServiceName("DB", "orchestrator.local."))
	assert.Equal(t, "db.orchestrator.local.", ServiceName("db", ".orchestrator.local"))
}

func TestStatusTXT_LongErrorKeepsUTF8(t *testing.T) {
	info := model.ServiceInfo{
		ID:        "db",
		Version:   "1.0.0",
		Status:    model.StatusError,
		LastError: "x" + strings.Repeat("服务启动失败", 40),
	}

	txt := statusTXT("db.orchestrator.local.", info, DefaultTTL)
	errText := ParseTXT(txt.Txt)["error"]
	assert.True(t, utf8.ValidString(errText), "截断后仍是合法UTF-8")
	assert.LessOrEqual(t, len(errText), 200)
	assert.True(t, strings.HasPrefix(info.LastError, errText))

	assert.Equal(t, "服务", truncate("服务启动", 7))
	assert.Equal(t, "abc", truncate("abc", 7))
}
