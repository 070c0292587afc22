package dns

import (
	"strings"

	"github.com/hewenyu/kong-orchestrator/pkg/model"
	"github.com/miekg/dns"
)

// InfoSource 提供服务快照
type InfoSource interface {
	GetInfo(id string) (model.ServiceInfo, bool)
	IDs() []string
}

// Handler DNS请求处理器，以TXT记录回答<服务ID>.<域名>的状态查询
type Handler struct {
	source InfoSource
	domain string // 规范化的本地域名，带结尾的点
	ttl    uint32
}

// NewHandler 创建DNS请求处理器
func NewHandler(source InfoSource, domain string, ttl uint32) *Handler {
	if ttl == 0 {
		ttl = DefaultTTL
	}
	return &Handler{
		source: source,
		domain: dns.Fqdn(strings.ToLower(strings.Trim(domain, "."))),
		ttl:    ttl,
	}
}

// Domain 返回处理的域名
func (h *Handler) Domain() string {
	return h.domain
}

// ServeDNS 处理DNS请求
func (h *Handler) ServeDNS(w dns.ResponseWriter, r *dns.Msg) {
	w.WriteMsg(h.Resolve(r))
}

// Resolve 生成请求的响应
func (h *Handler) Resolve(r *dns.Msg) *dns.Msg {
	// 创建响应消息
	m := new(dns.Msg)
	m.SetReply(r)

	// 只处理标准查询
	if r.Opcode != dns.OpcodeQuery {
		m.Rcode = dns.RcodeNotImplemented
		return m
	}

	if len(r.Question) == 0 {
		m.Rcode = dns.RcodeFormatError
		return m
	}

	q := r.Question[0]
	name := strings.ToLower(q.Name)

	// 不转发本地域以外的查询
	if name != h.domain && !strings.HasSuffix(name, "."+h.domain) {
		m.Rcode = dns.RcodeRefused
		return m
	}
	m.Authoritative = true

	if name == h.domain {
		if wantsTXT(q.Qtype) {
			m.Answer = append(m.Answer, indexTXT(q.Name, h.source.IDs(), h.ttl))
		}
		return m
	}

	id := strings.TrimSuffix(name, "."+h.domain)
	info, ok := h.lookup(id)
	if !ok {
		m.Rcode = dns.RcodeNameError
		return m
	}

	// 名称存在但类型不匹配时返回空应答
	if wantsTXT(q.Qtype) {
		m.Answer = append(m.Answer, statusTXT(q.Name, info, h.ttl))
	}
	return m
}

// lookup 服务ID大小写不敏感
func (h *Handler) lookup(id string) (model.ServiceInfo, bool) {
	if info, ok := h.source.GetInfo(id); ok {
		return info, true
	}
	for _, candidate := range h.source.IDs() {
		if strings.EqualFold(candidate, id) {
			return h.source.GetInfo(candidate)
		}
	}
	return model.ServiceInfo{}, false
}

func wantsTXT(qtype uint16) bool {
	return qtype == dns.TypeTXT || qtype == dns.TypeANY
}
