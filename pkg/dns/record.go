package dns

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/hewenyu/kong-orchestrator/pkg/model"
	"github.com/miekg/dns"
)

// DefaultTTL 状态记录的TTL，状态随时变化，保持很短
const DefaultTTL uint32 = 1

// ServiceName 返回服务状态记录的完整域名
func ServiceName(serviceID, domain string) string {
	return dns.Fqdn(strings.ToLower(serviceID) + "." + strings.Trim(domain, "."))
}

// statusTXT 把服务快照编码为TXT记录
func statusTXT(name string, info model.ServiceInfo, ttl uint32) *dns.TXT {
	txt := []string{
		"status=" + string(info.Status),
		"version=" + info.Version,
		fmt.Sprintf("restarts=%d", info.RestartCount),
	}
	if info.LastHealth != nil {
		txt = append(txt, "health="+string(info.LastHealth.Status))
	}
	if len(info.Dependencies) > 0 {
		txt = append(txt, "deps="+strings.Join(info.Dependencies, ","))
	}
	if info.LastError != "" {
		txt = append(txt, "error="+truncate(info.LastError, 200))
	}

	return &dns.TXT{
		Hdr: dns.RR_Header{
			Name:   name,
			Rrtype: dns.TypeTXT,
			Class:  dns.ClassINET,
			Ttl:    ttl,
		},
		Txt: txt,
	}
}

// indexTXT 域名根记录，列出所有服务ID
func indexTXT(name string, ids []string, ttl uint32) *dns.TXT {
	txt := []string{fmt.Sprintf("count=%d", len(ids))}
	for _, id := range ids {
		txt = append(txt, "service="+id)
	}
	return &dns.TXT{
		Hdr: dns.RR_Header{
			Name:   name,
			Rrtype: dns.TypeTXT,
			Class:  dns.ClassINET,
			Ttl:    ttl,
		},
		Txt: txt,
	}
}

// ParseTXT 把key=value形式的TXT字符串解析为map
func ParseTXT(txt []string) map[string]string {
	out := make(map[string]string, len(txt))
	for _, s := range txt {
		k, v, ok := strings.Cut(s, "=")
		if !ok {
			continue
		}
		out[k] = v
	}
	return out
}

// TXT单个字符串最长255字节
// truncate 按字节截断，不切开多字节字符
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
