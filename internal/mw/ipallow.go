package mw

import (
	"net/http"
	"net/netip"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// StaffOnly admits only clients whose address matches one of allowed.
// Entries are single addresses or CIDR prefixes. An empty list admits
// everyone.
func StaffOnly(allowed []string, log *zap.Logger) gin.HandlerFunc {
	prefixes := make([]netip.Prefix, 0, len(allowed))
	for _, entry := range allowed {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if p, err := netip.ParsePrefix(entry); err == nil {
			prefixes = append(prefixes, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			log.Warn("ignoring invalid staff_allowed_ips entry", zap.String("entry", entry))
			continue
		}
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}

	return func(c *gin.Context) {
		if len(prefixes) == 0 {
			c.Next()
			return
		}

		addr, err := netip.ParseAddr(c.ClientIP())
		if err == nil {
			addr = addr.Unmap()
			for _, p := range prefixes {
				if p.Contains(addr) {
					c.Next()
					return
				}
			}
		}
		log.Debug("staff request refused", zap.String("client_ip", c.ClientIP()), zap.String("path", c.FullPath()))
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"error":   "forbidden",
			"message": "staff endpoints are not available from this address",
		})
	}
}
