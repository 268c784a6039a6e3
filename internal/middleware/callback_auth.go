package middleware

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const callbackTokenHeader = "X-Callback-Token"

// ErrUnauthorizedCallback is returned when a callback fails the token or source address check.
var ErrUnauthorizedCallback = errors.New("unauthorized callback")

// CallbackAuthConfig configures CallbackAuth. Empty fields disable the matching check.
type CallbackAuthConfig struct {
	Token        string
	AllowedCIDRs []string
}

// ParseCIDRs parses an allow-list. Bare addresses are accepted as single-host networks.
func ParseCIDRs(values []string) ([]*net.IPNet, error) {
	nets := make([]*net.IPNet, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if !strings.Contains(v, "/") {
			ip := net.ParseIP(v)
			if ip == nil {
				return nil, fmt.Errorf("invalid address %q", v)
			}
			bits := 32
			if ip.To4() == nil {
				bits = 128
			}
			v = fmt.Sprintf("%s/%d", v, bits)
		}
		_, n, err := net.ParseCIDR(v)
		if err != nil {
			return nil, fmt.Errorf("invalid cidr %q: %w", v, err)
		}
		nets = append(nets, n)
	}
	return nets, nil
}

// CallbackAuth rejects gateway callbacks that do not carry the shared token or come from
// outside the allowed networks.
func CallbackAuth(cfg CallbackAuthConfig, logger logrus.FieldLogger) (gin.HandlerFunc, error) {
	nets, err := ParseCIDRs(cfg.AllowedCIDRs)
	if err != nil {
		return nil, err
	}
	token := []byte(cfg.Token)

	return func(c *gin.Context) {
		if len(nets) > 0 && !allowed(nets, c.ClientIP()) {
			reject(c, logger, "source address not allowed")
			return
		}

		if len(token) > 0 {
			got := c.Query("token")
			if got == "" {
				got = c.GetHeader(callbackTokenHeader)
			}
			if subtle.ConstantTimeCompare([]byte(got), token) != 1 {
				reject(c, logger, "callback token mismatch")
				return
			}
		}

		c.Next()
	}, nil
}

func allowed(nets []*net.IPNet, addr string) bool {
	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}
	for _, n := range nets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

func reject(c *gin.Context, logger logrus.FieldLogger, reason string) {
	logger.WithFields(logrus.Fields{
		"client_ip": c.ClientIP(),
		"reason":    reason,
	}).Warn("rejected callback")
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"success": false,
		"error":   ErrUnauthorizedCallback.Error(),
	})
}
