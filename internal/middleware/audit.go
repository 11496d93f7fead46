package middleware

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/comadj/car-system/internal/services"
	"github.com/gin-gonic/gin"
)

const maxAuditBody = 2000

var sensitiveKeys = map[string]bool{
	"password":      true,
	"old_password":  true,
	"new_password":  true,
	"bind_password": true,
	"api_key":       true,
	"apikey":        true,
	"secret":        true,
	"token":         true,
	"refresh_token": true,
	"access_token":  true,
}

// AuditLog records write requests (POST/PUT/DELETE) to system_logs once the
// handler has answered. Multipart uploads are logged without their body.
func AuditLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		method := c.Request.Method
		if method != http.MethodPost && method != http.MethodPut && method != http.MethodDelete {
			c.Next()
			return
		}

		var body string
		if c.Request.Body != nil && !strings.HasPrefix(c.ContentType(), "multipart/") {
			raw, _ := io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewReader(raw))
			body = maskBody(raw)
		}

		c.Next()

		status := c.Writer.Status()
		module, action := parseRouteInfo(c.FullPath(), method)
		result := "OK"
		if status >= http.StatusBadRequest {
			result = "Failed"
		}
		message := fmt.Sprintf("[Audit] %s %s %s -> %s", GetUsername(c), method, c.Request.URL.Path, result)

		services.LogInfo(module, action, message, UserIDPtr(c), c.ClientIP(), c.Request.UserAgent(), map[string]interface{}{
			"method": method,
			"path":   c.Request.URL.Path,
			"status": status,
			"body":   body,
			"audit":  true,
		})
	}
}

// parseRouteInfo maps "/api/llm-configs/:id" + PUT to ("LLM Configs", "Update").
func parseRouteInfo(fullPath, method string) (module, action string) {
	first, _, _ := strings.Cut(strings.TrimPrefix(fullPath, "/api/"), "/")
	if first == "" {
		first = "unknown"
	}
	words := strings.Split(first, "-")
	for i, w := range words {
		switch {
		case w == "llm" || w == "ai":
			words[i] = strings.ToUpper(w)
		case w != "":
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	module = strings.Join(words, " ")

	switch method {
	case http.MethodPost:
		action = "Create"
	case http.MethodPut:
		action = "Update"
	case http.MethodDelete:
		action = "Delete"
	default:
		action = method
	}
	return module, action
}

// maskBody replaces secret values in a JSON body and truncates the result.
// Bodies that are not JSON objects are kept only as a length marker.
func maskBody(raw []byte) string {
	if len(raw) == 0 {
		return ""
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Sprintf("[%d bytes]", len(raw))
	}
	maskMap(doc)
	out, err := json.Marshal(doc)
	if err != nil {
		return ""
	}
	s := string(out)
	if len(s) > maxAuditBody {
		s = s[:maxAuditBody] + "...[truncated]"
	}
	return s
}

func maskMap(m map[string]interface{}) {
	for k, v := range m {
		if sensitiveKeys[strings.ToLower(k)] {
			m[k] = "***"
			continue
		}
		switch t := v.(type) {
		case map[string]interface{}:
			maskMap(t)
		case []interface{}:
			for _, item := range t {
				if nested, ok := item.(map[string]interface{}); ok {
					maskMap(nested)
				}
			}
		}
	}
}
