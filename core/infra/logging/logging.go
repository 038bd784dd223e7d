// Package logging writes component-tagged log lines through the standard
// logger. Set BRANDGUARD_LOG_FORMAT=json for one JSON object per line.
package logging

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

const envLogFormat = "BRANDGUARD_LOG_FORMAT"

var (
	logFormatOnce sync.Once
	logAsJSON     bool
)

// Info logs a message with key/value fields.
func Info(component, msg string, kv ...any) {
	emit("INFO", component, msg, kv)
}

// Warn logs a recoverable problem, e.g. a dropped event.
func Warn(component, msg string, kv ...any) {
	emit("WARN", component, msg, kv)
}

// Error logs a failure with key/value fields.
func Error(component, msg string, kv ...any) {
	emit("ERROR", component, msg, kv)
}

func emit(level, component, msg string, kv []any) {
	if jsonMode() {
		log.Print(jsonLine(level, component, msg, kv))
		return
	}
	tag := strings.ToUpper(component)
	if level == "INFO" {
		log.Printf("[%s] %s%s", tag, msg, formatFields(kv...))
		return
	}
	log.Printf("[%s] %s %s%s", tag, level, msg, formatFields(kv...))
}

func jsonMode() bool {
	logFormatOnce.Do(func() {
		logAsJSON = strings.EqualFold(strings.TrimSpace(os.Getenv(envLogFormat)), "json")
	})
	return logAsJSON
}

func jsonLine(level, component, msg string, kv []any) string {
	payload := map[string]any{
		"ts":        time.Now().UTC().Format(time.RFC3339Nano),
		"level":     level,
		"component": component,
		"msg":       msg,
	}
	if len(kv)%2 != 0 {
		kv = append(kv, "(missing)")
	}
	for i := 0; i < len(kv); i += 2 {
		key := strings.TrimSpace(toString(kv[i]))
		if key == "" {
			continue
		}
		switch v := kv[i+1].(type) {
		case error:
			payload[key] = v.Error()
		case fmt.Stringer:
			payload[key] = v.String()
		default:
			payload[key] = v
		}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprintf(`{"level":%q,"component":%q,"msg":%q}`, level, component, msg)
	}
	return string(data)
}

func formatFields(kv ...any) string {
	if len(kv) == 0 {
		return ""
	}
	if len(kv)%2 != 0 {
		kv = append(kv, "(missing)")
	}
	parts := make([]string, 0, len(kv)/2)
	for i := 0; i < len(kv); i += 2 {
		parts = append(parts, strings.TrimSpace(toString(kv[i]))+"="+toString(kv[i+1]))
	}
	return " " + strings.Join(parts, " ")
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	flat := strings.NewReplacer("\n", " ", "\t", " ").Replace(fmt.Sprintf("%v", v))
	return strings.TrimSpace(flat)
}
