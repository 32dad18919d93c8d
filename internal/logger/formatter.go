package logger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Formatter converts log entries to their textual or structured representation.
type Formatter interface {
	Format(entry *Entry) ([]byte, error)
}

// Entry is a single log record.
type Entry struct {
	Time    time.Time
	Level   Level
	Message string
	Fields  []Field
}

// TextFormatter renders `15:04:05 [LEVEL] message key=value` lines without colour.
type TextFormatter struct {
	// TimestampFormat defaults to 15:04:05.
	TimestampFormat  string
	DisableTimestamp bool
}

// Format implements Formatter.
func (f *TextFormatter) Format(entry *Entry) ([]byte, error) {
	timestamp := ""
	if !f.DisableTimestamp {
		layout := f.TimestampFormat
		if layout == "" {
			layout = "15:04:05"
		}
		timestamp = entry.Time.Format(layout)
	}
	return formatEntry(entry, timestamp, entry.Level.String(), nil), nil
}

// JSONFormatter renders one JSON object per entry. It backs the log file tee.
type JSONFormatter struct {
	TimestampFormat string
}

// Format implements Formatter. A field whose key collides with time, level
// or msg is stored as fields.<key>.
func (f *JSONFormatter) Format(entry *Entry) ([]byte, error) {
	layout := f.TimestampFormat
	if layout == "" {
		layout = time.RFC3339Nano
	}

	data := map[string]interface{}{
		"time":  entry.Time.Format(layout),
		"level": entry.Level.String(),
		"msg":   entry.Message,
	}
	for _, field := range entry.Fields {
		value := field.Value
		if err, ok := value.(error); ok {
			value = err.Error()
		}
		if _, taken := data[field.Key]; taken {
			data["fields."+field.Key] = value
			continue
		}
		data[field.Key] = value
	}

	out, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return append(out, '\n'), nil
}

type fieldFormatter func(Field) string

func defaultFieldFormatter(field Field) string {
	return fmt.Sprintf("%s=%v", field.Key, field.Value)
}

func formatEntry(entry *Entry, timestamp, levelText string, formatter fieldFormatter) []byte {
	if formatter == nil {
		formatter = defaultFieldFormatter
	}

	var buf bytes.Buffer
	if timestamp != "" {
		buf.WriteString(timestamp)
		buf.WriteByte(' ')
	}
	buf.WriteByte('[')
	buf.WriteString(levelText)
	buf.WriteString("] ")
	buf.WriteString(entry.Message)

	for _, field := range entry.Fields {
		buf.WriteByte(' ')
		buf.WriteString(formatter(field))
	}
	buf.WriteByte('\n')
	return buf.Bytes()
}
