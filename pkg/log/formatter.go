package log

import (
	"bytes"
	"os"
	"strings"
	"text/template"

	"github.com/sirupsen/logrus"
)

const (
	defaultTimestampFormat = "2006-01-02 15:04:05.000"
	defaultFormat          = "{{.timestamp}} {{.pid}} [{{.name}}] [{{.levelname}}] {{.message}}"
)

// LogFormatter renders entries through a text/template line format.
type LogFormatter struct {
	TimestampFormat string
	OutputFormat    string

	tmpl   *template.Template
	parsed string
}

func NewLogFormatter() *LogFormatter {
	return &LogFormatter{
		TimestampFormat: defaultTimestampFormat,
		OutputFormat:    defaultFormat,
	}
}

func (f *LogFormatter) template() (*template.Template, error) {
	if f.tmpl != nil && f.parsed == f.OutputFormat {
		return f.tmpl, nil
	}
	t, err := template.New("").Option("missingkey=zero").Parse(f.OutputFormat)
	if err != nil {
		return nil, err
	}
	f.tmpl, f.parsed = t, f.OutputFormat
	return t, nil
}

func (f *LogFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	var b *bytes.Buffer

	if entry.Buffer != nil {
		b = entry.Buffer
	} else {
		b = &bytes.Buffer{}
	}

	data := map[string]interface{}{
		"timestamp": entry.Time.Format(f.TimestampFormat),
		"pid":       os.Getpid(),
		"levelname": strings.ToUpper(entry.Level.String()),
		"message":   entry.Message,
	}
	for key, value := range entry.Data {
		data[key] = value
	}

	t, err := f.template()
	if err != nil {
		return nil, err
	}
	if err := t.Execute(b, data); err != nil {
		return nil, err
	}

	b.WriteByte('\n')
	return b.Bytes(), nil
}
