package logger

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	tests := []struct {
		level      string
		format     string
		wantLevel  logrus.Level
		wantFormat interface{}
	}{
		{"debug", "json", logrus.DebugLevel, &logrus.JSONFormatter{}},
		{"WARN", "text", logrus.WarnLevel, &logrus.TextFormatter{}},
		{"nonsense", "", logrus.InfoLevel, &logrus.JSONFormatter{}},
	}

	for _, tt := range tests {
		t.Run(tt.level+"/"+tt.format, func(t *testing.T) {
			l := New(tt.level, tt.format)
			assert.Equal(t, tt.wantLevel, l.GetLevel())
			assert.IsType(t, tt.wantFormat, l.Formatter)
		})
	}
}
