package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSSLPosture(t *testing.T) {
	tests := []struct {
		name      string
		url       string
		wantMode  string
		wantAlarm bool
	}{
		{"default mode", "postgres://u:p@db.internal:5432/civic", "prefer", false},
		{"required", "postgres://u:p@db.internal:5432/civic?sslmode=require", "require", false},
		{"disabled remote", "postgres://u:p@db.internal:5432/civic?sslmode=disable", "disable", true},
		{"disabled localhost", "postgres://u:p@localhost:5432/civic?sslmode=disable", "disable", false},
		{"disabled loopback ip", "postgres://u:p@127.0.0.1:5432/civic?sslmode=DISABLE", "disable", false},
		{"unparseable", "postgres://%zz", "unknown", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mode, alarm := sslPosture(tt.url)
			assert.Equal(t, tt.wantMode, mode)
			assert.Equal(t, tt.wantAlarm, alarm)
		})
	}
}
