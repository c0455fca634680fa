package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidate(t *testing.T) {
	valid := Activity{ID: "a", DisplayName: "A", TaskType: "task-a", Category: "c", Timeout: "10s"}

	tests := []struct {
		name    string
		acts    []Activity
		wantErr string
	}{
		{"ok", []Activity{valid}, ""},
		{"empty", nil, "no activities"},
		{"missing id", []Activity{{DisplayName: "A", TaskType: "t", Category: "c"}}, "ID"},
		{"duplicate id", []Activity{valid, valid}, "duplicate activity ID"},
		{
			"duplicate task type",
			[]Activity{valid, {ID: "b", DisplayName: "B", TaskType: "task-a", Category: "c"}},
			"duplicate task type",
		},
		{"bad timeout", []Activity{{ID: "a", DisplayName: "A", TaskType: "t", Category: "c", Timeout: "soon"}}, "invalid timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := (&ActivityRegistry{Activities: tt.acts}).Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			if assert.Error(t, err) {
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}
