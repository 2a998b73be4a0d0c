package audit

import (
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		method     string
		path       string
		entityType string
		entityID   string
		action     Action
	}{
		{"POST", "/patients", "Patients", "", ActionCreate},
		{"PUT", "/patients/42", "Patients", "42", ActionUpdate},
		{"PATCH", "/patients/42", "Patients", "42", ActionUpdate},
		{"DELETE", "/encounters/3fa85f64-5717-4562-b3fc-2c963f66afa6", "Encounters", "3fa85f64-5717-4562-b3fc-2c963f66afa6", ActionDelete},
		{"POST", "/lab-results", "LabResults", "", ActionCreate},
		{"POST", "/patients/search", "Patients", "", ActionCreate},
		{"POST", "//patients//7/", "Patients", "7", ActionCreate},
		{"POST", "/", UnknownEntity, "", ActionCreate},
		{"POST", "", UnknownEntity, "", ActionCreate},
		{"POST", "/patients/{3fa85f64-5717-4562-b3fc-2c963f66afa6}", "Patients", "", ActionCreate},
		{"post", "/patients", "Patients", "", ActionCreate},
		{"PURGE", "/cache", "Cache", "", Action("PURGE")},
		{"purge", "/cache", "Cache", "", Action("purge")},
		{"POST", "/ärzte", "Ärzte", "", ActionCreate},
		{"POST", "/lab-ergebnisse/ü-befund", "LabErgebnisse", "", ActionCreate},
		{"POST", "/été-notes", "ÉtéNotes", "", ActionCreate},
		{"POST", "/\xffpatients", "\uFFFDpatients", "", ActionCreate},
		{"", "/patients", "Patients", "", ActionOther},
		// nested resources keep the parent type
		{"POST", "/patients/42/encounters", "Patients", "42", ActionCreate},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			got := Classify(tt.method, tt.path)
			assert.Equal(t, tt.entityType, got.EntityType)
			assert.True(t, utf8.ValidString(got.EntityType))
			assert.Equal(t, tt.action, got.Action)
			if tt.entityID == "" {
				assert.Nil(t, got.EntityID)
			} else if assert.NotNil(t, got.EntityID) {
				assert.Equal(t, tt.entityID, *got.EntityID)
			}
		})
	}
}

func TestIsMutating(t *testing.T) {
	for _, m := range []string{"POST", "PUT", "PATCH", "DELETE", "delete"} {
		assert.True(t, IsMutating(m), m)
	}
	for _, m := range []string{"GET", "HEAD", "OPTIONS", "TRACE", ""} {
		assert.False(t, IsMutating(m), m)
	}
}

func TestStripPrefix(t *testing.T) {
	tests := []struct {
		path, prefix, want string
	}{
		{"/api/v1/patients", "/api/v1", "/patients"},
		{"/api/v1/patients?page=2", "/api/v1/", "/patients"},
		{"/api/v1", "/api/v1", "/"},
		{"/api/v10/patients", "/api/v1", "/api/v10/patients"},
		{"/patients", "", "/patients"},
		{"/other/patients", "/api/v1", "/other/patients"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StripPrefix(tt.path, tt.prefix), tt.path)
	}
}
