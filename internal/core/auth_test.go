package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"missionhub/pkg/models"
)

func TestTokenRoundTrip(t *testing.T) {
	svc := NewTokenService("secret", "missionhub")
	token, err := svc.Issue(Identity{LearnerID: "l1", Cohort: "5a", Role: RoleTeacher}, time.Hour)
	require.NoError(t, err)

	id, err := svc.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "l1", id.LearnerID)
	assert.Equal(t, "5a", id.Cohort)
	assert.True(t, id.CanAuthor())
}

func TestTokenDefaultsToLearnerRole(t *testing.T) {
	svc := NewTokenService("secret", "")
	token, err := svc.Issue(Identity{LearnerID: "l1"}, time.Hour)
	require.NoError(t, err)

	id, err := svc.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, RoleLearner, id.Role)
	assert.False(t, id.CanAuthor())
}

func TestTokenRejected(t *testing.T) {
	good := NewTokenService("secret", "missionhub")

	tests := []struct {
		name  string
		token func() string
	}{
		{"garbage", func() string { return "not-a-token" }},
		{"wrong secret", func() string {
			tok, _ := NewTokenService("other", "missionhub").Issue(Identity{LearnerID: "l1"}, time.Hour)
			return tok
		}},
		{"wrong issuer", func() string {
			tok, _ := NewTokenService("secret", "elsewhere").Issue(Identity{LearnerID: "l1"}, time.Hour)
			return tok
		}},
		{"expired", func() string {
			tok, _ := good.Issue(Identity{LearnerID: "l1"}, -time.Minute)
			return tok
		}},
		{"no learner", func() string {
			tok, _ := good.Issue(Identity{}, time.Hour)
			return tok
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := good.Verify(tt.token())
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidToken)
			assert.Equal(t, models.ErrCodeUnauthorized, models.CodeOf(err))
		})
	}
}
