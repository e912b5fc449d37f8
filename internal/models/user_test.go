package models_test

import (
	"encoding/json"
	"reflect"
	"testing"

	"qchat/backend/internal/models"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestUserBeforeCreate_GeneratesUUID verifies that the BeforeCreate hook generates a valid UUID.
func TestUserBeforeCreate_GeneratesUUID(t *testing.T) {
	// Arrange
	user := &models.User{Name: "alice", AvatarURL: "https://cdn.example/a.png"}
	assert.Empty(t, user.ID, "User ID should be empty before BeforeCreate")

	// Act - Call the hook directly (GORM would call this automatically)
	err := user.BeforeCreate(nil)

	// Assert
	assert.NoError(t, err)
	parsed, parseErr := uuid.Parse(user.ID)
	assert.NoError(t, parseErr, "User ID must be a valid UUID string")
	assert.NotEqual(t, uuid.Nil, parsed)
}

// TestUserBeforeCreate_PreservesExistingID verifies that the hook doesn't overwrite an existing ID.
func TestUserBeforeCreate_PreservesExistingID(t *testing.T) {
	existingID := uuid.New().String()
	user := &models.User{ID: existingID, Name: "bob"}

	err := user.BeforeCreate(nil)

	assert.NoError(t, err)
	assert.Equal(t, existingID, user.ID, "BeforeCreate should preserve existing ID")
}

func TestUserProfile(t *testing.T) {
	user := &models.User{ID: "u1", Name: "alice", Email: "a@example.com", AvatarURL: "pic.png"}

	p := user.Profile()

	assert.Equal(t, models.Profile{ID: "u1", Name: "alice", AvatarURL: "pic.png"}, p)
}

func TestUserHasFriend(t *testing.T) {
	user := &models.User{ID: "u1", Friends: pq.StringArray{"u2", "u3"}}

	assert.True(t, user.HasFriend("u2"))
	assert.False(t, user.HasFriend("u4"))
	assert.False(t, (&models.User{}).HasFriend("u2"), "nil friend list has no friends")
}

// TestUserStructTags verifies the column mapping shared with the auth service.
func TestUserStructTags(t *testing.T) {
	userType := reflect.TypeOf(models.User{})

	idField, found := userType.FieldByName("ID")
	require.True(t, found)
	assert.Contains(t, idField.Tag.Get("gorm"), "primaryKey")

	avatarField, found := userType.FieldByName("AvatarURL")
	require.True(t, found)
	assert.Contains(t, avatarField.Tag.Get("gorm"), "column:profile_pic")

	friendsField, found := userType.FieldByName("Friends")
	require.True(t, found)
	assert.Contains(t, friendsField.Tag.Get("gorm"), "type:text[]")

	emailField, found := userType.FieldByName("Email")
	require.True(t, found)
	assert.Equal(t, "-", emailField.Tag.Get("json"), "email must never reach the wire")
}

// TestEventSignalingPayloads checks that browser-shaped SDP and ICE payloads decode
// into the event and are re-encoded without loss.
func TestEventSignalingPayloads(t *testing.T) {
	raw := `{
		"type": "call-user",
		"to": "u2",
		"offer": {"type": "offer", "sdp": "v=0\r\n"},
		"candidate": {"candidate": "candidate:1 1 UDP 1 10.0.0.1 5000 typ host", "sdpMid": "0", "sdpMLineIndex": 0}
	}`

	var ev models.Event
	require.NoError(t, json.Unmarshal([]byte(raw), &ev))

	assert.Equal(t, models.EventCallUser, ev.Type)
	require.NotNil(t, ev.Offer)
	assert.Equal(t, webrtc.SDPTypeOffer, ev.Offer.Type)
	assert.Equal(t, "v=0\r\n", ev.Offer.SDP)
	require.NotNil(t, ev.Candidate)
	require.NotNil(t, ev.Candidate.SDPMid)
	assert.Equal(t, "0", *ev.Candidate.SDPMid)

	out, err := json.Marshal(ev)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"type":"offer"`)
	assert.NotContains(t, string(out), `"answer"`)
}
