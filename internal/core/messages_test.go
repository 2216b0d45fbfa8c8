package core

import (
	"testing"

	"github.com/dkeye/Presence/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeMessage(t *testing.T) {
	tests := []struct {
		name    string
		kind    domain.RoomKind
		env     Envelope
		want    Message
		wantErr error
	}{
		{
			name: "lobby move",
			kind: domain.KindLobby,
			env:  Envelope{Type: "move", Payload: []byte(`{"x":10,"y":20}`)},
			want: &Move{X: 10, Y: 20},
		},
		{
			name: "page cursor with timestamp",
			kind: domain.KindPage,
			env:  Envelope{Type: "cursor", Payload: []byte(`{"x":1.5,"y":900,"currentPage":"about","ts":17}`)},
			want: &CursorMove{X: 1.5, Y: 900, CurrentPage: "about", TS: 17},
		},
		{
			name: "payload may be omitted",
			kind: domain.KindPage,
			env:  Envelope{Type: "cursor-hide"},
			want: &CursorHide{},
		},
		{
			name: "null payload",
			kind: domain.KindPost,
			env:  Envelope{Type: "typing", Payload: []byte(`null`)},
			want: &Typing{},
		},
		{
			name:    "type belongs to another room kind",
			kind:    domain.KindPost,
			env:     Envelope{Type: "chat", Payload: []byte(`{"message":"hi"}`)},
			wantErr: ErrUnknownMessage,
		},
		{
			name:    "unknown type",
			kind:    domain.KindLobby,
			env:     Envelope{Type: "teleport"},
			wantErr: ErrUnknownMessage,
		},
		{
			name:    "malformed payload",
			kind:    domain.KindPage,
			env:     Envelope{Type: "add-comment", Payload: []byte(`{"content":7}`)},
			wantErr: ErrBadPayload,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeMessage(tt.kind, tt.env)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.env.Type, got.MessageType())
		})
	}
}

func TestPath(t *testing.T) {
	assert.Equal(t, "/users/S1", Path("users", "S1"))
	assert.Equal(t, "/comments/a~1b~0c", Path("comments", "a/b~c"))
	assert.Equal(t, "/totalUsers", Path("totalUsers"))
}
