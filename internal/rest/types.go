package rest

// User is the account behind the X-Username header.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// Room is a server-side chat room.
type Room struct {
	ID                   string   `json:"id"`
	Name                 string   `json:"name"`
	OwnerUsername        string   `json:"owner_username"`
	ParticipantUsernames []string `json:"participant_usernames"`
	CreatedAt            string   `json:"created_at"`
}

type createRoomRequest struct {
	Name                 string   `json:"name"`
	ParticipantUsernames []string `json:"participant_usernames"`
}

// RemoteMessage is one entry of a room's history. It has the same shape as
// the realtime new_message payload.
type RemoteMessage struct {
	ID             string `json:"id"`
	RoomID         string `json:"room_id"`
	SenderUsername string `json:"sender_username"`
	Text           string `json:"text"`
	CreatedAt      string `json:"created_at"`
}
