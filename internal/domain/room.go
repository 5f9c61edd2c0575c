package domain

type RoomID string

// VideoRoom derives the presence room used for video-call attendance of
// a channel. Membership rights are still checked against the base room.
func VideoRoom(id RoomID) RoomID {
	return "video-" + id
}
