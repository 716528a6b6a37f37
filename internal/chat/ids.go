package chat

import (
	"math/rand"
	"strings"
)

// roomIDAlphabet drops 0, 1, O and I so codes survive being read aloud
// or typed from a screenshot.
const (
	roomIDAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	roomIDLength   = 6
)

func randomRoomID() string {
	var b strings.Builder
	b.Grow(roomIDLength)
	for i := 0; i < roomIDLength; i++ {
		b.WriteByte(roomIDAlphabet[rand.Intn(len(roomIDAlphabet))])
	}
	return b.String()
}

// avatarPalette is assigned round-robin-by-chance to joining members.
var avatarPalette = []string{
	"#667eea", "#764ba2", "#f093fb", "#f5576c",
	"#4facfe", "#00f2fe", "#43e97b", "#38f9d7",
	"#fa709a", "#fee140", "#a8edea", "#fed6e3",
}

func randomAvatarColor() string {
	return avatarPalette[rand.Intn(len(avatarPalette))]
}
