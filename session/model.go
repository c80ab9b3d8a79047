package session

import (
	"time"

	"github.com/MrEthical07/quizcore/account"
)

// Entry is one live pairing of a token and the user it was issued to.
type Entry struct {
	Token     string
	User      account.User
	CreatedAt time.Time
}
