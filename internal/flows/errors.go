package flows

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/quizcore/jwt"
	"github.com/MrEthical07/quizcore/permission"
	"github.com/MrEthical07/quizcore/quiz"
	"github.com/MrEthical07/quizcore/quizcache"
	"github.com/MrEthical07/quizcore/session"
	"github.com/MrEthical07/quizcore/store"
)

// domainErrors are returned to callers unchanged; anything else is an internal fault.
var domainErrors = []error{
	jwt.ErrTokenExpired,
	jwt.ErrTokenInvalid,
	jwt.ErrInvalidArgument,
	session.ErrSessionConflict,
	session.ErrSessionNotFound,
	permission.ErrInvalidRole,
	quiz.ErrValidation,
	quizcache.ErrConflict,
	context.Canceled,
	context.DeadlineExceeded,
}

// passThrough returns err unchanged when it is a domain error and wraps it in internal
// otherwise.
func passThrough(err, internal error) error {
	if err == nil {
		return nil
	}
	for _, known := range domainErrors {
		if errors.Is(err, known) {
			return err
		}
	}
	if internal != nil && errors.Is(err, internal) {
		return err
	}
	return fmt.Errorf("%w: %v", internal, err)
}

// isQuizMissing reports whether err means the quiz does not exist in cache or store.
func isQuizMissing(err error) bool {
	return errors.Is(err, quizcache.ErrNotFound) || errors.Is(err, store.ErrNotFound)
}
