package quizcore

import (
	"github.com/MrEthical07/quizcore/account"
	"github.com/MrEthical07/quizcore/permission"
	"github.com/MrEthical07/quizcore/quiz"
	"github.com/MrEthical07/quizcore/store"
)

// User is the authenticated principal as stored by the user provider.
type User = account.User

// UserProvider resolves users by identifier or id.
type UserProvider = account.Provider

// Store is the durable quiz and attempt store.
type Store = store.Store

// Role is the active permission level carried by a token.
type Role = permission.Role

const (
	RoleTaker   = permission.RoleTaker
	RoleAuthor  = permission.RoleAuthor
	RoleManager = permission.RoleManager
)

// Entitlement bits of [User.Entitlements].
const (
	EntitlementTake   = permission.EntitlementTake
	EntitlementAuthor = permission.EntitlementAuthor
	EntitlementManage = permission.EntitlementManage
)

// LoginResult is returned by [Engine.Login]. User never carries the password hash.
type LoginResult struct {
	Token string
	User  User
	Role  Role
}

// Principal is the caller behind a live session.
type Principal struct {
	User User
	Role Role
}

// RoleChange is returned by [Engine.UpUserRole] and [Engine.DownUserRole].
type RoleChange struct {
	Token string
	From  Role
	To    Role
}

// Quiz model re-exports.
type (
	QuizSnapshot    = quiz.Snapshot
	Question        = quiz.Question
	Answer          = quiz.Answer
	Attempt         = quiz.Attempt
	AnsweredChoice  = quiz.AnsweredChoice
	SubmittedAnswer = quiz.SubmittedAnswer
	AttemptResult   = quiz.Result
)
