package service

const (
	RoleOwner   = "owner"
	RoleStudent = "student"
)

// Actor 当前请求的调用方，来自已校验的 JWT
type Actor struct {
	UserID int64
	Role   string
}

func (a Actor) IsOwner() bool {
	return a.Role == RoleOwner
}

func (a Actor) IsStudent(studentID int64) bool {
	return a.Role == RoleStudent && a.UserID == studentID
}
