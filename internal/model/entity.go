package model

import (
	"time"
)

// User 사용자
type User struct {
	ID            int64   `gorm:"primaryKey;autoIncrement" json:"id"`
	Email         string  `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	Password      string  `gorm:"type:varchar(255);not null" json:"-"`
	Age           *int    `json:"age,omitempty"`
	AcademicLevel *string `gorm:"type:varchar(50)" json:"academic_level,omitempty"`
	FieldOfStudy  *string `gorm:"type:varchar(100)" json:"field_of_study,omitempty"`
	LearningStyle *string `gorm:"type:varchar(100)" json:"learning_style,omitempty"`
	Schedule      *string `gorm:"type:jsonb" json:"schedule,omitempty"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`

	// Relations
	Sessions []StudySession `gorm:"foreignKey:UserID" json:"sessions,omitempty"`
	Files    []File         `gorm:"foreignKey:UserID" json:"files,omitempty"`
}

func (User) TableName() string {
	return "users"
}

// StudyRoom 스터디룸 스냅샷 (채팅/노트/화이트보드를 한 레코드로 보관)
type StudyRoom struct {
	RoomID     string    `gorm:"primaryKey;type:varchar(100)" json:"room_id"`
	Chat       string    `gorm:"type:jsonb;default:'[]'" json:"chat"`
	Notes      string    `gorm:"type:text" json:"notes"`
	Whiteboard string    `gorm:"type:jsonb;default:'[]'" json:"whiteboard"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (StudyRoom) TableName() string {
	return "study_rooms"
}

// StudySession (user, room) 단위 누적 세션 지표
type StudySession struct {
	ID            int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID        int64     `gorm:"not null;uniqueIndex:idx_user_room" json:"user_id"`
	RoomID        string    `gorm:"type:varchar(100);not null;uniqueIndex:idx_user_room" json:"room_id"`
	HoursSpent    float64   `gorm:"not null;default:0" json:"hours_spent"`
	MessagesSent  int       `gorm:"not null;default:0" json:"messages_sent"`
	NotesShared   int       `gorm:"not null;default:0" json:"notes_shared"`
	FilesUploaded int       `gorm:"not null;default:0" json:"files_uploaded"`
	PollVotes     int       `gorm:"not null;default:0" json:"poll_votes"`
	LastUpdated   time.Time `gorm:"autoUpdateTime" json:"last_updated"`

	// Relations
	User User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

func (StudySession) TableName() string {
	return "study_sessions"
}

// File 업로드된 파일 메타데이터
type File struct {
	ID           int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID       int64     `gorm:"not null;index" json:"user_id"`
	Filename     string    `gorm:"type:varchar(255);not null" json:"filename"`
	OriginalName string    `gorm:"type:varchar(255);not null" json:"original_name"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`

	// Relations
	User User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

func (File) TableName() string {
	return "files"
}

// Achievement 세션 진행도에 연결되는 뱃지
type Achievement struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    int64     `gorm:"not null;index" json:"user_id"`
	SessionID *int64    `json:"session_id,omitempty"`
	Badge     string    `gorm:"type:varchar(100);not null" json:"badge"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`

	// Relations
	User    User          `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Session *StudySession `gorm:"foreignKey:SessionID" json:"session,omitempty"`
}

func (Achievement) TableName() string {
	return "achievements"
}
