package models

import (
	"time"

	"gorm.io/gorm"
)

// User represents an operator account. The global role decides the
// permission tier; project membership scopes supervisors and agents.
type User struct {
	ID        int       `gorm:"primaryKey;autoIncrement" json:"id"`
	Email     string    `gorm:"column:email;uniqueIndex;not null" json:"email"`
	Name      string    `gorm:"column:name;not null" json:"name"`
	AvatarURL string    `gorm:"column:avatar_url" json:"avatar_url"`
	Role      UserRole  `gorm:"column:role;type:user_role;not null;default:'agent'" json:"role"`
	IsActive  bool      `gorm:"column:is_active;default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
}

// TableName specifies the table name for the User model
func (User) TableName() string {
	return "users"
}

// UserManager provides ORM methods for User
type UserManager struct {
	db *gorm.DB
}

// NewUserManager creates a new UserManager instance
func NewUserManager(db *gorm.DB) *UserManager {
	return &UserManager{db: db}
}

// Create creates a new user
func (m *UserManager) Create(user *User) error {
	return m.db.Create(user).Error
}

// Get retrieves a user by ID
func (m *UserManager) Get(id int) (*User, error) {
	var user User
	err := m.db.First(&user, "id = ? AND is_active = ?", id, true).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByEmail retrieves a user by email
func (m *UserManager) GetByEmail(email string) (*User, error) {
	var user User
	err := m.db.Where("email = ? AND is_active = ?", email, true).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Filter retrieves users matching the given conditions
func (m *UserManager) Filter(conditions interface{}) ([]User, error) {
	var users []User
	err := m.db.Where(conditions).Find(&users).Error
	return users, err
}

// Update saves the user
func (m *UserManager) Update(user *User) error {
	return m.db.Save(user).Error
}
