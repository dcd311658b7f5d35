package models

type User struct {
	BaseModel
	GithubID  int64  `gorm:"uniqueIndex;not null" json:"github_id"`
	Email     string `gorm:"index;not null" json:"email"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatar_url"`
	IsActive  bool   `gorm:"default:true;not null" json:"is_active"`

	APIKeys   []APIKey   `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	UsageLogs []UsageLog `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Tags      []Tag      `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Budgets   []Budget   `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Webhooks  []Webhook  `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}
