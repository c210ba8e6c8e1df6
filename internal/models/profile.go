package models

// Profile 代表一个注册的开发者账户。
type Profile struct {
	BaseModel
	Username     string   `gorm:"type:varchar(100);uniqueIndex;not null" json:"username"`
	PasswordHash string   `gorm:"type:varchar(255);not null" json:"-"` // 不暴露密码哈希
	Email        string   `gorm:"type:varchar(100);uniqueIndex" json:"email,omitempty"`
	Name         string   `gorm:"type:varchar(100)" json:"name,omitempty"`
	Bio          string   `gorm:"type:text" json:"bio,omitempty"`
	AvatarURL    string   `gorm:"type:varchar(255)" json:"avatarUrl,omitempty"`
	Location     string   `gorm:"type:varchar(100)" json:"location,omitempty"`
	Skills       []string `gorm:"type:text;serializer:json" json:"skills,omitempty"` // 技能标签
	GithubURL    string   `gorm:"type:varchar(255)" json:"githubUrl,omitempty"`
	WebsiteURL   string   `gorm:"type:varchar(255)" json:"websiteUrl,omitempty"`
	LinkedinURL  string   `gorm:"type:varchar(255)" json:"linkedinUrl,omitempty"`

	// 关联关系
	Projects []Project `gorm:"foreignKey:OwnerID" json:"projects,omitempty"` // 该用户拥有的项目
}

// ProfileBasicInfo holds minimal public information about a profile.
// Used when embedding the counterpart of a request or connection in API
// responses.
type ProfileBasicInfo struct {
	ID        uint   `json:"id"`
	Username  string `json:"username"`
	Name      string `json:"name,omitempty"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// TableName 指定 Profile 模型的表名。
func (Profile) TableName() string {
	return "profiles"
}
