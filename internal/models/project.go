package models

// ProjectStatus 定义项目的状态
type ProjectStatus string

const (
	ProjectStatusOpen   ProjectStatus = "open"   // 仍在招募贡献者
	ProjectStatusClosed ProjectStatus = "closed" // 不再接受贡献者
)

// Project 代表一个开发者发布的项目。
type Project struct {
	BaseModel
	Title              string        `gorm:"type:varchar(200);not null" json:"title"`
	Description        string        `gorm:"type:text" json:"description,omitempty"`
	TechStack          []string      `gorm:"type:text;serializer:json" json:"techStack,omitempty"`
	Status             ProjectStatus `gorm:"type:varchar(20);not null;default:'open'" json:"status"`
	OwnerID            uint          `gorm:"not null;index" json:"ownerId"`
	ContributorsNeeded []string      `gorm:"type:text;serializer:json" json:"contributorsNeeded,omitempty"` // 期望的贡献者角色
	GithubURL          string        `gorm:"type:varchar(255)" json:"githubUrl,omitempty"`
	DemoURL            string        `gorm:"type:varchar(255)" json:"demoUrl,omitempty"`

	Owner Profile `gorm:"foreignKey:OwnerID" json:"-"`
}

// ProjectWithOwner is a DTO for project listings, embedding basic info
// about the owning profile.
type ProjectWithOwner struct {
	Project
	Owner *ProfileBasicInfo `json:"owner"`
}

// TableName 指定 Project 模型的表名。
func (Project) TableName() string {
	return "projects"
}
