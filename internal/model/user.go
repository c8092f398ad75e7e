// Package model 定义了与数据库表对应的数据结构
// 这些结构体类似于 Java 中的 Entity 类
package model

import (
	"time"
)

// User 用户模型
// 对应数据库表 users
// 存储用户的认证凭据和个人资料
type User struct {
	// ID 用户唯一标识，自增主键
	ID int64 `gorm:"primaryKey" json:"id"`

	// Username 用户名，用于登录，全局唯一
	// 长度限制 50 字符，建立唯一索引
	// 唯一性由数据库约束保证，应用层的预检查只是为了友好报错
	Username string `gorm:"size:50;uniqueIndex;not null" json:"username"`

	// PasswordHash 密码的 bcrypt 哈希值
	// 永远不要存储明文密码！
	PasswordHash string `gorm:"size:255;not null" json:"-"` // json:"-" 表示序列化时忽略此字段

	// RealName 真实姓名，可选
	// 使用指针类型表示可以为 NULL
	RealName *string `gorm:"size:100" json:"real_name,omitempty"`

	// BirthDate 出生日期，可选
	// 只关心日期部分
	BirthDate *time.Time `gorm:"type:date" json:"birth_date,omitempty"`

	// ProfilePicture 头像图片，可选
	// 存储 Base64 编码的图片数据，使用 TEXT 类型
	ProfilePicture *string `gorm:"type:text" json:"profile_picture,omitempty"`

	// CreatedAt 创建时间，由 GORM 自动填充
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`

	// UpdatedAt 更新时间，由 GORM 自动更新
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	// Chats 用户拥有的聊天（一对多关系）
	// 这是 GORM 的关联关系，不会在数据库中创建字段
	Chats []Chat `gorm:"foreignKey:OwnerID" json:"chats,omitempty"`
}

// TableName 指定表名
// GORM 会使用这个方法返回的表名，而不是默认的复数形式
func (User) TableName() string {
	return "users"
}

// Profile 用户资料视图
// 资料相关接口返回的形状，不包含密码哈希等敏感字段
type Profile struct {
	ID             int64   `json:"id"`
	Username       string  `json:"username"`
	RealName       *string `json:"real_name"`
	BirthDate      *string `json:"birth_date"`
	ProfilePicture *string `json:"profile_picture"`
}

// ToProfile 将 User 转换为 Profile 视图
// 出生日期格式化为 YYYY-MM-DD 字符串
func (u *User) ToProfile() *Profile {
	p := &Profile{
		ID:             u.ID,
		Username:       u.Username,
		RealName:       u.RealName,
		ProfilePicture: u.ProfilePicture,
	}
	if u.BirthDate != nil {
		s := u.BirthDate.Format("2006-01-02")
		p.BirthDate = &s
	}
	return p
}
