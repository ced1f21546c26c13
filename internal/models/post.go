// Package models contains data structures for the application's domain models.
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// PostsTable is the name of the table holding posts in the hosted project.
const PostsTable = "posts"

// Post is an article-like record with free-text tags.
type Post struct {
	ID          uuid.UUID      `gorm:"column:id;type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	Title       string         `gorm:"column:title;not null" json:"title"`
	ImageURL    string         `gorm:"column:imageUrl;not null" json:"imageUrl"`
	Content     *string        `gorm:"column:content;type:text" json:"content"`
	Featured    *bool          `gorm:"column:featured" json:"featured"`
	TotalVisits *int           `gorm:"column:totalVisits" json:"totalVisits"`
	Tags        pq.StringArray `gorm:"column:tags;type:text[]" json:"tags"`
	CreatedAt   time.Time      `gorm:"column:createdAt;not null;default:now();autoCreateTime:false" json:"createdAt"`
}

// TableName pins the table name regardless of naming strategy.
func (Post) TableName() string {
	return PostsTable
}
