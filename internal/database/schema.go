package database

import "time"

// The models below describe the relational schema. They are only used to
// create tables and constraints; services read and write with explicit SQL
// through the store.

type User struct {
	ID           int64     `gorm:"column:id;primaryKey;autoIncrement"`
	Username     string    `gorm:"column:username;size:64;not null;uniqueIndex:idx_users_username"`
	Email        string    `gorm:"column:email;size:255;not null;uniqueIndex:idx_users_email"`
	PasswordHash string    `gorm:"column:password_hash;size:255;not null"`
	CreatedAt    time.Time `gorm:"column:created_at;not null"`
}

func (User) TableName() string { return "users" }

type Ghost struct {
	ID          int64  `gorm:"column:id;primaryKey;autoIncrement"`
	GhostType   string `gorm:"column:ghost_type;size:64;not null;default:Unknown"`
	Name        string `gorm:"column:name;size:128;not null;index:idx_ghosts_name"`
	Description string `gorm:"column:description;type:text"`
	Visibility  int    `gorm:"column:visibility;not null;default:5;check:chk_ghosts_visibility,visibility >= 0 AND visibility <= 10"`
}

func (Ghost) TableName() string { return "ghosts" }

type Sighting struct {
	ID           int64     `gorm:"column:id;primaryKey;autoIncrement"`
	Visibility   int       `gorm:"column:visibility;not null;default:5;check:chk_sightings_visibility,visibility >= 0 AND visibility <= 10"`
	SightedAt    time.Time `gorm:"column:sighted_at;not null;index:idx_sightings_sighted_at"`
	UserReportID int64     `gorm:"column:user_report_id;not null;index:idx_sightings_reporter"`
	Reporter     User      `gorm:"foreignKey:UserReportID;references:ID"`
	Latitude     *float64  `gorm:"column:latitude"`
	Longitude    *float64  `gorm:"column:longitude"`
	Description  string    `gorm:"column:description;type:text;not null"`
}

func (Sighting) TableName() string { return "sightings" }

type SightingReportsGhost struct {
	SightingID int64    `gorm:"column:sighting_id;primaryKey;autoIncrement:false"`
	GhostID    int64    `gorm:"column:ghost_id;primaryKey;autoIncrement:false;index:idx_sighting_reports_ghost_ghost"`
	Sighting   Sighting `gorm:"foreignKey:SightingID;references:ID"`
	Ghost      Ghost    `gorm:"foreignKey:GhostID;references:ID"`
}

func (SightingReportsGhost) TableName() string { return "sighting_reports_ghost" }

type SightingComment struct {
	UserID      int64     `gorm:"column:user_id;primaryKey;autoIncrement:false"`
	SightingID  int64     `gorm:"column:sighting_id;primaryKey;autoIncrement:false;index:idx_sighting_comments_sighting"`
	ReportTime  time.Time `gorm:"column:report_time;not null"`
	Description string    `gorm:"column:description;type:text;not null"`
	User        User      `gorm:"foreignKey:UserID;references:ID"`
	Sighting    Sighting  `gorm:"foreignKey:SightingID;references:ID"`
}

func (SightingComment) TableName() string { return "sighting_comments" }

type GhostComment struct {
	UserID      int64     `gorm:"column:user_id;primaryKey;autoIncrement:false"`
	GhostID     int64     `gorm:"column:ghost_id;primaryKey;autoIncrement:false;index:idx_ghost_comments_ghost"`
	ReportTime  time.Time `gorm:"column:report_time;not null"`
	Description string    `gorm:"column:description;type:text;not null"`
	User        User      `gorm:"foreignKey:UserID;references:ID"`
	Ghost       Ghost     `gorm:"foreignKey:GhostID;references:ID"`
}

func (GhostComment) TableName() string { return "ghost_comments" }

type Tour struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement"`
	StartTime time.Time `gorm:"column:start_time;not null;check:chk_tours_time_order,start_time < end_time"`
	EndTime   time.Time `gorm:"column:end_time;not null"`
	Guide     string    `gorm:"column:guide;size:128;not null"`
	Path      string    `gorm:"column:path;type:text;not null"`
}

func (Tour) TableName() string { return "tours" }

type TourInclude struct {
	TourID  int64 `gorm:"column:tour_id;primaryKey;autoIncrement:false"`
	GhostID int64 `gorm:"column:ghost_id;primaryKey;autoIncrement:false;index:idx_tour_includes_ghost"`
	Tour    Tour  `gorm:"foreignKey:TourID;references:ID"`
	Ghost   Ghost `gorm:"foreignKey:GhostID;references:ID"`
}

func (TourInclude) TableName() string { return "tour_includes" }

type TourSignUp struct {
	UserID int64 `gorm:"column:user_id;primaryKey;autoIncrement:false"`
	TourID int64 `gorm:"column:tour_id;primaryKey;autoIncrement:false;index:idx_tour_sign_ups_tour"`
	User   User  `gorm:"foreignKey:UserID;references:ID"`
	Tour   Tour  `gorm:"foreignKey:TourID;references:ID"`
}

func (TourSignUp) TableName() string { return "tour_sign_ups" }

type GhostBuster struct {
	UserID       int64              `gorm:"column:user_id;primaryKey;autoIncrement:false"`
	GhostsBusted int                `gorm:"column:ghosts_busted;not null;default:0"`
	Alias        string             `gorm:"column:alias;size:64"`
	User         User               `gorm:"foreignKey:UserID;references:ID"`
	Fights       []GhostBusterFight `gorm:"foreignKey:UserID;references:UserID"`
}

func (GhostBuster) TableName() string { return "ghost_busters" }

type GhostBusterFight struct {
	UserID  int64 `gorm:"column:user_id;primaryKey;autoIncrement:false"`
	GhostID int64 `gorm:"column:ghost_id;primaryKey;autoIncrement:false;index:idx_fights_ghost"`
	Ghost   Ghost `gorm:"foreignKey:GhostID;references:ID"`
}

func (GhostBusterFight) TableName() string { return "ghost_buster_fights_ghost" }

// Models lists every table model, parents before children.
func Models() []any {
	return []any{
		&User{},
		&Ghost{},
		&Sighting{},
		&SightingReportsGhost{},
		&SightingComment{},
		&GhostComment{},
		&Tour{},
		&TourInclude{},
		&TourSignUp{},
		&GhostBuster{},
		&GhostBusterFight{},
		&migrationRecord{},
	}
}
