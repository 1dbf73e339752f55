package gormstore

import "github.com/mcoot/userdata/internal/model"

// Row types for the dynamic tables. None of them carries an index beyond
// the primary key: index names are global in sqlite, table names are not
// known until runtime.

type userRow struct {
	Name     string `gorm:"primaryKey;size:255"`
	Fullname string `gorm:"size:255;not null"`
	Email    string `gorm:"size:255;not null"`
	Password string `gorm:"size:255;not null"`
}

func (r userRow) toModel() model.User {
	return model.User{Name: r.Name, Fullname: r.Fullname, Email: r.Email}
}

type containerRow struct {
	Name     string `gorm:"primaryKey;size:255"`
	Refcount int    `gorm:"not null"`
}

type gameRow struct {
	Name       string   `gorm:"primaryKey;size:255"`
	Fullname   string   `gorm:"size:255;not null"`
	Password   string   `gorm:"size:255;not null"`
	Containers []string `gorm:"type:text;serializer:json"`
}

func (r gameRow) toModel(user string) model.Game {
	return model.Game{User: user, Name: r.Name, Fullname: r.Fullname, Containers: r.Containers}
}

type playerRow struct {
	ID         uint     `gorm:"primaryKey"`
	URL        string   `gorm:"size:255;not null"`
	Name       string   `gorm:"size:255;not null"`
	Fullname   string   `gorm:"size:255;not null"`
	Language   string   `gorm:"size:255"`
	IsDefault  bool     `gorm:"not null"`
	Containers []string `gorm:"type:text;serializer:json"`
}

func (r playerRow) toModel(user string) model.RemotePlayer {
	return model.RemotePlayer{
		User:       user,
		URL:        r.URL,
		Name:       r.Name,
		Fullname:   r.Fullname,
		Language:   r.Language,
		Containers: r.Containers,
		IsDefault:  r.IsDefault,
	}
}

type managedRow struct {
	Name     string `gorm:"primaryKey;size:255"`
	Fullname string `gorm:"size:255;not null"`
	Email    string `gorm:"size:255;not null"`
	Language string `gorm:"size:255"`
	Password string `gorm:"size:255;not null"`
}

func (r managedRow) toModel(user, game string) model.ManagedPlayer {
	return model.ManagedPlayer{
		User:     user,
		Game:     game,
		Name:     r.Name,
		Fullname: r.Fullname,
		Email:    r.Email,
		Language: r.Language,
	}
}

// normalize drops empty and repeated container names, keeping order
func normalize(containers []string) []string {
	seen := make(map[string]bool, len(containers))
	out := make([]string, 0, len(containers))
	for _, c := range containers {
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

// difference returns the elements of a that are not in b
func difference(a, b []string) []string {
	inB := make(map[string]bool, len(b))
	for _, x := range b {
		inB[x] = true
	}
	var out []string
	for _, x := range a {
		if !inB[x] {
			out = append(out, x)
		}
	}
	return out
}
