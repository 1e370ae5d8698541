package domain

import (
	"slices"
	"time"
)

// Profile is the slice of the user record the messaging core reads.
type Profile struct {
	ID       string     `bson:"_id" json:"id"`
	Username string     `bson:"username" json:"username"`
	Avatar   string     `bson:"avatar,omitempty" json:"avatar,omitempty"`
	Blocked  []string   `bson:"blocked" json:"-"`
	Muted    []string   `bson:"muted" json:"-"`
	LastSeen *time.Time `bson:"last_seen,omitempty" json:"last_seen,omitempty"`
}

func (p *Profile) HasBlocked(userID string) bool { return slices.Contains(p.Blocked, userID) }
func (p *Profile) HasMuted(userID string) bool   { return slices.Contains(p.Muted, userID) }

// EitherBlocked reports a block in either direction.
func EitherBlocked(a, b *Profile) bool {
	return a.HasBlocked(b.ID) || b.HasBlocked(a.ID)
}

type Group struct {
	ID                string   `bson:"_id" json:"id"`
	Name              string   `bson:"name" json:"name"`
	Members           []string `bson:"members" json:"members"`
	Admins            []string `bson:"admins" json:"admins"`
	CoAdmins          []string `bson:"co_admins" json:"co_admins"`
	OnlyAdminsCanSend bool     `bson:"only_admins_can_send" json:"only_admins_can_send"`
}

func (g *Group) IsMember(userID string) bool {
	return slices.Contains(g.Members, userID) || g.IsAdmin(userID)
}

func (g *Group) IsAdmin(userID string) bool {
	return slices.Contains(g.Admins, userID) || slices.Contains(g.CoAdmins, userID)
}

func (g *Group) CanSend(userID string) bool {
	if !g.IsMember(userID) {
		return false
	}
	return !g.OnlyAdminsCanSend || g.IsAdmin(userID)
}

// AllMembers returns members plus admins, deduplicated.
func (g *Group) AllMembers() []string {
	out := make([]string, 0, len(g.Members)+len(g.Admins)+len(g.CoAdmins))
	for _, list := range [][]string{g.Members, g.Admins, g.CoAdmins} {
		for _, id := range list {
			if !slices.Contains(out, id) {
				out = append(out, id)
			}
		}
	}
	return out
}
