package world

import "sync"

// GuildRank orders members from lowest to highest authority.
type GuildRank int32

const (
	GuildRankMember GuildRank = 0
	GuildRankVice   GuildRank = 1
	GuildRankMaster GuildRank = 2
)

func (r GuildRank) String() string {
	switch r {
	case GuildRankMember:
		return "member"
	case GuildRankVice:
		return "vice"
	case GuildRankMaster:
		return "master"
	}
	return "unknown"
}

// GuildMember is a derived view of one membership row. Level and Online
// are filled at load time and are not stored with the guild.
type GuildMember struct {
	Name   string
	Rank   GuildRank
	Level  int32
	Online bool
}

// Guild is shared by every online member, so mutations go through its lock.
type Guild struct {
	mu      sync.RWMutex
	Name    string
	notice  string
	members []GuildMember
}

func NewGuild(name, notice string, members []GuildMember) *Guild {
	return &Guild{Name: name, notice: notice, members: members}
}

func (g *Guild) Notice() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.notice
}

func (g *Guild) SetNotice(notice string) {
	g.mu.Lock()
	g.notice = notice
	g.mu.Unlock()
}

// Members returns a copy of the member list.
func (g *Guild) Members() []GuildMember {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]GuildMember(nil), g.members...)
}

func (g *Guild) Member(name string) (GuildMember, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, m := range g.members {
		if m.Name == name {
			return m, true
		}
	}
	return GuildMember{}, false
}

// AddMember adds or replaces a member by name.
func (g *Guild) AddMember(m GuildMember) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := range g.members {
		if g.members[i].Name == m.Name {
			g.members[i] = m
			return
		}
	}
	g.members = append(g.members, m)
}

// RemoveMember returns false when name was not a member.
func (g *Guild) RemoveMember(name string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := range g.members {
		if g.members[i].Name == name {
			g.members = append(g.members[:i], g.members[i+1:]...)
			return true
		}
	}
	return false
}

// SetOnline updates the runtime online flag and level of a member.
func (g *Guild) SetOnline(name string, online bool, level int32) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := range g.members {
		if g.members[i].Name == name {
			g.members[i].Online = online
			g.members[i].Level = level
			return
		}
	}
}

// MemberCount returns the number of members in the guild.
func (g *Guild) MemberCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.members)
}
