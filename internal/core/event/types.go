package event

import "github.com/l1jgo/worldstore/internal/world"

// Hook events fired by the persistence engine.

// Connected fires once storage is reachable and migrated.
type Connected struct{}

type CharacterLoaded struct {
	Player  *world.Player
	Preview bool
}

type CharacterSaved struct {
	Player *world.Player
	Online bool
}

type GuildSaved struct {
	Guild *world.Guild
}

type GuildRemoved struct {
	Name string
}
