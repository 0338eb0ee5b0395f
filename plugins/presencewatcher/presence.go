package presencewatcher

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/bft-labs/shardline/pkg/protocol"
)

// presenceFile is the TOML layout of a presence file:
//
//	status = "idle"
//	afk = false
//	since = 0
//
//	[[activities]]
//	name = "the shards"
//	type = 3
type presenceFile struct {
	Status     string         `toml:"status"`
	AFK        bool           `toml:"afk"`
	Since      int64          `toml:"since"`
	Activities []activityFile `toml:"activities"`
}

type activityFile struct {
	Name string `toml:"name"`
	Type int    `toml:"type"`
	URL  string `toml:"url"`
}

// LoadPresence reads a presence file.
func LoadPresence(path string) (protocol.PresenceUpdate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return protocol.PresenceUpdate{}, err
	}
	return ParsePresence(data)
}

// ParsePresence decodes a presence file. An empty status means online.
func ParsePresence(data []byte) (protocol.PresenceUpdate, error) {
	var f presenceFile
	if err := toml.Unmarshal(data, &f); err != nil {
		return protocol.PresenceUpdate{}, fmt.Errorf("parse presence: %w", err)
	}

	p := protocol.PresenceUpdate{
		Status:     protocol.Status(f.Status),
		AFK:        f.AFK,
		Activities: make([]protocol.Activity, 0, len(f.Activities)),
	}
	switch p.Status {
	case "":
		p.Status = protocol.StatusOnline
	case protocol.StatusOnline, protocol.StatusIdle, protocol.StatusDoNotDisturb,
		protocol.StatusInvisible, protocol.StatusOffline:
	default:
		return protocol.PresenceUpdate{}, fmt.Errorf("parse presence: unknown status %q", f.Status)
	}
	if f.Since > 0 {
		since := f.Since
		p.Since = &since
	}
	for _, a := range f.Activities {
		if a.Name == "" {
			return protocol.PresenceUpdate{}, fmt.Errorf("parse presence: activity without name")
		}
		if a.Type < int(protocol.ActivityPlaying) || a.Type > int(protocol.ActivityCompeting) {
			return protocol.PresenceUpdate{}, fmt.Errorf("parse presence: activity %q has unknown type %d", a.Name, a.Type)
		}
		p.Activities = append(p.Activities, protocol.Activity{
			Name: a.Name,
			Type: protocol.ActivityType(a.Type),
			URL:  a.URL,
		})
	}
	return p, nil
}
