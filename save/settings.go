package save

import (
	"fmt"
	"io"
	"slices"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/julez-dev/encore/event"
)

const (
	settingsFileName = "settings.yaml"
)

type Settings struct {
	Gifts      GiftSettings       `yaml:"gifts"`
	Statistics StatisticsSettings `yaml:"statistics"`
	Server     ServerSettings     `yaml:"server"`
	Commands   []CommandSettings  `yaml:"commands"`
}

type GiftSettings struct {
	// MassGiftThreshold is the announced total above which gift batches
	// are folded into one mass event. Zero disables batching.
	MassGiftThreshold int `yaml:"mass_gift_threshold"`
}

type StatisticsSettings struct {
	StoreEvents bool `yaml:"store_events"`
}

type ServerSettings struct {
	Addr string `yaml:"addr"`
	// RateLimitPerMinute bounds requests per client IP. Zero disables
	// rate limiting.
	RateLimitPerMinute int `yaml:"rate_limit_per_minute"`
}

// CommandSettings binds a chat announcement to an event kind.
type CommandSettings struct {
	Name     string `yaml:"name"`
	Event    string `yaml:"event"`
	Template string `yaml:"template"`
	Disabled bool   `yaml:"disabled"`
}

func BuildDefaultSettings() Settings {
	return Settings{
		Gifts: GiftSettings{
			MassGiftThreshold: 5,
		},
		Statistics: StatisticsSettings{
			StoreEvents: true,
		},
		Server: ServerSettings{
			Addr:               "localhost:8090",
			RateLimitPerMinute: 120,
		},
	}
}

func (s Settings) validate() error {
	if s.Gifts.MassGiftThreshold < 0 {
		return fmt.Errorf("gifts.mass_gift_threshold can't be negative")
	}

	if s.Server.RateLimitPerMinute < 0 {
		return fmt.Errorf("server.rate_limit_per_minute can't be negative")
	}

	var seen []string
	for _, c := range s.Commands {
		if c.Name == "" {
			return fmt.Errorf("command for event %q needs a name", c.Event)
		}

		if slices.Contains(seen, c.Name) {
			return fmt.Errorf("duplicate command name %q", c.Name)
		}
		seen = append(seen, c.Name)

		if _, ok := event.ParseKind(c.Event); !ok {
			return fmt.Errorf("command %q binds unknown event %q", c.Name, c.Event)
		}
	}

	return nil
}

func SettingsFromDisk(fs afero.Fs) (Settings, error) {
	f, err := openCreateConfigFile(fs, settingsFileName)
	if err != nil {
		return Settings{}, err
	}

	defer f.Close()
	stat, err := f.Stat()
	if err != nil {
		return Settings{}, err
	}

	if stat.Size() == 0 {
		return BuildDefaultSettings(), nil
	}

	b, err := io.ReadAll(f)
	if err != nil {
		return Settings{}, err
	}

	settings := BuildDefaultSettings()

	if err := yaml.Unmarshal(b, &settings); err != nil {
		return Settings{}, err
	}

	if err := settings.validate(); err != nil {
		return Settings{}, err
	}

	return settings, nil
}
