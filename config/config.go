package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Game     GameConfig     `mapstructure:"game"`
}

type ServerConfig struct {
	HTTPAddress    string `mapstructure:"http_address"`
	RPCAddress     string `mapstructure:"rpc_address"`
	MetricsAddress string `mapstructure:"metrics_address"`
}

type DatabaseConfig struct {
	// Driver 选择持久化实现: "gorm" 或 "pq"
	Driver   string         `mapstructure:"driver"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
}

// GameConfig 房间与调度相关的可调参数
type GameConfig struct {
	MaxPlayers       int           `mapstructure:"max_players"`
	CountdownTicks   int           `mapstructure:"countdown_ticks"`
	CountdownStep    time.Duration `mapstructure:"countdown_step"`
	TickInterval     time.Duration `mapstructure:"tick_interval"`
	StageHoldTicks   int           `mapstructure:"stage_hold_ticks"`
	StageExitTicks   int           `mapstructure:"stage_exit_ticks"`
	StageRevealTicks int           `mapstructure:"stage_reveal_ticks"`
	RateLimitMax     int           `mapstructure:"rate_limit_max"`
	RateLimitWindow  time.Duration `mapstructure:"rate_limit_window"`
	RegistryStale    time.Duration `mapstructure:"registry_stale"`
	TeardownGrace    time.Duration `mapstructure:"teardown_grace"`
	NameMaxLen       int           `mapstructure:"name_max_len"`
	RoomCodeLength   int           `mapstructure:"room_code_length"`
	FieldWidth       int           `mapstructure:"field_width"`
	FieldHeight      int           `mapstructure:"field_height"`
}

// DefaultGameConfig 返回默认游戏参数
func DefaultGameConfig() GameConfig {
	return GameConfig{
		MaxPlayers:       4,
		CountdownTicks:   3,
		CountdownStep:    time.Second,
		TickInterval:     33 * time.Millisecond,
		StageHoldTicks:   45,
		StageExitTicks:   30,
		StageRevealTicks: 60,
		RateLimitMax:     60,
		RateLimitWindow:  time.Second,
		RegistryStale:    5 * time.Minute,
		TeardownGrace:    5 * time.Minute,
		NameMaxLen:       12,
		RoomCodeLength:   5,
		FieldWidth:       800,
		FieldHeight:      600,
	}
}

func LoadConfig(path string) (config *Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.AutomaticEnv()

	def := DefaultGameConfig()
	viper.SetDefault("database.driver", "gorm")
	viper.SetDefault("game.max_players", def.MaxPlayers)
	viper.SetDefault("game.countdown_ticks", def.CountdownTicks)
	viper.SetDefault("game.countdown_step", def.CountdownStep)
	viper.SetDefault("game.tick_interval", def.TickInterval)
	viper.SetDefault("game.stage_hold_ticks", def.StageHoldTicks)
	viper.SetDefault("game.stage_exit_ticks", def.StageExitTicks)
	viper.SetDefault("game.stage_reveal_ticks", def.StageRevealTicks)
	viper.SetDefault("game.rate_limit_max", def.RateLimitMax)
	viper.SetDefault("game.rate_limit_window", def.RateLimitWindow)
	viper.SetDefault("game.registry_stale", def.RegistryStale)
	viper.SetDefault("game.teardown_grace", def.TeardownGrace)
	viper.SetDefault("game.name_max_len", def.NameMaxLen)
	viper.SetDefault("game.room_code_length", def.RoomCodeLength)
	viper.SetDefault("game.field_width", def.FieldWidth)
	viper.SetDefault("game.field_height", def.FieldHeight)

	err = viper.ReadInConfig()
	if err != nil {
		return
	}

	err = viper.Unmarshal(&config)
	return
}
