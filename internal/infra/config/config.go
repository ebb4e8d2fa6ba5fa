package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jose-valero/ranked-engine/internal/domain"
)

type Config struct {
	DatabaseURL string
	HTTPAddr    string

	// External collaborators
	ProfileBaseURL     string
	ProfileAPIKey      string
	MatchServerBaseURL string
	MatchServerAPIKey  string
	IngestSecret       string

	// Optional moderation notifications
	DiscordToken        string
	DiscordModChannelID string

	// Matchmaking
	Season            string
	TickInterval      time.Duration
	SearchRangeBase   int
	SearchRangeStep   int
	SearchWidenEvery  time.Duration
	SearchRangeMax    int
	PriorityPerTick   int
	RoleRequirements  []domain.RoleRequirement
	EnqueueRateWindow time.Duration
	ReadyCheckSeconds int
	DeclineCooldown   time.Duration

	// Decay
	DecaySweepInterval time.Duration
	DecayRules         []domain.TierDecayRule

	// Smurf detection
	SmurfThreshold      float64
	SmurfWindowGames    int
	SmurfWinRateWeight  float64
	SmurfVelocityWeight float64
	SmurfAgeWeight      float64
}

func Load() (Config, error) {
	cfg := Config{
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		HTTPAddr:           get("HTTP_ADDR", ":8080"),
		ProfileBaseURL:     get("PROFILE_BASE_URL", "http://localhost:9001"),
		ProfileAPIKey:      os.Getenv("PROFILE_API_KEY"),
		MatchServerBaseURL: get("MATCH_SERVER_BASE_URL", "http://localhost:9002"),
		MatchServerAPIKey:  os.Getenv("MATCH_SERVER_API_KEY"),
		IngestSecret:       os.Getenv("INGEST_SECRET"),

		DiscordToken:        os.Getenv("DISCORD_BOT_TOKEN"),
		DiscordModChannelID: os.Getenv("DISCORD_MOD_CHANNEL_ID"),

		Season:            get("SEASON", "2026-s2"),
		TickInterval:      getDur("TICK_INTERVAL", 2*time.Second),
		SearchRangeBase:   getInt("SEARCH_RANGE_BASE", 50),
		SearchRangeStep:   getInt("SEARCH_RANGE_STEP", 25),
		SearchWidenEvery:  getDur("SEARCH_WIDEN_EVERY", 5*time.Second),
		SearchRangeMax:    getInt("SEARCH_RANGE_MAX", 400),
		PriorityPerTick:   getInt("PRIORITY_PER_TICK", 2),
		EnqueueRateWindow: getDur("ENQUEUE_RATE_WINDOW", 10*time.Second),
		ReadyCheckSeconds: getInt("READY_CHECK_SECONDS", 15),
		DeclineCooldown:   getDur("DECLINE_COOLDOWN", 2*time.Minute),

		DecaySweepInterval: getDur("DECAY_SWEEP_INTERVAL", 1*time.Hour),

		SmurfThreshold:      getFloat("SMURF_THRESHOLD", 0.75),
		SmurfWindowGames:    getInt("SMURF_WINDOW_GAMES", 10),
		SmurfWinRateWeight:  getFloat("SMURF_WINRATE_WEIGHT", 0.5),
		SmurfVelocityWeight: getFloat("SMURF_VELOCITY_WEIGHT", 0.3),
		SmurfAgeWeight:      getFloat("SMURF_AGE_WEIGHT", 0.2),
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("missing env DATABASE_URL")
	}
	if cfg.ReadyCheckSeconds < 5 || cfg.ReadyCheckSeconds > 45 {
		return Config{}, fmt.Errorf("READY_CHECK_SECONDS must be within 5..45, got %d", cfg.ReadyCheckSeconds)
	}
	if cfg.TickInterval <= 0 {
		return Config{}, fmt.Errorf("TICK_INTERVAL must be positive, got %s", cfg.TickInterval)
	}
	if cfg.SearchRangeStep <= 0 {
		return Config{}, fmt.Errorf("SEARCH_RANGE_STEP must be positive, got %d", cfg.SearchRangeStep)
	}
	if cfg.SearchWidenEvery <= 0 {
		return Config{}, fmt.Errorf("SEARCH_WIDEN_EVERY must be positive, got %s", cfg.SearchWidenEvery)
	}

	roles, err := parseRoles(get("ROLE_REQUIREMENTS", "flex:5:5"))
	if err != nil {
		return Config{}, err
	}
	cfg.RoleRequirements = roles

	rules, err := parseDecayRules(get("DECAY_RULES", "PLATINUM:14:10,DIAMOND:10:15,MASTER:7:20,CHAMPION:7:25"))
	if err != nil {
		return Config{}, err
	}
	cfg.DecayRules = rules

	return cfg, nil
}

// TeamSize is the number of players one side needs, derived from role
// minimums.
func (c Config) TeamSize() int {
	n := 0
	for _, r := range c.RoleRequirements {
		n += r.Minimum
	}
	return n
}

func get(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(k string, def float64) float64 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getDur(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// parseRoles reads "role:min:max,role:min:max" lists.
func parseRoles(s string) ([]domain.RoleRequirement, error) {
	var out []domain.RoleRequirement
	for _, part := range strings.Split(s, ",") {
		fields := strings.Split(strings.TrimSpace(part), ":")
		if len(fields) != 3 {
			return nil, fmt.Errorf("bad role requirement %q", part)
		}
		minimum, err1 := strconv.Atoi(fields[1])
		maximum, err2 := strconv.Atoi(fields[2])
		if err1 != nil || err2 != nil || minimum < 0 || maximum < minimum {
			return nil, fmt.Errorf("bad role requirement %q", part)
		}
		out = append(out, domain.RoleRequirement{Role: fields[0], Minimum: minimum, Maximum: maximum})
	}
	return out, nil
}

// parseDecayRules reads "TIER:inactivityDays:penaltyPerDay" lists.
func parseDecayRules(s string) ([]domain.TierDecayRule, error) {
	var out []domain.TierDecayRule
	for _, part := range strings.Split(s, ",") {
		fields := strings.Split(strings.TrimSpace(part), ":")
		if len(fields) != 3 {
			return nil, fmt.Errorf("bad decay rule %q", part)
		}
		days, err1 := strconv.Atoi(fields[1])
		penalty, err2 := strconv.Atoi(fields[2])
		if err1 != nil || err2 != nil || days <= 0 || penalty < 0 {
			return nil, fmt.Errorf("bad decay rule %q", part)
		}
		out = append(out, domain.TierDecayRule{
			Tier:           domain.Tier(strings.ToUpper(fields[0])),
			InactivityDays: days,
			PenaltyPerDay:  penalty,
		})
	}
	return out, nil
}
