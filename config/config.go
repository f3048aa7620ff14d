// Package config loads application settings from a YAML file with
// environment-variable overrides. Every setting has an env equivalent
// prefixed TALENTPILOT_; env values win over YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix for all environment-variable overrides.
const EnvPrefix = "TALENTPILOT_"

// ErrInvalid is returned when settings fail validation. The process maps
// it to the configuration-error exit status.
var ErrInvalid = errors.New("config: invalid settings")

// Config holds all application settings.
type Config struct {
	// Credentials.
	Email    string `yaml:"email"`
	Password string `yaml:"password"`

	// Browser.
	Headless bool          `yaml:"headless"`
	SlowMo   time.Duration `yaml:"slow_mo"`

	// Search.
	Keywords         []string `yaml:"keywords"`
	Locations        []string `yaml:"locations"`
	ExperienceLevels []string `yaml:"experience_levels"`
	DatePosted       string   `yaml:"date_posted"`
	JobTypes         []string `yaml:"job_types"`
	RemoteOptions    []string `yaml:"remote_options"`
	SalaryBracket    string   `yaml:"salary_bracket"`
	SortOrder        string   `yaml:"sort_order"`

	// Filtering.
	BlockedCompanies []string `yaml:"blocked_companies"`
	BlockedTitles    []string `yaml:"blocked_titles"`

	// Applicant profile.
	ExperienceYears int    `yaml:"applicant_experience_years"`
	PhoneNumber     string `yaml:"phone_number"`
	Country         string `yaml:"country"`

	// Submission.
	PreferredResumeIndex    int    `yaml:"preferred_resume_index"` // 1-based card index
	ResumeFilePath          string `yaml:"resume_file_path"`
	SimulationMode          bool   `yaml:"simulation_mode"`
	MaxSubmissionsPerSession int   `yaml:"max_submissions_per_session"` // 0 = unlimited
	RetryFailed             *bool  `yaml:"retry_failed"`                // nil = default true

	// Recovery and timeouts.
	RecoveryRetries int           `yaml:"recovery_retries"`
	NavTimeout      time.Duration `yaml:"nav_timeout"`
	StepTimeout     time.Duration `yaml:"step_timeout"`
	FieldTimeout    time.Duration `yaml:"field_timeout"`

	// Paths.
	StateDir    string `yaml:"state_dir"`
	AnswersFile string `yaml:"answers_file"`

	// Logging.
	LogLevel string `yaml:"log_level"`
}

func (c *Config) defaults() {
	if c.SlowMo <= 0 {
		c.SlowMo = 50 * time.Millisecond
	}
	if c.DatePosted == "" {
		c.DatePosted = "past week"
	}
	if c.SortOrder == "" {
		c.SortOrder = "recent"
	}
	if c.ExperienceYears <= 0 {
		c.ExperienceYears = 3
	}
	if c.PreferredResumeIndex <= 0 {
		c.PreferredResumeIndex = 1
	}
	if c.RecoveryRetries <= 0 {
		c.RecoveryRetries = 3
	}
	if c.NavTimeout <= 0 {
		c.NavTimeout = 30 * time.Second
	}
	if c.StepTimeout <= 0 {
		c.StepTimeout = 60 * time.Second
	}
	if c.FieldTimeout <= 0 {
		c.FieldTimeout = 5 * time.Second
	}
	if c.StateDir == "" {
		c.StateDir = ".state"
	}
	if c.AnswersFile == "" {
		c.AnswersFile = "answers.yaml"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// RetryFailedPolicy reports whether postings whose last attempt failed are
// eligible for another attempt in a later run. Default: true.
func (c *Config) RetryFailedPolicy() bool {
	if c.RetryFailed == nil {
		return true
	}
	return *c.RetryFailed
}

// Validate checks settings that would make a run meaningless or unsafe.
// All failures wrap ErrInvalid.
func (c *Config) Validate() error {
	var problems []string

	if c.Email == "" {
		problems = append(problems, "email is required")
	}
	if len(c.Keywords) == 0 {
		problems = append(problems, "at least one keyword is required")
	}
	if len(c.Locations) == 0 {
		problems = append(problems, "at least one location is required")
	}
	if c.MaxSubmissionsPerSession < 0 {
		problems = append(problems, "max_submissions_per_session must be >= 0")
	}
	switch strings.ToLower(c.SortOrder) {
	case "recent", "relevant":
	default:
		problems = append(problems, fmt.Sprintf("sort_order %q not recognized (recent, relevant)", c.SortOrder))
	}
	if c.ResumeFilePath != "" {
		if _, err := os.Stat(c.ResumeFilePath); err != nil {
			problems = append(problems, fmt.Sprintf("resume_file_path %q not readable", c.ResumeFilePath))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

// Load reads the YAML file at path (missing file is not an error: env and
// defaults still apply), overlays env vars, applies defaults, validates.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: parse %s: %v", ErrInvalid, path, err)
		}
	case os.IsNotExist(err):
		// Config can be supplied entirely via env.
	default:
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg.applyEnv()
	cfg.defaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	envStr(&c.Email, "EMAIL")
	envStr(&c.Password, "PASSWORD")
	envBool(&c.Headless, "HEADLESS")
	envDur(&c.SlowMo, "SLOW_MO")
	envList(&c.Keywords, "KEYWORDS")
	envList(&c.Locations, "LOCATIONS")
	envList(&c.ExperienceLevels, "EXPERIENCE_LEVELS")
	envStr(&c.DatePosted, "DATE_POSTED")
	envList(&c.JobTypes, "JOB_TYPES")
	envList(&c.RemoteOptions, "REMOTE_OPTIONS")
	envStr(&c.SalaryBracket, "SALARY_BRACKET")
	envStr(&c.SortOrder, "SORT_ORDER")
	envList(&c.BlockedCompanies, "BLOCKED_COMPANIES")
	envList(&c.BlockedTitles, "BLOCKED_TITLES")
	envInt(&c.ExperienceYears, "APPLICANT_EXPERIENCE_YEARS")
	envStr(&c.PhoneNumber, "PHONE_NUMBER")
	envStr(&c.Country, "COUNTRY")
	envInt(&c.PreferredResumeIndex, "PREFERRED_RESUME_INDEX")
	envStr(&c.ResumeFilePath, "RESUME_FILE_PATH")
	envBool(&c.SimulationMode, "SIMULATION_MODE")
	envInt(&c.MaxSubmissionsPerSession, "MAX_SUBMISSIONS_PER_SESSION")
	envBoolPtr(&c.RetryFailed, "RETRY_FAILED")
	envInt(&c.RecoveryRetries, "RECOVERY_RETRIES")
	envDur(&c.NavTimeout, "NAV_TIMEOUT")
	envDur(&c.StepTimeout, "STEP_TIMEOUT")
	envDur(&c.FieldTimeout, "FIELD_TIMEOUT")
	envStr(&c.StateDir, "STATE_DIR")
	envStr(&c.AnswersFile, "ANSWERS_FILE")
	envStr(&c.LogLevel, "LOG_LEVEL")
}

func envStr(dst *string, key string) {
	if v, ok := os.LookupEnv(EnvPrefix + key); ok {
		*dst = v
	}
}

func envBool(dst *bool, key string) {
	if v, ok := os.LookupEnv(EnvPrefix + key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func envBoolPtr(dst **bool, key string) {
	if v, ok := os.LookupEnv(EnvPrefix + key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = &b
		}
	}
}

func envInt(dst *int, key string) {
	if v, ok := os.LookupEnv(EnvPrefix + key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envDur(dst *time.Duration, key string) {
	if v, ok := os.LookupEnv(EnvPrefix + key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

// envList parses a comma-separated env value into a slice, trimming blanks.
func envList(dst *[]string, key string) {
	v, ok := os.LookupEnv(EnvPrefix + key)
	if !ok {
		return
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	*dst = out
}
