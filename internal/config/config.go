// Package config loads and validates the monitoring configuration
// from the environment, with optional .env support for local runs.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/vigil-labs/go-vigil/pkg/alert"
	"github.com/vigil-labs/go-vigil/pkg/detect"
)

// Config holds the full monitoring configuration.
type Config struct {
	// Server
	Port string

	// Monitored person
	UserName string
	Contacts []alert.Contact

	// Modes
	TestMode  bool // alert calls carry the test marker
	MockVoice bool // mock speech and telephony, for development

	// Check-in windows
	Timeout      time.Duration
	SecondChance time.Duration

	// Confirmation tuning
	NearFallThreshold  float64
	FallThreshold      float64
	ConfirmationWindow int
	FallCount          int
	NearFallCount      int
	DebounceCount      int

	// Orchestration
	Cooldown  time.Duration
	QueueSize int

	// Storage
	EventLogPath string
	ClipDir      string
	ClipWindow   time.Duration

	// Providers
	ElevenLabsKey    string
	ElevenLabsVoice  string
	AssemblyAIKey    string
	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFromNumber string
	WebhookURL       string

	// ClassifierURL, when set, enables server-side classification of
	// feature-only frames via the classifier sidecar.
	ClassifierURL string
}

// Load reads the environment (and .env, when present) into a Config.
// The result is not yet validated; call Validate before use.
func Load() *Config {
	// A missing .env is normal outside development.
	godotenv.Load()

	return &Config{
		Port: envStr("PORT", "8080"),

		UserName: envStr("VIGIL_USER_NAME", "the resident"),
		Contacts: parseContacts(os.Getenv("VIGIL_CONTACTS")),

		TestMode:  envBool("VIGIL_TEST_MODE", false),
		MockVoice: envBool("VIGIL_MOCK_VOICE", false),

		Timeout:      envSeconds("TIMEOUT_SECONDS", 15),
		SecondChance: envSeconds("SECOND_CHANCE_SECONDS", 10),

		NearFallThreshold:  envFloat("NEAR_FALL_THRESHOLD", 0.5),
		FallThreshold:      envFloat("FALL_THRESHOLD", 0.85),
		ConfirmationWindow: envInt("CONFIRMATION_WINDOW", 5),
		FallCount:          envInt("FALL_COUNT", 5),
		NearFallCount:      envInt("NEAR_FALL_COUNT", 3),
		DebounceCount:      envInt("DEBOUNCE_COUNT", 10),

		Cooldown:  envSeconds("FALL_COOLDOWN_SECONDS", 30),
		QueueSize: envInt("FRAME_QUEUE_SIZE", 64),

		EventLogPath: envStr("EVENT_LOG_PATH", "event_log.jsonl"),
		ClipDir:      envStr("CLIP_DIR", "clips"),
		ClipWindow:   envSeconds("CLIP_WINDOW_SECONDS", 10),

		ElevenLabsKey:    os.Getenv("ELEVENLABS_API_KEY"),
		ElevenLabsVoice:  os.Getenv("ELEVENLABS_VOICE_ID"),
		AssemblyAIKey:    os.Getenv("ASSEMBLYAI_API_KEY"),
		TwilioAccountSID: os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:  os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFromNumber: os.Getenv("TWILIO_FROM_NUMBER"),
		WebhookURL:       os.Getenv("VIGIL_WEBHOOK_URL"),
		ClassifierURL:    os.Getenv("CLASSIFIER_URL"),
	}
}

// Thresholds returns the confirmation machine tuning.
func (c *Config) Thresholds() detect.Thresholds {
	return detect.Thresholds{
		NearFall:      c.NearFallThreshold,
		Fall:          c.FallThreshold,
		Window:        c.ConfirmationWindow,
		FallCount:     c.FallCount,
		NearFallCount: c.NearFallCount,
		Debounce:      c.DebounceCount,
	}
}

// Twilio returns the telephony credentials.
func (c *Config) Twilio() alert.TwilioConfig {
	return alert.TwilioConfig{
		AccountSID: c.TwilioAccountSID,
		AuthToken:  c.TwilioAuthToken,
		FromNumber: c.TwilioFromNumber,
	}
}

// Validate checks the configuration before monitoring starts. Any
// error here is fatal; a misconfigured system must not pretend to
// watch over someone.
func (c *Config) Validate() error {
	if err := c.Thresholds().Validate(); err != nil {
		return err
	}
	if c.Timeout <= 0 || c.SecondChance <= 0 {
		return fmt.Errorf("config: check-in timeouts must be positive")
	}
	if len(c.Contacts) == 0 {
		return fmt.Errorf("config: at least one emergency contact required (VIGIL_CONTACTS)")
	}
	for _, contact := range c.Contacts {
		if err := contact.Validate(); err != nil {
			return err
		}
	}
	if c.EventLogPath == "" {
		return fmt.Errorf("config: event log path required")
	}

	if c.MockVoice {
		return nil
	}
	if c.ElevenLabsKey == "" || c.ElevenLabsVoice == "" {
		return fmt.Errorf("config: ELEVENLABS_API_KEY and ELEVENLABS_VOICE_ID required (or set VIGIL_MOCK_VOICE)")
	}
	if c.AssemblyAIKey == "" {
		return fmt.Errorf("config: ASSEMBLYAI_API_KEY required (or set VIGIL_MOCK_VOICE)")
	}
	if err := c.Twilio().Validate(); err != nil {
		return err
	}
	return nil
}

// parseContacts parses "Name:+15551234567,Name2:+15557654321". The
// first contact is marked primary.
func parseContacts(raw string) []alert.Contact {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	var contacts []alert.Contact
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, phone, found := strings.Cut(entry, ":")
		if !found {
			// Keep the malformed entry; Validate rejects it with a
			// useful message instead of silently dropping a contact.
			contacts = append(contacts, alert.Contact{Name: entry})
			continue
		}
		contacts = append(contacts, alert.Contact{
			Name:    strings.TrimSpace(name),
			Phone:   strings.TrimSpace(phone),
			Primary: len(contacts) == 0,
		})
	}
	return contacts
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envSeconds(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * time.Second
}
