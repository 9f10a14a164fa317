package main

import (
	"fmt"
	"strings"
	"time"

	ini "gopkg.in/ini.v1"

	"callaudio/engine"
)

// Settings holds application configuration loaded from settings.ini.
type Settings struct {
	ringtonePath       string
	sampleRate         int
	frameMS            int
	earpieceAvailable  bool
	vibrateWhenRinging bool
	preferHandsFree    bool
	ringerMode         engine.RingerMode
	renderSink         string
	renderDir          string
	emergencyNumbers   []string

	sipEnabled    bool
	sipPort       int
	sipPortRange  int
	publicAddress string
	sipUser       string
	autoAnswer    int

	tgEnabled          bool
	apiID              int
	apiHash            string
	dbFolder           string
	systemLanguageCode string
	deviceModel        string
	systemVersion      string
	applicationVersion string
	tgAutoAnswer       int

	proxyEnabled  bool
	proxyAddress  string
	proxyPort     int
	proxyUsername string
	proxyPassword string

	metricsAddress string
}

// LoadSettings reads configuration from ini file and validates required fields.
func LoadSettings(cfg *ini.File) (*Settings, error) {
	s := &Settings{}

	sec := cfg.Section("audio")
	s.ringtonePath = sec.Key("ringtone_path").String()
	s.sampleRate = sec.Key("sample_rate").MustInt(8000)
	s.frameMS = sec.Key("frame_ms").MustInt(20)
	s.earpieceAvailable = sec.Key("earpiece_available").MustBool(true)
	s.vibrateWhenRinging = sec.Key("vibrate_when_ringing").MustBool(true)
	s.preferHandsFree = sec.Key("preferred_hands_free").MustBool(false)
	s.renderSink = strings.ToLower(sec.Key("render_sink").In("null", []string{"null", "wav"}))
	s.renderDir = sec.Key("render_dir").MustString("render")
	s.emergencyNumbers = sec.Key("emergency_numbers").Strings(",")
	if len(s.emergencyNumbers) == 0 {
		s.emergencyNumbers = []string{"112", "911"}
	}
	switch mode := sec.Key("ringer_mode").In("normal", []string{"normal", "vibrate", "silent"}); mode {
	case "vibrate":
		s.ringerMode = engine.RingerVibrate
	case "silent":
		s.ringerMode = engine.RingerSilent
	default:
		s.ringerMode = engine.RingerNormal
	}

	sec = cfg.Section("sip")
	s.sipEnabled = sec.Key("enabled").MustBool(true)
	s.sipPort = sec.Key("port").MustInt(5060)
	s.sipPortRange = sec.Key("port_range").MustInt(0)
	s.publicAddress = sec.Key("public_address").String()
	s.sipUser = sec.Key("user").MustString("callaudio")
	s.autoAnswer = sec.Key("auto_answer").MustInt(0)

	sec = cfg.Section("telegram")
	s.tgEnabled = sec.Key("enabled").MustBool(false)
	s.apiID = sec.Key("api_id").MustInt(0)
	s.apiHash = sec.Key("api_hash").String()
	s.dbFolder = sec.Key("database_folder").MustString("/data")
	s.systemLanguageCode = sec.Key("system_language_code").MustString("en-US")
	s.deviceModel = sec.Key("device_model").MustString("PC")
	s.systemVersion = sec.Key("system_version").MustString("Linux")
	s.applicationVersion = sec.Key("application_version").MustString("1.0")
	s.tgAutoAnswer = sec.Key("auto_answer").MustInt(0)

	s.proxyEnabled = sec.Key("use_proxy").MustBool(false)
	s.proxyAddress = sec.Key("proxy_address").String()
	s.proxyPort = sec.Key("proxy_port").MustInt(0)
	s.proxyUsername = sec.Key("proxy_username").String()
	s.proxyPassword = sec.Key("proxy_password").String()

	s.metricsAddress = cfg.Section("metrics").Key("listen_address").String()

	if s.sampleRate <= 0 || s.frameMS <= 0 {
		return nil, fmt.Errorf("audio sample_rate and frame_ms must be positive")
	}
	if s.tgEnabled && (s.apiID == 0 || s.apiHash == "") {
		return nil, fmt.Errorf("telegram api settings must be set")
	}
	if !s.sipEnabled && !s.tgEnabled {
		return nil, fmt.Errorf("at least one of sip or telegram must be enabled")
	}

	return s, nil
}

func (s *Settings) RingtonePath() string          { return s.ringtonePath }
func (s *Settings) SampleRate() int               { return s.sampleRate }
func (s *Settings) EarpieceAvailable() bool       { return s.earpieceAvailable }
func (s *Settings) VibrateWhenRinging() bool      { return s.vibrateWhenRinging }
func (s *Settings) PreferHandsFree() bool         { return s.preferHandsFree }
func (s *Settings) RingerMode() engine.RingerMode { return s.ringerMode }
func (s *Settings) RenderSink() string            { return s.renderSink }
func (s *Settings) RenderDir() string             { return s.renderDir }
func (s *Settings) EmergencyNumbers() []string    { return s.emergencyNumbers }

func (s *Settings) FrameDuration() time.Duration {
	return time.Duration(s.frameMS) * time.Millisecond
}

func (s *Settings) SIPEnabled() bool      { return s.sipEnabled }
func (s *Settings) SIPPort() int          { return s.sipPort }
func (s *Settings) SIPPortRange() int     { return s.sipPortRange }
func (s *Settings) PublicAddress() string { return s.publicAddress }
func (s *Settings) SIPUser() string       { return s.sipUser }

func (s *Settings) SIPAutoAnswer() time.Duration {
	return time.Duration(s.autoAnswer) * time.Second
}

func (s *Settings) TelegramEnabled() bool      { return s.tgEnabled }
func (s *Settings) APIID() int                 { return s.apiID }
func (s *Settings) APIHash() string            { return s.apiHash }
func (s *Settings) DatabaseFolder() string     { return s.dbFolder }
func (s *Settings) SystemLanguageCode() string { return s.systemLanguageCode }
func (s *Settings) DeviceModel() string        { return s.deviceModel }
func (s *Settings) SystemVersion() string      { return s.systemVersion }
func (s *Settings) ApplicationVersion() string { return s.applicationVersion }

func (s *Settings) TelegramAutoAnswer() time.Duration {
	return time.Duration(s.tgAutoAnswer) * time.Second
}

func (s *Settings) ProxyEnabled() bool    { return s.proxyEnabled }
func (s *Settings) ProxyAddress() string  { return s.proxyAddress }
func (s *Settings) ProxyPort() int        { return s.proxyPort }
func (s *Settings) ProxyUsername() string { return s.proxyUsername }
func (s *Settings) ProxyPassword() string { return s.proxyPassword }

func (s *Settings) MetricsAddress() string { return s.metricsAddress }
