package config

const (
	defaultBaseDir           = "~/.local/share/kestrel/evidence"
	defaultMetaDir           = "~/.local/share/kestrel/meta"
	defaultLogDir            = "~/.local/share/kestrel/logs"
	defaultLogRetentionDays  = 30
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
	defaultInterfaceName     = "wlan0"
	defaultRegulatoryDomain  = "US"
	defaultDwellMillis       = 500
	defaultOutDirName        = "handshakes"
	defaultCaptureDuration   = 60
	defaultMinConvertBytes   = 1024
	defaultSimulateBytes     = 4096
	defaultHcxdumptoolPath   = "hcxdumptool"
	defaultHcxpcapngtoolPath = "hcxpcapngtool"
	defaultMaxArchives       = 50
	defaultStorageMaxDays    = 30
	defaultStorageMaxBytes   = 10 << 30
	defaultLowSpaceBytes     = 1 << 30
	defaultBackoffInitial    = 1.0
	defaultBackoffCap        = 60.0
	defaultJitterFrac        = 0.2
	defaultHealthBind        = "127.0.0.1:8087"
	defaultMetricsBind       = "127.0.0.1:9187"
	defaultCatalogPath       = "~/.local/share/kestrel/meta/catalog.db"
	defaultRuntimeMinutes    = 5
	defaultTickSeconds       = 60
	defaultStopGraceSeconds  = 3
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Mode: ModePassive,
		Paths: Paths{
			BaseDir: defaultBaseDir,
			MetaDir: defaultMetaDir,
			LogDir:  defaultLogDir,
		},
		Interface: Interface{
			Name:             defaultInterfaceName,
			Channels:         []int{1, 6, 11},
			ChannelHop:       true,
			DwellMillis:      defaultDwellMillis,
			RegulatoryDomain: defaultRegulatoryDomain,
		},
		Capture: Capture{
			OutDirName:          defaultOutDirName,
			DurationSeconds:     defaultCaptureDuration,
			MinBytesForConvert:  defaultMinConvertBytes,
			SimulateBytesPerCap: defaultSimulateBytes,
			Naming: Naming{
				Template:   "{ssid}-{bssid}-ch{channel}",
				MaxNameLen: 80,
				Whitespace: "-",
			},
			Tools: Tools{
				HcxdumptoolPath:   defaultHcxdumptoolPath,
				HcxpcapngtoolPath: defaultHcxpcapngtoolPath,
			},
		},
		Rotation: Rotation{
			MaxArchives: defaultMaxArchives,
		},
		Storage: Storage{
			Enabled:       true,
			MaxDays:       defaultStorageMaxDays,
			MaxBytes:      defaultStorageMaxBytes,
			LowSpaceBytes: defaultLowSpaceBytes,
		},
		Supervisor: Supervisor{
			Enabled:            true,
			BackoffInitialSecs: defaultBackoffInitial,
			BackoffCapSecs:     defaultBackoffCap,
			JitterFrac:         defaultJitterFrac,
		},
		Server: Server{
			Health:  Listener{Enabled: true, Bind: defaultHealthBind},
			Metrics: Listener{Enabled: true, Bind: defaultMetricsBind},
		},
		Catalog: Catalog{
			Enabled: true,
			Path:    defaultCatalogPath,
		},
		Hardware: Hardware{
			MonitorEnabled: true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
		Run: Run{
			RuntimeMinutes:   defaultRuntimeMinutes,
			TickSeconds:      defaultTickSeconds,
			StopGraceSeconds: defaultStopGraceSeconds,
		},
	}
}
