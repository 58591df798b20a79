package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Vision  VisionConfig  `yaml:"vision"`
	NATS    NATSConfig    `yaml:"nats"`
	Worker  WorkerConfig  `yaml:"worker"`
	Logging LoggingConfig `yaml:"logging"`
}

type ServerConfig struct {
	Port              int      `yaml:"port"`
	UploadDir         string   `yaml:"upload_dir"`
	MaxUploadMB       int      `yaml:"max_upload_mb"`
	AllowedExtensions []string `yaml:"allowed_extensions"`
	// PublicBaseURL prefixes artifact URLs in responses. Empty yields
	// root-relative URLs such as /uploads/<name>.
	PublicBaseURL     string   `yaml:"public_base_url"`
}

// VisionConfig describes where pretrained assets live and how detectors are tuned.
// File names are resolved relative to ModelsDir.
type VisionConfig struct {
	ModelsDir           string  `yaml:"models_dir"`
	CascadeFile         string  `yaml:"cascade_file"`
	FaceModel           string  `yaml:"face_model"`
	AgeModel            string  `yaml:"age_model"`
	GenderModel         string  `yaml:"gender_model"`
	ObjectModel         string  `yaml:"object_model"`
	FaceConfidence      float64 `yaml:"face_confidence"`
	ObjectConfidence    float64 `yaml:"object_confidence"`
	FaceMaxDetections   int     `yaml:"face_max_detections"`
	ObjectMaxDetections int     `yaml:"object_max_detections"`
	ColorSeed           uint64  `yaml:"color_seed"`
	IntraOpThreads      int     `yaml:"intra_op_threads"`
	ONNXLibrary         string  `yaml:"onnx_library"`
}

type NATSConfig struct {
	URL string `yaml:"url"`
}

type WorkerConfig struct {
	Count       int `yaml:"count"`
	MetricsPort int `yaml:"metrics_port"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads config from YAML file and applies environment variable overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(cfg)
	setDefaults(cfg)

	return cfg, nil
}

// Default returns a config populated only with defaults, for running without a file.
func Default() *Config {
	cfg := &Config{}
	applyEnvOverrides(cfg)
	setDefaults(cfg)
	return cfg
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.UploadDir == "" {
		cfg.Server.UploadDir = "uploads"
	}
	if cfg.Server.MaxUploadMB == 0 {
		cfg.Server.MaxUploadMB = 16
	}
	if len(cfg.Server.AllowedExtensions) == 0 {
		cfg.Server.AllowedExtensions = []string{"png", "jpg", "jpeg"}
	}
	if cfg.Vision.ModelsDir == "" {
		cfg.Vision.ModelsDir = "models/pretrained"
	}
	if cfg.Vision.CascadeFile == "" {
		cfg.Vision.CascadeFile = "facefinder"
	}
	if cfg.Vision.FaceModel == "" {
		cfg.Vision.FaceModel = "opencv_face_detector.onnx"
	}
	if cfg.Vision.AgeModel == "" {
		cfg.Vision.AgeModel = "age_net.onnx"
	}
	if cfg.Vision.GenderModel == "" {
		cfg.Vision.GenderModel = "gender_net.onnx"
	}
	if cfg.Vision.ObjectModel == "" {
		cfg.Vision.ObjectModel = "mobilenet_ssd.onnx"
	}
	if cfg.Vision.FaceConfidence == 0 {
		cfg.Vision.FaceConfidence = 0.7
	}
	if cfg.Vision.ObjectConfidence == 0 {
		cfg.Vision.ObjectConfidence = 0.5
	}
	if cfg.Vision.FaceMaxDetections == 0 {
		cfg.Vision.FaceMaxDetections = 200
	}
	if cfg.Vision.ObjectMaxDetections == 0 {
		cfg.Vision.ObjectMaxDetections = 100
	}
	if cfg.Vision.ColorSeed == 0 {
		cfg.Vision.ColorSeed = 42
	}
	if cfg.Worker.Count == 0 {
		cfg.Worker.Count = 4
	}
	if cfg.Worker.MetricsPort == 0 {
		cfg.Worker.MetricsPort = 8082
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PICTOR_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("PICTOR_UPLOAD_DIR"); v != "" {
		cfg.Server.UploadDir = v
	}
	if v := os.Getenv("PICTOR_MAX_UPLOAD_MB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.MaxUploadMB = n
		}
	}
	if v := os.Getenv("PICTOR_PUBLIC_BASE_URL"); v != "" {
		cfg.Server.PublicBaseURL = v
	}
	if v := os.Getenv("PICTOR_MODELS_DIR"); v != "" {
		cfg.Vision.ModelsDir = v
	}
	if v := os.Getenv("PICTOR_ONNX_LIBRARY"); v != "" {
		cfg.Vision.ONNXLibrary = v
	}
	if v := os.Getenv("PICTOR_COLOR_SEED"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Vision.ColorSeed = n
		}
	}
	if v := os.Getenv("PICTOR_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("PICTOR_WORKER_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Worker.Count = n
		}
	}
	if v := os.Getenv("PICTOR_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}
